// Package transform synthesizes source modifications from hypotheses. All
// edits are positioned through a parsed representation of the managed source,
// never by raw text search, so insertion survives formatting changes.
package transform

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strings"
)

// Boundary is the byte-offset extent of one top-level declaration.
type Boundary struct {
	Start int // offset of the declaration keyword (doc comment excluded)
	End   int // offset one past the closing brace
	Name  string
}

// Locator resolves component identifiers to declaration boundaries.
type Locator struct{}

// NewLocator creates a locator.
func NewLocator() *Locator {
	return &Locator{}
}

// Locate finds the top-level type or function declaration for a component id.
// Ids in snake_case match their PascalCase declaration name.
func (l *Locator) Locate(source, id string) (Boundary, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "managed.go", source, parser.ParseComments)
	if err != nil {
		return Boundary{}, fmt.Errorf("parse managed source: %w", err)
	}

	names := candidateNames(id)

	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.GenDecl:
			if d.Tok != token.TYPE {
				continue
			}
			for _, spec := range d.Specs {
				ts, ok := spec.(*ast.TypeSpec)
				if !ok {
					continue
				}
				if names[ts.Name.Name] {
					return Boundary{
						Start: fset.Position(d.Pos()).Offset,
						End:   fset.Position(d.End()).Offset,
						Name:  ts.Name.Name,
					}, nil
				}
			}
		case *ast.FuncDecl:
			if d.Recv == nil && names[d.Name.Name] {
				return Boundary{
					Start: fset.Position(d.Pos()).Offset,
					End:   fset.Position(d.End()).Offset,
					Name:  d.Name.Name,
				}, nil
			}
		}
	}
	return Boundary{}, fmt.Errorf("no declaration found for component %q", id)
}

// MethodsEnd returns the offset just past the last method declared on the
// named type, falling back to the type declaration itself. New operations are
// appended there so a component's definition stays contiguous.
func (l *Locator) MethodsEnd(source, id string) (int, string, error) {
	b, err := l.Locate(source, id)
	if err != nil {
		return 0, "", err
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "managed.go", source, parser.ParseComments)
	if err != nil {
		return 0, "", fmt.Errorf("parse managed source: %w", err)
	}

	end := b.End
	for _, decl := range file.Decls {
		fd, ok := decl.(*ast.FuncDecl)
		if !ok || fd.Recv == nil || len(fd.Recv.List) == 0 {
			continue
		}
		if receiverType(fd.Recv.List[0].Type) == b.Name {
			if o := fset.Position(fd.End()).Offset; o > end {
				end = o
			}
		}
	}
	return end, b.Name, nil
}

func receiverType(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		if id, ok := t.X.(*ast.Ident); ok {
			return id.Name
		}
	}
	return ""
}

// candidateNames maps a component id to the declaration names it may use.
func candidateNames(id string) map[string]bool {
	names := map[string]bool{id: true}
	names[toPascalCase(id)] = true
	return names
}

// toPascalCase converts snake_case to PascalCase.
func toPascalCase(s string) string {
	parts := strings.Split(s, "_")
	for i := 0; i < len(parts); i++ {
		if len(parts[i]) > 0 {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, "")
}
