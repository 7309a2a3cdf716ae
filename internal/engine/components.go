package engine

import (
	"go/ast"
	"go/parser"
	"go/token"
	"regexp"
	"strings"

	"metamorph/internal/transform"
)

var registerCallPattern = regexp.MustCompile(`registerComponent\(\s*"([^"]+)"`)

// sourceComponent adapts one registered unit of the managed source to the
// metric evaluator. Source-as-data: the component's definition is a slice of
// the managed text, recomputed each refresh.
type sourceComponent struct {
	id         string
	definition string
	operations int
}

func (c *sourceComponent) ID() string      { return c.id }
func (c *sourceComponent) Source() string  { return c.definition }
func (c *sourceComponent) Operations() int { return c.operations }

// refreshRegistry rebuilds the registry view from the current managed
// source. Components are the units named in registerComponent calls; a
// registered id whose definition cannot be located is skipped.
func (e *Engine) refreshRegistry() {
	locator := transform.NewLocator()
	for _, match := range registerCallPattern.FindAllStringSubmatch(e.source, -1) {
		id := match[1]
		boundary, err := locator.Locate(e.source, id)
		if err != nil {
			continue
		}
		end := boundary.End
		if methodsEnd, _, err := locator.MethodsEnd(e.source, id); err == nil && methodsEnd > end {
			end = methodsEnd
		}
		e.registry.Register(&sourceComponent{
			id:         id,
			definition: e.source[boundary.Start:end],
			operations: countOperations(e.source, boundary.Name),
		})
	}
}

// countOperations counts the exported methods declared on a type.
func countOperations(source, typeName string) int {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "managed.go", source, 0)
	if err != nil {
		return 0
	}
	count := 0
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Recv == nil || len(fn.Recv.List) == 0 || !fn.Name.IsExported() {
			continue
		}
		if receiverTypeName(fn.Recv.List[0].Type) == typeName {
			count++
		}
	}
	return count
}

func receiverTypeName(expr ast.Expr) string {
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

// unintegratedModules lists generated units that exist in the source but
// were never wired into the registration section.
func (e *Engine) unintegratedModules() []string {
	registered := make(map[string]bool)
	for _, match := range registerCallPattern.FindAllStringSubmatch(e.source, -1) {
		registered[match[1]] = true
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "managed.go", e.source, 0)
	if err != nil {
		return nil
	}

	var orphans []string
	for _, decl := range file.Decls {
		gd, ok := decl.(*ast.GenDecl)
		if !ok || gd.Tok != token.TYPE {
			continue
		}
		for _, spec := range gd.Specs {
			ts, ok := spec.(*ast.TypeSpec)
			if !ok || !strings.HasPrefix(ts.Name.Name, "GeneratedModule") {
				continue
			}
			id := toSnakeCase(ts.Name.Name)
			if !registered[id] {
				orphans = append(orphans, id)
			}
		}
	}
	return orphans
}

// toSnakeCase is the inverse of the PascalCase mapping used by the locator.
func toSnakeCase(name string) string {
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				prev := rune(name[i-1])
				if prev >= 'a' && prev <= 'z' || prev >= '0' && prev <= '9' {
					b.WriteByte('_')
				}
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		if r >= '0' && r <= '9' && i > 0 {
			prev := rune(name[i-1])
			if prev < '0' || prev > '9' {
				b.WriteByte('_')
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}
