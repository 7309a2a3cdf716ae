package transform

import (
	"go/ast"
	"go/parser"
	"go/token"
	"strings"
)

// stdlibPackages maps selector prefixes found in a fragment to their import
// paths. Only packages the security gate tolerates appear here.
var stdlibPackages = map[string]string{
	"fmt":     "fmt",
	"strings": "strings",
	"strconv": "strconv",
	"sort":    "sort",
	"math":    "math",
	"time":    "time",
	"errors":  "errors",
	"bytes":   "bytes",
	"regexp":  "regexp",
	"json":    "encoding/json",
}

// ExtractFragment pulls a syntactically valid Go fragment out of free text.
// It tries, in order: a fenced block marked as Go, any fenced block that
// parses, then a heuristic scan for lines starting a function definition.
// Returns false when nothing valid is found; the caller then embeds the text
// as a comment instead.
func ExtractFragment(text string) (string, bool) {
	if text == "" {
		return "", false
	}

	if block := fencedBlock(text, "go"); block != "" && fragmentValid(block) {
		return block, true
	}

	for _, block := range allFencedBlocks(text) {
		if fragmentValid(block) {
			return block, true
		}
	}

	if frag := scanForFunc(text); frag != "" && fragmentValid(frag) {
		return frag, true
	}
	return "", false
}

// fencedBlock returns the first block fenced with the given language tag.
func fencedBlock(text, lang string) string {
	patterns := []string{
		"```" + lang + "\n",
		"```" + lang + "\r\n",
	}
	for _, pattern := range patterns {
		if idx := strings.Index(text, pattern); idx != -1 {
			start := idx + len(pattern)
			if end := strings.Index(text[start:], "```"); end != -1 {
				return strings.TrimSpace(text[start : start+end])
			}
		}
	}
	return ""
}

// allFencedBlocks returns every fenced block regardless of tag.
func allFencedBlocks(text string) []string {
	var blocks []string
	rest := text
	for {
		idx := strings.Index(rest, "```")
		if idx == -1 {
			break
		}
		rest = rest[idx+3:]
		// Skip the language tag line.
		if nl := strings.Index(rest, "\n"); nl != -1 {
			rest = rest[nl+1:]
		} else {
			break
		}
		end := strings.Index(rest, "```")
		if end == -1 {
			break
		}
		blocks = append(blocks, strings.TrimSpace(rest[:end]))
		rest = rest[end+3:]
	}
	return blocks
}

// scanForFunc collects consecutive lines starting from the first function
// definition keyword.
func scanForFunc(text string) string {
	lines := strings.Split(text, "\n")
	start := -1
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "func ") {
			start = i
			break
		}
	}
	if start == -1 {
		return ""
	}

	depth := 0
	var out []string
	for _, line := range lines[start:] {
		out = append(out, line)
		depth += strings.Count(line, "{") - strings.Count(line, "}")
		if depth == 0 && len(out) > 1 {
			break
		}
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// fragmentValid reports whether the fragment parses as top-level Go
// declarations.
func fragmentValid(fragment string) bool {
	_, err := parseFragment(fragment)
	return err == nil
}

func parseFragment(fragment string) (*ast.File, error) {
	fset := token.NewFileSet()
	return parser.ParseFile(fset, "fragment.go", "package fragment\n\n"+fragment, 0)
}

// ImpliedImports returns the import paths a fragment needs, derived from its
// package selectors. Unknown selectors are ignored; the validator will catch
// genuinely missing imports.
func ImpliedImports(fragment string) []string {
	file, err := parseFragment(fragment)
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var paths []string
	ast.Inspect(file, func(n ast.Node) bool {
		sel, ok := n.(*ast.SelectorExpr)
		if !ok {
			return true
		}
		ident, ok := sel.X.(*ast.Ident)
		if !ok {
			return true
		}
		if path, known := stdlibPackages[ident.Name]; known && !seen[path] {
			seen[path] = true
			paths = append(paths, path)
		}
		return true
	})
	return paths
}

// MergeImports adds the given import paths to the source's import section,
// deduplicated against what is already imported. The source must parse.
func MergeImports(source string, paths []string) (string, error) {
	if len(paths) == 0 {
		return source, nil
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "managed.go", source, parser.ParseComments)
	if err != nil {
		return source, err
	}

	existing := make(map[string]bool)
	for _, imp := range file.Imports {
		existing[strings.Trim(imp.Path.Value, `"`)] = true
	}

	var missing []string
	for _, p := range paths {
		if !existing[p] {
			missing = append(missing, p)
		}
	}
	if len(missing) == 0 {
		return source, nil
	}

	// Prefer extending an existing parenthesized import block.
	for _, decl := range file.Decls {
		gd, ok := decl.(*ast.GenDecl)
		if !ok || gd.Tok != token.IMPORT || !gd.Rparen.IsValid() {
			continue
		}
		at := fset.Position(gd.Rparen).Offset
		var sb strings.Builder
		for _, p := range missing {
			sb.WriteString("\t\"" + p + "\"\n")
		}
		return source[:at] + sb.String() + source[at:], nil
	}

	// No block: insert a new one after the package clause (and any single
	// import declarations already follow it untouched).
	pkgEnd := fset.Position(file.Name.End()).Offset
	lineEnd := strings.Index(source[pkgEnd:], "\n")
	if lineEnd == -1 {
		lineEnd = 0
	}
	at := pkgEnd + lineEnd + 1

	var sb strings.Builder
	sb.WriteString("\nimport (\n")
	for _, p := range missing {
		sb.WriteString("\t\"" + p + "\"\n")
	}
	sb.WriteString(")\n")
	return source[:at] + sb.String() + source[at:], nil
}
