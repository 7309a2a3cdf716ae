package transform

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strings"
	"time"

	"metamorph/internal/logging"
	"metamorph/internal/types"
)

// RegistrationAnchor marks the spot in the managed source where generated
// modules are wired into the component registry.
const RegistrationAnchor = "// metamorph:register"

// Result is the outcome of one transformation attempt. Source is returned
// unchanged when the hypothesis kind is unknown or the edit could not be
// positioned.
type Result struct {
	Source      string
	Description string
	Changed     bool
}

// HistoryEntry records one applied transformation for introspection.
type HistoryEntry struct {
	Timestamp   time.Time            `json:"timestamp"`
	Kind        types.HypothesisKind `json:"kind"`
	Target      string               `json:"target"`
	Description string               `json:"description"`
}

// Transformer synthesizes modified source for each hypothesis kind through a
// fixed dispatch table.
type Transformer struct {
	locator  *Locator
	dispatch map[types.HypothesisKind]func(string, types.Hypothesis, string) Result
	history  []HistoryEntry
}

// NewTransformer creates a transformer.
func NewTransformer() *Transformer {
	t := &Transformer{locator: NewLocator()}
	t.dispatch = map[types.HypothesisKind]func(string, types.Hypothesis, string) Result{
		types.KindRefactorSimplification: t.insertMarker,
		types.KindOptimizePerformance:    t.insertMarker,
		types.KindIntegration:            t.insertMarker,
		types.KindExpandFunctionality:    t.expandFunctionality,
		types.KindCreateNewModule:        t.createNewModule,
	}
	return t
}

// Apply transforms the source per the hypothesis, optionally using free-text
// suggestion material. A history entry is appended only when the source
// actually changed.
func (t *Transformer) Apply(source string, h types.Hypothesis, suggestion string) Result {
	fn, ok := t.dispatch[h.Kind]
	if !ok {
		return Result{Source: source, Description: fmt.Sprintf("no transformation for kind %s", h.Kind)}
	}

	res := fn(source, h, suggestion)
	if res.Changed {
		t.history = append(t.history, HistoryEntry{
			Timestamp:   time.Now(),
			Kind:        h.Kind,
			Target:      h.Target,
			Description: res.Description,
		})
		logging.Transform("%s on %s: %s", h.Kind, h.Target, res.Description)
	} else {
		logging.Transform("%s on %s: unchanged (%s)", h.Kind, h.Target, res.Description)
	}
	return res
}

// History returns the applied-transformation history.
func (t *Transformer) History() []HistoryEntry {
	return t.history
}

// insertMarker handles refactor, optimize, and integration hypotheses by
// placing a structured pending-work marker before the target's declaration.
// Suggestion text is embedded as reference comments, never as code.
func (t *Transformer) insertMarker(source string, h types.Hypothesis, suggestion string) Result {
	b, err := t.locator.Locate(source, h.Target)
	if err != nil {
		return Result{Source: source, Description: fmt.Sprintf("target not located: %v", err)}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "// PENDING(%s): %s\n", h.Kind, h.Rationale)
	if h.Kind == types.KindIntegration && h.IntegrationTarget != "" {
		fmt.Fprintf(&sb, "// PENDING(%s): integrate with %s\n", h.Kind, h.IntegrationTarget)
	}
	for _, line := range commentLines(suggestion) {
		sb.WriteString(line)
	}

	marker := sb.String()
	if strings.Contains(source, marker) {
		return Result{Source: source, Description: "marker already present"}
	}

	modified := source[:b.Start] + marker + source[b.Start:]
	return Result{
		Source:      modified,
		Description: fmt.Sprintf("marked %s for %s", b.Name, h.Kind),
		Changed:     true,
	}
}

// expandFunctionality appends a new operation to the target component. A
// valid code fragment from the suggestion becomes the operation verbatim,
// with its implied imports merged; otherwise a placeholder operation that
// echoes its arguments is generated.
func (t *Transformer) expandFunctionality(source string, h types.Hypothesis, suggestion string) Result {
	end, typeName, err := t.locator.MethodsEnd(source, h.Target)
	if err != nil {
		return Result{Source: source, Description: fmt.Sprintf("target not located: %v", err)}
	}

	if fragment, ok := ExtractFragment(suggestion); ok {
		modified := source[:end] + "\n\n" + fragment + "\n" + source[end:]
		merged, err := MergeImports(modified, ImpliedImports(fragment))
		if err != nil {
			// Fragment broke the file; fall through to the placeholder path.
			logging.Transform("fragment splice failed for %s: %v", h.Target, err)
		} else {
			return Result{
				Source:      merged,
				Description: fmt.Sprintf("added suggested operation to %s", typeName),
				Changed:     true,
			}
		}
	}

	opName := nextOpName(source, typeName)
	var sb strings.Builder
	fmt.Fprintf(&sb, "\n\n// %s extends %s. Generated operation; body pending refinement.\n", opName, typeName)
	fmt.Fprintf(&sb, "func (c *%s) %s(args map[string]interface{}) (string, error) {\n", typeName, opName)
	fmt.Fprintf(&sb, "\treturn fmt.Sprintf(\"%s executed with %%d args: %%v\", len(args), args), nil\n", opName)
	sb.WriteString("}\n")
	for _, line := range commentLines(suggestion) {
		sb.WriteString(line)
	}

	modified := source[:end] + sb.String() + source[end:]
	merged, err := MergeImports(modified, []string{"fmt"})
	if err != nil {
		return Result{Source: source, Description: fmt.Sprintf("import merge failed: %v", err)}
	}
	return Result{
		Source:      merged,
		Description: fmt.Sprintf("added operation %s to %s", opName, typeName),
		Changed:     true,
	}
}

// createNewModule appends a new top-level unit with example operations and
// scaffolds its registration at the anchor. A missing anchor leaves the unit
// unregistered and says so in the description.
func (t *Transformer) createNewModule(source string, h types.Hypothesis, suggestion string) Result {
	n := nextModuleIndex(source)
	typeName := fmt.Sprintf("GeneratedModule%d", n)
	id := fmt.Sprintf("generated_module_%d", n)

	var sb strings.Builder
	fmt.Fprintf(&sb, "\n// %s is a generated module. Rationale: %s\n", typeName, h.Rationale)
	fmt.Fprintf(&sb, "type %s struct{}\n\n", typeName)
	fmt.Fprintf(&sb, "// Describe reports what this module is for.\n")
	fmt.Fprintf(&sb, "func (m *%s) Describe() string {\n\treturn %q\n}\n\n", typeName, "generated module "+id)
	fmt.Fprintf(&sb, "// Echo is an example operation.\n")
	fmt.Fprintf(&sb, "func (m *%s) Echo(args map[string]interface{}) (string, error) {\n", typeName)
	fmt.Fprintf(&sb, "\treturn fmt.Sprintf(\"%s echo: %%v\", args), nil\n}\n", id)

	modified := source + sb.String()

	registered := false
	if idx := strings.Index(modified, RegistrationAnchor); idx != -1 {
		lineEnd := strings.Index(modified[idx:], "\n")
		if lineEnd != -1 {
			at := idx + lineEnd + 1
			reg := fmt.Sprintf("\tregisterComponent(%q, &%s{})\n", id, typeName)
			modified = modified[:at] + reg + modified[at:]
			registered = true
		}
	}

	merged, err := MergeImports(modified, []string{"fmt"})
	if err != nil {
		return Result{Source: source, Description: fmt.Sprintf("import merge failed: %v", err)}
	}

	desc := fmt.Sprintf("created module %s", typeName)
	if !registered {
		desc += " (unregistered: anchor not found)"
	}
	_ = suggestion // module scaffolds never splice untrusted code
	return Result{Source: merged, Description: desc, Changed: true}
}

// commentLines renders suggestion text as reference comments.
func commentLines(suggestion string) []string {
	suggestion = strings.TrimSpace(suggestion)
	if suggestion == "" {
		return nil
	}
	lines := strings.Split(suggestion, "\n")
	const maxRefLines = 5
	if len(lines) > maxRefLines {
		lines = lines[:maxRefLines]
	}
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		out = append(out, "// ref: "+strings.TrimSpace(l)+"\n")
	}
	return out
}

// nextOpName picks the next free generated-operation name on a type.
func nextOpName(source, typeName string) string {
	for i := 1; ; i++ {
		name := fmt.Sprintf("GeneratedOp%d", i)
		if !strings.Contains(source, ") "+name+"(") {
			return name
		}
	}
}

// nextModuleIndex scans existing declarations for generated modules.
func nextModuleIndex(source string) int {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "managed.go", source, 0)
	if err != nil {
		return 1
	}
	max := 0
	for _, decl := range file.Decls {
		gd, ok := decl.(*ast.GenDecl)
		if !ok || gd.Tok != token.TYPE {
			continue
		}
		for _, spec := range gd.Specs {
			ts, ok := spec.(*ast.TypeSpec)
			if !ok {
				continue
			}
			var n int
			if _, err := fmt.Sscanf(ts.Name.Name, "GeneratedModule%d", &n); err == nil && n > max {
				max = n
			}
		}
	}
	return max + 1
}
