// Package security implements the denylist gate that every candidate
// modification must clear before validation. When the prior source is
// available the scan is restricted to added lines, so legacy code cannot
// produce false positives.
package security

import (
	"fmt"
	"go/parser"
	"go/token"
	"regexp"
	"strings"

	"metamorph/internal/diff"
	"metamorph/internal/logging"
)

// ViolationKind classifies what the gate found.
type ViolationKind int

const (
	ViolationShellExec ViolationKind = iota
	ViolationDynamicEval
	ViolationDynamicLoad
	ViolationSensitiveImport
)

// String returns a human-readable violation kind.
func (v ViolationKind) String() string {
	switch v {
	case ViolationShellExec:
		return "shell_exec"
	case ViolationDynamicEval:
		return "dynamic_eval"
	case ViolationDynamicLoad:
		return "dynamic_load"
	case ViolationSensitiveImport:
		return "sensitive_import"
	default:
		return "unknown"
	}
}

// Violation is one denylist match.
type Violation struct {
	Kind    ViolationKind `json:"kind"`
	Pattern string        `json:"pattern"`
	Line    string        `json:"line"`
}

func (v Violation) String() string {
	return fmt.Sprintf("[%s] %s in %q", v.Kind, v.Pattern, strings.TrimSpace(v.Line))
}

// Report is the gate's verdict.
type Report struct {
	Passed     bool        `json:"passed"`
	Violations []Violation `json:"violations,omitempty"`
	DiffOnly   bool        `json:"diff_only"` // scan was restricted to added lines
}

// callPatterns are denylisted call sites: direct shell invocation, dynamic
// evaluation of text as code, and dynamic loading by name.
var callPatterns = []struct {
	kind    ViolationKind
	pattern *regexp.Regexp
	label   string
}{
	{ViolationShellExec, regexp.MustCompile(`\bexec\.Command\b`), "exec.Command"},
	{ViolationShellExec, regexp.MustCompile(`\bexec\.CommandContext\b`), "exec.CommandContext"},
	{ViolationShellExec, regexp.MustCompile(`\bsyscall\.Exec\b`), "syscall.Exec"},
	{ViolationShellExec, regexp.MustCompile(`\bos\.StartProcess\b`), "os.StartProcess"},
	{ViolationDynamicEval, regexp.MustCompile(`\binterp\.New\b`), "interp.New"},
	{ViolationDynamicEval, regexp.MustCompile(`\.Eval\(`), ".Eval("},
	{ViolationDynamicLoad, regexp.MustCompile(`\bplugin\.Open\b`), "plugin.Open"},
}

// sensitiveImports are capabilities generated code must not acquire:
// networking, process control, and low-level system access.
var sensitiveImports = map[string]bool{
	"os/exec":       true,
	"net":           true,
	"net/http":      true,
	"net/rpc":       true,
	"syscall":       true,
	"unsafe":        true,
	"plugin":        true,
	"runtime/debug": true,
}

// Gate scans candidate modifications.
type Gate struct {
	diffEngine *diff.Engine
}

// NewGate creates a gate.
func NewGate() *Gate {
	return &Gate{diffEngine: diff.NewEngine()}
}

// Check scans the modified source. With a non-empty prior source only the
// added lines are scanned for call patterns; import analysis always covers
// the whole modified file since import additions surface there either way.
func (g *Gate) Check(modified, prior string) Report {
	report := Report{Passed: true}

	var lines []string
	if prior != "" {
		d := g.diffEngine.Compute("prior", "modified", prior, modified)
		lines = d.AddedLines()
		report.DiffOnly = true
	} else {
		lines = strings.Split(modified, "\n")
	}

	for _, line := range lines {
		if stripped := stripComment(line); stripped != "" {
			for _, cp := range callPatterns {
				if cp.pattern.MatchString(stripped) {
					report.Violations = append(report.Violations, Violation{
						Kind:    cp.kind,
						Pattern: cp.label,
						Line:    line,
					})
				}
			}
		}
	}

	report.Violations = append(report.Violations, checkImports(modified, prior)...)

	if len(report.Violations) > 0 {
		report.Passed = false
		for _, v := range report.Violations {
			logging.Security("violation: %s", v)
		}
		logging.Audit().Log(logging.AuditEvent{
			EventType: logging.AuditSecurityBlock,
			Category:  string(logging.CategorySecurity),
			Success:   false,
			Message:   fmt.Sprintf("%d violations", len(report.Violations)),
		})
	}
	return report
}

// checkImports flags sensitive imports that are present in the modified
// source but absent from the prior one.
func checkImports(modified, prior string) []Violation {
	modImports := importSet(modified)
	priorImports := importSet(prior)

	var out []Violation
	for path := range modImports {
		if sensitiveImports[path] && !priorImports[path] {
			out = append(out, Violation{
				Kind:    ViolationSensitiveImport,
				Pattern: path,
				Line:    `import "` + path + `"`,
			})
		}
	}
	return out
}

// importSet parses a source file's imports, falling back to a regexp scan
// when the source does not parse (the gate runs before syntax validation).
func importSet(source string) map[string]bool {
	set := make(map[string]bool)
	if source == "" {
		return set
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "candidate.go", source, parser.ImportsOnly)
	if err == nil {
		for _, imp := range file.Imports {
			set[strings.Trim(imp.Path.Value, `"`)] = true
		}
		return set
	}

	re := regexp.MustCompile(`(?m)^\s*(?:import\s+)?"([^"]+)"`)
	for _, m := range re.FindAllStringSubmatch(source, -1) {
		set[m[1]] = true
	}
	return set
}

// stripComment drops a trailing line comment so commented-out examples do not
// trip the call patterns.
func stripComment(line string) string {
	if idx := strings.Index(line, "//"); idx != -1 {
		line = line[:idx]
	}
	return strings.TrimSpace(line)
}
