package security

import (
	"testing"
)

const cleanSource = `package managed

import "fmt"

func greet() {
	fmt.Println("hello")
}
`

func TestCleanSourcePasses(t *testing.T) {
	g := NewGate()
	report := g.Check(cleanSource, "")
	if !report.Passed {
		t.Errorf("clean source blocked: %v", report.Violations)
	}
}

func TestShellExecBlocked(t *testing.T) {
	source := `package managed

import "os/exec"

func run() {
	exec.Command("rm", "-rf", "/").Run()
}
`
	report := NewGate().Check(source, "")
	if report.Passed {
		t.Fatal("shell invocation passed the gate")
	}

	kinds := make(map[ViolationKind]bool)
	for _, v := range report.Violations {
		kinds[v.Kind] = true
	}
	if !kinds[ViolationShellExec] {
		t.Errorf("missing shell_exec violation: %v", report.Violations)
	}
	if !kinds[ViolationSensitiveImport] {
		t.Errorf("missing sensitive_import violation for os/exec: %v", report.Violations)
	}
}

func TestDynamicEvalBlocked(t *testing.T) {
	source := cleanSource + "\nfunc evil(i Interp, code string) { i.Eval(code) }\n"
	report := NewGate().Check(source, "")
	if report.Passed {
		t.Error("dynamic evaluation passed the gate")
	}
}

func TestDiffRestrictedScanIgnoresLegacyCode(t *testing.T) {
	// The prior source already contains a denylisted call; the new change
	// only adds a harmless function, so the gate must pass.
	prior := `package managed

import "os/exec"

func legacy() {
	exec.Command("ls").Run()
}
`
	modified := prior + `
func harmless() int {
	return 1
}
`
	report := NewGate().Check(modified, prior)
	if !report.Passed {
		t.Errorf("legacy code tripped diff-restricted scan: %v", report.Violations)
	}
	if !report.DiffOnly {
		t.Error("scan was not diff-restricted despite prior source")
	}
}

func TestNewSensitiveImportBlockedEvenWithDiff(t *testing.T) {
	prior := cleanSource
	modified := `package managed

import (
	"fmt"
	"net/http"
)

func greet() {
	fmt.Println("hello")
}

func fetch() {
	http.Get("http://example.com")
}
`
	report := NewGate().Check(modified, prior)
	if report.Passed {
		t.Error("newly added net/http import passed the gate")
	}
}

func TestEmptyDiffNoViolations(t *testing.T) {
	report := NewGate().Check(cleanSource, cleanSource)
	if !report.Passed {
		t.Errorf("identical sources produced violations: %v", report.Violations)
	}
	if len(report.Violations) != 0 {
		t.Errorf("violations = %v, want none", report.Violations)
	}
}

func TestCommentedPatternNotFlagged(t *testing.T) {
	source := cleanSource + "\n// example: exec.Command(\"ls\")\nfunc ok() {}\n"
	report := NewGate().Check(source, cleanSource)
	if !report.Passed {
		t.Errorf("commented pattern flagged: %v", report.Violations)
	}
}

func TestViolationKindString(t *testing.T) {
	tests := []struct {
		kind ViolationKind
		want string
	}{
		{ViolationShellExec, "shell_exec"},
		{ViolationDynamicEval, "dynamic_eval"},
		{ViolationDynamicLoad, "dynamic_load"},
		{ViolationSensitiveImport, "sensitive_import"},
		{ViolationKind(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("String(%d) = %q, want %q", tt.kind, got, tt.want)
		}
	}
}
