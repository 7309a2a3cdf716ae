package validate

import (
	"context"
	"strings"
	"testing"
	"time"
)

const goodSource = `package managed

func Double(n int) int {
	return n * 2
}
`

const passingTests = `package managed

func TestDouble() {
	if Double(2) != 4 {
		panic("Double(2) != 4")
	}
}
`

const failingTests = `package managed

func TestDouble() {
	if Double(2) != 5 {
		panic("expected failure")
	}
}
`

func newTestValidator() *Validator {
	return NewValidator(5 * time.Second)
}

func TestInvalidSyntaxIsTerminal(t *testing.T) {
	v := newTestValidator()
	verdict := v.Validate(context.Background(), "package managed\nfunc broken( {", passingTests)

	if verdict.SyntaxValid {
		t.Error("invalid source reported syntactically valid")
	}
	if verdict.TestsPassed {
		t.Error("tests reported passing despite syntax failure")
	}
	if verdict.TestsFound != 0 {
		t.Error("test discovery ran after terminal syntax failure")
	}
}

func TestZeroTestsVacuousPass(t *testing.T) {
	v := newTestValidator()
	verdict := v.Validate(context.Background(), goodSource, "")

	if !verdict.SyntaxValid {
		t.Error("valid source reported invalid")
	}
	if verdict.TestsFound != 0 {
		t.Errorf("tests found = %d, want 0", verdict.TestsFound)
	}
	if !verdict.TestsPassed {
		t.Error("zero tests must be a vacuous pass")
	}
}

func TestPassingSuite(t *testing.T) {
	v := newTestValidator()
	verdict := v.Validate(context.Background(), goodSource, passingTests)

	if !verdict.SyntaxValid || !verdict.TestsPassed {
		t.Errorf("verdict = %+v, want pass", verdict)
	}
	if verdict.TestsFound != 1 {
		t.Errorf("tests found = %d, want 1", verdict.TestsFound)
	}
}

func TestFailingSuite(t *testing.T) {
	v := newTestValidator()
	verdict := v.Validate(context.Background(), goodSource, failingTests)

	if !verdict.SyntaxValid {
		t.Error("valid source reported invalid")
	}
	if verdict.TestsPassed {
		t.Error("panicking test reported as passing")
	}
	if len(verdict.Failures) != 1 || !strings.Contains(verdict.Failures[0], "panic") {
		t.Errorf("failures = %v", verdict.Failures)
	}
}

func TestLoadErrorCountsAsFailure(t *testing.T) {
	// Parses fine but references an undefined symbol; interpretation fails.
	source := "package managed\n\nfunc f() int {\n\treturn undefinedThing\n}\n"

	v := newTestValidator()
	verdict := v.Validate(context.Background(), source, passingTests)

	if !verdict.SyntaxValid {
		t.Error("source should be syntactically valid")
	}
	if verdict.TestsPassed {
		t.Error("load failure must count as test failure")
	}
}

func TestDiscoverTestsConvention(t *testing.T) {
	src := `package managed

func TestOne() {}
func TestTwo() {}
func testLower() {}
func TestWithArg(n int) {}
func helper() {}
`
	names := discoverTests(src)
	if len(names) != 2 {
		t.Fatalf("discovered %v, want [TestOne TestTwo]", names)
	}
	if names[0] != "TestOne" || names[1] != "TestTwo" {
		t.Errorf("discovered %v", names)
	}
}

func TestCommentOnlyChangeStillPasses(t *testing.T) {
	commented := "// PENDING(refactor_simplification): reduce branching\n" + goodSource

	v := newTestValidator()
	verdict := v.Validate(context.Background(), commented, "")

	if !verdict.SyntaxValid || !verdict.TestsPassed {
		t.Errorf("comment-only change rejected: %+v", verdict)
	}
}
