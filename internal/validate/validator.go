// Package validate checks candidate modifications: first syntactic
// well-formedness, then behavior, by loading the modified source into an
// isolated interpreter and running the discovered test functions against it.
// The live program is never replaced; interpretation happens in a throwaway
// environment that is discarded whether or not the tests pass.
package validate

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"regexp"
	"strings"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"metamorph/internal/logging"
)

// Verdict is the validator's structured outcome. SyntaxValid=false is
// terminal: test execution is never attempted.
type Verdict struct {
	SyntaxValid bool     `json:"syntax_valid"`
	TestsFound  int      `json:"tests_found"`
	TestsPassed bool     `json:"tests_passed"`
	Failures    []string `json:"failures,omitempty"`
}

// Validator loads modified source in isolation and runs its test suite.
type Validator struct {
	timeout time.Duration
}

// NewValidator creates a validator with a per-test execution timeout.
func NewValidator(timeout time.Duration) *Validator {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Validator{timeout: timeout}
}

// CheckSyntax reports whether the source parses. Exposed separately so
// callers can reject early without paying for interpretation.
func (v *Validator) CheckSyntax(source string) error {
	fset := token.NewFileSet()
	_, err := parser.ParseFile(fset, "candidate.go", source, 0)
	return err
}

// Validate runs the full check. testSource holds the test functions; every
// function named Test* taking no arguments is discovered and executed. Zero
// discovered tests is a vacuous pass. Any evaluation error or panic counts
// as a test failure.
func (v *Validator) Validate(ctx context.Context, source, testSource string) Verdict {
	verdict := Verdict{}

	if err := v.CheckSyntax(source); err != nil {
		verdict.Failures = append(verdict.Failures, fmt.Sprintf("syntax: %v", err))
		logging.Validation("syntax check failed: %v", err)
		return verdict
	}
	verdict.SyntaxValid = true

	tests := discoverTests(testSource)
	verdict.TestsFound = len(tests)
	if len(tests) == 0 {
		verdict.TestsPassed = true
		logging.Validation("no tests found, vacuous pass")
		return verdict
	}

	// A fresh interpreter per validation keeps candidates isolated from each
	// other and from the running process; dropping it is the cleanup.
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		verdict.Failures = append(verdict.Failures, fmt.Sprintf("interpreter init: %v", err))
		return verdict
	}

	if _, err := i.Eval(asMainPackage(source)); err != nil {
		verdict.Failures = append(verdict.Failures, fmt.Sprintf("load: %v", err))
		logging.Validation("candidate load failed: %v", err)
		return verdict
	}
	if _, err := i.Eval(asMainPackage(testSource)); err != nil {
		verdict.Failures = append(verdict.Failures, fmt.Sprintf("load tests: %v", err))
		logging.Validation("test load failed: %v", err)
		return verdict
	}

	for _, name := range tests {
		if err := v.runTest(ctx, i, name); err != nil {
			verdict.Failures = append(verdict.Failures, fmt.Sprintf("%s: %v", name, err))
		}
	}

	verdict.TestsPassed = len(verdict.Failures) == 0
	logging.Validation("%d/%d tests passed", verdict.TestsFound-len(verdict.Failures), verdict.TestsFound)
	return verdict
}

// runTest executes one discovered test function. The contract: a test raises
// (panics) on failure and returns normally on success.
func (v *Validator) runTest(ctx context.Context, i *interp.Interpreter, name string) error {
	val, err := i.Eval("main." + name)
	if err != nil {
		return fmt.Errorf("lookup: %w", err)
	}
	fn, ok := val.Interface().(func())
	if !ok {
		return fmt.Errorf("wrong signature (want func())")
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic: %v", r)
			}
		}()
		fn()
		done <- nil
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("timed out: %w", ctx.Err())
	}
}

var packageClause = regexp.MustCompile(`(?m)^package\s+\w+`)

// asMainPackage rewrites the source's package clause so the candidate and its
// tests evaluate into one interpreter package.
func asMainPackage(source string) string {
	if strings.TrimSpace(source) == "" {
		return "package main\n"
	}
	if packageClause.MatchString(source) {
		return packageClause.ReplaceAllString(source, "package main")
	}
	return "package main\n\n" + source
}

// discoverTests parses the test source for functions matching the naming
// convention: exported name starting with Test, no parameters, no receiver.
func discoverTests(testSource string) []string {
	if strings.TrimSpace(testSource) == "" {
		return nil
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "checks.go", asMainPackage(testSource), 0)
	if err != nil {
		return nil
	}

	var names []string
	for _, decl := range file.Decls {
		fd, ok := decl.(*ast.FuncDecl)
		if !ok || fd.Recv != nil {
			continue
		}
		if !strings.HasPrefix(fd.Name.Name, "Test") {
			continue
		}
		if fd.Type.Params != nil && len(fd.Type.Params.List) > 0 {
			continue
		}
		names = append(names, fd.Name.Name)
	}
	return names
}
