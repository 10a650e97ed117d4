// Package validation runs the startup checks printed by "alterego serve"
// and "alterego doctor".
package validation

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
)

// StepStatus is the outcome of one check.
type StepStatus int

const (
	StepPassed StepStatus = iota
	StepFailed
	StepWarning
	StepSkipped
)

// String returns the lowercase status name.
func (s StepStatus) String() string {
	switch s {
	case StepPassed:
		return "passed"
	case StepFailed:
		return "failed"
	case StepWarning:
		return "warning"
	case StepSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// StepResult is what a check function reports.
type StepResult struct {
	Status  StepStatus
	Message string
	Error   error
}

// Passed reports a successful check.
func Passed(msg string) StepResult {
	return StepResult{Status: StepPassed, Message: msg}
}

// Failed reports a check that blocks startup.
func Failed(msg string, err error) StepResult {
	return StepResult{Status: StepFailed, Message: msg, Error: err}
}

// Warning reports a problem that does not block startup.
func Warning(msg string, err error) StepResult {
	return StepResult{Status: StepWarning, Message: msg, Error: err}
}

// Skipped reports a check that did not apply.
func Skipped(msg string) StepResult {
	return StepResult{Status: StepSkipped, Message: msg}
}

// CheckFunc is a single startup check.
type CheckFunc func(ctx context.Context) StepResult

// ValidationStep is a completed check with timing.
type ValidationStep struct {
	Name string
	StepResult
	Latency time.Duration
}

// SuiteResult summarizes a run. Warnings and skips do not fail the suite.
type SuiteResult struct {
	Steps       []ValidationStep
	PassedSteps int
	FailedSteps int
	Warnings    int
	Duration    time.Duration
	Success     bool
}

// Errors returns the errors of failed steps.
func (r SuiteResult) Errors() []error {
	var errs []error
	for _, s := range r.Steps {
		if s.Status == StepFailed && s.Error != nil {
			errs = append(errs, s.Error)
		}
	}
	return errs
}

type namedCheck struct {
	name string
	fn   CheckFunc
}

// Suite runs checks in order and prints colored progress.
type Suite struct {
	title    string
	output   io.Writer
	checks   []namedCheck
	quiet    bool
	failFast bool
}

// NewSuite creates an empty suite printing to stdout.
func NewSuite(title string) *Suite {
	return &Suite{title: title, output: os.Stdout}
}

// WithOutput redirects progress output.
func (s *Suite) WithOutput(w io.Writer) *Suite {
	s.output = w
	return s
}

// WithQuiet suppresses progress output.
func (s *Suite) WithQuiet(quiet bool) *Suite {
	s.quiet = quiet
	return s
}

// WithFailFast stops at the first failed check and skips the rest.
func (s *Suite) WithFailFast(failFast bool) *Suite {
	s.failFast = failFast
	return s
}

// Add appends a check.
func (s *Suite) Add(name string, fn CheckFunc) *Suite {
	s.checks = append(s.checks, namedCheck{name: name, fn: fn})
	return s
}

// Run executes every check and prints a summary.
func (s *Suite) Run(ctx context.Context) SuiteResult {
	start := time.Now()
	result := SuiteResult{Success: true}

	s.printHeader()
	failed := false
	for _, c := range s.checks {
		var step ValidationStep
		if failed && s.failFast {
			step = ValidationStep{Name: c.name, StepResult: Skipped("skipped after earlier failure")}
		} else {
			t0 := time.Now()
			step = ValidationStep{Name: c.name, StepResult: c.fn(ctx), Latency: time.Since(t0)}
		}
		s.printStep(step)

		switch step.Status {
		case StepPassed:
			result.PassedSteps++
		case StepFailed:
			result.FailedSteps++
			result.Success = false
			failed = true
		case StepWarning:
			result.Warnings++
		}
		result.Steps = append(result.Steps, step)
	}
	result.Duration = time.Since(start)
	s.printSummary(result)
	return result
}

func (s *Suite) printHeader() {
	if s.quiet {
		return
	}
	fmt.Fprintln(s.output)
	color.New(color.FgCyan, color.Bold).Fprintf(s.output, "━━━ %s ━━━\n", s.title)
	fmt.Fprintln(s.output)
}

func (s *Suite) printStep(step ValidationStep) {
	if s.quiet {
		return
	}
	var icon string
	var clr *color.Color
	switch step.Status {
	case StepPassed:
		icon, clr = "✓", color.New(color.FgGreen)
	case StepFailed:
		icon, clr = "✗", color.New(color.FgRed)
	case StepWarning:
		icon, clr = "!", color.New(color.FgYellow)
	default:
		icon, clr = "○", color.New(color.FgHiBlack)
	}

	clr.Fprintf(s.output, "  %s %s", icon, step.Name)
	if step.Message != "" {
		color.New(color.FgHiBlack).Fprintf(s.output, " - %s", step.Message)
	}
	fmt.Fprintln(s.output)

	if step.Status != StepPassed && step.Error != nil {
		clr.Fprintf(s.output, "    └─ %s\n", step.Error.Error())
	}
}

func (s *Suite) printSummary(r SuiteResult) {
	if s.quiet {
		return
	}
	fmt.Fprintln(s.output)
	dim := color.New(color.FgHiBlack)
	if r.Success {
		ok := color.New(color.FgGreen, color.Bold)
		ok.Fprint(s.output, "━━━ Ready ")
		dim.Fprintf(s.output, "(%d/%d checks passed in %v)", r.PassedSteps, len(r.Steps), r.Duration.Round(time.Millisecond))
		ok.Fprintln(s.output, " ━━━")
	} else {
		bad := color.New(color.FgRed, color.Bold)
		bad.Fprint(s.output, "━━━ Not ready ")
		dim.Fprintf(s.output, "(%d passed, %d failed)", r.PassedSteps, r.FailedSteps)
		bad.Fprintln(s.output, " ━━━")
	}
	fmt.Fprintln(s.output)
}
