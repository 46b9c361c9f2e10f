package harness

import (
	"fmt"
	"slices"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// evaluate checks all assertions and returns the failure messages.
func (r *runner) evaluate(assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := r.check(a); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func (r *runner) check(a Assertion) error {
	switch a.Type {
	case AssertExists:
		if _, err := r.resolve(*a.Target); err != nil {
			return &AssertionError{Type: a.Type, Expected: a.Target.String() + " resolves", Actual: err.Error()}
		}
		return nil
	case AssertMissing:
		if rec, err := r.resolve(*a.Target); err == nil {
			return &AssertionError{Type: a.Type, Expected: a.Target.String() + " does not resolve", Actual: "found <" + rec.Tag() + "> in state " + rec.State().String()}
		}
		return nil
	case AssertCount:
		return r.assertCount(a)
	case AssertNotifications:
		return assertLines(a.Type, a.Lines, r.result.Notifications)
	case AssertUnchanged:
		if r.result.Document != r.seed {
			return &AssertionError{Type: a.Type, Expected: "document byte-identical to seed", Actual: r.result.Document}
		}
		return nil
	case AssertJournal:
		if got := len(r.result.Journal); got != *a.Count {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%d journaled transactions", *a.Count), Actual: fmt.Sprintf("%d", got)}
		}
		return nil
	}

	rec, err := r.resolve(*a.Target)
	if err != nil {
		return &AssertionError{Type: a.Type, Expected: a.Target.String() + " resolves", Actual: err.Error()}
	}
	switch a.Type {
	case AssertAttr:
		v, ok := rec.LookupAttr(a.Name)
		switch {
		case a.Absent && ok:
			return &AssertionError{Type: a.Type, Expected: a.Name + " absent", Actual: fmt.Sprintf("%q", v)}
		case !a.Absent && !ok:
			return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%s=%q", a.Name, a.Value), Actual: a.Name + " absent"}
		case !a.Absent && v != a.Value:
			return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%s=%q", a.Name, a.Value), Actual: fmt.Sprintf("%q", v)}
		}
	case AssertText:
		if rec.Text() != a.Value {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%q", a.Value), Actual: fmt.Sprintf("%q", rec.Text())}
		}
	case AssertState:
		if got := rec.State().String(); got != a.State {
			return &AssertionError{Type: a.Type, Expected: a.State, Actual: got}
		}
	case AssertLocked:
		if !rec.Locked() {
			return &AssertionError{Type: a.Type, Expected: "locked", Actual: "not locked"}
		}
	}
	return nil
}

func (r *runner) assertCount(a Assertion) error {
	usable := r.c.UsableElements()
	got := 0
	for _, rec := range usable {
		if a.Tag == "" || rec.Tag() == a.Tag {
			got++
		}
	}
	if got != *a.Count {
		what := "usable records"
		if a.Tag != "" {
			what = "usable <" + a.Tag + "> records"
		}
		return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%d %s", *a.Count, what), Actual: fmt.Sprintf("%d", got)}
	}
	return nil
}

func assertLines(typ string, want, got []string) error {
	if want == nil {
		want = []string{}
	}
	if slices.Equal(want, got) {
		return nil
	}
	return &AssertionError{
		Type:     typ,
		Expected: "\n    " + strings.Join(want, "\n    "),
		Actual:   "\n    " + strings.Join(got, "\n    "),
	}
}
