package schema

import (
	"fmt"
	"strings"

	"github.com/roach88/xmlpersist/internal/engine"
)

// Vocabulary error codes (E200-E209).
const (
	ErrUnknownParent  = "E201" // extends names an undeclared kind
	ErrExtendsCycle   = "E202" // kinds extend each other
	ErrUnknownChild   = "E203" // children names an undeclared kind
	ErrEmptyName      = "E204" // empty tag, attribute or child name
	ErrDuplicateEntry = "E205" // repeated required attribute or child
)

// ValidationError represents a vocabulary validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a vocabulary for dangling references and cycles.
// Returns all errors found (does not fail-fast).
func Validate(ks *engine.Kinds) []ValidationError {
	var errs []ValidationError
	declared := make(map[string]bool)
	for _, tag := range ks.Tags() {
		declared[tag] = true
	}

	for _, tag := range ks.Tags() {
		k := ks.Lookup(tag)
		field := "kind." + tag

		if strings.TrimSpace(tag) == "" {
			errs = append(errs, ValidationError{Field: field, Message: "tag is empty", Code: ErrEmptyName})
		}

		if k.Extends != "" {
			if !declared[k.Extends] {
				errs = append(errs, ValidationError{
					Field:   field + ".extends",
					Message: fmt.Sprintf("extends undeclared kind %q", k.Extends),
					Code:    ErrUnknownParent,
				})
			} else if inCycle(ks, tag) {
				errs = append(errs, ValidationError{
					Field:   field + ".extends",
					Message: fmt.Sprintf("kind %q extends itself", tag),
					Code:    ErrExtendsCycle,
				})
			}
		}

		errs = append(errs, checkNames(field+".required", k.Required)...)
		errs = append(errs, checkNames(field+".children", k.Children)...)
		for _, child := range k.Children {
			if child != "" && !declared[child] {
				errs = append(errs, ValidationError{
					Field:   field + ".children",
					Message: fmt.Sprintf("child kind %q is not declared", child),
					Code:    ErrUnknownChild,
				})
			}
		}
	}
	return errs
}

func checkNames(field string, names []string) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool)
	for i, n := range names {
		switch {
		case strings.TrimSpace(n) == "":
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("%s[%d]", field, i),
				Message: "name is empty",
				Code:    ErrEmptyName,
			})
		case seen[n]:
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("%s[%d]", field, i),
				Message: fmt.Sprintf("duplicate name %q", n),
				Code:    ErrDuplicateEntry,
			})
		}
		seen[n] = true
	}
	return errs
}

// inCycle reports whether following extends from tag leads back to tag.
func inCycle(ks *engine.Kinds, tag string) bool {
	seen := map[string]bool{tag: true}
	for cur := ks.Lookup(tag).Extends; cur != ""; cur = ks.Lookup(cur).Extends {
		if cur == tag {
			return true
		}
		if seen[cur] {
			// Cycle further up the chain; reported for its own members.
			return false
		}
		seen[cur] = true
	}
	return false
}
