package schema

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/xmlpersist/internal/engine"
)

// Field names of a kind declaration.
const (
	fieldID       = "id"
	fieldText     = "text"
	fieldRequired = "required"
	fieldChildren = "children"
	fieldExtends  = "extends"
)

// CompileKind parses one kind declaration. The tag is the last path
// selector of v, e.g. "item" for kind.item.
func CompileKind(v cue.Value) (*engine.Kind, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	k := &engine.Kind{}
	if labels := v.Path().Selectors(); len(labels) > 0 {
		k.Tag = labels[len(labels)-1].Unquoted()
	}
	if k.Tag == "" {
		return nil, &CompileError{Field: "kind", Message: "kind has no tag", Pos: v.Pos()}
	}

	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		fv := iter.Value()
		switch label := iter.Label(); label {
		case fieldID:
			if k.IDAttribute, err = fv.String(); err != nil {
				return nil, fieldError(k.Tag, label, fv, "must be a string")
			}
		case fieldText:
			if k.HasText, err = fv.Bool(); err != nil {
				return nil, fieldError(k.Tag, label, fv, "must be a bool")
			}
		case fieldRequired:
			if k.Required, err = stringList(fv); err != nil {
				return nil, fieldError(k.Tag, label, fv, "must be a list of strings")
			}
		case fieldChildren:
			if k.Children, err = stringList(fv); err != nil {
				return nil, fieldError(k.Tag, label, fv, "must be a list of strings")
			}
		case fieldExtends:
			if k.Extends, err = fv.String(); err != nil {
				return nil, fieldError(k.Tag, label, fv, "must be a string")
			}
		default:
			return nil, fieldError(k.Tag, label, fv, "unknown field")
		}
	}

	// Text ids are always matched on text.
	if k.IDAttribute == engine.TextID {
		k.HasText = true
	}
	return k, nil
}

// Compile parses every kind under the "kind" field of v and resolves
// inheritance. A value without kinds yields an empty vocabulary.
func Compile(v cue.Value) (*engine.Kinds, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	var kinds []*engine.Kind
	kindsVal := v.LookupPath(cue.ParsePath("kind"))
	if kindsVal.Exists() {
		iter, err := kindsVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			k, err := CompileKind(iter.Value())
			if err != nil {
				return nil, err
			}
			kinds = append(kinds, k)
		}
	}

	ks := engine.NewKinds(kinds...)
	if errs := Validate(ks); len(errs) > 0 {
		return nil, errs[0]
	}
	inherit(ks)
	return ks, nil
}

// inherit fills unset fields from the extended kind. Validate has ruled out
// cycles and unknown parents.
func inherit(ks *engine.Kinds) {
	done := make(map[string]bool)
	var resolve func(k *engine.Kind)
	resolve = func(k *engine.Kind) {
		if done[k.Tag] || k.Extends == "" {
			done[k.Tag] = true
			return
		}
		parent := ks.Lookup(k.Extends)
		resolve(parent)
		if k.IDAttribute == "" {
			k.IDAttribute = parent.IDAttribute
		}
		if !k.HasText {
			k.HasText = parent.HasText
		}
		if k.Required == nil {
			k.Required = parent.Required
		}
		done[k.Tag] = true
	}
	for _, tag := range ks.Tags() {
		resolve(ks.Lookup(tag))
	}
}

func stringList(v cue.Value) ([]string, error) {
	iter, err := v.List()
	if err != nil {
		return nil, err
	}
	out := []string{}
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func fieldError(tag, field string, v cue.Value, msg string) *CompileError {
	return &CompileError{
		Field:   fmt.Sprintf("kind.%s.%s", tag, field),
		Message: msg,
		Pos:     v.Pos(),
	}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// First error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
