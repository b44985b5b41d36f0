package scenario

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cueyaml "cuelang.org/go/encoding/yaml"
)

//go:embed schema.cue
var schemaSrc string

// ValidationError reports a schema violation in a scenario file, with
// the CUE position when one is available.
type ValidationError struct {
	File    string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: invalid scenario:\n%s", e.File, e.Message)
}

// ValidateYAML unifies scenario YAML with the embedded CUE schema.
// Uses the CUE SDK's Go API directly, not a CLI subprocess. Returns a
// ValidationError listing every violation with positions.
func ValidateYAML(filename string, src []byte) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSrc, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		// The embedded schema only fails to compile if it is broken.
		return fmt.Errorf("compile scenario schema: %w", err)
	}

	file, err := cueyaml.Extract(filename, src)
	if err != nil {
		return &ValidationError{File: filename, Message: cueerrors.Details(err, nil)}
	}
	data := ctx.BuildFile(file)
	if err := data.Err(); err != nil {
		return &ValidationError{File: filename, Message: cueerrors.Details(err, nil)}
	}

	unified := schema.Unify(data)
	if err := unified.Validate(cue.Concrete(true), cue.Final()); err != nil {
		return &ValidationError{File: filename, Message: cueerrors.Details(err, nil)}
	}
	return nil
}
