package insights

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingColumn indicates a required column could not be identified.
	ErrMissingColumn = errors.New("insights: required column not found")
	// ErrNotEnoughSheets indicates sheet comparison lacks two candidate sheets.
	ErrNotEnoughSheets = errors.New("insights: need at least two sheets besides Sheet1 to compare")
	// ErrUnknownColumn indicates a caller-named column or sheet does not exist.
	ErrUnknownColumn = errors.New("insights: named column or sheet not found")
)

// MissingColumnError names the sheet and column that could not be resolved.
type MissingColumnError struct {
	Sheet  string
	Column string
	// Need and Found are set when a minimum number of matches is required.
	Need  int
	Found int
}

func (e *MissingColumnError) Error() string {
	if e.Need > 1 {
		return fmt.Sprintf("could not find at least %d %q columns on %s (found %d)", e.Need, e.Column, e.Sheet, e.Found)
	}
	return fmt.Sprintf("could not find a %q column on %s", e.Column, e.Sheet)
}

func (e *MissingColumnError) Unwrap() error { return ErrMissingColumn }
