package vcon

import "errors"

var (
	ErrMissingDialog  = errors.New("vCon must contain a 'dialog' array")
	ErrNoAudioDialogs = errors.New("no audio recording dialogs found in vCon")
)

// ValidationError is a request-level problem found before enrichment.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return e.Err.Error() }
func (e *ValidationError) Unwrap() error { return e.Err }

// Validate checks that doc has a dialog array with at least one audio
// recording entry.
func Validate(doc *Document) error {
	if doc == nil || !doc.HasDialog() {
		return &ValidationError{Err: ErrMissingDialog}
	}
	for _, d := range doc.Dialog {
		if IsEligible(d) {
			return nil
		}
	}
	return &ValidationError{Err: ErrNoAudioDialogs}
}
