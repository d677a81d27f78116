package generate

import "errors"

// ErrUsage is returned by Handle when the prompt is empty. The usage message
// has already been sent.
var ErrUsage = errors.New("generate: empty prompt")

// GenerationError reports that no runnable code was obtained: the provider
// failed (Err set) or the extraction came back empty (Empty set).
type GenerationError struct {
	Err   error
	Empty bool
}

func (e *GenerationError) Error() string {
	if e.Empty || e.Err == nil {
		return "generate: model returned no code"
	}
	return "generate: " + e.Err.Error()
}

func (e *GenerationError) Unwrap() error { return e.Err }
