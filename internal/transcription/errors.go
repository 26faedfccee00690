package transcription

import "fmt"

// ModelError is a fatal engine failure: the model could not be loaded or an
// inference failed with no recovery left.
type ModelError struct {
	Op  string // "load" or "transcribe"
	Err error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("model %s: %v", e.Op, e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }

// Message returns the text reported on the error line
func (e *ModelError) Message() string {
	return e.Err.Error()
}
