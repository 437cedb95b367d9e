package transcriber

import "errors"

// ErrUnavailable marks a recognizer that can never work in this environment:
// the speech backend rejected our credentials or the deployment has none
// configured. Retrying cannot succeed, so the engine must not auto-restart
// on this error.
var ErrUnavailable = errors.New("transcriber: recognition unavailable")

// Recognizer is the common interface for streaming speech recognizers.
// Results carries both interim and final segments; the channel is closed
// when the recognizer ends, spontaneously or via Close.
type Recognizer interface {
	ProcessAudio(audioData []byte) error
	Results() <-chan Result
	Close() error
}

// Factory opens a fresh recognizer. The engine calls it on start and on
// every auto-restart, since a spontaneously ended stream cannot be reused.
type Factory func() (Recognizer, error)

// Result represents a recognition result.
type Result struct {
	Text       string
	IsFinal    bool
	Confidence float64 // in [0,1]; 0 when the backend reports none
}
