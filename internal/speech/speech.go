// Package speech maintains a continuously-available speech-to-text stream
// on top of a recognizer that stops itself after silence or time limits.
package speech

import "errors"

// ErrUnsupported is returned by a Factory when no speech recognition
// capability is available on this host.
var ErrUnsupported = errors.New("speech recognition not supported")

// Recognizer error codes, passed through Config.OnError as raw identifiers.
const (
	CodeNoSpeech     = "no-speech"     // silence, recoverable
	CodeAudioCapture = "audio-capture" // no capture device data, recoverable
	CodeNotAllowed   = "not-allowed"   // permission denied
	CodeNetwork      = "network"
	CodeUnsupported  = "unsupported"
)

// EventKind identifies a recognizer lifecycle event.
type EventKind int

const (
	EventStarted EventKind = iota
	EventEnded
	EventError
	EventResults
)

// ResultSegment is one recognizer-reported span of speech.
type ResultSegment struct {
	Text  string
	Final bool
}

// Event is a single recognizer event. For EventResults, Results holds the
// full ordered segment list and ResultIndex is the first segment changed
// by this batch. For EventError, Code carries the raw error identifier.
type Event struct {
	Kind        EventKind
	Code        string
	ResultIndex int
	Results     []ResultSegment
}

// Recognizer is the capability interface for a continuous, interim-enabled
// speech recognizer bound to a single language. Start and Stop may return
// an error when the recognizer is in a transitional state; callers are
// expected to tolerate that. Events delivers lifecycle events serially and
// is closed by Close.
type Recognizer interface {
	Start() error
	Stop() error
	SendAudio(audio []byte) error
	Events() <-chan Event
	Close() error
}

// Factory constructs a recognizer bound to a language tag. It returns
// ErrUnsupported when no recognition capability exists.
type Factory func(lang string) (Recognizer, error)

// Config is the per-session configuration. Changing Lang requires a new
// Configure call; the recognizer does not support live language change.
type Config struct {
	Lang string // BCP-47 language tag, e.g. "en-US"

	// OnResult receives incremental recognition results. Interim results
	// (final=false) are transient and superseded by later results for the
	// same utterance; final results arrive at most once per utterance.
	OnResult func(text string, final bool)

	// OnError receives raw recognizer error identifiers. Recoverable
	// silence errors are filtered out before this is called.
	OnError func(code string)

	// OnListening mirrors the recognizer's reported running state,
	// intended for UI reactivity. Optional.
	OnListening func(listening bool)
}
