package speech

import (
	"errors"
	"log"
	"strings"
	"sync"
)

// Session wraps a single underlying recognizer and keeps it capturing for
// as long as the caller wants it to, restarting it whenever it stops on
// its own. The caller's intent (Start/Stop) is the source of truth; the
// recognizer's actual running state is a best-effort mirror of it.
type Session struct {
	factory Factory
	logger  *log.Logger

	mu        sync.Mutex
	cfg       Config
	rec       Recognizer
	gen       int // bumped on every Configure/Close; stale events are dropped
	desired   bool
	listening bool

	wg sync.WaitGroup
}

// NewSession creates a session. Configure must be called before Start.
func NewSession(factory Factory, logger *log.Logger) *Session {
	return &Session{factory: factory, logger: logger}
}

// Configure (re)builds the underlying recognizer bound to cfg.Lang. Any
// previous recognizer is stopped and detached first; its in-flight events
// are discarded. If no recognition capability exists, cfg.OnError is
// invoked with CodeUnsupported and the session stays inert until the next
// Configure.
func (s *Session) Configure(cfg Config) {
	s.mu.Lock()
	old := s.rec
	s.rec = nil
	s.gen++
	gen := s.gen
	s.cfg = cfg
	s.listening = false
	s.mu.Unlock()

	if old != nil {
		if err := old.Stop(); err != nil {
			s.logger.Printf("speech: stop during reconfigure: %v", err)
		}
		_ = old.Close()
	}

	rec, err := s.factory(cfg.Lang)
	if err != nil {
		if !errors.Is(err, ErrUnsupported) {
			s.logger.Printf("speech: recognizer unavailable: %v", err)
		}
		if cfg.OnError != nil {
			cfg.OnError(CodeUnsupported)
		}
		return
	}

	s.mu.Lock()
	if s.gen != gen {
		// Superseded by a concurrent Configure or Close.
		s.mu.Unlock()
		_ = rec.Close()
		return
	}
	s.rec = rec
	s.mu.Unlock()

	s.wg.Add(1)
	go s.dispatch(rec, gen)
}

// Start marks the session as wanting to listen and asks the recognizer to
// begin capturing. A redundant start (already capturing, or mid-transition)
// is swallowed; it is not an error.
func (s *Session) Start() {
	s.mu.Lock()
	s.desired = true
	rec := s.rec
	s.mu.Unlock()

	if rec == nil {
		return
	}
	if err := rec.Start(); err != nil {
		s.logger.Printf("speech: start ignored: %v", err)
	}
}

// Stop marks the session as not wanting to listen and asks the recognizer
// to stop. No auto-restart happens after this, even if the recognizer
// emits further end events asynchronously.
func (s *Session) Stop() {
	s.mu.Lock()
	s.desired = false
	rec := s.rec
	s.mu.Unlock()

	if rec == nil {
		return
	}
	if err := rec.Stop(); err != nil {
		s.logger.Printf("speech: stop ignored: %v", err)
	}
}

// IsListening reports the recognizer's last observed running state. It is
// updated only by recognizer start/end events, never by Start/Stop calls.
func (s *Session) IsListening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listening
}

// SendAudio forwards captured audio to the current recognizer. Audio sent
// while no recognizer is attached is dropped.
func (s *Session) SendAudio(audio []byte) error {
	s.mu.Lock()
	rec := s.rec
	s.mu.Unlock()

	if rec == nil {
		return nil
	}
	return rec.SendAudio(audio)
}

// Close forces the session out of listening, stops the recognizer, and
// waits for event dispatch to drain. No restart can fire afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	s.desired = false
	s.gen++
	rec := s.rec
	s.rec = nil
	s.listening = false
	s.mu.Unlock()

	if rec != nil {
		if err := rec.Stop(); err != nil {
			s.logger.Printf("speech: stop during close: %v", err)
		}
		_ = rec.Close()
	}
	s.wg.Wait()
}

// dispatch consumes one recognizer's events serially until its channel
// closes. Holding rec and gen here (rather than reading s.rec) is what
// lets a reconfigured session ignore the old recognizer's late events.
func (s *Session) dispatch(rec Recognizer, gen int) {
	defer s.wg.Done()
	for ev := range rec.Events() {
		s.handle(rec, gen, ev)
	}
}

func (s *Session) handle(rec Recognizer, gen int, ev Event) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return // event from a torn-down recognizer
	}
	cfg := s.cfg

	switch ev.Kind {
	case EventStarted:
		s.listening = true
		s.mu.Unlock()
		if cfg.OnListening != nil {
			cfg.OnListening(true)
		}

	case EventEnded:
		s.listening = false
		s.mu.Unlock()
		if cfg.OnListening != nil {
			cfg.OnListening(false)
		}
		// Intent is re-read under the lock and the restart issued while
		// still holding it, so a Stop that returns before this point is
		// honored and a Stop that arrives later waits until the restart
		// request is placed, then stops the restarted recognizer.
		s.mu.Lock()
		if gen == s.gen && s.desired {
			// One restart attempt per end event, no backoff, unbounded
			// over time. This absorbs the recognizer's natural
			// stop-after-silence behavior indefinitely.
			if err := rec.Start(); err != nil {
				s.logger.Printf("speech: restart failed: %v", err)
			}
		}
		s.mu.Unlock()

	case EventError:
		s.mu.Unlock()
		if recoverable(ev.Code) {
			// Expected to be followed by an end event, which takes the
			// normal restart path.
			s.logger.Printf("speech: recognizer error (recoverable): %s", ev.Code)
			return
		}
		if cfg.OnError != nil {
			cfg.OnError(ev.Code)
		}

	case EventResults:
		s.mu.Unlock()
		if text, final, ok := collectResults(ev); ok && cfg.OnResult != nil {
			cfg.OnResult(text, final)
		}

	default:
		s.mu.Unlock()
	}
}

// recoverable reports whether a recognizer error code means "no audio
// detected" rather than a real fault.
func recoverable(code string) bool {
	return code == CodeNoSpeech || code == CodeAudioCapture
}

// collectResults partitions a result batch, from its start index onward,
// into final and interim text. Final segments win for the batch; the
// interim accumulator is discarded when any final text is present.
func collectResults(ev Event) (text string, final bool, ok bool) {
	start := ev.ResultIndex
	if start < 0 {
		start = 0
	}

	var finalText, interimText strings.Builder
	for i := start; i < len(ev.Results); i++ {
		seg := ev.Results[i]
		if seg.Final {
			finalText.WriteString(seg.Text)
		} else {
			interimText.WriteString(seg.Text)
		}
	}

	if t := strings.TrimSpace(finalText.String()); t != "" {
		return t, true, true
	}
	if t := strings.TrimSpace(interimText.String()); t != "" {
		return t, false, true
	}
	return "", false, false
}
