package speech

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

const deepgramWSURL = "wss://api.deepgram.com/v1/listen"

// DeepgramConfig holds configuration for the Deepgram recognizer.
type DeepgramConfig struct {
	APIKey      string
	Language    string // BCP-47 tag; Deepgram accepts the primary subtag
	Model       string // e.g., "nova-3"
	SampleRate  int    // e.g., 16000 for browser PCM
	Encoding    string // e.g., "linear16"
	Channels    int
	Punctuate   bool
	Endpointing int    // milliseconds of silence for endpointing, 0 for default
	BaseURL     string // override for tests, defaults to the Deepgram API
}

// DeepgramRecognizer implements Recognizer over Deepgram's streaming API.
// Each Start dials a fresh WebSocket; Deepgram closing the stream (silence
// timeout, connection limit) surfaces as an EventEnded, which the session's
// restart logic absorbs.
type DeepgramRecognizer struct {
	cfg    DeepgramConfig
	logger *log.Logger

	events chan Event
	done   chan struct{}

	mu       sync.Mutex // guards conn, running, segments and writes
	conn     *websocket.Conn
	running  bool
	segments []ResultSegment

	closeOnce sync.Once
	wg        sync.WaitGroup // active readLoops
}

// deepgramResponse represents a Deepgram WebSocket response.
type deepgramResponse struct {
	Type    string `json:"type"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
	IsFinal     bool   `json:"is_final"`
	Description string `json:"description"`
}

// NewDeepgramRecognizer creates a recognizer bound to cfg.Language. No
// connection is made until Start.
func NewDeepgramRecognizer(cfg DeepgramConfig, logger *log.Logger) *DeepgramRecognizer {
	return &DeepgramRecognizer{
		cfg:    cfg,
		logger: logger,
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}
}

func (r *DeepgramRecognizer) url() string {
	base := r.cfg.BaseURL
	if base == "" {
		base = deepgramWSURL
	}
	url := fmt.Sprintf("%s?model=%s&language=%s&encoding=%s&sample_rate=%d&channels=%d&punctuate=%t&interim_results=true",
		base,
		r.cfg.Model,
		r.cfg.Language,
		r.cfg.Encoding,
		r.cfg.SampleRate,
		r.cfg.Channels,
		r.cfg.Punctuate,
	)
	if r.cfg.Endpointing > 0 {
		url += fmt.Sprintf("&endpointing=%d", r.cfg.Endpointing)
	}
	return url
}

// Start dials Deepgram and begins streaming results. Returns an error if
// the recognizer is already capturing or has been closed.
func (r *DeepgramRecognizer) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	select {
	case <-r.done:
		return fmt.Errorf("recognizer is closed")
	default:
	}

	if r.running {
		return fmt.Errorf("recognizer already started")
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+r.cfg.APIKey)

	conn, _, err := websocket.DefaultDialer.Dial(r.url(), headers)
	if err != nil {
		r.emit(Event{Kind: EventError, Code: CodeNetwork})
		return fmt.Errorf("failed to connect to Deepgram: %w", err)
	}

	r.conn = conn
	r.running = true
	r.segments = nil

	r.wg.Add(1)
	go r.readLoop(conn)

	r.emit(Event{Kind: EventStarted})
	return nil
}

// Stop closes the current stream. The resulting read error in readLoop
// emits the EventEnded.
func (r *DeepgramRecognizer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running || r.conn == nil {
		return fmt.Errorf("recognizer not started")
	}

	closeMsg := []byte(`{"type": "CloseStream"}`)
	_ = r.conn.WriteMessage(websocket.TextMessage, closeMsg)
	return r.conn.Close()
}

// SendAudio forwards captured audio to Deepgram.
func (r *DeepgramRecognizer) SendAudio(audio []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running || r.conn == nil {
		return nil // not capturing, drop
	}
	return r.conn.WriteMessage(websocket.BinaryMessage, audio)
}

// Events returns the serialized event stream. Closed by Close.
func (r *DeepgramRecognizer) Events() <-chan Event {
	return r.events
}

// Close tears the recognizer down. No events are delivered afterwards.
func (r *DeepgramRecognizer) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.done)

		r.mu.Lock()
		if r.conn != nil {
			err = r.conn.Close()
		}
		r.mu.Unlock()

		// Wait for readLoops to finish before closing the channel.
		r.wg.Wait()
		close(r.events)
	})
	return err
}

// emit delivers an event unless the recognizer has been closed.
func (r *DeepgramRecognizer) emit(ev Event) {
	select {
	case <-r.done:
	case r.events <- ev:
	}
}

// readLoop reads responses for one connection and turns them into events.
func (r *DeepgramRecognizer) readLoop(conn *websocket.Conn) {
	defer r.wg.Done()
	defer r.ended(conn)

	for {
		select {
		case <-r.done:
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var resp deepgramResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			r.logger.Printf("deepgram: failed to parse response: %v", err)
			continue
		}

		switch resp.Type {
		case "Results":
			r.handleResults(resp)
		case "Error":
			r.logger.Printf("deepgram: stream error: %s", resp.Description)
			r.emit(Event{Kind: EventError, Code: CodeNetwork})
		}
	}
}

// handleResults folds one Deepgram message into the segment list. Interim
// messages replace the trailing unfinalized segment; finals seal it so the
// next message appends a new one.
func (r *DeepgramRecognizer) handleResults(resp deepgramResponse) {
	var transcript string
	if len(resp.Channel.Alternatives) > 0 {
		transcript = resp.Channel.Alternatives[0].Transcript
	}
	if transcript == "" && !resp.IsFinal {
		return
	}

	r.mu.Lock()
	idx := len(r.segments) - 1
	seg := ResultSegment{Text: transcript, Final: resp.IsFinal}
	if idx >= 0 && !r.segments[idx].Final {
		r.segments[idx] = seg
	} else {
		r.segments = append(r.segments, seg)
		idx++
	}
	snapshot := make([]ResultSegment, len(r.segments))
	copy(snapshot, r.segments)
	r.mu.Unlock()

	r.emit(Event{Kind: EventResults, ResultIndex: idx, Results: snapshot})
}

// ended marks the connection as stopped and reports it, once per connection.
func (r *DeepgramRecognizer) ended(conn *websocket.Conn) {
	_ = conn.Close()

	r.mu.Lock()
	if r.conn == conn {
		r.conn = nil
		r.running = false
	}
	r.mu.Unlock()

	r.emit(Event{Kind: EventEnded})
}
