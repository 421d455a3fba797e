package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/shreyakumari0911/Health-Trans/internal/convo"
	"github.com/shreyakumari0911/Health-Trans/internal/eventlog"
	"github.com/shreyakumari0911/Health-Trans/internal/speech"
	"github.com/shreyakumari0911/Health-Trans/internal/store"
	"github.com/shreyakumari0911/Health-Trans/internal/translate"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// clientMessage is a JSON control frame from the browser. Audio arrives
// separately as binary frames.
type clientMessage struct {
	Type       string `json:"type"` // configure | start | stop | swap | end
	SourceLang string `json:"source_lang,omitempty"`
	TargetLang string `json:"target_lang,omitempty"`
	Speaker    string `json:"speaker,omitempty"`
}

// serverEvent is a JSON frame pushed to the browser.
type serverEvent struct {
	Type           string       `json:"type"` // ready | listening | interim | translating | entry | error | swapped
	ConversationID string       `json:"conversation_id,omitempty"`
	Value          *bool        `json:"value,omitempty"`
	Text           string       `json:"text,omitempty"`
	Code           string       `json:"code,omitempty"`
	Message        string       `json:"message,omitempty"`
	Entry          *store.Entry `json:"entry,omitempty"`
	SourceLang     string       `json:"source_lang,omitempty"`
	TargetLang     string       `json:"target_lang,omitempty"`
}

func boolEvent(eventType string, v bool) serverEvent {
	return serverEvent{Type: eventType, Value: &v}
}

// langPrimary reduces a BCP-47 tag to its primary subtag ("es-MX" -> "es").
func langPrimary(lang string) string {
	if i := strings.Index(lang, "-"); i > 0 {
		return lang[:i]
	}
	return lang
}

// speechErrorMessage maps a recognizer error code to a user-facing message.
// The raw code travels alongside it so the client can react per code.
func speechErrorMessage(code string) string {
	switch code {
	case speech.CodeNotAllowed:
		return "Microphone access was denied."
	case speech.CodeUnsupported:
		return "Speech recognition is not available."
	default:
		return "Speech recognition error: " + code
	}
}

// conversationSession manages a single browser's conversation socket: one
// speech session and one transcript controller per connection.
type conversationSession struct {
	conversationID string
	deviceID       string

	conn   *websocket.Conn
	connMu sync.Mutex

	speech     *speech.Session
	controller *convo.Controller

	store    *store.Store
	eventLog *eventlog.Logger
	logger   *log.Logger
	cfg      RouterConfig

	ctx    context.Context
	cancel context.CancelFunc
}

func (r *Router) handleConversationWS(w http.ResponseWriter, req *http.Request) {
	// Browsers cannot set headers on websocket upgrades, so the session
	// token arrives as a query parameter.
	deviceID, err := r.parseToken(req.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if r.cfg.DeepgramAPIKey == "" || r.cfg.OpenAIAPIKey == "" {
		r.logger.Printf("conversation_ws: missing API keys")
		captureError(req, fmt.Errorf("translation not configured: missing API keys"), "conversation_ws: configuration error")
		http.Error(w, "translation not configured", http.StatusServiceUnavailable)
		return
	}

	if !r.sessions.Add() {
		http.Error(w, "server is draining", http.StatusServiceUnavailable)
		return
	}
	defer r.sessions.Done()

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Printf("conversation_ws: upgrade failed: %v", err)
		return
	}

	// Upgraded sockets are hijacked from the HTTP server, so shutdown
	// cannot reach them. The registry's closer hook kills the socket on
	// drain timeout, which unblocks the read loop below.
	closerID := r.sessions.RegisterCloser(func() { conn.Close() })
	defer r.sessions.UnregisterCloser(closerID)

	ctx, cancel := context.WithCancel(req.Context())

	session := &conversationSession{
		conversationID: uuid.NewString(),
		deviceID:       deviceID,
		conn:           conn,
		store:          r.store,
		eventLog:       r.eventLog,
		logger:         r.logger,
		cfg:            r.cfg,
		ctx:            ctx,
		cancel:         cancel,
	}

	sourceLang := r.cfg.DefaultSourceLang
	if sourceLang == "" {
		sourceLang = "en-US"
	}
	targetLang := r.cfg.DefaultTargetLang
	if targetLang == "" {
		targetLang = "es"
	}

	translator := translate.NewOpenAIClient(translate.OpenAIConfig{
		APIKey:     r.cfg.OpenAIAPIKey,
		Model:      r.cfg.TranslateModel,
		APIURL:     r.cfg.OpenAIAPIURL,
		HTTPClient: r.cfg.ServiceHTTPClient,
	}, r.logger)

	session.controller = convo.New(session.conversationID, translator, r.store, r.eventLog, r.logger, convo.Callbacks{
		OnInterim: func(text string) {
			session.sendEvent(serverEvent{Type: "interim", Text: text})
		},
		OnTranslating: func(active bool) {
			session.sendEvent(boolEvent("translating", active))
		},
		OnEntry: func(e store.Entry) {
			session.sendEvent(serverEvent{Type: "entry", Entry: &e})
		},
		OnError: func(message string) {
			session.sendEvent(serverEvent{Type: "error", Code: "translation-failed", Message: message})
		},
	})
	session.controller.SetLanguages(sourceLang, targetLang, "provider")

	session.speech = speech.NewSession(session.recognizerFactory(), r.logger)

	if err := r.store.CreateConversation(req.Context(), store.Conversation{
		ID:         session.conversationID,
		SourceLang: sourceLang,
		TargetLang: targetLang,
		StartedAt:  nowUTC(),
	}); err != nil {
		r.logger.Printf("conversation_ws: failed to create conversation: %v", err)
	}
	r.eventLog.LogAsync(session.conversationID, eventlog.EventConversationStarted, map[string]any{
		"source_lang": sourceLang,
		"target_lang": targetLang,
	})

	session.speech.Configure(session.speechConfig(sourceLang))

	session.sendEvent(serverEvent{
		Type:           "ready",
		ConversationID: session.conversationID,
		SourceLang:     sourceLang,
		TargetLang:     targetLang,
	})

	r.logger.Printf("conversation_ws: conversation %s started for device %s", session.conversationID, deviceID)

	session.run()
}

// recognizerFactory builds per-language Deepgram recognizers for the speech
// session. Each Configure gets a fresh recognizer bound to one language.
func (s *conversationSession) recognizerFactory() speech.Factory {
	return func(lang string) (speech.Recognizer, error) {
		if s.cfg.DeepgramAPIKey == "" {
			return nil, speech.ErrUnsupported
		}
		return speech.NewDeepgramRecognizer(speech.DeepgramConfig{
			APIKey:      s.cfg.DeepgramAPIKey,
			Language:    langPrimary(lang),
			Model:       "nova-3",
			SampleRate:  16000,
			Encoding:    "linear16",
			Channels:    1,
			Punctuate:   true,
			Endpointing: s.cfg.STTEndpointingMs,
			BaseURL:     s.cfg.DeepgramBaseURL,
		}, s.logger), nil
	}
}

func (s *conversationSession) speechConfig(lang string) speech.Config {
	return speech.Config{
		Lang:     lang,
		OnResult: s.controller.HandleResult,
		OnError: func(code string) {
			s.sendEvent(serverEvent{Type: "error", Code: code, Message: speechErrorMessage(code)})
			s.eventLog.LogAsync(s.conversationID, eventlog.EventSpeechError, map[string]any{"code": code})
		},
		OnListening: func(listening bool) {
			s.sendEvent(boolEvent("listening", listening))
			if listening {
				s.eventLog.LogAsync(s.conversationID, eventlog.EventListeningStarted, nil)
			} else {
				s.eventLog.LogAsync(s.conversationID, eventlog.EventListeningStopped, nil)
			}
		},
	}
}

func (s *conversationSession) run() {
	defer s.cleanup()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		msgType, msg, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Printf("conversation_ws: connection closed for conversation %s", s.conversationID)
			} else {
				s.logger.Printf("conversation_ws: read error for conversation %s: %v", s.conversationID, err)
			}
			return
		}

		if msgType == websocket.BinaryMessage {
			if err := s.speech.SendAudio(msg); err != nil {
				s.logger.Printf("conversation_ws: audio forward error: %v", err)
			}
			continue
		}

		var ctl clientMessage
		if err := json.Unmarshal(msg, &ctl); err != nil {
			s.logger.Printf("conversation_ws: failed to parse control frame: %v", err)
			continue
		}

		if done := s.handleControl(ctl); done {
			return
		}
	}
}

// handleControl applies one control frame. Returns true when the client
// ended the conversation.
func (s *conversationSession) handleControl(msg clientMessage) bool {
	switch msg.Type {
	case "configure":
		sourceLang, targetLang := s.controller.Languages()
		if msg.SourceLang != "" {
			sourceLang = msg.SourceLang
		}
		if msg.TargetLang != "" {
			targetLang = msg.TargetLang
		}
		speaker := msg.Speaker
		if speaker == "" {
			speaker = "provider"
		}
		s.controller.SetLanguages(sourceLang, targetLang, speaker)
		s.speech.Configure(s.speechConfig(sourceLang))
		s.logger.Printf("conversation_ws: conversation %s configured %s -> %s (%s)",
			s.conversationID, sourceLang, targetLang, speaker)

	case "start":
		s.speech.Start()

	case "stop":
		s.speech.Stop()

	case "swap":
		wasListening := s.speech.IsListening()
		newLang := s.controller.Swap(msg.Speaker)
		s.speech.Configure(s.speechConfig(newLang))
		if wasListening {
			s.speech.Start()
		}
		sourceLang, targetLang := s.controller.Languages()
		s.sendEvent(serverEvent{Type: "swapped", SourceLang: sourceLang, TargetLang: targetLang})
		s.logger.Printf("conversation_ws: conversation %s swapped to %s -> %s",
			s.conversationID, sourceLang, targetLang)

	case "end":
		return true

	default:
		s.logger.Printf("conversation_ws: unknown control type %q", msg.Type)
	}
	return false
}

func (s *conversationSession) sendEvent(ev serverEvent) {
	s.connMu.Lock()
	err := s.conn.WriteJSON(ev)
	s.connMu.Unlock()

	if err != nil {
		s.logger.Printf("conversation_ws: write error for conversation %s: %v", s.conversationID, err)
	}
}

func (s *conversationSession) cleanup() {
	s.cancel()

	s.speech.Close()

	s.connMu.Lock()
	s.conn.Close()
	s.connMu.Unlock()

	// Conversation context may already be cancelled
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.EndConversation(ctx, s.conversationID, time.Now().UTC()); err != nil {
		s.logger.Printf("conversation_ws: failed to end conversation %s: %v", s.conversationID, err)
	}
	s.eventLog.LogAsync(s.conversationID, eventlog.EventConversationEnded, nil)

	s.logger.Printf("conversation_ws: session cleaned up for conversation %s", s.conversationID)
}
