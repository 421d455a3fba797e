package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/shreyakumari0911/Health-Trans/internal/eventlog"
	"github.com/shreyakumari0911/Health-Trans/internal/store"
)

type RouterConfig struct {
	// Speech and translation providers
	DeepgramAPIKey   string
	OpenAIAPIKey     string
	ElevenLabsAPIKey string

	// STT settings
	STTEndpointingMs int // Deepgram endpointing in ms (silence threshold)

	// Translation settings
	TranslateModel string

	// Language defaults for new conversations
	DefaultSourceLang string
	DefaultTargetLang string

	// JWT Authentication
	JWTSecret string
	JWTExpiry time.Duration

	// Shared HTTP client for outbound provider calls
	ServiceHTTPClient *http.Client

	// Test overrides for provider endpoints
	DeepgramBaseURL  string
	OpenAIAPIURL     string
	ElevenLabsAPIURL string
}

type Router struct {
	cfg      RouterConfig
	logger   *log.Logger
	store    *store.Store
	eventLog *eventlog.Logger
	sessions *SessionRegistry
	mux      *http.ServeMux
}

func NewRouter(cfg RouterConfig, logger *log.Logger, s *store.Store, eventLog *eventlog.Logger, sessions *SessionRegistry) http.Handler {
	r := &Router{
		cfg:      cfg,
		logger:   logger,
		store:    s,
		eventLog: eventLog,
		sessions: sessions,
		mux:      http.NewServeMux(),
	}

	r.routes()
	return withSentryRecovery(withCORS(r.mux))
}

func (r *Router) routes() {
	// Health checks
	r.mux.HandleFunc("GET /healthz", r.handleHealthz)
	r.mux.HandleFunc("GET /readyz", r.handleReadyz)

	// Auth endpoint (public, anonymous device sessions)
	r.mux.HandleFunc("POST /auth/session", r.handleCreateSession)

	// Conversation websocket (token passed as query param; browsers
	// cannot set headers on websocket upgrades)
	r.mux.HandleFunc("GET /conversation", r.handleConversationWS)

	// Protected API endpoints
	r.mux.HandleFunc("GET /api/conversations/{id}/entries", r.withAuth(r.handleListEntries))
	r.mux.HandleFunc("POST /api/speak", r.withAuth(r.handleSpeak))
	r.mux.HandleFunc("POST /api/speak/stream", r.withAuth(r.handleSpeakStream))
	r.mux.HandleFunc("GET /api/disclaimer", r.withAuth(r.handleGetDisclaimer))
	r.mux.HandleFunc("PUT /api/disclaimer", r.withAuth(r.handleAckDisclaimer))
}

func (r *Router) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Router) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	if r.sessions.IsDraining() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("draining"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func withSentryRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				hub := sentry.CurrentHub().Clone()
				hub.Scope().SetRequest(req)
				hub.RecoverWithContext(req.Context(), err)
				hub.Flush(2 * time.Second)
				http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, req)
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, req)
	})
}

func nowUTC() time.Time { return time.Now().UTC() }

// captureError sends an error to Sentry with request context
func captureError(req *http.Request, err error, msg string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetRequest(req)
		scope.SetExtra("message", msg)
		sentry.CaptureException(err)
	})
}
