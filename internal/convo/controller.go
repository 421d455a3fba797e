// Package convo orchestrates recognition results into translated
// transcript entries for a two-party conversation.
package convo

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shreyakumari0911/Health-Trans/internal/eventlog"
	"github.com/shreyakumari0911/Health-Trans/internal/store"
	"github.com/shreyakumari0911/Health-Trans/internal/translate"
)

// translateTimeout bounds a single translation call. There is no retry;
// a timed-out call surfaces as the generic translation failure.
const translateTimeout = 30 * time.Second

// translationFailedMessage is the generic user-facing translation failure.
// Transport detail never reaches users.
const translationFailedMessage = "Translation failed. The utterance was not added to the transcript."

// Recorder persists transcript entries. *store.Store satisfies it; tests
// substitute fakes.
type Recorder interface {
	InsertEntry(ctx context.Context, e store.Entry) error
}

// Callbacks deliver controller output to the transport layer. All callbacks
// are optional and may be invoked from translation goroutines.
type Callbacks struct {
	OnInterim     func(text string)    // live interim slot, "" when cleared
	OnTranslating func(active bool)    // true while any translation is in flight
	OnEntry       func(e store.Entry)  // a new transcript entry was appended
	OnError       func(message string) // generic user-facing failure
}

// Controller accumulates an append-only transcript log. Final recognition
// results are translated and appended; interim results replace a single
// live slot. Rapid consecutive finals translate concurrently; entry order
// follows translation completion order.
type Controller struct {
	conversationID string
	translator     translate.Gateway
	recorder       Recorder
	events         *eventlog.Logger
	logger         *log.Logger
	cb             Callbacks

	mu         sync.Mutex
	sourceLang string
	targetLang string
	speaker    string
	seq        int
	entries    []store.Entry
	interim    string
	inflight   int
}

// New creates a controller for one conversation. recorder and events may
// be nil; persistence failures never block the transcript.
func New(conversationID string, translator translate.Gateway, recorder Recorder, events *eventlog.Logger, logger *log.Logger, cb Callbacks) *Controller {
	if events == nil {
		events = eventlog.New(nil)
	}
	return &Controller{
		conversationID: conversationID,
		translator:     translator,
		recorder:       recorder,
		events:         events,
		logger:         logger,
		cb:             cb,
	}
}

// SetLanguages configures the active translation direction and the speaker
// tag attached to subsequent entries.
func (c *Controller) SetLanguages(sourceLang, targetLang, speaker string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sourceLang = sourceLang
	c.targetLang = targetLang
	c.speaker = speaker
}

// Swap exchanges source and target languages for the other party's turn and
// returns the new recognition language.
func (c *Controller) Swap(speaker string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sourceLang, c.targetLang = c.targetLang, c.sourceLang
	c.speaker = speaker
	c.events.LogAsync(c.conversationID, eventlog.EventLanguagesSwapped, map[string]any{
		"source_lang": c.sourceLang,
		"target_lang": c.targetLang,
	})
	return c.sourceLang
}

// Languages returns the active translation direction.
func (c *Controller) Languages() (sourceLang, targetLang string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sourceLang, c.targetLang
}

// HandleResult consumes one recognition result. It matches the speech
// session's OnResult callback signature.
func (c *Controller) HandleResult(text string, final bool) {
	if !final {
		c.mu.Lock()
		c.interim = text
		c.mu.Unlock()
		if c.cb.OnInterim != nil {
			c.cb.OnInterim(text)
		}
		return
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	c.mu.Lock()
	c.inflight++
	first := c.inflight == 1
	source, target, speaker := c.sourceLang, c.targetLang, c.speaker
	c.mu.Unlock()

	if first && c.cb.OnTranslating != nil {
		c.cb.OnTranslating(true)
	}
	c.events.LogAsync(c.conversationID, eventlog.EventFinalResult, map[string]any{
		"text_length": len(text),
	})

	go c.translateFinal(text, source, target, speaker)
}

func (c *Controller) translateFinal(text, sourceLang, targetLang, speaker string) {
	defer c.settle()

	ctx, cancel := context.WithTimeout(context.Background(), translateTimeout)
	defer cancel()

	translated, err := c.translator.Translate(ctx, text, sourceLang, targetLang)
	if err != nil {
		c.logger.Printf("convo: translation failed: %v", err)
		c.events.LogAsync(c.conversationID, eventlog.EventTranslationError, nil)
		if c.cb.OnError != nil {
			c.cb.OnError(translationFailedMessage)
		}
		return
	}

	entry := store.Entry{
		ID:             uuid.NewString(),
		ConversationID: c.conversationID,
		Speaker:        speaker,
		OriginalText:   text,
		TranslatedText: translated,
		SourceLang:     sourceLang,
		TargetLang:     targetLang,
		CreatedAt:      time.Now().UTC(),
	}

	c.mu.Lock()
	c.seq++
	entry.Sequence = c.seq
	c.entries = append(c.entries, entry)
	c.mu.Unlock()

	if c.recorder != nil {
		if err := c.recorder.InsertEntry(ctx, entry); err != nil {
			c.logger.Printf("convo: failed to persist entry %s: %v", entry.ID, err)
		}
	}
	c.events.LogAsync(c.conversationID, eventlog.EventTranslationDone, map[string]any{
		"entry_id": entry.ID,
	})

	if c.cb.OnEntry != nil {
		c.cb.OnEntry(entry)
	}
}

// settle clears the translating flag and interim slot after a translation
// attempt, success or not.
func (c *Controller) settle() {
	c.mu.Lock()
	c.inflight--
	last := c.inflight == 0
	c.interim = ""
	c.mu.Unlock()

	if c.cb.OnInterim != nil {
		c.cb.OnInterim("")
	}
	if last && c.cb.OnTranslating != nil {
		c.cb.OnTranslating(false)
	}
}

// Entries returns a copy of the transcript log in append order.
func (c *Controller) Entries() []store.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]store.Entry(nil), c.entries...)
}

// Entry looks up a transcript entry by ID.
func (c *Controller) Entry(id string) (store.Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		if e.ID == id {
			return e, true
		}
	}
	return store.Entry{}, false
}

// Interim returns the live interim text, "" when none.
func (c *Controller) Interim() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interim
}

// Translating reports whether any translation is in flight.
func (c *Controller) Translating() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight > 0
}
