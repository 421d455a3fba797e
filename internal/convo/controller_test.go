package convo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/shreyakumari0911/Health-Trans/internal/store"
	"github.com/shreyakumari0911/Health-Trans/internal/translate"
)

func testLogger() *log.Logger { return log.New(io.Discard, "", 0) }

// fakeGateway returns canned translations or a failure.
type fakeGateway struct {
	mu    sync.Mutex
	calls []string
	fail  bool
	block chan struct{} // when non-nil, Translate waits on it
}

func (g *fakeGateway) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, text)
	block := g.block
	fail := g.fail
	g.mu.Unlock()

	if block != nil {
		<-block
	}
	if fail {
		return "", translate.ErrServiceUnavailable
	}
	return fmt.Sprintf("[%s->%s] %s", sourceLang, targetLang, text), nil
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

// fakeRecorder captures persisted entries.
type fakeRecorder struct {
	mu      sync.Mutex
	entries []store.Entry
	err     error
}

func (r *fakeRecorder) InsertEntry(ctx context.Context, e store.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return r.err
}

// collector gathers callbacks and signals entry/error arrival.
type collector struct {
	mu          sync.Mutex
	interims    []string
	translating []bool
	errors      []string
	entries     []store.Entry
	entryCh     chan store.Entry
	errCh       chan string
}

func newCollector() *collector {
	return &collector{
		entryCh: make(chan store.Entry, 8),
		errCh:   make(chan string, 8),
	}
}

func (c *collector) callbacks() Callbacks {
	return Callbacks{
		OnInterim: func(text string) {
			c.mu.Lock()
			c.interims = append(c.interims, text)
			c.mu.Unlock()
		},
		OnTranslating: func(active bool) {
			c.mu.Lock()
			c.translating = append(c.translating, active)
			c.mu.Unlock()
		},
		OnEntry: func(e store.Entry) {
			c.mu.Lock()
			c.entries = append(c.entries, e)
			c.mu.Unlock()
			c.entryCh <- e
		},
		OnError: func(msg string) {
			c.mu.Lock()
			c.errors = append(c.errors, msg)
			c.mu.Unlock()
			c.errCh <- msg
		},
	}
}

func (c *collector) waitEntry(t *testing.T) store.Entry {
	t.Helper()
	select {
	case e := <-c.entryCh:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for entry")
		return store.Entry{}
	}
}

func (c *collector) waitError(t *testing.T) string {
	t.Helper()
	select {
	case msg := <-c.errCh:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for error")
		return ""
	}
}

func TestController_FinalResultAppendsEntry(t *testing.T) {
	gw := &fakeGateway{}
	rec := &fakeRecorder{}
	col := newCollector()

	c := New("conv-1", gw, rec, nil, testLogger(), col.callbacks())
	c.SetLanguages("es-ES", "en-US", "patient")

	c.HandleResult("  tengo fiebre  ", true)
	entry := col.waitEntry(t)

	if entry.ID == "" {
		t.Error("entry ID is empty, want generated uuid")
	}
	if entry.CreatedAt.IsZero() {
		t.Error("entry CreatedAt is zero")
	}
	if entry.OriginalText != "tengo fiebre" {
		t.Errorf("original = %q, want trimmed %q", entry.OriginalText, "tengo fiebre")
	}
	if entry.TranslatedText != "[es-ES->en-US] tengo fiebre" {
		t.Errorf("translated = %q, unexpected", entry.TranslatedText)
	}
	if entry.Speaker != "patient" {
		t.Errorf("speaker = %q, want %q", entry.Speaker, "patient")
	}
	if entry.Sequence != 1 {
		t.Errorf("sequence = %d, want 1", entry.Sequence)
	}

	if got := c.Entries(); len(got) != 1 {
		t.Errorf("log has %d entries, want 1", len(got))
	}

	rec.mu.Lock()
	persisted := len(rec.entries)
	rec.mu.Unlock()
	if persisted != 1 {
		t.Errorf("persisted entries = %d, want 1", persisted)
	}
}

func TestController_TranslationFailure(t *testing.T) {
	gw := &fakeGateway{fail: true}
	col := newCollector()

	c := New("conv-1", gw, nil, nil, testLogger(), col.callbacks())
	c.SetLanguages("es-ES", "en-US", "patient")

	c.HandleResult("fiebre", true)
	msg := col.waitError(t)

	// Generic message, no transport detail.
	if msg == "" || msg == translate.ErrServiceUnavailable.Error() {
		t.Errorf("error message = %q, want generic user-facing text", msg)
	}

	if got := c.Entries(); len(got) != 0 {
		t.Errorf("log has %d entries after failure, want 0", len(got))
	}
	if c.Translating() {
		t.Error("Translating() = true after failure settled")
	}
	if c.Interim() != "" {
		t.Errorf("Interim() = %q after failure, want cleared", c.Interim())
	}
}

func TestController_EmptyFinalIgnored(t *testing.T) {
	gw := &fakeGateway{}
	col := newCollector()

	c := New("conv-1", gw, nil, nil, testLogger(), col.callbacks())
	c.SetLanguages("en-US", "es-ES", "provider")

	c.HandleResult("", true)
	c.HandleResult("   \n\t ", true)
	time.Sleep(20 * time.Millisecond)

	if got := gw.callCount(); got != 0 {
		t.Errorf("translate calls = %d, want 0 for empty finals", got)
	}
	if got := c.Entries(); len(got) != 0 {
		t.Errorf("log has %d entries, want 0", len(got))
	}
}

func TestController_InterimReplacesSlot(t *testing.T) {
	gw := &fakeGateway{}
	col := newCollector()

	c := New("conv-1", gw, nil, nil, testLogger(), col.callbacks())
	c.SetLanguages("en-US", "es-ES", "provider")

	c.HandleResult("the", false)
	c.HandleResult("the patient", false)
	c.HandleResult("the patient has", false)

	if got := c.Interim(); got != "the patient has" {
		t.Errorf("Interim() = %q, want latest interim", got)
	}
	if got := c.Entries(); len(got) != 0 {
		t.Errorf("interims appended to log: %d entries", len(got))
	}

	// A final clears the slot once it settles.
	c.HandleResult("the patient has a fever", true)
	col.waitEntry(t)
	if got := c.Interim(); got != "" {
		t.Errorf("Interim() = %q after final settled, want empty", got)
	}
}

func TestController_TranslatingFlagSpansConcurrentFinals(t *testing.T) {
	block := make(chan struct{})
	gw := &fakeGateway{block: block}
	col := newCollector()

	c := New("conv-1", gw, nil, nil, testLogger(), col.callbacks())
	c.SetLanguages("en-US", "es-ES", "provider")

	// Two rapid finals translate concurrently, no mutual exclusion.
	c.HandleResult("first utterance", true)
	c.HandleResult("second utterance", true)

	deadline := time.After(2 * time.Second)
	for gw.callCount() < 2 {
		select {
		case <-deadline:
			t.Fatalf("translate calls = %d, want 2 concurrent", gw.callCount())
		default:
			time.Sleep(time.Millisecond)
		}
	}
	if !c.Translating() {
		t.Error("Translating() = false while calls in flight")
	}

	close(block)
	col.waitEntry(t)
	col.waitEntry(t)

	if c.Translating() {
		t.Error("Translating() = true after both settled")
	}

	col.mu.Lock()
	transitions := append([]bool(nil), col.translating...)
	col.mu.Unlock()
	// One true at the start, one false at the end; no flapping in between.
	if len(transitions) != 2 || !transitions[0] || transitions[1] {
		t.Errorf("translating transitions = %v, want [true false]", transitions)
	}

	if got := c.Entries(); len(got) != 2 {
		t.Fatalf("log has %d entries, want 2", len(got))
	}
	if c.Entries()[0].Sequence != 1 || c.Entries()[1].Sequence != 2 {
		t.Error("sequences not monotonically assigned")
	}
}

func TestController_Swap(t *testing.T) {
	gw := &fakeGateway{}
	col := newCollector()

	c := New("conv-1", gw, nil, nil, testLogger(), col.callbacks())
	c.SetLanguages("en-US", "es-ES", "provider")

	newLang := c.Swap("patient")
	if newLang != "es-ES" {
		t.Errorf("Swap returned %q, want %q", newLang, "es-ES")
	}
	src, tgt := c.Languages()
	if src != "es-ES" || tgt != "en-US" {
		t.Errorf("languages = (%q, %q), want swapped", src, tgt)
	}

	c.HandleResult("me duele la cabeza", true)
	entry := col.waitEntry(t)
	if entry.SourceLang != "es-ES" || entry.TargetLang != "en-US" || entry.Speaker != "patient" {
		t.Errorf("entry after swap = %+v, want patient es-ES -> en-US", entry)
	}
}

func TestController_PersistFailureDoesNotBlockTranscript(t *testing.T) {
	gw := &fakeGateway{}
	rec := &fakeRecorder{err: errors.New("db down")}
	col := newCollector()

	c := New("conv-1", gw, rec, nil, testLogger(), col.callbacks())
	c.SetLanguages("en-US", "es-ES", "provider")

	c.HandleResult("hello", true)
	entry := col.waitEntry(t)

	if entry.TranslatedText == "" {
		t.Error("entry missing despite persistence failure")
	}
	if got := c.Entries(); len(got) != 1 {
		t.Errorf("log has %d entries, want 1 (in-memory log unaffected)", len(got))
	}
}

func TestController_EntryLookup(t *testing.T) {
	gw := &fakeGateway{}
	col := newCollector()

	c := New("conv-1", gw, nil, nil, testLogger(), col.callbacks())
	c.SetLanguages("en-US", "es-ES", "provider")

	c.HandleResult("hello", true)
	entry := col.waitEntry(t)

	got, ok := c.Entry(entry.ID)
	if !ok {
		t.Fatal("Entry lookup failed for fresh entry")
	}
	if got.ID != entry.ID {
		t.Errorf("Entry ID = %q, want %q", got.ID, entry.ID)
	}

	if _, ok := c.Entry("missing"); ok {
		t.Error("Entry lookup succeeded for unknown ID")
	}
}
