package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/shreyakumari0911/Health-Trans/internal/audio"
	"github.com/shreyakumari0911/Health-Trans/internal/eventlog"
	"github.com/shreyakumari0911/Health-Trans/internal/store"
	"github.com/shreyakumari0911/Health-Trans/internal/tts"
)

// speakEntry parses the request body and loads the transcript entry it
// names. A nil entry means the response has already been written.
func (r *Router) speakEntry(w http.ResponseWriter, req *http.Request) *store.Entry {
	var body struct {
		EntryID string `json:"entry_id"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.EntryID == "" {
		http.Error(w, `{"error": "entry_id is required"}`, http.StatusBadRequest)
		return nil
	}

	entry, err := r.store.GetEntry(req.Context(), body.EntryID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, `{"error": "entry not found"}`, http.StatusNotFound)
			return nil
		}
		r.logger.Printf("speak: failed to load entry %s: %v", body.EntryID, err)
		captureError(req, err, "speak: entry lookup failed")
		http.Error(w, `{"error": "database error"}`, http.StatusInternalServerError)
		return nil
	}
	return entry
}

// ttsClient builds a synthesis client voiced for the entry's target
// language. Returns nil when no provider is configured.
func (r *Router) ttsClient(lang string) tts.Client {
	if r.cfg.ElevenLabsAPIKey == "" {
		return nil
	}
	return tts.NewElevenLabsClient(tts.ElevenLabsConfig{
		APIKey:     r.cfg.ElevenLabsAPIKey,
		VoiceID:    tts.VoiceForLanguage(lang),
		APIURL:     r.cfg.ElevenLabsAPIURL,
		HTTPClient: r.cfg.ServiceHTTPClient,
	})
}

// handleSpeak synthesizes a transcript entry's translated text. On any
// synthesis failure it returns 502 with a fallback hint so the client can
// fall back to its local speech synthesis.
func (r *Router) handleSpeak(w http.ResponseWriter, req *http.Request) {
	entry := r.speakEntry(w, req)
	if entry == nil {
		return
	}

	r.eventLog.LogAsync(entry.ConversationID, eventlog.EventSpeakRequested, map[string]any{
		"entry_id": entry.ID,
		"lang":     entry.TargetLang,
	})

	client := r.ttsClient(entry.TargetLang)
	if client == nil {
		r.speakFallback(w, entry)
		return
	}

	pcm, err := client.Synthesize(req.Context(), entry.TranslatedText)
	if err != nil {
		r.logger.Printf("speak: synthesis failed for entry %s: %v", entry.ID, err)
		r.speakFallback(w, entry)
		return
	}
	writeAudio(w, pcm)
}

// handleSpeakStream is the streaming variant of handleSpeak: audio is
// written in roughly 100ms increments as the provider produces it, so
// playback can begin before synthesis finishes.
func (r *Router) handleSpeakStream(w http.ResponseWriter, req *http.Request) {
	entry := r.speakEntry(w, req)
	if entry == nil {
		return
	}

	r.eventLog.LogAsync(entry.ConversationID, eventlog.EventSpeakRequested, map[string]any{
		"entry_id": entry.ID,
		"lang":     entry.TargetLang,
		"stream":   true,
	})

	client := r.ttsClient(entry.TargetLang)
	if client == nil {
		r.speakFallback(w, entry)
		return
	}

	chunks, err := client.SynthesizeStream(req.Context(), entry.TranslatedText)
	if err != nil {
		r.logger.Printf("speak: stream synthesis failed for entry %s: %v", entry.ID, err)
		r.speakFallback(w, entry)
		return
	}

	// The stream is requested as 16 kHz PCM; the rate is fixed up front
	// since the body is written incrementally.
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("X-Audio-Sample-Rate", strconv.Itoa(audio.FallbackSampleRate))
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	for chunk := range chunks {
		if _, err := w.Write(chunk); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// writeAudio writes a complete synthesized clip. The sample rate comes
// from the decoded audio itself when the payload carries one.
func writeAudio(w http.ResponseWriter, pcm []byte) {
	rate := audio.FallbackSampleRate
	w.Header().Set("Content-Type", "application/octet-stream")
	if samples, format, err := audio.Decode(pcm); err == nil {
		rate = format.SampleRate
		ms := audio.Duration(samples, format).Milliseconds()
		w.Header().Set("X-Audio-Duration-Ms", strconv.FormatInt(ms, 10))
	}
	w.Header().Set("X-Audio-Sample-Rate", strconv.Itoa(rate))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pcm)
}

// speakFallback tells the client to use its local speech synthesis.
func (r *Router) speakFallback(w http.ResponseWriter, entry *store.Entry) {
	r.eventLog.LogAsync(entry.ConversationID, eventlog.EventSpeakFallback, map[string]any{
		"entry_id": entry.ID,
		"lang":     entry.TargetLang,
	})
	writeJSON(w, http.StatusBadGateway, map[string]string{
		"fallback": "local",
		"lang":     entry.TargetLang,
	})
}
