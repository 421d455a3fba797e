package tts

import "context"

// Client defines the interface for text-to-speech providers. A client is
// bound to a single voice; use VoiceForLanguage to pick one.
type Client interface {
	// Synthesize converts text to speech and returns raw audio data in the
	// format specified by the provider config.
	Synthesize(ctx context.Context, text string) ([]byte, error)

	// SynthesizeStream converts text to speech and streams audio chunks.
	SynthesizeStream(ctx context.Context, text string) (<-chan []byte, error)
}
