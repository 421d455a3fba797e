package translate

import (
	"context"
	"errors"
)

// ErrServiceUnavailable is the generic failure returned to callers when a
// translation request fails for any reason. Transport detail is logged,
// never propagated.
var ErrServiceUnavailable = errors.New("translation service unavailable")

// Gateway defines the interface for translation providers.
type Gateway interface {
	// Translate converts text from sourceLang to targetLang. Language tags
	// are BCP-47 (e.g. "en-US", "es-ES"). Single request/response, no retry.
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
}
