package httpapi

import (
	"net/http"

	"github.com/google/uuid"
)

// handleListEntries returns a conversation's transcript in sequence order.
func (r *Router) handleListEntries(w http.ResponseWriter, req *http.Request) {
	conversationID := req.PathValue("id")
	if _, err := uuid.Parse(conversationID); err != nil {
		http.Error(w, `{"error": "invalid conversation id"}`, http.StatusBadRequest)
		return
	}

	entries, err := r.store.ListEntries(req.Context(), conversationID)
	if err != nil {
		r.logger.Printf("transcript: failed to list entries for %s: %v", conversationID, err)
		captureError(req, err, "transcript: list entries failed")
		http.Error(w, `{"error": "database error"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"conversation_id": conversationID,
		"entries":         entries,
	})
}
