package httpapi

import (
	"encoding/json"
	"net/http"
)

// handleGetDisclaimer reports whether this device has acknowledged the
// translation accuracy disclaimer. Read failures are treated as "not
// acknowledged" so the client shows the disclaimer again.
func (r *Router) handleGetDisclaimer(w http.ResponseWriter, req *http.Request) {
	deviceID := getDeviceID(req.Context())
	if deviceID == "" {
		http.Error(w, `{"error": "not authenticated"}`, http.StatusUnauthorized)
		return
	}

	acknowledged, err := r.store.GetDisclaimerAck(req.Context(), deviceID)
	if err != nil {
		r.logger.Printf("disclaimer: failed to read ack for device %s: %v", deviceID, err)
		acknowledged = false
	}

	writeJSON(w, http.StatusOK, map[string]bool{"acknowledged": acknowledged})
}

// handleAckDisclaimer records the device's disclaimer acknowledgment. A
// write failure is logged but still reported as success; the worst case is
// the disclaimer showing once more on the next visit.
func (r *Router) handleAckDisclaimer(w http.ResponseWriter, req *http.Request) {
	deviceID := getDeviceID(req.Context())
	if deviceID == "" {
		http.Error(w, `{"error": "not authenticated"}`, http.StatusUnauthorized)
		return
	}

	var body struct {
		Acknowledged bool `json:"acknowledged"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, `{"error": "invalid request body"}`, http.StatusBadRequest)
		return
	}

	if err := r.store.SetDisclaimerAck(req.Context(), deviceID, body.Acknowledged); err != nil {
		r.logger.Printf("disclaimer: failed to store ack for device %s: %v", deviceID, err)
	}

	writeJSON(w, http.StatusOK, map[string]bool{"acknowledged": body.Acknowledged})
}
