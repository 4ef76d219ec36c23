package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/gray-logic-appliances/internal/audit"
)

// recordAudit stores one operator action. Failures are logged, never
// surfaced to the caller.
func (s *Server) recordAudit(r *http.Request, action, deviceID string, actionErr error, details map[string]any) {
	if s.audit == nil {
		return
	}

	entry := &audit.Entry{
		Action:    action,
		DeviceID:  deviceID,
		Outcome:   audit.OutcomeAccepted,
		RequestID: requestID(r.Context()),
		Details:   details,
	}
	if actionErr != nil {
		entry.Outcome = audit.OutcomeRejected
		if entry.Details == nil {
			entry.Details = map[string]any{}
		}
		entry.Details["error"] = actionErr.Error()
	}

	if err := s.audit.Record(r.Context(), entry); err != nil {
		s.logger.Warn("failed to record audit entry", "action", action, "device_id", deviceID, "error", err)
	}
}

// handleListAudit lists operator actions, newest first.
// Query: device_id, action, limit, offset.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "audit log not available")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:   q.Get("action"),
		DeviceID: q.Get("device_id"),
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeStatus(w, http.StatusBadRequest, name+" must be an integer")
			return
		}
		*dst = n
	}

	page, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing audit entries", "error", err)
		writeStatus(w, http.StatusInternalServerError, "failed to list audit entries")
		return
	}
	writeJSON(w, http.StatusOK, page)
}
