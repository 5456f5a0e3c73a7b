package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/gray-logic-identity/internal/audit"
)

// handleListActivity returns the caller's own audit trail, newest first.
//
// Query parameters:
//   - action: filter by action (register, login, refresh, logout, profile_update)
//   - outcome: filter by outcome (success, failure)
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListActivity(w http.ResponseWriter, r *http.Request) {
	identity := pathIdentity(r)
	if identity != identityFromContext(r.Context()) {
		writeError(w, http.StatusForbidden, ErrCodeForbidden, "only the account owner may do this")
		return
	}

	if s.audit == nil {
		writeError(w, http.StatusNotImplemented, ErrCodeNotImplemented, "audit logging not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Identity: identity,
		Action:   q.Get("action"),
		Outcome:  q.Get("outcome"),
	}

	var ok bool
	if filter.Limit, ok = queryInt(q.Get("limit")); !ok {
		writeBadRequest(w, "limit must be a non-negative integer")
		return
	}
	if filter.Offset, ok = queryInt(q.Get("offset")); !ok {
		writeBadRequest(w, "offset must be a non-negative integer")
		return
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list activity", "error", err)
		writeInternalError(w, "failed to list activity")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// queryInt parses an optional non-negative integer query value. Empty is 0.
func queryInt(v string) (int, bool) {
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
