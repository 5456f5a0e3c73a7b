package api

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-identity/internal/auth"
)

// pathIdentity returns the {identity} URL parameter, unescaped.
func pathIdentity(r *http.Request) string {
	raw := chi.URLParam(r, "identity")
	if identity, err := url.PathUnescape(raw); err == nil {
		return identity
	}
	return raw
}

// handleGetProfile returns the full profile to its owner and the public
// fields to anyone else, including anonymous callers.
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	account, owner, err := s.sessions.GetProfile(r.Context(), pathIdentity(r), identityFromContext(r.Context()))
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	if owner {
		writeJSON(w, http.StatusOK, account.OwnerView())
		return
	}
	writeJSON(w, http.StatusOK, account.PublicView())
}

// handleUpdateProfile replaces all four profile fields. Owner only.
func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var update auth.ProfileUpdate
	if err := decodeJSON(r, &update); err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	account, err := s.sessions.UpdateProfile(r.Context(), pathIdentity(r), identityFromContext(r.Context()), update)
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, account.OwnerView())
}
