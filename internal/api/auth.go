package api

import (
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-identity/internal/auth"
)

// credentialsRequest is the body of POST /auth/register.
type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// registerResponse is returned by POST /auth/register.
type registerResponse struct {
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// loginRequest is the body of POST /auth/login.
// TTLs are optional and in seconds.
type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	BearerTTL  *int   `json:"bearer_ttl"`
	RefreshTTL *int   `json:"refresh_ttl"`
}

// refreshTokenRequest is the body of POST /auth/refresh and /auth/logout.
type refreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// handleRegister creates an account.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	account, err := s.sessions.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, registerResponse{
		Email:     account.Identity,
		CreatedAt: account.CreatedAt,
	})
}

// handleLogin verifies credentials and returns a bearer and refresh token pair.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	pair, err := s.sessions.Login(r.Context(), auth.LoginRequest{
		Identity:   req.Email,
		Password:   req.Password,
		BearerTTL:  req.BearerTTL,
		RefreshTTL: req.RefreshTTL,
	})
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

// handleRefresh exchanges a live refresh token for a new pair.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	pair, err := s.sessions.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

// handleLogout ends the session that owns the presented refresh token.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	if err := s.sessions.Logout(r.Context(), req.RefreshToken); err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}
