package handler

import (
	"net/http"

	"appointment-booking-api/internal/middleware"
	"appointment-booking-api/internal/model"
	"appointment-booking-api/internal/service"
)

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Email    string `json:"email" validate:"required,email,max=100"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	FullName string `json:"fullName" validate:"required,max=100"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// sessionResponse is returned by login, register and refresh.
type sessionResponse struct {
	Success      bool             `json:"success"`
	Token        string           `json:"token"`
	RefreshToken string           `json:"refreshToken"`
	ExpiresIn    int              `json:"expiresIn"`
	User         model.PublicUser `json:"user"`
}

func toSession(s *service.Session) sessionResponse {
	return sessionResponse{
		Success:      true,
		Token:        s.AccessToken,
		RefreshToken: s.RefreshToken,
		ExpiresIn:    int(s.ExpiresIn.Seconds()),
		User:         s.User,
	}
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fields := h.check(req); fields != nil {
		writeFields(w, fields)
		return
	}
	s, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSession(s))
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fields := h.check(req); fields != nil {
		writeFields(w, fields)
		return
	}
	s, err := h.auth.Register(r.Context(), service.Registration{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSession(s))
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fields := h.check(req); fields != nil {
		writeFields(w, fields)
		return
	}
	s, err := h.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSession(s))
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	c, _ := middleware.ClaimsFrom(r.Context())
	if err := h.auth.Logout(r.Context(), c.UserID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	c, _ := middleware.ClaimsFrom(r.Context())
	u, err := h.auth.User(r.Context(), c.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *Handler) user(w http.ResponseWriter, r *http.Request) {
	id, ok := h.withID(w, r)
	if !ok {
		return
	}
	u, err := h.auth.User(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
