package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/tomasen/realip"

	"turtle-internet/internal/response"
)

type Handler struct {
	service *Service
	limiter *RateLimiter
}

func NewHandler(service *Service, limiter *RateLimiter) *Handler {
	return &Handler{service: service, limiter: limiter}
}

func (h *Handler) Register(router *httprouter.Router) {
	router.POST("/api/admin/login", h.Login)
}

func tooManyAttempts(w http.ResponseWriter, remaining time.Duration) {
	response.Error(w, http.StatusTooManyRequests,
		"too many failed logins, retry in "+remaining.Round(time.Second).String())
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ip := realip.FromRequest(r)
	if remaining := h.limiter.LockRemaining(ip); remaining > 0 {
		tooManyAttempts(w, remaining)
		return
	}

	var input LoginInput
	if err := response.Decode(r, &input); err != nil {
		response.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	tokens, err := h.service.Login(r.Context(), input)
	if err != nil {
		if !errors.Is(err, ErrInvalidCredentials) {
			slog.Error("login failed", "error", err)
			response.Error(w, http.StatusInternalServerError, "internal server error")
			return
		}
		slog.Warn("failed admin login", "ip", ip)
		if h.limiter.RecordFailure(ip) {
			tooManyAttempts(w, h.limiter.LockRemaining(ip))
			return
		}
		response.Error(w, http.StatusUnauthorized, err.Error())
		return
	}

	h.limiter.Reset(ip)
	response.JSON(w, http.StatusOK, tokens)
}
