package game

import (
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"turtle-internet/internal/response"
)

const writeWait = 10 * time.Second

// Middleware guards a route.
type Middleware func(httprouter.Handle) httprouter.Handle

type Handler struct {
	service  *Service
	plays    *PlayRecorder
	events   *Broadcaster
	upgrader websocket.Upgrader
}

// NewHandler builds the catalog handlers. Websocket upgrades are accepted
// from the listed origins; "*" accepts any origin.
func NewHandler(service *Service, plays *PlayRecorder, events *Broadcaster, origins []string) *Handler {
	return &Handler{
		service: service,
		plays:   plays,
		events:  events,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || slices.Contains(origins, "*") || slices.Contains(origins, origin)
			},
		},
	}
}

// Register mounts the public routes and the admin routes, the latter wrapped
// in admin.
func (h *Handler) Register(router *httprouter.Router, admin Middleware) {
	router.GET("/api/games", h.ListGames)
	router.GET("/api/games/:id", h.GetGame)
	router.POST("/api/games/:id/play", h.RecordPlay)
	router.GET("/api/categories", h.ListCategories)
	router.GET("/api/events", h.SubscribeToEvents)

	router.GET("/api/admin/games", admin(h.AdminListGames))
	router.POST("/api/admin/games", admin(h.CreateGame))
	router.PUT("/api/admin/games/:id", admin(h.UpdateGame))
	router.DELETE("/api/admin/games/:id", admin(h.DeleteGame))
	router.POST("/api/admin/categories", admin(h.CreateCategory))
	router.DELETE("/api/admin/categories/:id", admin(h.DeleteCategory))
	router.GET("/api/admin/dashboard", admin(h.Dashboard))
	router.GET("/api/admin/stats", admin(h.Stats))
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrGameNotFound), errors.Is(err, ErrCategoryNotFound):
		response.Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrCategoryExists):
		response.Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidGame),
		errors.Is(err, ErrInvalidCategory),
		errors.Is(err, ErrInvalidSort),
		errors.Is(err, ErrInvalidCursor),
		errors.Is(err, ErrCursorMismatch):
		response.Error(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("request failed", "error", err)
		response.Error(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *Handler) ListGames(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	q := r.URL.Query()

	sort, err := ParseSortKey(q.Get("sort"))
	if err != nil {
		writeError(w, err)
		return
	}

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 {
			response.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
	}

	page, err := h.service.FetchPage(r.Context(),
		Filter{Category: q.Get("category")}, sort, Cursor(q.Get("cursor")), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, page)
}

func (h *Handler) GetGame(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	g, err := h.service.GetGame(r.Context(), ps.ByName("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, g)
}

// RecordPlay accepts the play and counts it in the background.
func (h *Handler) RecordPlay(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.plays.RecordPlay(r.Context(), ps.ByName("id"))
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	categories, err := h.service.ListCategories(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, categories)
}

func (h *Handler) SubscribeToEvents(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	events, cancel := h.events.Subscribe()
	defer cancel()

	// Reading is required to notice the peer closing the connection.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		}
	}
}

func (h *Handler) AdminListGames(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	games, err := h.service.ListGames(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, games)
}

func (h *Handler) CreateGame(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var in GameInput
	if err := response.Decode(r, &in); err != nil {
		response.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	g, err := h.service.CreateGame(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusCreated, g)
}

func (h *Handler) UpdateGame(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var in GameInput
	if err := response.Decode(r, &in); err != nil {
		response.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	g, err := h.service.UpdateGame(r.Context(), ps.ByName("id"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, g)
}

func (h *Handler) DeleteGame(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := h.service.DeleteGame(r.Context(), ps.ByName("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type CreateCategoryRequest struct {
	Name string `json:"name"`
}

func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req CreateCategoryRequest
	if err := response.Decode(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	c, err := h.service.CreateCategory(r.Context(), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusCreated, c)
}

func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := h.service.DeleteCategory(r.Context(), ps.ByName("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	d, err := h.service.Dashboard(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, d)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, stats)
}
