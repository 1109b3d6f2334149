package game

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turtle-internet/internal/response"
)

func allowAll(next httprouter.Handle) httprouter.Handle { return next }

func denyAll(httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		response.Error(w, http.StatusUnauthorized, "unauthorized")
	}
}

type testServer struct {
	router   *httprouter.Router
	store    *MemoryStore
	recorder *PlayRecorder
	events   *Broadcaster
}

func newTestServer(t *testing.T, admin Middleware) *testServer {
	t.Helper()
	store := NewMemoryStore()
	events := NewBroadcaster(8)
	recorder := NewPlayRecorder(store, events)
	handler := NewHandler(newTestService(store, nil), recorder, events, []string{"*"})

	router := httprouter.New()
	handler.Register(router, admin)
	return &testServer{router: router, store: store, recorder: recorder, events: events}
}

func (s *testServer) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body response.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestHandlerListGames(t *testing.T) {
	srv := newTestServer(t, allowAll)
	seedGames(t, srv.store, 12, func(i int, g *Game) {
		if i%2 == 0 {
			g.Categories = Categories{"Retro"}
		}
	})

	rec := srv.do(http.MethodGet, "/api/games", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))

	var page Page
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Len(t, page.Items, 10)
	assert.False(t, page.IsLastPage)

	rec = srv.do(http.MethodGet, "/api/games?sort=popularity&cursor="+string(page.NextCursor), "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, []string{"g01", "g00"}, ids(page.Items))
	assert.True(t, page.IsLastPage)

	rec = srv.do(http.MethodGet, "/api/games?category=Retro&limit=4", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, []string{"g10", "g08", "g06", "g04"}, ids(page.Items))

	tests := []struct {
		name   string
		target string
	}{
		{"bad sort", "/api/games?sort=rating"},
		{"bad limit", "/api/games?limit=zero"},
		{"bad cursor", "/api/games?cursor=***"},
		{"cursor for another sort", "/api/games?sort=name&cursor=" + string(page.NextCursor)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := srv.do(http.MethodGet, tt.target, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, decodeError(t, rec))
		})
	}
}

func TestHandlerGetGame(t *testing.T) {
	srv := newTestServer(t, allowAll)
	seedGames(t, srv.store, 1, nil)

	rec := srv.do(http.MethodGet, "/api/games/g00", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var g Game
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &g))
	assert.Equal(t, "Game 00", g.Name)

	rec = srv.do(http.MethodGet, "/api/games/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "game not found", decodeError(t, rec))
}

func TestHandlerRecordPlay(t *testing.T) {
	srv := newTestServer(t, allowAll)
	seedGames(t, srv.store, 1, nil)

	rec := srv.do(http.MethodPost, "/api/games/g00/play", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = srv.do(http.MethodPost, "/api/games/missing/play", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	srv.recorder.Wait()
	g, err := srv.store.GetGame(context.Background(), "g00")
	require.NoError(t, err)
	assert.Equal(t, int64(1), g.PlayCount)
}

func TestHandlerAdmin(t *testing.T) {
	t.Run("admin routes require the guard", func(t *testing.T) {
		srv := newTestServer(t, denyAll)
		for _, route := range []struct{ method, path string }{
			{http.MethodGet, "/api/admin/games"},
			{http.MethodPost, "/api/admin/games"},
			{http.MethodPut, "/api/admin/games/x"},
			{http.MethodDelete, "/api/admin/games/x"},
			{http.MethodPost, "/api/admin/categories"},
			{http.MethodDelete, "/api/admin/categories/x"},
			{http.MethodGet, "/api/admin/dashboard"},
			{http.MethodGet, "/api/admin/stats"},
		} {
			rec := srv.do(route.method, route.path, "")
			assert.Equal(t, http.StatusUnauthorized, rec.Code, route.path)
		}

		rec := srv.do(http.MethodGet, "/api/categories", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("crud", func(t *testing.T) {
		srv := newTestServer(t, allowAll)

		rec := srv.do(http.MethodPost, "/api/admin/games",
			`{"name":"Zelda","imageUrl":"s3://images/z.png","gameUrl":"s3://roms/z.zip","categories":"Adventure, Retro","isEmulator":true,"system":"nes"}`)
		require.Equal(t, http.StatusCreated, rec.Code)
		var created Game
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
		assert.Equal(t, Categories{"Adventure", "Retro"}, created.Categories)

		rec = srv.do(http.MethodPost, "/api/admin/games", `{"name":""}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = srv.do(http.MethodPost, "/api/admin/games", `{`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = srv.do(http.MethodPut, "/api/admin/games/"+created.ID,
			`{"name":"Zelda II","imageUrl":"a","gameUrl":"b","popularity":500,"playCount":500}`)
		require.Equal(t, http.StatusOK, rec.Code)
		var updated Game
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
		assert.Equal(t, "Zelda II", updated.Name)
		assert.Zero(t, updated.PlayCount)
		assert.Zero(t, updated.Popularity)

		rec = srv.do(http.MethodGet, "/api/admin/games", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var games []*Game
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &games))
		assert.Len(t, games, 1)

		rec = srv.do(http.MethodPost, "/api/admin/categories", `{"name":"Retro"}`)
		require.Equal(t, http.StatusCreated, rec.Code)
		var category Category
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &category))

		rec = srv.do(http.MethodPost, "/api/admin/categories", `{"name":"RETRO"}`)
		assert.Equal(t, http.StatusConflict, rec.Code)

		rec = srv.do(http.MethodGet, "/api/admin/dashboard", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"totalGames":1,"totalCategories":1}`, rec.Body.String())

		rec = srv.do(http.MethodGet, "/api/admin/stats", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var stats Stats
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
		assert.Len(t, stats.TopGames, 1)

		rec = srv.do(http.MethodDelete, "/api/admin/categories/"+category.ID, "")
		assert.Equal(t, http.StatusNoContent, rec.Code)
		rec = srv.do(http.MethodDelete, "/api/admin/categories/"+category.ID, "")
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = srv.do(http.MethodDelete, "/api/admin/games/"+created.ID, "")
		assert.Equal(t, http.StatusNoContent, rec.Code)
		rec = srv.do(http.MethodPut, "/api/admin/games/"+created.ID, `{"name":"x","imageUrl":"a","gameUrl":"b"}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHandlerEvents(t *testing.T) {
	srv := newTestServer(t, allowAll)
	seedGames(t, srv.store, 1, nil)

	ts := httptest.NewServer(srv.router)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/events", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return srv.events.Subscribers() == 1 }, time.Second, 10*time.Millisecond)

	resp, err := http.Post(ts.URL+"/api/games/g00/play", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event Event
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, EventTypeGamePlayed, event.Type)
	assert.Equal(t, "g00", event.GameID)
}
