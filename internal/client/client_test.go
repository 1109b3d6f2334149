package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turtle-internet/internal/game"
)

func TestFetchPage(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		json.NewEncoder(w).Encode(game.Page{
			Items:      []*game.Game{{ID: "a", Name: "Asteroids"}},
			NextCursor: "next",
			IsLastPage: true,
		})
	}))
	defer srv.Close()

	page, err := New(srv.URL+"/", nil).FetchPage(context.Background(), "Retro", game.SortByName, "abc", 5)
	require.NoError(t, err)
	assert.Equal(t, "/api/games", got.URL.Path)
	assert.Equal(t, "Retro", got.URL.Query().Get("category"))
	assert.Equal(t, "name", got.URL.Query().Get("sort"))
	assert.Equal(t, "abc", got.URL.Query().Get("cursor"))
	assert.Equal(t, "5", got.URL.Query().Get("limit"))
	assert.Equal(t, game.Cursor("next"), page.NextCursor)
	assert.True(t, page.IsLastPage)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Asteroids", page.Items[0].Name)
}

func TestAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/games/missing":
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"game not found"}`))
		default:
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte("<html>bad gateway</html>"))
		}
	}))
	defer srv.Close()
	c := New(srv.URL, nil)

	_, err := c.GetGame(context.Background(), "missing")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "game not found", apiErr.Message)

	_, err = c.ListCategories(context.Background())
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, "api error: 502 Bad Gateway", apiErr.Error())
}

func TestRecordPlayAndFetchROM(t *testing.T) {
	var played string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/games/g1/play":
			played = "g1"
			w.WriteHeader(http.StatusAccepted)
		case r.URL.Path == "/api/proxy":
			if r.URL.Query().Get("url") == "" {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"error":"URL parameter is required"}`))
				return
			}
			w.Header().Set("Content-Type", "application/octet-stream")
			w.Write([]byte("rom:" + r.URL.Query().Get("url")))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	c := New(srv.URL, nil)
	ctx := context.Background()

	require.NoError(t, c.RecordPlay(ctx, "g1"))
	assert.Equal(t, "g1", played)

	data, err := c.FetchROM(ctx, "https://storage.example/v0/b/roms/o/a.zip?alt=media")
	require.NoError(t, err)
	assert.Equal(t, "rom:https://storage.example/v0/b/roms/o/a.zip?alt=media", string(data))

	_, err = c.FetchROM(ctx, "")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "URL parameter is required", apiErr.Message)
}
