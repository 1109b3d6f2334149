// Package relay streams stored files to browsers through this server so
// the emulator can fetch ROMs without cross-origin restrictions.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/julienschmidt/httprouter"

	"turtle-internet/internal/response"
	"turtle-internet/internal/storage"
)

const (
	errMissingURL  = "URL parameter is required"
	errProxyFailed = "Error proxying file"

	romFilename = "rom.zip"
)

var (
	// ErrNoStorage is returned when the relay runs without blob storage.
	ErrNoStorage = errors.New("blob storage is not configured")
	// ErrForeignBucket is returned for download URLs naming a bucket the
	// relay does not serve.
	ErrForeignBucket = errors.New("bucket is not served by this relay")
)

// Signer resolves an object into a short lived fetchable URL.
type Signer interface {
	SignObject(ctx context.Context, obj storage.Object) (string, error)
}

type Handler struct {
	signer  Signer
	client  *http.Client
	buckets map[string]bool
}

// NewHandler returns a relay handler. A nil client uses http.DefaultClient.
// A nil signer makes every request fail with ErrNoStorage. Download URLs
// may only name one of buckets; URLs without a bucket use the signer's
// default one.
func NewHandler(signer Signer, client *http.Client, buckets ...string) *Handler {
	if client == nil {
		client = http.DefaultClient
	}
	allowed := make(map[string]bool, len(buckets))
	for _, b := range buckets {
		if b != "" {
			allowed[b] = true
		}
	}
	return &Handler{signer: signer, client: client, buckets: allowed}
}

func (h *Handler) Register(router *httprouter.Router) {
	router.GET("/proxy", h.Proxy)
	router.GET("/api/proxy", h.Proxy)
	router.GET("/proxy-storage/*key", h.ProxyStorage)
}

// ObjectKeyFromURL derives the stored object behind a download page URL.
func ObjectKeyFromURL(raw string) (storage.Object, error) {
	return storage.ObjectFromDownloadURL(raw)
}

// Proxy serves GET /proxy?url=<download page url> as a rom.zip attachment.
func (h *Handler) Proxy(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	raw := r.URL.Query().Get("url")
	if raw == "" {
		response.Error(w, http.StatusBadRequest, errMissingURL)
		return
	}

	obj, err := ObjectKeyFromURL(raw)
	if err == nil && obj.Bucket != "" && !h.buckets[obj.Bucket] {
		err = fmt.Errorf("%w: %s", ErrForeignBucket, obj.Bucket)
	}
	if err != nil {
		slog.Error("failed to proxy file", "url", raw, "error", err)
		response.Error(w, http.StatusInternalServerError, errProxyFailed)
		return
	}

	upstream, err := h.open(r.Context(), obj)
	if err != nil {
		slog.Error("failed to proxy file", "object", obj.String(), "error", err)
		response.Error(w, http.StatusInternalServerError, errProxyFailed)
		return
	}
	defer upstream.Body.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", romFilename))
	copyBody(w, upstream, obj)
}

// ProxyStorage serves GET /proxy-storage/<key> from the default bucket,
// keeping the upstream content type.
func (h *Handler) ProxyStorage(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	key := strings.TrimPrefix(ps.ByName("key"), "/")
	if key == "" {
		response.Error(w, http.StatusBadRequest, "object key is required")
		return
	}
	obj := storage.Object{Key: key}

	upstream, err := h.open(r.Context(), obj)
	if err != nil {
		slog.Error("failed to proxy file", "key", key, "error", err)
		response.Error(w, http.StatusInternalServerError, errProxyFailed)
		return
	}
	defer upstream.Body.Close()

	if ct := upstream.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	copyBody(w, upstream, obj)
}

// open fetches obj and checks the upstream status before anything is
// written to the client.
func (h *Handler) open(ctx context.Context, obj storage.Object) (*http.Response, error) {
	if h.signer == nil {
		return nil, ErrNoStorage
	}
	signed, err := h.signer.SignObject(ctx, obj)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, signed, nil)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch upstream: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("upstream returned %s", resp.Status)
	}
	return resp, nil
}

func copyBody(w http.ResponseWriter, upstream *http.Response, obj storage.Object) {
	if upstream.ContentLength >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(upstream.ContentLength, 10))
	}
	w.WriteHeader(http.StatusOK)

	// Headers are already sent; a broken stream can only be logged.
	if _, err := io.Copy(w, upstream.Body); err != nil {
		slog.Warn("file stream interrupted", "object", obj.String(), "error", err)
	}
}
