package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pixelart-server/core"
	"pixelart-server/editor"
	"pixelart-server/handlers/api/artworks"
	"pixelart-server/handlers/api/sessions"
	"pixelart-server/middleware"
	"pixelart-server/stores/memory"
)

type staticViewers map[string]int

func (v staticViewers) Viewers() map[string]int { return v }

func newTestRouter(t *testing.T, origins []string) http.Handler {
	t.Helper()
	tokens, err := middleware.NewSessionTokens("secret", time.Hour)
	if err != nil {
		t.Fatalf("NewSessionTokens() failed: %v", err)
	}
	return setupRouter(server{
		registry: editor.NewRegistry(core.DefaultCanvasConfig()),
		store:    memory.NewArtworkStore(),
		tokens:   tokens,
		viewers:  staticViewers{"b": 1, "a": 3, "c": 1},
		origins:  origins,
	})
}

func doRequest(t *testing.T, h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestDrawSaveAndBrowseGallery(t *testing.T) {
	h := newTestRouter(t, nil)

	rec := doRequest(t, h, http.MethodPost, "/api/sessions", "", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}
	var created sessions.CreateSessionResponse
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	base := "/api/sessions/" + created.State.ID

	doRequest(t, h, http.MethodPut, base+"/palette", created.Token, `{"color":"#00ff00","brushSize":3}`)
	doRequest(t, h, http.MethodPost, base+"/pointer/down", created.Token, `{"x":100,"y":100}`)
	doRequest(t, h, http.MethodPost, base+"/pointer/up", created.Token, "")

	if rec := doRequest(t, h, http.MethodPost, base+"/save", created.Token, ""); rec.Code != http.StatusCreated {
		t.Fatalf("save status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, h, http.MethodGet, "/api/artworks", "", "")
	var gallery []artworks.ArtworkResponse
	if err := json.NewDecoder(rec.Body).Decode(&gallery); err != nil {
		t.Fatalf("Failed to decode gallery: %v", err)
	}
	if len(gallery) != 1 || !strings.HasPrefix(gallery[0].DataURL, "data:image/png;base64,") {
		t.Fatalf("unexpected gallery: %+v", gallery)
	}

	if rec := doRequest(t, h, http.MethodGet, "/api/artworks/"+gallery[0].ID+"/", "", ""); rec.Code != http.StatusOK {
		t.Errorf("get artwork status = %d", rec.Code)
	}
	if rec := doRequest(t, h, http.MethodDelete, "/api/artworks/"+gallery[0].ID+"/", "", ""); rec.Code != http.StatusOK {
		t.Errorf("delete artwork status = %d", rec.Code)
	}
}

func TestSessionRoutesAreProtected(t *testing.T) {
	h := newTestRouter(t, nil)
	if rec := doRequest(t, h, http.MethodPost, "/api/sessions/anything/undo", "", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestPaletteRoute(t *testing.T) {
	h := newTestRouter(t, nil)
	rec := doRequest(t, h, http.MethodGet, "/api/palette", "", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"#ff00ff"`) {
		t.Errorf("palette: %d %s", rec.Code, rec.Body.String())
	}
}

func TestViewersRoute(t *testing.T) {
	h := newTestRouter(t, nil)
	rec := doRequest(t, h, http.MethodGet, "/api/viewers", "", "")

	var entries []viewerEntry
	if err := json.NewDecoder(rec.Body).Decode(&entries); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	want := []viewerEntry{{"a", 3}, {"b", 1}, {"c", 1}}
	if len(entries) != len(want) {
		t.Fatalf("entries = %+v, want %+v", entries, want)
	}
	for i := range want {
		if entries[i] != want[i] {
			t.Errorf("entries[%d] = %+v, want %+v", i, entries[i], want[i])
		}
	}
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name    string
		origins []string
		origin  string
		allowed bool
	}{
		{"localhost by default", nil, "http://localhost:5173", true},
		{"foreign by default", nil, "https://example.com", false},
		{"configured origin", []string{"https://pixels.example.com"}, "https://pixels.example.com", true},
		{"unlisted origin", []string{"https://pixels.example.com"}, "http://localhost:5173", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestRouter(t, tt.origins)
			req := httptest.NewRequest(http.MethodOptions, "/api/palette", nil)
			req.Header.Set("Origin", tt.origin)
			req.Header.Set("Access-Control-Request-Method", http.MethodGet)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			got := rec.Header().Get("Access-Control-Allow-Origin") == tt.origin
			if got != tt.allowed {
				t.Errorf("allowed = %v, want %v", got, tt.allowed)
			}
		})
	}
}

func TestParseOrigins(t *testing.T) {
	got := parseOrigins(" https://a.example , ,https://b.example")
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Errorf("parseOrigins() = %v", got)
	}
	if parseOrigins("") != nil {
		t.Error("parseOrigins(\"\") should be nil")
	}
}

func TestTokenTTL(t *testing.T) {
	t.Setenv("SESSION_TOKEN_TTL", "")
	if got := tokenTTL(); got != defaultTokenTTL {
		t.Errorf("default ttl = %s", got)
	}
	t.Setenv("SESSION_TOKEN_TTL", "90m")
	if got := tokenTTL(); got != 90*time.Minute {
		t.Errorf("ttl = %s, want 90m", got)
	}
	t.Setenv("SESSION_TOKEN_TTL", "soon")
	if got := tokenTTL(); got != defaultTokenTTL {
		t.Errorf("invalid ttl = %s, want default", got)
	}
}

func TestRegistryOptions(t *testing.T) {
	cfg := core.CanvasConfig{CanvasSize: 16, PixelSize: 16, Background: "#ffffff"}

	t.Setenv("MAX_SESSIONS", "1")
	t.Setenv("SESSION_IDLE_TIMEOUT", "")
	reg := editor.NewRegistry(cfg, registryOptions(time.Hour)...)
	if _, err := reg.Create(); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if _, err := reg.Create(); !errors.Is(err, editor.ErrTooManySessions) {
		t.Errorf("second Create() error = %v, want ErrTooManySessions", err)
	}

	// A timeout in the past of every session evicts it on the next sweep.
	t.Setenv("SESSION_IDLE_TIMEOUT", "1ms")
	reg = editor.NewRegistry(cfg, registryOptions(time.Hour)...)
	if _, err := reg.Create(); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if n := reg.EvictIdle(time.Now().Add(time.Second)); n != 1 {
		t.Errorf("EvictIdle() = %d, want 1", n)
	}

	// Invalid values fall back to the defaults.
	t.Setenv("MAX_SESSIONS", "many")
	t.Setenv("SESSION_IDLE_TIMEOUT", "later")
	reg = editor.NewRegistry(cfg, registryOptions(time.Hour)...)
	if _, err := reg.Create(); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if n := reg.EvictIdle(time.Now().Add(30 * time.Minute)); n != 0 {
		t.Errorf("EvictIdle() within the token ttl = %d, want 0", n)
	}
	if n := reg.EvictIdle(time.Now().Add(2 * time.Hour)); n != 1 {
		t.Errorf("EvictIdle() past the token ttl = %d, want 1", n)
	}
}
