package websocket

import (
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"pixelart-server/core"
	"pixelart-server/editor"
	"pixelart-server/middleware"
)

func TestExtractAck(t *testing.T) {
	var got []any
	var gotErr error
	callback := func(args []any, err error) { got, gotErr = args, err }
	ack, args := extractAck([]any{"session-1", "token", callback})

	if ack == nil {
		t.Fatal("Expected ack callback to be extracted")
	}
	if len(args) != 2 || args[0] != "session-1" {
		t.Errorf("Expected 2 remaining args, got %v", args)
	}

	ack([]any{map[string]any{"status": "ok"}}, nil)
	if gotErr != nil || len(got) != 1 || !reflect.DeepEqual(got[0], map[string]any{"status": "ok"}) {
		t.Errorf("ack received %v, %v", got, gotErr)
	}
}

func TestExtractAckWithoutCallback(t *testing.T) {
	ack, args := extractAck([]any{"session-1", "token"})
	if ack != nil {
		t.Error("Expected no ack for plain arguments")
	}
	if len(args) != 2 {
		t.Errorf("Expected 2 args, got %d", len(args))
	}

	if ack, args := extractAck(nil); ack != nil || len(args) != 0 {
		t.Error("Expected nothing from empty arguments")
	}

	// Only the Socket.IO ack shape counts as a callback.
	other := func(payload map[string]any) {}
	if ack, args := extractAck([]any{"session-1", other}); ack != nil || len(args) != 2 {
		t.Error("Expected foreign function to stay an argument")
	}
}

func TestParseJoinArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []any
		wantID  string
		wantErr bool
	}{
		{"valid", []any{"s1", "tok"}, "s1", false},
		{"no args", nil, "", true},
		{"empty id", []any{"", "tok"}, "", true},
		{"non-string id", []any{42, "tok"}, "", true},
		{"missing token", []any{"s1"}, "s1", true},
		{"empty token", []any{"s1", ""}, "s1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, _, err := parseJoinArgs(tt.args)
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if id != tt.wantID {
				t.Errorf("id = %q, want %q", id, tt.wantID)
			}
		})
	}
}

func TestMakeJoinAckPayload(t *testing.T) {
	ok := makeJoinAckPayload("s1", 3, nil)
	if ok["status"] != "ok" || ok["viewers"] != 3 || ok["sessionId"] != "s1" {
		t.Errorf("unexpected payload: %v", ok)
	}
	if _, exists := ok["error"]; exists {
		t.Error("success payload carries an error")
	}

	failed := makeJoinAckPayload("", 0, errors.New("unauthorized"))
	if failed["status"] != "error" || failed["error"] != "unauthorized" {
		t.Errorf("unexpected payload: %v", failed)
	}
	if _, exists := failed["sessionId"]; exists {
		t.Error("payload names an empty session")
	}
}

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	tokens, err := middleware.NewSessionTokens("secret", time.Hour)
	if err != nil {
		t.Fatalf("NewSessionTokens() failed: %v", err)
	}
	return NewHub(editor.NewRegistry(core.DefaultCanvasConfig()), tokens, nil)
}

func TestViewerCounts(t *testing.T) {
	h := newTestHub(t)

	h.setViewers("a", 2)
	h.setViewers("b", 1)
	if h.ViewerCount("a") != 2 || h.ViewerCount("missing") != 0 {
		t.Errorf("counts = %v", h.Viewers())
	}

	snapshot := h.Viewers()
	snapshot["a"] = 99
	if h.ViewerCount("a") != 2 {
		t.Error("Viewers() returned the live map")
	}

	h.setViewers("b", 0)
	if _, ok := h.Viewers()["b"]; ok {
		t.Error("session without viewers is still tracked")
	}
}

func TestViewerCountsConcurrency(t *testing.T) {
	h := newTestHub(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h.setViewers("s", i+1)
			_ = h.Viewers()
		}(i)
	}
	wg.Wait()

	if n := h.ViewerCount("s"); n < 1 || n > 20 {
		t.Errorf("ViewerCount() = %d", n)
	}
}

func TestHubIsSessionNotifier(t *testing.T) {
	h := newTestHub(t)
	var _ editor.Notifier = h

	reg := editor.NewRegistry(core.DefaultCanvasConfig())
	reg.SetNotifier(h)

	// Pushing to a room without viewers is a no-op.
	s, err := reg.Create()
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	s.PointerDown(0, 0)
}
