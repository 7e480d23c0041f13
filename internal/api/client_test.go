package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL, zerolog.Nop())
}

func TestSearchDecodesTracks(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.EscapedPath(); got != "/api/search/qq/hello%20world" {
			t.Errorf("path = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"m-1","name":"Hello","platform":"qq"}]`))
	}))

	tracks, err := client.Search(context.Background(), "qq", "hello world")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(tracks) != 1 || tracks[0].ID != "m-1" {
		t.Fatalf("tracks = %+v", tracks)
	}
}

func TestLyricAcceptsJSONStringAndPlainText(t *testing.T) {
	jsonClient := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`"la la la"`))
	}))
	text, err := jsonClient.Lyric(context.Background(), "qq", "m-1")
	if err != nil {
		t.Fatalf("Lyric: %v", err)
	}
	if text != "la la la" {
		t.Fatalf("lyric = %q", text)
	}

	plainClient := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("[00:01.00]first line"))
	}))
	text, err = plainClient.Lyric(context.Background(), "qq", "m-1")
	if err != nil {
		t.Fatalf("Lyric plain: %v", err)
	}
	if text != "[00:01.00]first line" {
		t.Fatalf("lyric = %q", text)
	}
}

func TestAuthVerifyRejectionIsNotAnError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	ok, err := client.AuthVerify(context.Background(), "wrong")
	if err != nil {
		t.Fatalf("AuthVerify: %v", err)
	}
	if ok {
		t.Fatalf("rejected password reported ok")
	}
}

func TestAuthVerifyAccepts(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %q", r.Method)
		}
		w.WriteHeader(http.StatusOK)
	}))
	ok, err := client.AuthVerify(context.Background(), "right")
	if err != nil || !ok {
		t.Fatalf("AuthVerify = %v, %v", ok, err)
	}
}

func TestErrorEnvelopeSurfaced(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"keyword required"}`))
	}))
	_, err := client.Search(context.Background(), "qq", "x")
	if err == nil {
		t.Fatalf("expected error")
	}
	if got := err.Error(); got != "api: server returned 400: keyword required" {
		t.Fatalf("error = %q", got)
	}
}

func TestAdminCommandReadsResultKey(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"result":"room reset"}`))
	}))
	reply, err := client.AdminCommand(context.Background(), "admin", "reset")
	if err != nil {
		t.Fatalf("AdminCommand: %v", err)
	}
	if reply != "room reset" {
		t.Fatalf("reply = %q", reply)
	}
}

func TestRoomStatus(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"initialized":true,"hasPassword":true}`))
	}))
	status, err := client.AuthStatus(context.Background())
	if err != nil {
		t.Fatalf("AuthStatus: %v", err)
	}
	if !status.Initialized || !status.HasPassword {
		t.Fatalf("status = %+v", status)
	}
}
