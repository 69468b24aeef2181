// internal/handlers/api_test.go
package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/rokuhara/jinrou/internal/auth"
	"github.com/rokuhara/jinrou/internal/engine"
)

func newTestAPI() *APIServer {
	auth.Init() // ephemeral keys, no DB needed
	logger := logrus.New()
	eng := engine.New(engine.NewMemoryRoomStore(), engine.NewMemoryPlayerStore(), nil, engine.DefaultTimings())
	return NewAPIServer(eng, logger)
}

func sessionCookie(t *testing.T, srv *APIServer, platformID string) string {
	t.Helper()
	body := `{"platformId":"` + platformID + `"}`
	req := httptest.NewRequest("POST", "/session", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	srv.SessionHandler(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK from /session, got %d: %s", w.Code, w.Body.String())
	}
	for _, c := range w.Result().Cookies() {
		if c.Name == "auth_token" {
			return "auth_token=" + c.Value
		}
	}
	t.Fatalf("no auth_token cookie set")
	return ""
}

// TestRegisterFlow checks that a session cookie authenticates the register verb.
func TestRegisterFlow(t *testing.T) {
	srv := newTestAPI()
	cookie := sessionCookie(t, srv, "discord:42")

	req := httptest.NewRequest("POST", "/register", nil)
	req.Header.Set("Cookie", cookie)
	w := httptest.NewRecorder()
	srv.RegisterHandler(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d: %s", w.Code, w.Body.String())
	}
	var out engine.Outcome
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode outcome: %v", err)
	}
	if out.Rejected {
		t.Fatalf("registration rejected: %s", out.Message)
	}

	// A repeat registration surfaces as a 409 with the rejection reason.
	w = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/register", nil)
	req.Header.Set("Cookie", cookie)
	srv.RegisterHandler(w, req)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate registration, got %d", w.Code)
	}
}

// TestUnauthenticatedRequestsRejected checks the cookie gate on mutating endpoints.
func TestUnauthenticatedRequestsRejected(t *testing.T) {
	srv := newTestAPI()

	req := httptest.NewRequest("POST", "/room/create", bytes.NewBufferString(`{}`))
	w := httptest.NewRecorder()
	srv.CreateRoomHandler(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a session, got %d", w.Code)
	}

	req = httptest.NewRequest("POST", "/room/create", bytes.NewBufferString(`{}`))
	req.Header.Set("Cookie", "auth_token=forged")
	w = httptest.NewRecorder()
	srv.CreateRoomHandler(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 with a forged token, got %d", w.Code)
	}
}

// TestRoomLifecycleOverHTTP drives create, join and config through the handlers.
func TestRoomLifecycleOverHTTP(t *testing.T) {
	srv := newTestAPI()
	owner := sessionCookie(t, srv, "discord:owner")
	guest := sessionCookie(t, srv, "discord:guest")

	post := func(cookie, path, body string, handler http.HandlerFunc) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", path, bytes.NewBufferString(body))
		req.Header.Set("Cookie", cookie)
		w := httptest.NewRecorder()
		handler(w, req)
		return w
	}

	for _, cookie := range []string{owner, guest} {
		if w := post(cookie, "/register", "", srv.RegisterHandler); w.Code != http.StatusOK {
			t.Fatalf("register failed: %d %s", w.Code, w.Body.String())
		}
	}

	w := post(owner, "/room/create", `{"topRef":"msg-1"}`, srv.CreateRoomHandler)
	if w.Code != http.StatusOK {
		t.Fatalf("room create failed: %d %s", w.Code, w.Body.String())
	}
	var out engine.Outcome
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode outcome: %v", err)
	}
	if out.RoomID == "" {
		t.Fatalf("no room id in outcome: %+v", out)
	}

	w = post(guest, "/room/join", `{"roomId":"`+out.RoomID+`"}`, srv.JoinRoomHandler)
	if w.Code != http.StatusOK {
		t.Fatalf("room join failed: %d %s", w.Code, w.Body.String())
	}

	w = post(guest, "/room/config", `{"werewolf":1}`, srv.ConfigHandler)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for non-owner config change, got %d", w.Code)
	}
	w = post(owner, "/room/config", `{"werewolf":1,"maxPlayers":8}`, srv.ConfigHandler)
	if w.Code != http.StatusOK {
		t.Fatalf("config change failed: %d %s", w.Code, w.Body.String())
	}

	// Too few players to start.
	w = post(owner, "/room/start", "", srv.StartHandler)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 starting with 2 players, got %d", w.Code)
	}
}
