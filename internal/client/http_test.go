package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alfredjeanlab/tutorsheets/internal/conversation"
)

// testHandler captures the incoming request and returns a canned response.
type testHandler struct {
	method  string
	path    string
	rawPath string
	body    string
	auth    string

	statusCode   int
	responseBody string
}

func (h *testHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.method = r.Method
	h.path = r.URL.Path
	h.rawPath = r.URL.RawPath
	h.auth = r.Header.Get("Authorization")
	data, _ := io.ReadAll(r.Body)
	h.body = string(data)

	w.Header().Set("Content-Type", "application/json")
	if h.statusCode != 0 {
		w.WriteHeader(h.statusCode)
	}
	_, _ = w.Write([]byte(h.responseBody))
}

func newTestClient(t *testing.T, h http.Handler, token string) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewHTTPClient(srv.URL+"/", token)
}

func TestSend(t *testing.T) {
	h := &testHandler{responseBody: `{"session_id":"ses-abc","flow":"register","state":"collecting","field":"name","text":"What is your name?"}`}
	c := newTestClient(t, h, "secret")

	reply, err := c.Send(context.Background(), "1001", "/register")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if h.method != http.MethodPost || h.path != "/v1/conversations/1001/messages" {
		t.Errorf("request = %s %s", h.method, h.path)
	}
	if h.body != `{"text":"/register"}` {
		t.Errorf("body = %s", h.body)
	}
	if h.auth != "Bearer secret" {
		t.Errorf("Authorization = %q", h.auth)
	}
	if reply.State != conversation.StateCollecting || reply.Field != "name" || reply.Done() {
		t.Errorf("reply = %+v", reply)
	}
}

func TestSend_EscapesIdentity(t *testing.T) {
	h := &testHandler{responseBody: `{"flow":"register","state":"terminal","text":"ok","outcome":"completed"}`}
	c := newTestClient(t, h, "")

	reply, err := c.Send(context.Background(), "chat/42", "hi")
	if err != nil {
		t.Fatal(err)
	}
	if h.rawPath != "/v1/conversations/chat%2F42/messages" {
		t.Errorf("raw path = %q", h.rawPath)
	}
	if h.auth != "" {
		t.Errorf("unexpected Authorization %q", h.auth)
	}
	if !reply.Done() || reply.Outcome != conversation.OutcomeCompleted {
		t.Errorf("reply = %+v", reply)
	}
}

func TestCancel(t *testing.T) {
	h := &testHandler{responseBody: `{"flow":"add_student","state":"terminal","text":"Cancelled.","outcome":"cancelled"}`}
	c := newTestClient(t, h, "")

	reply, err := c.Cancel(context.Background(), "1001")
	if err != nil {
		t.Fatal(err)
	}
	if h.method != http.MethodDelete || h.path != "/v1/conversations/1001" {
		t.Errorf("request = %s %s", h.method, h.path)
	}
	if reply.Outcome != conversation.OutcomeCancelled {
		t.Errorf("reply = %+v", reply)
	}
}

func TestHealth(t *testing.T) {
	h := &testHandler{responseBody: `{"status":"ok"}`}
	c := newTestClient(t, h, "")
	status, err := c.Health(context.Background())
	if err != nil || status != "ok" {
		t.Errorf("Health = %q, %v", status, err)
	}
	if h.path != "/v1/health" {
		t.Errorf("path = %s", h.path)
	}
}

func TestErrors(t *testing.T) {
	for _, tc := range []struct {
		name      string
		status    int
		body      string
		wantMsg   string
		noSession bool
	}{
		{"json error", http.StatusBadRequest, `{"error":"text is required"}`, "text is required", false},
		{"plain error", http.StatusBadGateway, "upstream down\n", "upstream down", false},
		{"no session", http.StatusNotFound, `{"error":"no active conversation"}`, "no active conversation", true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, &testHandler{statusCode: tc.status, responseBody: tc.body}, "")
			_, err := c.Send(context.Background(), "1001", "hello")
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("error = %v, want *APIError", err)
			}
			if apiErr.StatusCode != tc.status || apiErr.Message != tc.wantMsg {
				t.Errorf("APIError = %+v", apiErr)
			}
			if got := errors.Is(err, ErrNoSession); got != tc.noSession {
				t.Errorf("errors.Is(ErrNoSession) = %v, want %v", got, tc.noSession)
			}
		})
	}
}

func TestDecodeError(t *testing.T) {
	c := newTestClient(t, &testHandler{responseBody: "not json"}, "")
	if _, err := c.Health(context.Background()); err == nil || !strings.Contains(err.Error(), "decoding response") {
		t.Errorf("error = %v", err)
	}
}

func TestUnreachable(t *testing.T) {
	c := NewHTTPClient("http://127.0.0.1:1", "")
	if _, err := c.Health(context.Background()); err == nil {
		t.Error("expected connection error")
	}
}
