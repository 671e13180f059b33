package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/brightclass/api/internal/config"
	"github.com/brightclass/api/internal/model"
)

func TestSubmitParsesAck(t *testing.T) {
	var gotAuth string
	var gotEnv model.DispatchEnvelope
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/ingress" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotEnv); err != nil {
			t.Errorf("decode envelope: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"request_id":"wf-7","status":"accepted"}`))
	}))
	defer srv.Close()

	c := NewEngineClient(&config.EngineConfig{BaseURL: srv.URL, APIKey: "secret", TimeoutSeconds: 5})
	ack, err := c.Submit(context.Background(), &model.DispatchEnvelope{
		GroupKey:    "t1",
		Payload:     json.RawMessage(`{"text":"hi"}`),
		RoleHint:    model.RoleUser,
		ClientMsgID: "k1",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if ack.RequestID != "wf-7" {
		t.Fatalf("ack not parsed: %+v", ack)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("missing auth header: %q", gotAuth)
	}
	if gotEnv.GroupKey != "t1" || gotEnv.ClientMsgID != "k1" {
		t.Fatalf("bad envelope on the wire: %+v", gotEnv)
	}
}

func TestSubmitNonJSONAcceptIsStillSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte("queued"))
	}))
	defer srv.Close()

	c := NewEngineClient(&config.EngineConfig{BaseURL: srv.URL, TimeoutSeconds: 5})
	ack, err := c.Submit(context.Background(), &model.DispatchEnvelope{GroupKey: "t1", ClientMsgID: "k1"})
	if err != nil {
		t.Fatalf("2xx with opaque body must succeed: %v", err)
	}
	if ack.RequestID != "" {
		t.Fatalf("unexpected ack: %+v", ack)
	}
}

func TestSubmitNon2xxIsTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "engine overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewEngineClient(&config.EngineConfig{BaseURL: srv.URL, TimeoutSeconds: 5})
	if _, err := c.Submit(context.Background(), &model.DispatchEnvelope{GroupKey: "t1", ClientMsgID: "k1"}); err == nil {
		t.Fatal("expected error on 503")
	}
}

func TestSubmitConnectionRefused(t *testing.T) {
	c := NewEngineClient(&config.EngineConfig{BaseURL: "http://127.0.0.1:1", TimeoutSeconds: 1})
	if _, err := c.Submit(context.Background(), &model.DispatchEnvelope{GroupKey: "t1", ClientMsgID: "k1"}); err == nil {
		t.Fatal("expected error on refused connection")
	}
}
