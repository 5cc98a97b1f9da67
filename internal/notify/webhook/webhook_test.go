package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/headwind-sh/headwind/internal/model"
)

func TestSendSignedPayload(t *testing.T) {
	const secret = "topsecret"

	var (
		gotBody      []byte
		gotSignature string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSignature = r.Header.Get(SignatureHeader)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink := New(server.URL, secret, 2*time.Second, 0)
	event := model.NewUpdateEvent(
		model.EventUpdateCompleted,
		model.WorkloadRef{Kind: model.KindDeployment, Namespace: "default", Name: "web"},
		"app", "nginx:1.25.0", "nginx:1.26.0",
		model.SourceMetadata{},
	)
	event.Policy = "minor"
	event.UpdateRequestName = "web-1717243200"

	if err := sink.Send(context.Background(), event); err != nil {
		t.Fatalf("Send: %v", err)
	}

	// Signature round-trip: recomputing over the received raw body must
	// equal the header.
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(gotBody)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	if gotSignature != want {
		t.Errorf("signature = %q, want %q", gotSignature, want)
	}

	var decoded map[string]any
	if err := json.Unmarshal(gotBody, &decoded); err != nil {
		t.Fatalf("payload not valid JSON: %v", err)
	}
	if decoded["event"] != "update_completed" {
		t.Errorf("event = %v", decoded["event"])
	}
	deploy, ok := decoded["deployment"].(map[string]any)
	if !ok {
		t.Fatal("payload missing deployment object")
	}
	if deploy["name"] != "web" || deploy["namespace"] != "default" {
		t.Errorf("deployment identity wrong: %v", deploy)
	}
	if deploy["newImage"] != "nginx:1.26.0" {
		t.Errorf("newImage = %v", deploy["newImage"])
	}
}

func TestSendUnsignedWhenNoSecret(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(SignatureHeader) != "" {
			t.Error("unexpected signature header without secret")
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink := New(server.URL, "", 2*time.Second, 0)
	event := model.NewUpdateEvent(model.EventUpdateRequestCreated, model.WorkloadRef{Kind: model.KindDeployment, Namespace: "ns", Name: "n"}, "c", "a", "b", model.SourceMetadata{})
	if err := sink.Send(context.Background(), event); err != nil {
		t.Fatalf("Send: %v", err)
	}
}

func TestSendErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	sink := New(server.URL, "", 2*time.Second, 0)
	event := model.NewUpdateEvent(model.EventUpdateFailed, model.WorkloadRef{Kind: model.KindDeployment, Namespace: "ns", Name: "n"}, "c", "a", "b", model.SourceMetadata{})
	if err := sink.Send(context.Background(), event); err == nil {
		t.Error("expected error on 502 response")
	}
}
