package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	return NewDispatcher(zap.NewNop().Sugar())
}

func TestRegisterAssignsIDAndDefaults(t *testing.T) {
	d := newTestDispatcher(t)
	wh, err := d.Register("https://example.com/hook", []string{EventOpen}, "s3cr3t")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !strings.HasPrefix(wh.ID, "wh_") {
		t.Errorf("id = %q, want wh_ prefix", wh.ID)
	}
	if !wh.Active {
		t.Error("expected a newly registered webhook to be active")
	}
}

func TestUnregisterRemovesWebhook(t *testing.T) {
	d := newTestDispatcher(t)
	wh, _ := d.Register("https://example.com/hook", []string{EventOpen}, "")

	if err := d.Unregister(wh.ID); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	if err := d.Unregister(wh.ID); err != ErrWebhookNotFound {
		t.Fatalf("err = %v, want ErrWebhookNotFound", err)
	}
}

func TestListMasksSecret(t *testing.T) {
	d := newTestDispatcher(t)
	d.Register("https://example.com/hook", []string{EventOpen}, "s3cr3t")

	list := d.List()
	if len(list) != 1 {
		t.Fatalf("len(list) = %d, want 1", len(list))
	}
	if list[0].Secret != "***" {
		t.Errorf("secret = %q, want masked", list[0].Secret)
	}
}

func TestGenerateSignatureMatchesIndependentHMAC(t *testing.T) {
	d := newTestDispatcher(t)
	event := Event{Type: EventOpen, Data: map[string]string{"sessionId": "abc"}}

	got := d.generateSignature(event, "s3cr3t")

	payload, _ := json.Marshal(event.Data)
	mac := hmac.New(sha256.New, []byte("s3cr3t"))
	mac.Write(payload)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	if got != want {
		t.Errorf("signature = %q, want %q", got, want)
	}
}

func TestDispatchDeliversOnlyToMatchingActiveWebhooks(t *testing.T) {
	d := newTestDispatcher(t)

	received := make(chan *http.Request, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := make([]byte, r.ContentLength)
		r.Body.Read(body)
		received <- r
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	matching, _ := d.Register(srv.URL, []string{EventOpen}, "s3cr3t")
	d.Register(srv.URL, []string{EventAck}, "")

	d.Dispatch(EventOpen, map[string]string{"sessionId": "s1"})

	select {
	case r := <-received:
		if r.Header.Get("X-Webhook-ID") != matching.ID {
			t.Errorf("X-Webhook-ID = %q, want %q", r.Header.Get("X-Webhook-ID"), matching.ID)
		}
		if r.Header.Get("X-Webhook-Event") != EventOpen {
			t.Errorf("X-Webhook-Event = %q, want %q", r.Header.Get("X-Webhook-Event"), EventOpen)
		}
		if r.Header.Get("X-Webhook-Signature") == "" {
			t.Error("expected a signature header since the matching webhook has a secret")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("matching webhook was never invoked")
	}

	select {
	case <-received:
		t.Fatal("non-matching webhook must not receive the event")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestDispatchSkipsInactiveWebhooks(t *testing.T) {
	d := newTestDispatcher(t)

	received := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- struct{}{}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wh, _ := d.Register(srv.URL, []string{EventOpen}, "")
	d.mu.Lock()
	d.webhooks[wh.ID].Active = false
	d.mu.Unlock()

	d.Dispatch(EventOpen, map[string]string{"sessionId": "s1"})

	select {
	case <-received:
		t.Fatal("inactive webhook must not receive the event")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestDispatchMatchesWildcardSubscription(t *testing.T) {
	d := newTestDispatcher(t)

	received := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- struct{}{}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d.Register(srv.URL, []string{"*"}, "")
	d.Dispatch(EventInbox, map[string]string{"sessionId": "s1"})

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("wildcard subscription did not receive the event")
	}
}
