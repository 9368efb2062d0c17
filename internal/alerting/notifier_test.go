package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestSlackNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	notifier := NewSlackNotifier(time.Second, testLogger())
	if err := notifier.Notify(context.Background(), srv.URL, Message{Text: "hello"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if received["text"] != "hello" {
		t.Fatalf("payload = %#v", received)
	}
}

func TestSlackNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	notifier := NewSlackNotifier(time.Second, testLogger())
	if err := notifier.Notify(context.Background(), srv.URL, Message{Text: "hello"}); err == nil {
		t.Fatal("a 404 from the webhook must fail")
	}
	if err := notifier.Notify(context.Background(), " ", Message{Text: "hello"}); !errors.Is(err, ErrNoDestination) {
		t.Fatalf("expected ErrNoDestination, got %v", err)
	}
}

func TestEmailNotifierBuildsMessage(t *testing.T) {
	notifier := NewEmailNotifier(SMTPOptions{Host: "smtp.test", User: "bot@board.test", Password: "secret"}, testLogger())

	var (
		gotFrom, gotTo string
		gotBody        []byte
	)
	notifier.send = func(_ context.Context, from, to string, body []byte) error {
		gotFrom, gotTo, gotBody = from, to, body
		return nil
	}

	msg := Message{Subject: "[BroadcastBoard] 밀폐용기", Text: "곧 시작하는 방송"}
	if err := notifier.Notify(context.Background(), "user@board.test", msg); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if gotFrom != "bot@board.test" || gotTo != "user@board.test" {
		t.Fatalf("envelope from=%q to=%q", gotFrom, gotTo)
	}
	body := string(gotBody)
	for _, want := range []string{
		`From: "BroadcastBoard" <bot@board.test>`,
		"To: <user@board.test>",
		"Subject: =?utf-8?q?",
		"Content-Type: text/plain; charset=utf-8",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("message misses %q:\n%s", want, body)
		}
	}
}

func TestEmailNotifierRequiresConfiguration(t *testing.T) {
	notifier := NewEmailNotifier(SMTPOptions{}, testLogger())
	if err := notifier.Notify(context.Background(), "user@board.test", Message{}); !errors.Is(err, ErrSMTPNotConfigured) {
		t.Fatalf("expected ErrSMTPNotConfigured, got %v", err)
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
