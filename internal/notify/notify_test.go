package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	name   string
	err    error
	titles []string
}

func (s *fakeSender) Send(_ context.Context, title, _ string) error {
	if s.err != nil {
		return s.err
	}
	s.titles = append(s.titles, title)
	return nil
}

func (s *fakeSender) Name() string { return s.name }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifierFiltersEvents(t *testing.T) {
	sender := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{sender}, []string{EventArbExecuted}, testLogger())

	require.NoError(t, n.Notify(context.Background(), EventPositionSettled, "settled", "body"))
	assert.Empty(t, sender.titles, "filtered event must not reach senders")

	require.NoError(t, n.Notify(context.Background(), EventArbExecuted, "executed", "body"))
	assert.Equal(t, []string{"executed"}, sender.titles)
}

func TestNotifierEmptyFilterAllowsAll(t *testing.T) {
	sender := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{sender}, nil, testLogger())

	require.NoError(t, n.Notify(context.Background(), "anything", "title", "body"))
	assert.Equal(t, []string{"title"}, sender.titles)
}

func TestNotifyAllBypassesFilter(t *testing.T) {
	sender := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{sender}, []string{EventArbExecuted}, testLogger())

	require.NoError(t, n.NotifyAll(context.Background(), "startup", "body"))
	assert.Equal(t, []string{"startup"}, sender.titles)
}

func TestDispatchContinuesAfterSenderFailure(t *testing.T) {
	broken := &fakeSender{name: "broken", err: errors.New("boom")}
	working := &fakeSender{name: "working"}
	n := NewNotifier([]Sender{broken, working}, nil, testLogger())

	err := n.NotifyAll(context.Background(), "title", "body")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.Equal(t, []string{"title"}, working.titles, "remaining senders still deliver")
}

func TestTelegramSenderPostsMessage(t *testing.T) {
	var gotPath string
	var payload map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := NewTelegramSender("tok123", "chat42")
	sender.SetBaseURL(srv.URL)

	require.NoError(t, sender.Send(context.Background(), "Arb executed", "net +0.03"))

	assert.Equal(t, "/bottok123/sendMessage", gotPath)
	assert.Equal(t, "chat42", payload["chat_id"])
	assert.Equal(t, "*Arb executed*\nnet +0.03", payload["text"])
	assert.Equal(t, "Markdown", payload["parse_mode"])
}

func TestTelegramSenderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad token", http.StatusUnauthorized)
	}))
	defer srv.Close()

	sender := NewTelegramSender("tok", "chat")
	sender.SetBaseURL(srv.URL)

	err := sender.Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 401")
}

func TestDiscordSenderPostsWebhook(t *testing.T) {
	var payload map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sender := NewDiscordSender(srv.URL)
	require.NoError(t, sender.Send(context.Background(), "Position settled", "profit 42.50"))

	assert.Equal(t, "**Position settled**\nprofit 42.50", payload["content"])
}

func TestDiscordSenderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no such webhook", http.StatusNotFound)
	}))
	defer srv.Close()

	sender := NewDiscordSender(srv.URL)
	err := sender.Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 404")
}
