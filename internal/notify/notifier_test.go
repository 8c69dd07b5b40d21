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

type memSender struct {
	name   string
	events []string
	err    error
}

func (s *memSender) Send(ctx context.Context, event, title, message string) error {
	s.events = append(s.events, event)
	return s.err
}

func (s *memSender) Name() string { return s.name }

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNotifyFiltersByEvent(t *testing.T) {
	t.Parallel()

	s := &memSender{name: "mem"}
	n := NewNotifier([]Sender{s}, []string{EventPositionClosed, EventError}, testLogger())

	require.NoError(t, n.Notify(context.Background(), EventPositionClosed, "t", "m"))
	require.NoError(t, n.Notify(context.Background(), EventRunSummary, "t", "m"))
	require.NoError(t, n.Notify(context.Background(), EventError, "t", "m"))

	assert.Equal(t, []string{EventPositionClosed, EventError}, s.events)
}

func TestNotifyEmptyEventListAllowsAll(t *testing.T) {
	t.Parallel()

	s := &memSender{name: "mem"}
	n := NewNotifier([]Sender{s}, nil, testLogger())

	require.NoError(t, n.Notify(context.Background(), EventQuoterHalted, "t", "m"))
	assert.Equal(t, []string{EventQuoterHalted}, s.events)
}

func TestDispatchCollectsSenderErrors(t *testing.T) {
	t.Parallel()

	bad := &memSender{name: "bad", err: errors.New("boom")}
	good := &memSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, testLogger())

	err := n.Notify(context.Background(), EventError, "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: boom")
	// The failing sender did not block the healthy one.
	assert.Len(t, good.events, 1)
}

func TestTelegramSendShapesMessage(t *testing.T) {
	t.Parallel()

	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/bottok-123/sendMessage")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(srv.Close)

	s := NewTelegramSender("tok-123", "chat-9")
	s.apiBase = srv.URL

	require.NoError(t, s.Send(context.Background(), EventPositionClosed, "Position closed", "MKT-A YES ×15"))
	assert.Equal(t, "chat-9", got["chat_id"])
	assert.Equal(t, "Markdown", got["parse_mode"])
	assert.Equal(t, "📉 *Position closed*\nMKT-A YES ×15", got["text"])
}

func TestDiscordSendBuildsEmbed(t *testing.T) {
	t.Parallel()

	var got struct {
		Embeds []discordEmbed `json:"embeds"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	s := NewDiscordSender(srv.URL)
	require.NoError(t, s.Send(context.Background(), EventQuoterHalted, "Market halted: MKT-A", "skew 0.75"))

	require.Len(t, got.Embeds, 1)
	assert.Equal(t, "⛔ Market halted: MKT-A", got.Embeds[0].Title)
	assert.Equal(t, "skew 0.75", got.Embeds[0].Description)
	assert.Equal(t, colorOrange, got.Embeds[0].Color)
}

func TestDiscordSendErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid webhook"}`, http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	err := NewDiscordSender(srv.URL).Send(context.Background(), EventError, "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
