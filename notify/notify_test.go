package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/tradeserver/logger"
)

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(logger.NewZerologLogger(&buf, "svc", zerolog.DebugLevel))

	n.InformalEvent("listening")
	n.UnexpectedEvent("reclaimed", nil)
	n.UnrecoverableError("bind failed", errors.New("address in use"))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 3)

	levels := make([]string, 0, len(lines))
	for _, line := range lines {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(line, &entry))
		levels = append(levels, entry["level"].(string))
	}

	assert.Equal(t, []string{"info", "warn", "error"}, levels)
	assert.Contains(t, string(lines[2]), "address in use")
}

func TestCombining(t *testing.T) {
	a, b := &Memory{}, &Memory{}
	c := Combining{a, b}

	c.InformalEvent("one")
	c.UnexpectedEvent("two", assert.AnError)
	c.UnrecoverableError("three", assert.AnError)

	for _, m := range []*Memory{a, b} {
		events := m.Events()
		require.Len(t, events, 3)
		assert.Equal(t, Informal, events[0].Level)
		assert.Equal(t, Unexpected, events[1].Level)
		assert.Equal(t, assert.AnError.Error(), events[1].Cause)
		assert.Equal(t, Unrecoverable, events[2].Level)
	}
}

func TestMemory_Filter(t *testing.T) {
	m := &Memory{}
	m.InformalEvent("a")
	m.UnexpectedEvent("b", nil)
	m.UnexpectedEvent("c", nil)

	got := m.Filter(Unexpected)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].Message)
	assert.Empty(t, got[0].Cause)
}

func TestLevel_String(t *testing.T) {
	assert.Equal(t, "informal", Informal.String())
	assert.Equal(t, "unexpected", Unexpected.String())
	assert.Equal(t, "unrecoverable", Unrecoverable.String())
	assert.Equal(t, "unknown", Level(9).String())
}

func TestDiscordNotifier_Send(t *testing.T) {
	received := make(chan map[string]string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload map[string]string
		_ = json.Unmarshal(body, &payload)
		received <- payload
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscordNotifier(srv.URL, logger.Nop())

	t.Run("posts json content", func(t *testing.T) {
		err := d.Send(context.Background(), newEvent(Unexpected, `volume "30" reclaimed`, assert.AnError))
		require.NoError(t, err)

		payload := <-received
		assert.Contains(t, payload["content"], `[unexpected] volume "30" reclaimed`)
		assert.Contains(t, payload["content"], assert.AnError.Error())
	})

	t.Run("informal events are filtered", func(t *testing.T) {
		d.InformalEvent("client connected")
		select {
		case <-received:
			t.Fatal("informal event must not be posted")
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("delivered before returning", func(t *testing.T) {
		d.UnrecoverableError("bind failed", nil)
		select {
		case payload := <-received:
			assert.Contains(t, payload["content"], "bind failed")
		default:
			t.Fatal("event was not delivered")
		}
	})
}

func TestDiscordNotifier_Send_RejectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	d := NewDiscordNotifier(srv.URL, logger.Nop())
	err := d.Send(context.Background(), newEvent(Unrecoverable, "x", nil))
	assert.ErrorContains(t, err, "400")
}

func TestRedisNotifier_UnreachableServer(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	n := NewRedisNotifier(client, "", logger.Nop())
	defer func() { _ = n.Close() }()

	assert.Equal(t, DefaultRedisChannel, n.channel)

	err := n.Publish(context.Background(), newEvent(Unexpected, "x", nil))
	assert.ErrorContains(t, err, DefaultRedisChannel)

	assert.NotPanics(t, func() { n.UnexpectedEvent("x", nil) })
}

func TestEvent_Encode(t *testing.T) {
	e := newEvent(Unrecoverable, "bind failed", errors.New("in use"))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(e.encode(), &decoded))
	assert.Equal(t, "unrecoverable", decoded["level"])
	assert.Equal(t, "bind failed", decoded["message"])
	assert.Equal(t, "in use", decoded["cause"])
}
