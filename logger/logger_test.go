package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZerologLogger_WritesFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewZerologLogger(&buf, "tradeserver", zerolog.DebugLevel)

	l.With(F("session", 7)).Warn("forced reclaim", F("volume", "0.3 LOT"), Err(errors.New("boom")))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "tradeserver", entry["service"])
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "forced reclaim", entry["message"])
	assert.EqualValues(t, 7, entry["session"])
	assert.Equal(t, "0.3 LOT", entry["volume"])
	assert.Equal(t, "boom", entry["error"])
}

func TestZerologLogger_FiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewZerologLogger(&buf, "svc", zerolog.InfoLevel)

	l.Debug("hidden")
	assert.Zero(t, buf.Len())

	l.Info("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zerolog.Level
		wantErr bool
	}{
		{in: "", want: zerolog.InfoLevel},
		{in: "debug", want: zerolog.DebugLevel},
		{in: " WARN ", want: zerolog.WarnLevel},
		{in: "loud", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Info("nothing")
	assert.NoError(t, l.Close())
}

func TestDailyFileWriter(t *testing.T) {
	dir := t.TempDir()
	w, err := NewDailyFileWriter("svc", dir)
	require.NoError(t, err)

	day := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return day }

	t.Run("writes to the file of the current day", func(t *testing.T) {
		_, err := w.Write([]byte("first\n"))
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "svc_2026-03-01.log"), w.CurrentLogFile())
	})

	t.Run("switches file when the day changes", func(t *testing.T) {
		day = day.Add(24 * time.Hour)
		_, err := w.Write([]byte("second\n"))
		require.NoError(t, err)

		content, err := os.ReadFile(filepath.Join(dir, "svc_2026-03-02.log"))
		require.NoError(t, err)
		assert.Equal(t, "second\n", string(content))
	})

	t.Run("close is idempotent and blocks writes", func(t *testing.T) {
		require.NoError(t, w.Close())
		require.NoError(t, w.Close())
		_, err := w.Write([]byte("late"))
		assert.ErrorIs(t, err, errWriterClosed)
		assert.Empty(t, w.CurrentLogFile())
	})
}
