package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel(" WARNING "))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("chatty"))
}

func TestNew_JSONWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{
		Level:  slog.LevelInfo,
		Format: FormatJSON,
		Output: &buf,
		Attrs:  []slog.Attr{slog.String("service", "pointsledger")},
	})

	log.Info("penalty applied", StudentID("stu-1"), Points(50), Err(nil))
	log.Debug("hidden")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "penalty applied", record["msg"])
	assert.Equal(t, "pointsledger", record["service"])
	assert.Equal(t, "stu-1", record["student_id"])
	assert.Equal(t, float64(50), record["points"])
	assert.NotContains(t, record, "error")
}

func TestNew_TextIsDefault(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf})

	log.Warn("cache miss", Err(errors.New("redis: nil")))

	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), `error="redis: nil"`)
}

func TestContextRoundTrip(t *testing.T) {
	log := Discard()
	ctx := WithContext(context.Background(), log)

	assert.Same(t, log, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}
