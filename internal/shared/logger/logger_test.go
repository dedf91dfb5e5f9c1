package logger

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newBufferLogger(minSource slog.Level) (Interface, *bytes.Buffer) {
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return FromSlog(slog.New(withSource(h, minSource))), &buf
}

func TestSourceHandler_Threshold(t *testing.T) {
	tests := []struct {
		name       string
		minSource  slog.Level
		log        func(Interface)
		wantSource bool
	}{
		{"info below threshold", slog.LevelWarn, func(l Interface) { l.Infow("m") }, false},
		{"warn at threshold", slog.LevelWarn, func(l Interface) { l.Warnw("m") }, true},
		{"error above threshold", slog.LevelWarn, func(l Interface) { l.Errorw("m") }, true},
		{"verbose debug", slog.LevelDebug, func(l Interface) { l.Debug("m") }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, buf := newBufferLogger(tt.minSource)
			tt.log(l)
			assert.Equal(t, tt.wantSource, bytes.Contains(buf.Bytes(), []byte("source=")), buf.String())
		})
	}
}

func TestSourceHandler_PointsAtCaller(t *testing.T) {
	l, buf := newBufferLogger(slog.LevelWarn)
	l.Named("ledger").With("feature", "api-calls").Warnw("limit reached", "used", 10)

	out := buf.String()
	assert.Contains(t, out, "logger_test.go")
	assert.NotContains(t, out, "interface.go")
	assert.Contains(t, out, "logger=ledger")
	assert.Contains(t, out, "feature=api-calls")
	assert.Contains(t, out, "used=10")
}

func TestSourceHandler_KeepsGroupsAndLevel(t *testing.T) {
	var buf bytes.Buffer
	h := withSource(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}), slog.LevelError)

	assert.False(t, h.Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, h.Enabled(context.Background(), slog.LevelInfo))

	slog.New(h).WithGroup("request").Info("handled", "path", "/api/v1/plans")
	assert.Contains(t, buf.String(), "request.path=/api/v1/plans")
	assert.NotContains(t, buf.String(), "source=")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestNewNop_Discards(t *testing.T) {
	assert.NotPanics(t, func() {
		NewNop().Named("x").With("k", "v").Errorw("dropped", "error", assert.AnError)
	})
	assert.Panics(t, func() { NewNop().Fatalw("boom") })
}
