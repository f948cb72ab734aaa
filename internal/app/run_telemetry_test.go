package app

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/jarvis/internal/collab/telemetry"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type staticSampler telemetry.Snapshot

func (s staticSampler) Sample(context.Context) telemetry.Snapshot { return telemetry.Snapshot(s) }

func TestLogTelemetry_InfoLevel(t *testing.T) {
	t.Parallel()

	var out lockedBuffer
	log := slog.New(slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelInfo}))
	snap := telemetry.Snapshot{CPUPercent: 12.3, CPUFreqMHz: 2400, RAMPercent: 45.6}

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		defer close(done)
		logTelemetry(ctx, log, staticSampler(snap), 5*time.Millisecond)
	}()

	want := telemetry.Format(snap)
	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(out.String(), want) {
		if time.Now().After(deadline) {
			t.Fatalf("no info line with %q in:\n%s", want, out.String())
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if !strings.Contains(out.String(), "level=INFO") {
		t.Errorf("telemetry not logged at info:\n%s", out.String())
	}
}
