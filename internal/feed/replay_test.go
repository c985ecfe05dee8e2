package feed

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeBars(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bars.jsonl")
	content := ""
	for _, line := range lines {
		content += line + "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write bar file: %v", err)
	}
	return path
}

func TestReplayPlaysBarsInFileOrder(t *testing.T) {
	path := writeBars(t,
		`{"symbol":"BTCUSDT","ts":1000,"open":"100","high":"101","low":"99","close":"100.5","volume":"3"}`,
		`{"symbol":"BTCUSDT","ts":2000,"open":"100.5","high":"102","low":"100","close":"101","volume":"4"}`,
		`{"symbol":"BTCUSDT","ts":3000,"open":"101","high":"101","low":"101","close":"101","volume":"0","zeroVolume":true}`,
	)

	r, err := NewReplay(context.Background(), ReplayConfig{Path: path})
	if err != nil {
		t.Fatalf("new replay: %v", err)
	}
	defer func() { _ = r.Close() }()

	var ts []int64
	for bar := range r.Candles() {
		ts = append(ts, bar.Ts)
		if bar.Ts == 3000 && !bar.ZeroVolume {
			t.Fatal("zero-volume flag lost in playback")
		}
		if bar.Ts == 1000 && bar.Close.String() != "100.5" {
			t.Fatalf("close: got %s want 100.5", bar.Close)
		}
	}
	if len(ts) != 3 || ts[0] != 1000 || ts[1] != 2000 || ts[2] != 3000 {
		t.Fatalf("bars out of order: %v", ts)
	}
}

func TestReplaySkipsMalformedLines(t *testing.T) {
	path := writeBars(t,
		`{"symbol":"BTCUSDT","ts":1000,"close":"100","volume":"1"}`,
		`not json at all`,
		``,
		`{"symbol":"BTCUSDT","ts":2000,"close":"101","volume":"1"}`,
	)

	r, err := NewReplay(context.Background(), ReplayConfig{Path: path})
	if err != nil {
		t.Fatalf("new replay: %v", err)
	}
	defer func() { _ = r.Close() }()

	count := 0
	for range r.Candles() {
		count++
	}
	if count != 2 {
		t.Fatalf("bars: got %d want 2 (bad lines skipped)", count)
	}
}

func TestReplayMissingFile(t *testing.T) {
	if _, err := NewReplay(context.Background(), ReplayConfig{Path: "/nonexistent/bars.jsonl"}); err == nil {
		t.Fatal("missing file should fail at open")
	}
}

func TestReplayCloseStopsPlayback(t *testing.T) {
	lines := make([]string, 0, 1000)
	for i := 0; i < 1000; i++ {
		lines = append(lines, `{"symbol":"BTCUSDT","ts":1000,"close":"100","volume":"1"}`)
	}
	path := writeBars(t, lines...)

	r, err := NewReplay(context.Background(), ReplayConfig{Path: path, Pace: time.Millisecond})
	if err != nil {
		t.Fatalf("new replay: %v", err)
	}

	<-r.Candles()
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// the channel closes instead of delivering the remaining bars
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-r.Candles():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("playback kept running after Close")
		}
	}
}
