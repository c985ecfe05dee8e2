package feed

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/model"
)

// ReplayConfig controls bar playback from a recorded file.
type ReplayConfig struct {
	Path string
	// Pace inserts a fixed delay between bars; zero replays as fast
	// as the consumer drains.
	Pace time.Duration
}

// Replay reads bars from a JSONL file, one bar object per line, and
// plays them back in file order.
type Replay struct {
	cfg    ReplayConfig
	ch     chan model.Bar
	cancel context.CancelFunc
}

// NewReplay opens the bar file and starts playback.
func NewReplay(ctx context.Context, cfg ReplayConfig) (*Replay, error) {
	file, err := os.Open(cfg.Path)
	if err != nil {
		return nil, errors.Wrap(err, "open replay file")
	}

	ctx, cancel := context.WithCancel(ctx)
	r := &Replay{
		cfg:    cfg,
		ch:     make(chan model.Bar),
		cancel: cancel,
	}
	go r.run(ctx, file)
	return r, nil
}

// Candles returns the playback channel. It is closed at end of file.
func (r *Replay) Candles() <-chan model.Bar {
	return r.ch
}

// Close stops playback.
func (r *Replay) Close() error {
	r.cancel()
	return nil
}

func (r *Replay) run(ctx context.Context, file *os.File) {
	defer close(r.ch)
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var bar model.Bar
		if err := json.Unmarshal(raw, &bar); err != nil {
			logs.Errorf("replay: bad bar at line %d, err: %+v", line, err)
			continue
		}

		select {
		case r.ch <- bar:
		case <-ctx.Done():
			return
		}

		if r.cfg.Pace > 0 {
			select {
			case <-time.After(r.cfg.Pace):
			case <-ctx.Done():
				return
			}
		}
	}
	if err := scanner.Err(); err != nil {
		logs.Errorf("replay: scan failed, err: %+v", err)
	}
}
