package ops

import (
	"context"
	"os"
	"time"

	"github.com/yanun0323/logs"
)

// Watch polls the config file and invokes update with the freshly
// resolved config whenever its modification time changes. Load errors
// keep the previous config in effect.
func Watch(ctx context.Context, path string, interval time.Duration, update func(Loaded)) {
	if interval <= 0 {
		return
	}

	var lastMod time.Time
	if info, err := os.Stat(path); err == nil {
		lastMod = info.ModTime()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := os.Stat(path)
			if err != nil {
				logs.Errorf("stat config %s, err: %+v", path, err)
				continue
			}
			if !info.ModTime().After(lastMod) {
				continue
			}
			lastMod = info.ModTime()

			loaded, err := Load(path)
			if err != nil {
				logs.Errorf("reload config %s, err: %+v", path, err)
				continue
			}
			logs.Infof("config reloaded from %s", path)
			update(loaded)
		}
	}
}
