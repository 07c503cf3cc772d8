package jobs

import (
	"context"
	"log"
	"os"
	"time"

	"schoolledger/internal/config"
	"schoolledger/internal/store"
)

// StartSnapshotJob periodically writes an unaudited snapshot of the whole
// dataset to disk so a crash loses at most one interval of mutations.
func StartSnapshotJob(ctx context.Context, cfg config.Config, st *store.Store) {
	if cfg.SnapshotPath == "" {
		return
	}
	interval := cfg.SnapshotInterval
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				writeSnapshot(cfg.SnapshotPath, st)
				return
			case <-ticker.C:
				writeSnapshot(cfg.SnapshotPath, st)
			}
		}
	}()
}

func writeSnapshot(path string, st *store.Store) {
	blob, err := st.SnapshotJSON()
	if err != nil {
		log.Printf("snapshot job error: %v", err)
		return
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(blob), 0o600); err != nil {
		log.Printf("snapshot write error: %v", err)
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		log.Printf("snapshot rename error: %v", err)
	}
}
