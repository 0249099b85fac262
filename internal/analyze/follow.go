package analyze

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Follow tails a live performance log, evaluating each new record against
// the thresholds and warning on degraded ticks as they land. Returns when
// ctx is cancelled.
func Follow(ctx context.Context, path string, t Thresholds) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open performance log: %w", err)
	}
	defer f.Close()

	// Consume what is already there so follow mode only reports new ticks.
	offset, err := drain(f, 0, t, false)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	log.WithField("file", path).Info("👀 Following performance log")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Write == 0 {
				continue
			}
			offset, err = drain(f, offset, t, true)
			if err != nil {
				return err
			}
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(werr).Warn("Watcher error")
		}
	}
}

// drain reads complete lines from offset onward and optionally reports
// them. It stops short of a trailing partial line so a record split across
// two write events is parsed exactly once.
func drain(f *os.File, offset int64, t Thresholds, report bool) (int64, error) {
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return offset, err
	}

	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			// Partial line stays unconsumed until the newline arrives.
			return offset, nil
		}
		offset += int64(len(line))

		rec, ok := ParseLine(line)
		if !ok || !report {
			continue
		}
		entry := log.WithFields(log.Fields{
			"phase":         rec.Phase,
			"items":         rec.ItemsDone,
			"items_per_sec": rec.Rate,
		})
		if t.Degraded(rec) {
			entry.Warn("⚠️ Degraded tick")
		} else {
			entry.Info("Tick")
		}
	}
}
