package pipeline

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"texguard/internal/logger"
	"texguard/internal/tokenizer"
	"texguard/internal/types"
)

// WatchDecode decodes input once and then again every time its TRANSLATED
// file is written, until ctx is done. Bursts of events within the debounce
// delay trigger a single decode. onDecode, when not nil, receives each
// report. Decode failures are logged and watching continues.
func (r *Runner) WatchDecode(ctx context.Context, input, output string, onDecode func(*tokenizer.DecodeReport, string)) error {
	ws := r.Workspace(input)
	target := filepath.Clean(ws.TranslatedPath())

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return types.NewAppError(types.ErrInternal, "failed to create file watcher", err)
	}
	defer fsw.Close()

	// Editors often replace the file, so the directory is watched.
	if err := fsw.Add(ws.Dir); err != nil {
		return types.NewAppErrorWithDetails(types.ErrFileNotFound, "failed to watch workspace", ws.Dir, err)
	}

	decode := func() {
		report, outPath, err := r.Decode(ctx, input, output)
		if err != nil {
			logger.Error("decode failed", err, logger.String("run", r.runID), logger.String("input", input))
			return
		}
		if onDecode != nil {
			onDecode(report, outPath)
		}
	}
	decode()

	logger.Info("watching for translated text",
		logger.String("run", r.runID),
		logger.String("path", target),
		logger.Duration("debounce", r.debounce))

	// Timers are not drained: since Go 1.23 Stop and Reset discard stale ticks.
	timer := time.NewTimer(r.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			logger.Debug("translated file changed", logger.String("op", event.Op.String()))
			timer.Reset(r.debounce)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("file watcher error", logger.Err(err))

		case <-timer.C:
			decode()
		}
	}
}
