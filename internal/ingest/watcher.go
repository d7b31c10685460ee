package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/brfiscal/nfe-pipeline/internal/common"
)

// WatchConfig controls continuous directory intake.
type WatchConfig struct {
	Roots       []string      // directories to watch, recursive
	InitialScan bool          // emit files already present before watching
	Debounce    time.Duration // coalesce rapid write/rename bursts
}

// StartWatcher emits the path of every supported document created or
// written under the roots. Both channels close when ctx is done. Paths
// already present are delivered first when InitialScan is set; live
// emission is best effort, a full event channel drops paths instead of
// blocking.
func StartWatcher(ctx context.Context, cfg WatchConfig, logger *slog.Logger) (<-chan string, <-chan error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Roots) == 0 {
		return nil, nil, common.Errorf(common.CodeConfig, "Nenhum diretório para observar")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, common.NewAppError(common.CodeConfig, "Falha ao criar watcher de diretórios", err)
	}

	evCh := make(chan string, 256)
	errCh := make(chan error, 1)

	var backlog []string
	addDir := func(root string) error {
		return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				return w.Add(path)
			}
			if cfg.InitialScan && AllowedExt(filepath.Ext(path)) {
				backlog = append(backlog, path)
			}
			return nil
		})
	}
	for _, r := range cfg.Roots {
		if err := addDir(r); err != nil {
			_ = w.Close()
			return nil, nil, common.NewAppError(common.CodeConfig,
				fmt.Sprintf("Falha ao observar diretório: %s", r), err)
		}
	}
	logger.Info("ingest.watch.start",
		"roots", strings.Join(cfg.Roots, ","),
		"initial_scan", cfg.InitialScan,
		"debounce_ms", cfg.Debounce.Milliseconds())

	go func() {
		defer close(evCh)
		defer close(errCh)
		defer func() {
			if cerr := w.Close(); cerr != nil {
				logger.Warn("ingest.watch.close_error", "error", cerr)
			}
		}()

		for _, p := range backlog {
			select {
			case <-ctx.Done():
				return
			case evCh <- p:
			}
		}

		pending := map[string]struct{}{}
		flush := func() {
			for p := range pending {
				select {
				case evCh <- p:
				default:
				}
				delete(pending, p)
			}
		}

		var debounce *time.Timer
		var debounceC <-chan time.Time

		for {
			select {
			case <-ctx.Done():
				return
			case e := <-w.Events:
				if e.Op&fsnotify.Create != 0 {
					// new subdirectories must be watched as well
					if fi, statErr := os.Stat(e.Name); statErr == nil && fi.IsDir() {
						if addErr := w.Add(e.Name); addErr != nil {
							logger.Warn("ingest.watch.add_dir_failed", "path", e.Name, "error", addErr)
						}
					}
				}
				// Rename reports the old name of a moved file; the new
				// name arrives as its own Create.
				if !AllowedExt(filepath.Ext(e.Name)) || e.Op&(fsnotify.Create|fsnotify.Write) == 0 {
					continue
				}
				pending[e.Name] = struct{}{}
				if cfg.Debounce <= 0 {
					flush()
					continue
				}
				if debounce == nil {
					debounce = time.NewTimer(cfg.Debounce)
				} else {
					debounce.Reset(cfg.Debounce)
				}
				debounceC = debounce.C
			case <-debounceC:
				flush()
				debounceC = nil
			case werr := <-w.Errors:
				logger.Error("ingest.watch.error", "error", werr)
				select {
				case errCh <- werr:
				default:
				}
			}
		}
	}()

	return evCh, errCh, nil
}
