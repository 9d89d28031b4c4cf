package access

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// LoadPolicyFile replaces the active policy with the contents of path.
func (g *Gate) LoadPolicyFile(path string) error {
	p, err := LoadPolicy(path)
	if err != nil {
		return err
	}
	g.SetPolicy(p)
	log.Info().Str("file", path).Int("guards", len(p.Guards)).Msg("access policy loaded")
	return nil
}

// WatchPolicy loads path and reloads it whenever it changes, until ctx is
// done. A file that fails to parse leaves the previous policy in place.
func (g *Gate) WatchPolicy(ctx context.Context, path string) error {
	if err := g.LoadPolicyFile(path); err != nil {
		return err
	}
	return g.WatchPolicyChanges(ctx, path)
}

// WatchPolicyChanges reloads path on every change until ctx is done,
// without an initial load. The parent directory is watched so editors
// that replace the file by rename are picked up.
func (g *Gate) WatchPolicyChanges(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("[Gate.WatchPolicyChanges] new watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("[Gate.WatchPolicyChanges] resolve %s: %w", path, err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("[Gate.WatchPolicyChanges] watch %s: %w", filepath.Dir(abs), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := g.LoadPolicyFile(abs); err != nil {
				log.Err(err).Str("file", abs).Msg("policy reload failed, keeping previous policy")
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Err(err).Msg("policy watcher error")
		}
	}
}
