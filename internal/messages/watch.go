package messages

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watch reloads the catalog whenever its backing file changes, so copy
// edits go live without a restart. Events are debounced because editors
// emit bursts of writes. Blocks until ctx is done.
func (c *Catalog) Watch(ctx context.Context) error {
	c.mu.RLock()
	path := c.path
	c.mu.RUnlock()
	if path == "" {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(200*time.Millisecond, func() {
				if err := c.Load(path); err != nil {
					log.Warn().Err(err).Str("path", path).Msg("Message catalog reload failed, keeping previous texts")
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("Message catalog watcher error")
		}
	}
}
