package catalog

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"mcuplan/bus"
)

// TopicUpdated carries an Updated payload whenever the catalog changed.
var TopicUpdated = bus.T("catalog", "updated")

// Updated is published on TopicUpdated.
type Updated struct {
	Source   string `json:"source"` // "dir" or "remote"
	Added    int    `json:"added"`
	Replaced int    `json:"replaced"`
}

// Watcher reloads a catalog directory when its files change.
type Watcher struct {
	dir      string
	cat      *Catalog
	conn     *bus.Connection
	log      zerolog.Logger
	debounce time.Duration
}

func NewWatcher(dir string, cat *Catalog, conn *bus.Connection, log zerolog.Logger) *Watcher {
	return &Watcher{
		dir:      dir,
		cat:      cat,
		conn:     conn,
		log:      log.With().Str("component", "catalog_watcher").Logger(),
		debounce: 250 * time.Millisecond,
	}
}

// Reload reads the directory once, merges and publishes TopicUpdated.
// Parse errors are logged; valid files are still merged.
func (w *Watcher) Reload() Updated {
	mcus, err := LoadDir(w.dir)
	if err != nil {
		w.log.Warn().Err(err).Str("dir", w.dir).Msg("Catalog directory has invalid entries")
	}
	added, replaced := w.cat.Merge(mcus...)
	u := Updated{Source: "dir", Added: added, Replaced: replaced}
	if w.conn != nil {
		w.conn.Publish(&bus.Message{Topic: TopicUpdated, Payload: u})
	}
	w.log.Info().Int("added", added).Int("replaced", replaced).Msg("Catalog directory loaded")
	return u
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return err
	}
	w.log.Info().Str("dir", w.dir).Msg("Watching catalog directory")

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !isCatalogFile(ev.Name) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			w.log.Debug().Str("file", ev.Name).Str("op", ev.Op.String()).Msg("Catalog file changed")
			timer.Reset(w.debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn().Err(err).Msg("Catalog watcher error")
		case <-timer.C:
			w.Reload()
		}
	}
}
