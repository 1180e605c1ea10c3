package autorefresh

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/livebud/watcher"
)

// Notify advances the generation each time one of the OS signals arrives. It
// blocks until the context is done.
func Notify(ctx context.Context, log *slog.Logger, sig *Signal, signals ...os.Signal) error {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, signals...)
	defer signal.Stop(ch)
	for {
		select {
		case <-ctx.Done():
			return nil
		case received := <-ch:
			gen := sig.Advance()
			log.Info("autorefresh: refresh triggered", "signal", received.String(), "generation", gen)
		}
	}
}

// Watch the directory holding path and advance the generation whenever a
// batch of changes touches the file itself.
func Watch(ctx context.Context, log *slog.Logger, sig *Signal, path string) error {
	dir, name := filepath.Split(filepath.Clean(path))
	if dir == "" {
		dir = "."
	}
	return watcher.Watch(ctx, dir, func(events []watcher.Event) error {
		for _, event := range events {
			log.Debug("autorefresh: got event", "event", event)
			if touches(event.String(), name) {
				gen := sig.Advance()
				log.Info("autorefresh: refresh triggered", "event", event.String(), "generation", gen)
				return nil
			}
		}
		return nil
	})
}

// touches reports whether an "op:path" event refers to the file name.
func touches(event, name string) bool {
	return strings.HasSuffix(event, ":"+name) || strings.HasSuffix(event, string(filepath.Separator)+name)
}
