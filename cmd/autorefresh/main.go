package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/matthewmueller/autorefresh"
	"github.com/matthewmueller/socket"
	"golang.org/x/sync/errgroup"
)

const usage = `Serve a file. Trigger browser refresh on SIGHUP.

Usage:
  autorefresh [flags] FILE

Meant for latexmk -pvc, e.g. in .latexmkrc:
  $pdf_previewer = "autorefresh";
  $pdf_update_method = 2;
  $pdf_update_signal = 1;

Flags:
`

func main() {
	log := slog.Default()
	if err := run(log, os.Args[1:]); err != nil {
		log.Error("autorefresh: exiting", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger, args []string) error {
	flags := flag.NewFlagSet("autorefresh", flag.ContinueOnError)
	mimeType := flags.String("mime", "", "file MIME type; auto-detected if unset")
	port := flags.Int("port", 8080, "port number to serve on")
	keepalive := flags.Duration("keepalive", autorefresh.DefaultKeepalive, "idle time before a keepalive is sent")
	watch := flags.Bool("watch", false, "also refresh when the file changes on disk")
	flags.Usage = func() {
		fmt.Fprint(flags.Output(), usage)
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if flags.NArg() != 1 {
		flags.Usage()
		return fmt.Errorf("expected exactly one file to serve, got %d", flags.NArg())
	}
	path := flags.Arg(0)

	if *mimeType == "" {
		detected, err := autorefresh.DetectType(path)
		if err != nil {
			log.Warn("autorefresh: serving without a content type", "path", path, "error", err)
		} else {
			log.Info("autorefresh: guessed MIME type", "mime", detected, "path", path)
		}
		*mimeType = detected
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	refresh := new(autorefresh.Signal)
	server := autorefresh.New(log, refresh, path)
	server.MIME = *mimeType
	server.Keepalive = *keepalive

	eg, egctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return autorefresh.Notify(egctx, log, refresh, syscall.SIGHUP)
	})
	if *watch {
		eg.Go(func() error {
			return autorefresh.Watch(egctx, log, refresh, path)
		})
	}
	eg.Go(func() error {
		// Shutdown waits on open refresh streams, so end them
		<-egctx.Done()
		return server.Close()
	})
	eg.Go(func() error {
		addr := fmt.Sprintf(":%d", *port)
		log.Info("autorefresh: serving", "port", *port, "file", path, "keepalive", keepalive.String())
		return socket.ListenAndServe(egctx, addr, server)
	})
	if err := eg.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	log.Info("autorefresh: stopped")
	return nil
}
