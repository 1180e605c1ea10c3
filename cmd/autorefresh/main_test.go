package main

import (
	"log/slog"
	"testing"

	"github.com/matryer/is"
)

func TestRunNeedsFile(t *testing.T) {
	is := is.New(t)
	err := run(slog.Default(), []string{"--port", "0"})
	is.True(err != nil)
}

func TestRunBadFlag(t *testing.T) {
	is := is.New(t)
	err := run(slog.Default(), []string{"--port", "nope", "report.pdf"})
	is.True(err != nil)
}

func TestRunHelp(t *testing.T) {
	is := is.New(t)
	is.NoErr(run(slog.Default(), []string{"-h"}))
}
