//go:build unix

package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/matryer/is"
)

func freePort(t testing.TB) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

// frames reads event-stream frames off body until it closes.
func frames(body io.Reader) <-chan string {
	ch := make(chan string, 16)
	go func() {
		defer close(ch)
		reader := bufio.NewReader(body)
		var frame strings.Builder
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			frame.WriteString(line)
			if line == "\n" {
				ch <- frame.String()
				frame.Reset()
			}
		}
	}()
	return ch
}

func TestRunServesUntilTerminated(t *testing.T) {
	is := is.New(t)
	// Keep a SIGHUP sent before the notifier subscribes from killing the test
	guard := make(chan os.Signal, 16)
	signal.Notify(guard, syscall.SIGHUP)
	defer signal.Stop(guard)

	data := []byte("%PDF-1.4\n%%EOF\n")
	path := filepath.Join(t.TempDir(), "report.pdf")
	is.NoErr(os.WriteFile(path, data, 0644))
	port := freePort(t)
	url := fmt.Sprintf("http://127.0.0.1:%d", port)

	done := make(chan error, 1)
	go func() {
		done <- run(slog.Default(), []string{"--port", strconv.Itoa(port), path})
	}()

	// Wait for the server to come up
	var res *http.Response
	deadline := time.Now().Add(5 * time.Second)
	for {
		var err error
		res, err = http.Get(url + "/file")
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never started: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}
	body, err := io.ReadAll(res.Body)
	res.Body.Close()
	is.NoErr(err)
	is.Equal(res.StatusCode, 200)
	is.Equal(res.Header.Get("Content-Type"), "application/pdf")
	is.Equal(body, data)

	res, err = http.Get(url + "/refresh")
	is.NoErr(err)
	defer res.Body.Close()
	stream := frames(res.Body)
	select {
	case frame := <-stream:
		is.Equal(frame, "data: \n\n")
	case <-time.After(time.Second):
		t.Fatal("no open frame")
	}

	// SIGHUP until the notifier has subscribed and a refresh comes through
	refreshed := false
	for i := 0; i < 50 && !refreshed; i++ {
		is.NoErr(syscall.Kill(os.Getpid(), syscall.SIGHUP))
		select {
		case frame := <-stream:
			is.True(strings.Contains(frame, "event: refresh\n"))
			refreshed = true
		case <-time.After(100 * time.Millisecond):
		}
	}
	is.True(refreshed) // SIGHUP reached the refresh stream

	// The open stream must not hold up shutdown
	is.NoErr(syscall.Kill(os.Getpid(), syscall.SIGTERM))
	select {
	case err := <-done:
		is.NoErr(err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after SIGTERM with an open stream")
	}
}
