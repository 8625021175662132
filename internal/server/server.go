package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultHost = "127.0.0.1"
	// ShutdownTimeout bounds how long an in-flight synchronization may delay a stop.
	ShutdownTimeout = 2 * time.Minute
)

// Task runs next to the HTTP listener until its context is cancelled.
type Task func(ctx context.Context) error

// RunForeground serves h on addr until ctx is cancelled or SIGTERM/SIGINT
// arrives, then drains in-flight requests. The pid file exists while serving.
func RunForeground(ctx context.Context, addr, pidPath string, h http.Handler, log *slog.Logger, tasks ...Task) error {
	if err := writePID(pidPath); err != nil {
		return err
	}
	defer removePID(pidPath)

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return serve(ctx, lis, h, log, tasks...)
}

func serve(ctx context.Context, lis net.Listener, h http.Handler, log *slog.Logger, tasks ...Task) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	s := &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("webhook server listening", "addr", lis.Addr().String())
		if err := s.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("webhook server stopping")
		sctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return s.Shutdown(sctx)
	})
	for _, t := range tasks {
		t := t
		g.Go(func() error { return t(gctx) })
	}
	return g.Wait()
}

func writePID(pidPath string) error {
	if pid, err := ReadPID(pidPath); err == nil && Alive(pid) {
		return fmt.Errorf("server already running (pid=%d, pid file %s)", pid, pidPath)
	}
	f, err := os.OpenFile(pidPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "%d", os.Getpid())
	return err
}

func removePID(pidPath string) {
	_ = os.Remove(pidPath)
}

func ReadPID(pidPath string) (int, error) {
	b, err := os.ReadFile(pidPath)
	if err != nil {
		return 0, err
	}
	var pid int
	if _, err := fmt.Sscanf(string(b), "%d", &pid); err != nil {
		return 0, err
	}
	return pid, nil
}

// Alive probes pid with signal 0.
func Alive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// DetachAttr returns platform-specific attributes to detach a process.
func DetachAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}
