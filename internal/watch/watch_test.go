package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func TestWatch_DebouncesBurst(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "layers.db")
	if err := os.WriteFile(db, []byte("v0"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, db, 150*time.Millisecond, quietLogger(), func(context.Context) { calls.Add(1) })
	}()
	time.Sleep(100 * time.Millisecond)

	for i := range 5 {
		_ = os.WriteFile(db, []byte{byte('a' + i)}, 0o644)
		_ = os.WriteFile(db+"-wal", []byte{byte(i)}, 0o644)
		time.Sleep(20 * time.Millisecond)
	}

	eventually(t, 3*time.Second, 25*time.Millisecond, func() bool { return calls.Load() >= 1 }, "reload not triggered")
	time.Sleep(300 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Errorf("reload calls = %d, want 1", n)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("Watch did not stop after cancel")
	}
}

func TestWatch_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "layers.db")
	if err := os.WriteFile(db, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	go Watch(ctx, db, 50*time.Millisecond, quietLogger(), func(context.Context) { calls.Add(1) })
	time.Sleep(100 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("x"), 0o644)
	_ = os.WriteFile(db+"-shm", []byte("x"), 0o644)
	time.Sleep(300 * time.Millisecond)

	if n := calls.Load(); n != 0 {
		t.Errorf("reload calls = %d, want 0", n)
	}
}
