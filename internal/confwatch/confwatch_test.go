package confwatch

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/tabcache/internal/remote"
)

// fakeTokenSetter records applied tokens in order.
type fakeTokenSetter struct {
	mu     sync.Mutex
	tokens []string
}

func (f *fakeTokenSetter) SetAuthToken(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, token)
}

func (f *fakeTokenSetter) applied() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.tokens))
	copy(out, f.tokens)
	return out
}

var _ TokenSetter = (*remote.Client)(nil)

func parseSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, err
	}
	s := Settings{LogLevel: slog.LevelInfo}
	for _, line := range strings.Split(string(data), "\n") {
		switch {
		case line == "log_level: DEBUG":
			s.LogLevel = slog.LevelDebug
		case strings.HasPrefix(line, "token: "):
			s.BackendToken = strings.TrimPrefix(line, "token: ")
		}
	}
	return s, nil
}

func TestWatchReloadsLevel(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("log_level: INFO\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var levelVar slog.LevelVar
	levelVar.Set(slog.LevelInfo)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	reloaded := make(chan Settings, 1)
	reload := func(path string) (Settings, error) {
		s, err := parseSettings(path)
		if err != nil {
			return Settings{}, err
		}
		select {
		case reloaded <- s:
		default:
		}
		return s, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, cfgPath, &levelVar, nil, reload, logger) }()

	// Give the watcher time to register before touching the file.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(cfgPath, []byte("log_level: DEBUG\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case s := <-reloaded:
		if s.LogLevel != slog.LevelDebug {
			t.Errorf("reloaded level = %v, want DEBUG", s.LogLevel)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("reload never fired")
	}

	// The level var should follow shortly after the reload callback.
	deadline := time.Now().Add(2 * time.Second)
	for levelVar.Level() != slog.LevelDebug {
		if time.Now().After(deadline) {
			t.Fatal("level var never updated")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not stop on cancel")
	}
}

func TestWatchRotatesBackendToken(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("token: old\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var levelVar slog.LevelVar
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	setter := &fakeTokenSetter{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = Watch(ctx, cfgPath, &levelVar, setter, parseSettings, logger) }()

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(cfgPath, []byte("token: rotated\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		applied := setter.applied()
		if len(applied) > 0 && applied[len(applied)-1] == "rotated" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("token never applied, got %v", applied)
		}
		time.Sleep(10 * time.Millisecond)
	}

	// An unchanged token must not be reapplied.
	before := len(setter.applied())
	if err := os.WriteFile(cfgPath, []byte("token: rotated\nlog_level: DEBUG\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	deadline = time.Now().Add(3 * time.Second)
	for levelVar.Level() != slog.LevelDebug {
		if time.Now().After(deadline) {
			t.Fatal("level change never observed")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := len(setter.applied()); got != before {
		t.Errorf("unchanged token reapplied: %d calls, want %d", got, before)
	}
}

func TestWatchIgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("a\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var levelVar slog.LevelVar
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	reloadCalls := make(chan struct{}, 8)
	reload := func(string) (Settings, error) {
		reloadCalls <- struct{}{}
		return Settings{LogLevel: slog.LevelInfo}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = Watch(ctx, cfgPath, &levelVar, nil, reload, logger) }()

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-reloadCalls:
		t.Error("sibling file change triggered a reload")
	case <-time.After(600 * time.Millisecond):
	}
}
