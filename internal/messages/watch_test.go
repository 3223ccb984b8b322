package messages

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Watch owns its caller's goroutine until shutdown; anything wiring it
// next to a server loop depends on both halves of that contract.
func TestWatchBlocksUntilCancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.yaml")
	require.NoError(t, os.WriteFile(path, []byte("error_generic: Etwas ging schief.\n"), 0o644))

	c := NewCatalog()
	require.NoError(t, c.Load(path))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Watch(ctx) }()

	select {
	case err := <-done:
		t.Fatalf("Watch returned while ctx was still live: %v", err)
	case <-time.After(250 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatchReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.yaml")
	require.NoError(t, os.WriteFile(path, []byte("error_generic: Erste Fassung.\n"), 0o644))

	c := NewCatalog()
	require.NoError(t, c.Load(path))
	require.Equal(t, "Erste Fassung.", c.Get(KeyGeneric))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.Watch(ctx) }()

	// Give Watch time to register the fsnotify watcher before writing,
	// otherwise the write can land before the watch exists and no event
	// is ever delivered.
	time.Sleep(250 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("error_generic: Zweite Fassung.\n"), 0o644))

	assert.Eventually(t, func() bool {
		return c.Get(KeyGeneric) == "Zweite Fassung."
	}, 3*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
