package drain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoordinatorSignalIsIdempotent(t *testing.T) {
	c := New()
	w := c.Watch()

	c.Signal()
	c.Signal() // must not panic or double-close

	select {
	case <-w.Signaled():
	case <-time.After(time.Second):
		t.Fatal("watcher was never signaled")
	}

	w.Release()

	select {
	case <-c.Drained():
	case <-time.After(time.Second):
		t.Fatal("coordinator never reported drained")
	}
}

func TestCoordinatorWaitsForAllWatchers(t *testing.T) {
	c := New()
	w1 := c.Watch()
	w2 := c.Watch()

	c.Signal()

	select {
	case <-c.Drained():
		t.Fatal("drained fired before every watcher released")
	case <-time.After(50 * time.Millisecond):
	}

	w1.Release()

	select {
	case <-c.Drained():
		t.Fatal("drained fired with one watcher still outstanding")
	case <-time.After(50 * time.Millisecond):
	}

	w2.Release()

	select {
	case <-c.Drained():
	case <-time.After(time.Second):
		t.Fatal("coordinator never reported drained once both watchers released")
	}
}

func TestWatcherReleaseIsIdempotent(t *testing.T) {
	c := New()
	w := c.Watch()
	c.Signal()

	require.NotPanics(t, func() {
		w.Release()
		w.Release()
	})

	select {
	case <-c.Drained():
	case <-time.After(time.Second):
		t.Fatal("coordinator never reported drained")
	}
}

func TestWatcherNotSignaledBeforeSignal(t *testing.T) {
	c := New()
	w := c.Watch()

	assert.NotNil(t, w)

	select {
	case <-w.Signaled():
		t.Fatal("watcher signaled before Signal was called")
	default:
	}
}
