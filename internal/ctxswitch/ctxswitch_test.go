package ctxswitch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpawnDoesNotRunUntilDispatched(t *testing.T) {
	ran := make(chan struct{}, 1)
	slot := NewSlot()
	Spawn(slot, func() { ran <- struct{}{} })

	select {
	case <-ran:
		t.Fatal("spawned goroutine ran before it was ever dispatched")
	case <-time.After(20 * time.Millisecond):
	}

	slot.Resume()
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("spawned goroutine never ran after dispatch")
	}
}

func TestSwitchIsARendezvous(t *testing.T) {
	a, b := NewSlot(), NewSlot()
	order := make(chan string, 4)

	go func() {
		b.Park()
		order <- "b-resumed"
		a.Resume()
	}()

	order <- "main-switching"
	Switch(a, b)
	order <- "main-resumed"
	close(order)

	var got []string
	for s := range order {
		got = append(got, s)
	}
	require.Equal(t, []string{"main-switching", "b-resumed", "main-resumed"}, got)
}
