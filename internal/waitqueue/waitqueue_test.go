package waitqueue

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Emment-Yamikani/xytheros-go/internal/queue"
	"github.com/Emment-Yamikani/xytheros-go/internal/spinlock"
)

func TestEnqueueDequeueOrder(t *testing.T) {
	wq := New("test")
	cpu := spinlock.NewCPU(0)
	owner := spinlock.Owner{ID: 1, IsThread: true}

	a, b := &queue.Node{}, &queue.Node{}
	wq.Lock(cpu, owner)
	wq.Enqueue(a, Tail)
	wq.Enqueue(b, Tail)
	assert.Equal(t, 2, wq.Len())

	got := wq.Dequeue(Head)
	assert.Equal(t, a, got)
	wq.Unlock(cpu, owner)
}

func TestRemoveDetachesExplicitly(t *testing.T) {
	wq := New("test")
	cpu := spinlock.NewCPU(0)
	owner := spinlock.Owner{ID: 1, IsThread: true}

	n := &queue.Node{}
	wq.Lock(cpu, owner)
	wq.Enqueue(n, Tail)
	wq.Remove(n)
	assert.True(t, wq.Empty())
	assert.False(t, n.Linked())
	wq.Unlock(cpu, owner)
}

func TestWalkVisitsHeadToTail(t *testing.T) {
	wq := New("test")
	cpu := spinlock.NewCPU(0)
	owner := spinlock.Owner{ID: 1, IsThread: true}

	a, b, c := &queue.Node{Owner: 1}, &queue.Node{Owner: 2}, &queue.Node{Owner: 3}
	wq.Lock(cpu, owner)
	wq.Enqueue(a, Tail)
	wq.Enqueue(b, Tail)
	wq.Enqueue(c, Tail)

	var seen []int
	wq.Walk(func(n *queue.Node) bool {
		seen = append(seen, n.Owner.(int))
		return true
	})
	assert.Equal(t, []int{1, 2, 3}, seen)
	wq.Unlock(cpu, owner)
}
