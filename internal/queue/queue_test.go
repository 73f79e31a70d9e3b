package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPushBackPopFrontOrder(t *testing.T) {
	q := New()
	a, b, c := &Node{Owner: "a"}, &Node{Owner: "b"}, &Node{Owner: "c"}
	q.PushBack(a)
	q.PushBack(b)
	q.PushBack(c)
	assert.Equal(t, 3, q.Len())

	assert.Equal(t, a, q.PopFront())
	assert.Equal(t, b, q.PopFront())
	assert.Equal(t, c, q.PopFront())
	assert.Nil(t, q.PopFront())
	assert.True(t, q.Empty())
}

func TestPushFrontReversesOrder(t *testing.T) {
	q := New()
	a, b := &Node{}, &Node{}
	q.PushFront(a)
	q.PushFront(b)
	assert.Equal(t, b, q.Front())
	assert.Equal(t, b, q.PopFront())
	assert.Equal(t, a, q.PopFront())
}

func TestDetachMiddle(t *testing.T) {
	q := New()
	a, b, c := &Node{}, &Node{}, &Node{}
	q.PushBack(a)
	q.PushBack(b)
	q.PushBack(c)

	q.Detach(b)
	assert.False(t, b.Linked())
	assert.Equal(t, 2, q.Len())

	var walked []*Node
	q.Walk(func(n *Node) bool {
		walked = append(walked, n)
		return true
	})
	assert.Equal(t, []*Node{a, c}, walked)
}

func TestPushBackOfLinkedNodePanics(t *testing.T) {
	q := New()
	n := &Node{}
	q.PushBack(n)
	assert.Panics(t, func() { q.PushBack(n) })
}

func TestDetachOfForeignNodePanics(t *testing.T) {
	q1, q2 := New(), New()
	n := &Node{}
	q1.PushBack(n)
	assert.Panics(t, func() { q2.Detach(n) })
}
