package kthread

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddMemberFirstBecomesMain(t *testing.T) {
	g := NewGroup(100)
	a := New(1, 100, nil, "a")
	b := New(2, 100, nil, "b")

	g.AddMember(a)
	g.AddMember(b)
	assert.Equal(t, a.Tid, g.MainTid())
	assert.Len(t, g.Members(), 2)
}

func TestRemoveMemberReportsEmpty(t *testing.T) {
	g := NewGroup(100)
	a := New(1, 100, nil, "a")
	g.AddMember(a)

	empty := g.RemoveMember(a)
	assert.True(t, empty)
	assert.Empty(t, g.Members())
}

func TestSignalDescriptorQueueLifecycle(t *testing.T) {
	d := NewSignalDescriptor()
	d.PushSiginfo(Siginfo{Signo: 9})
	assert.True(t, d.Pending.Has(9))

	si, ok := d.PopSiginfo(9)
	assert.True(t, ok)
	assert.Equal(t, 9, si.Signo)
	assert.False(t, d.Pending.Has(9))
}

func TestSignalDescriptorFlushClearsQueueAndPending(t *testing.T) {
	d := NewSignalDescriptor()
	d.PushSiginfo(Siginfo{Signo: 2})
	d.FlushSiginfo(2)
	assert.False(t, d.Pending.Has(2))
	_, ok := d.PopSiginfo(2)
	assert.False(t, ok)
}
