package kthread

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

// TestForkNullCheckSense pins the corrected sense of the historical
// x86_64_thread_fork bug (spec §9's Open Question): a source thread still
// in EMBRYO has no context to inherit, and one that has left EMBRYO does.
func TestForkNullCheckSense(t *testing.T) {
	embryo := New(1, 1, nil, "embryo")
	assert.Equal(t, Embryo, embryo.State())

	child, inherited := Fork(2, 1, embryo, "child1")
	assert.False(t, inherited, "forking from a never-dispatched source must not claim a context to inherit")
	assert.NotNil(t, child)

	dispatched := New(3, 1, nil, "dispatched")
	dispatched.Lock(nil)
	dispatched.SetState(Ready)
	dispatched.Unlock(nil)

	child2, inherited2 := Fork(4, 1, dispatched, "child2")
	assert.True(t, inherited2, "forking from a thread that has left EMBRYO must report a context to inherit")
	assert.NotNil(t, child2)
}

func TestForkClonesSignalMaskAndSchedHint(t *testing.T) {
	src := New(1, 1, nil, "src")
	src.SigMask = SigSet(0).Set(5)
	src.Sched = SchedInfo{Priority: 2, Timeslice: 7}

	child, _ := Fork(2, 1, src, "child")
	assert.Equal(t, src.SigMask, child.SigMask)
	if diff := cmp.Diff(src.Sched, child.Sched); diff != "" {
		t.Errorf("forked child's scheduling hint diverged from its source (-src +child):\n%s", diff)
	}
	assert.Equal(t, Embryo, child.State(), "a freshly forked child starts in EMBRYO")
}
