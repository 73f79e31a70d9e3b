package bitmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Emment-Yamikani/xytheros-go/internal/kerr"
)

func TestFindContiguousClearEmpty(t *testing.T) {
	b := New(16)
	start, err := b.FindContiguousClear(4)
	require.Equal(t, kerr.Errno(0), err)
	assert.EqualValues(t, 0, start)
}

func TestFindContiguousClearSkipsSetBits(t *testing.T) {
	b := New(16)
	require.Equal(t, kerr.Errno(0), b.SetRange(0, 3))
	start, err := b.FindContiguousClear(3)
	require.Equal(t, kerr.Errno(0), err)
	assert.EqualValues(t, 3, start)
}

func TestFindContiguousClearNoRoom(t *testing.T) {
	b := New(8)
	require.Equal(t, kerr.Errno(0), b.SetRange(0, 8))
	_, err := b.FindContiguousClear(1)
	assert.Equal(t, kerr.ENOMEM, err)
}

func TestFindContiguousClearInvalidArgs(t *testing.T) {
	b := New(8)
	_, err := b.FindContiguousClear(0)
	assert.Equal(t, kerr.EINVAL, err)
	_, err = b.FindContiguousClear(9)
	assert.Equal(t, kerr.EINVAL, err)
}

func TestSetClearRangeRoundTrip(t *testing.T) {
	b := New(32)
	require.Equal(t, kerr.Errno(0), b.SetRange(4, 8))
	assert.EqualValues(t, 8, b.Count())
	assert.True(t, b.Test(4))
	assert.True(t, b.Test(11))
	assert.False(t, b.Test(12))

	require.Equal(t, kerr.Errno(0), b.ClearRange(4, 8))
	assert.EqualValues(t, 0, b.Count())
}

func TestSetRangeOutOfBounds(t *testing.T) {
	b := New(8)
	assert.Equal(t, kerr.EINVAL, b.SetRange(4, 8))
}
