package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunksPushLen(t *testing.T) {
	c := NewChunks([]byte("hello"))
	c.Push(NewChunks([]byte(" world")))
	assert.Equal(t, 11, c.Len())
	assert.Equal(t, "hello world", string(c.Bytes()))
}

func TestChunksShiftExact(t *testing.T) {
	c := NewChunks([]byte("hello"))
	c.Push(NewChunks([]byte(" world")))

	head := c.Shift(5)
	require.Equal(t, 5, head.Len())
	assert.Equal(t, "hello", string(head.Bytes()))
	assert.Equal(t, 6, c.Len())
	assert.Equal(t, " world", string(c.Bytes()))
}

func TestChunksShiftSplitsStraddlingChunk(t *testing.T) {
	c := NewChunks([]byte("hello"))
	c.Push(NewChunks([]byte(" world")))

	head := c.Shift(7) // "hello w" straddles the two original chunks
	assert.Equal(t, "hello w", string(head.Bytes()))
	assert.Equal(t, "orld", string(c.Bytes()))
}

func TestChunksShiftAll(t *testing.T) {
	c := NewChunks([]byte("abc"))
	head := c.Shift(100)
	assert.Equal(t, "abc", string(head.Bytes()))
	assert.Equal(t, 0, c.Len())
}

func TestChunksCloneIndependentShift(t *testing.T) {
	c := NewChunks([]byte("abcdef"))
	clone := c.Clone()

	c.Shift(3)
	assert.Equal(t, "def", string(c.Bytes()))
	assert.Equal(t, "abcdef", string(clone.Bytes()))
}

func TestValidateStream(t *testing.T) {
	ok := []Event{
		StreamStart{},
		MessageStart{},
		NewData([]byte("x")),
		MessageEnd{},
		StreamEnd{Error: NoError},
	}
	assert.NoError(t, ValidateStream(ok))

	missingEnd := []Event{StreamStart{}, MessageStart{}, MessageEnd{}}
	assert.Error(t, ValidateStream(missingEnd))

	nested := []Event{StreamStart{}, MessageStart{}, MessageStart{}, MessageEnd{}, StreamEnd{}}
	assert.Error(t, ValidateStream(nested))

	trailing := []Event{StreamStart{}, StreamEnd{}, MessageStart{}}
	assert.Error(t, ValidateStream(trailing))
}
