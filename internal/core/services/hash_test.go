package services

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashBytes_KnownVectors(t *testing.T) {
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		HashBytes(nil))
	assert.Equal(t,
		"2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
		HashBytes([]byte("hello")))
}

func TestHashString_MatchesBytes(t *testing.T) {
	assert.Equal(t, HashBytes([]byte("kapsel")), HashString("kapsel"))
}

func TestHashReader_DigestAndCount(t *testing.T) {
	payload := bytes.Repeat([]byte("abc123"), 20_000) // larger than one buffer

	hash, n, err := HashReader(bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), n)
	assert.Equal(t, HashBytes(payload), hash)
}

func TestHashReader_Empty(t *testing.T) {
	hash, n, err := HashReader(strings.NewReader(""))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, HashBytes(nil), hash)
}

type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }

func TestHashReader_PropagatesReadError(t *testing.T) {
	boom := errors.New("disk gone")
	_, _, err := HashReader(failingReader{err: boom})
	require.ErrorIs(t, err, boom)
}
