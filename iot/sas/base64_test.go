package sas

import (
	"bytes"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeIntoMatchesStdlib(t *testing.T) {
	for size := 1; size <= 200; size++ {
		raw := make([]byte, size)
		for i := range raw {
			raw[i] = byte(i*7 + size)
		}
		src := []byte(base64.StdEncoding.EncodeToString(raw))

		dst := make([]byte, size)
		n, err := decodeInto(dst, src)
		require.NoError(t, err, "size %d", size)
		require.Equal(t, size, n)
		require.True(t, bytes.Equal(raw, dst), "size %d", size)
	}
}

func TestDecodeIntoExactCapacity(t *testing.T) {
	src := []byte(base64.StdEncoding.EncodeToString([]byte("testkey")))

	dst := make([]byte, 7)
	n, err := decodeInto(dst, src)
	require.NoError(t, err)
	assert.Equal(t, "testkey", string(dst[:n]))

	small := make([]byte, 6)
	_, err = decodeInto(small, src)
	assert.True(t, errors.Is(err, ErrCapacityExceeded))
	assert.Equal(t, make([]byte, 6), small, "nothing may be written on overflow")
}

func TestDecodeIntoMalformed(t *testing.T) {
	for _, key := range []string{
		"",
		"abc",
		"not base64!",
		"ab=c",
		"a===",
		"QQ==QUJD",
		"dGVz\ndGtl",
		"dGVz*GtleQ==",
	} {
		dst := make([]byte, 64)
		_, err := decodeInto(dst, []byte(key))
		assert.True(t, errors.Is(err, ErrMalformedInput), "key %q: %v", key, err)
	}
}

func TestDecodeIntoMalformedBeforeCapacity(t *testing.T) {
	// invalid characters are reported even if the buffer would also be too small
	_, err := decodeInto(make([]byte, 1), []byte("!!!!dGVzdGtleQ=="))
	assert.True(t, errors.Is(err, ErrMalformedInput))
}

func TestEncodeInto(t *testing.T) {
	digest := bytes.Repeat([]byte{0xfb}, DigestSize)

	dst := make([]byte, 44)
	n, err := encodeInto(dst, digest)
	require.NoError(t, err)
	assert.Equal(t, base64.StdEncoding.EncodeToString(digest), string(dst[:n]))

	_, err = encodeInto(make([]byte, 43), digest)
	assert.True(t, errors.Is(err, ErrCapacityExceeded))
}
