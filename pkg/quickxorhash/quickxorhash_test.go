package quickxorhash

import (
	"bytes"
	"encoding/base64"
	"errors"
	"hash"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ hash.Hash = (*digest)(nil)

func sum(data []byte) string {
	h := New()
	h.Write(data)

	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func counting(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(i)
	}

	return out
}

// Digests as reported by OneDrive for the same content.
func TestKnownVectors(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  string
	}{
		{"empty", nil, "AAAAAAAAAAAAAAAAAAAAAAAAAAA="},
		{"hello", []byte("hello"), "aCgDG9jwBgAAAAAABQAAAAAAAAA="},
		{"hello world", []byte("hello world"), "aCgDG9jwBhDc4Q1yawMZAAAAAAA="},
		{"1000 zero bytes", make([]byte, 1000), "AAAAAAAAAAAAAAAA6AMAAAAAAAA="},
		{"1000 0xFF bytes", bytes.Repeat([]byte{0xFF}, 1000), "Yxvb2MY2trGNbWxj89jYOc5xjnM="},
		{"1024 counting bytes", counting(1024), "h7xr2dbCayZCQYR9KKhlwDuT4UI="},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sum(tt.input))
		})
	}
}

func TestChunkingDoesNotMatter(t *testing.T) {
	input := counting(1024)
	want := sum(input)

	h := New()
	for off, sz := 0, 1; off < len(input); sz = sz*3 + 1 {
		end := min(off+sz, len(input))
		h.Write(input[off:end])
		off = end
	}

	assert.Equal(t, want, base64.StdEncoding.EncodeToString(h.Sum(nil)))
}

func TestSumIsNonDestructive(t *testing.T) {
	h := New()
	h.Write([]byte("hello"))

	first := h.Sum([]byte("prefix"))
	assert.Equal(t, []byte("prefix"), first[:6])
	assert.Len(t, first, 6+Size)

	h.Write([]byte(" world"))
	assert.Equal(t, "aCgDG9jwBhDc4Q1yawMZAAAAAAA=", base64.StdEncoding.EncodeToString(h.Sum(nil)))
}

func TestReset(t *testing.T) {
	h := New()
	h.Write([]byte("hello"))
	h.Reset()
	h.Write([]byte("world"))

	assert.Equal(t, sum([]byte("world")), base64.StdEncoding.EncodeToString(h.Sum(nil)))
	assert.Equal(t, Size, h.Size())
	assert.Equal(t, BlockSize, h.BlockSize())
}

func TestBase64(t *testing.T) {
	got, err := Base64(iotest.OneByteReader(bytes.NewReader([]byte("hello world"))))
	require.NoError(t, err)
	assert.Equal(t, "aCgDG9jwBhDc4Q1yawMZAAAAAAA=", got)

	boom := errors.New("boom")
	_, err = Base64(iotest.ErrReader(boom))
	require.ErrorIs(t, err, boom)
}

func BenchmarkQuickXorHash(b *testing.B) {
	const oneMB = 1024 * 1024
	data := counting(oneMB)

	b.SetBytes(oneMB)

	for b.Loop() {
		h := New()
		h.Write(data)
		h.Sum(nil)
	}
}
