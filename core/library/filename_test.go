package library

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSafeFilename(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"opener.mp3", "opener.mp3"},
		{"a/b\\c.mp3", "a_b_c.mp3"},
		{"what?.mp3", "what_.mp3"},
		{"con:trol\x01.wav", "con_trol_.wav"},
		{"", "untitled"},
		{"..", "untitled"},
		{"  .  ", "untitled"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, SafeFilename(c.in), "input %q", c.in)
	}
}

func TestHashPayload(t *testing.T) {
	a := HashPayload([]byte("hello"))
	b := HashPayload([]byte("hello"))
	c := HashPayload([]byte("world"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64, "hex-encoded sha-256")
}
