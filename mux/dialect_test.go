package mux

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlainFramer_Unframe(t *testing.T) {
	tests := []struct {
		name string
		line string
		want string
		ok   bool
	}{
		{name: "object", line: `{"id":1}`, want: `{"id":1}`, ok: true},
		{name: "surrounding space", line: "  {\"id\":1} \r", want: `{"id":1}`, ok: true},
		{name: "plain text", line: "Launching lib/main.dart", ok: false},
		{name: "array", line: `[{"id":1}]`, ok: false},
		{name: "empty", line: "", ok: false},
		{name: "unterminated", line: `{"id":1`, ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := PlainFramer{}.Unframe([]byte(tt.line))
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, string(got))
			}
		})
	}
}

func TestExceedsDepth(t *testing.T) {
	deep := strings.Repeat("[", 10) + strings.Repeat("]", 10)

	assert.False(t, ExceedsDepth([]byte(deep), 10))
	assert.True(t, ExceedsDepth([]byte(deep), 9))
	assert.False(t, ExceedsDepth([]byte(deep), 0), "zero means unlimited")

	// Brackets inside strings do not count.
	assert.False(t, ExceedsDepth([]byte(`{"a":"[[[[[[\"[["}`), 1))
}

func TestCounter_StrictlyIncreasing(t *testing.T) {
	var c Counter
	assert.Equal(t, uint64(1), c.Next())
	assert.Equal(t, uint64(2), c.Next())
	assert.Equal(t, uint64(3), c.Next())
}

func TestTokens_Unique(t *testing.T) {
	var ids Tokens
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := ids.Next()
		assert.False(t, seen[id])
		seen[id] = true
	}
}
