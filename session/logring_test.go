package session

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func texts(lines []LogLine) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.Text
	}
	return out
}

func TestLogRing_EvictsOldest(t *testing.T) {
	r := NewLogRing(3)
	assert.Empty(t, r.Lines())

	for i := range 5 {
		r.Append(LogLine{Text: fmt.Sprintf("line%d", i)})
	}
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []string{"line2", "line3", "line4"}, texts(r.Lines()))
}

func TestLogRing_PartiallyFilled(t *testing.T) {
	r := NewLogRing(4)
	r.Append(LogLine{Text: "a"})
	r.Append(LogLine{Text: "b"})
	assert.Equal(t, []string{"a", "b"}, texts(r.Lines()))
}

func TestLogRing_DefaultSize(t *testing.T) {
	r := NewLogRing(0)
	for range DefaultLogLines + 10 {
		r.Append(LogLine{Text: "x"})
	}
	assert.Equal(t, DefaultLogLines, r.Len())
}

func TestLogRing_LinesIsACopy(t *testing.T) {
	r := NewLogRing(2)
	r.Append(LogLine{Text: "a"})
	lines := r.Lines()
	lines[0].Text = "changed"
	assert.Equal(t, "a", r.Lines()[0].Text)
}
