package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	levels   []Level
	messages []string
}

func (r *recordingSink) Notify(level Level, title, message string, data map[string]any) {
	r.levels = append(r.levels, level)
	r.messages = append(r.messages, message)
}

type panickingSink struct{}

func (panickingSink) Notify(Level, string, string, map[string]any) {
	panic("sink exploded")
}

func TestMultiSinkFansOut(t *testing.T) {
	first := &recordingSink{}
	second := &recordingSink{}
	m := NewMultiSink(first, second)

	m.Notify(LevelInfo, "title", "hello", nil)

	require.Len(t, first.messages, 1)
	require.Len(t, second.messages, 1)
	assert.Equal(t, "hello", first.messages[0])
	assert.Equal(t, LevelInfo, second.levels[0])
}

func TestMultiSinkIsolatesPanickingSink(t *testing.T) {
	after := &recordingSink{}
	m := NewMultiSink(panickingSink{}, after)

	assert.NotPanics(t, func() {
		m.Notify(LevelError, "title", "still delivered", nil)
	})
	require.Len(t, after.messages, 1)
	assert.Equal(t, "still delivered", after.messages[0])
}
