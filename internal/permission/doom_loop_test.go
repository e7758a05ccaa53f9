package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDoomLoopThreeIdenticalCalls(t *testing.T) {
	d := NewDoomLoopDetector()
	args := map[string]any{"command": "ls -la"}

	d.Record("bash", args)
	assert.False(t, d.IsInLoop())
	d.Record("bash", args)
	assert.False(t, d.IsInLoop())
	d.Record("bash", args)
	assert.True(t, d.IsInLoop())
}

func TestDoomLoopBrokenByDifferentCall(t *testing.T) {
	d := NewDoomLoopDetector()
	args := map[string]any{"command": "ls -la"}

	d.Record("bash", args)
	d.Record("bash", args)
	d.Record("bash", map[string]any{"command": "pwd"})
	d.Record("bash", args)

	assert.False(t, d.IsInLoop())
}

func TestDoomLoopArgsOrderIndependent(t *testing.T) {
	d := NewDoomLoopDetector()

	d.Record("edit", map[string]any{"filePath": "a.go", "content": "x"})
	d.Record("edit", map[string]any{"content": "x", "filePath": "a.go"})
	d.Record("edit", map[string]any{"filePath": "a.go", "content": "x"})

	assert.True(t, d.IsInLoop())
}

func TestDoomLoopValueSensitive(t *testing.T) {
	d := NewDoomLoopDetector()

	d.Record("edit", map[string]any{"filePath": "a.go"})
	d.Record("edit", map[string]any{"filePath": "b.go"})
	d.Record("edit", map[string]any{"filePath": "a.go"})

	assert.False(t, d.IsInLoop())
}

func TestDoomLoopSameArgsDifferentTool(t *testing.T) {
	d := NewDoomLoopDetector()
	args := map[string]any{"path": "src"}

	d.Record("glob", args)
	d.Record("grep", args)
	d.Record("glob", args)

	assert.False(t, d.IsInLoop())
}

func TestRepeatedCallCountsFullRun(t *testing.T) {
	d := NewDoomLoopDetector()
	args := map[string]any{"command": "make test"}

	d.Record("bash", map[string]any{"command": "make build"})
	for i := 0; i < 5; i++ {
		d.Record("bash", args)
	}

	tool, count, looping := d.RepeatedCall()
	assert.True(t, looping)
	assert.Equal(t, "bash", tool)
	assert.Equal(t, 5, count)
}

func TestRepeatedCallBelowThreshold(t *testing.T) {
	d := NewDoomLoopDetector()

	d.Record("bash", map[string]any{"command": "ls"})
	d.Record("bash", map[string]any{"command": "ls"})

	_, count, looping := d.RepeatedCall()
	assert.False(t, looping)
	assert.Equal(t, 2, count)
}

func TestDoomLoopHistoryBounded(t *testing.T) {
	d := NewDoomLoopDetector()

	for i := 0; i < 50; i++ {
		d.Record("bash", map[string]any{"command": "ls", "i": i})
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	assert.LessOrEqual(t, len(d.history), DoomLoopCapacity)
}

func TestDoomLoopReset(t *testing.T) {
	d := NewDoomLoopDetector()
	args := map[string]any{"command": "ls"}

	d.Record("bash", args)
	d.Record("bash", args)
	d.Record("bash", args)
	assert.True(t, d.IsInLoop())

	d.Reset()
	assert.False(t, d.IsInLoop())
}
