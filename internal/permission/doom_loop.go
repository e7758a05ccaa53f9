package permission

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	// DoomLoopThreshold is how many identical trailing calls trigger.
	DoomLoopThreshold = 3
	// DoomLoopCapacity bounds the history FIFO.
	DoomLoopCapacity = 10
)

type doomRecord struct {
	tool string
	hash string
	at   time.Time
}

// DoomLoopDetector tracks recent tool calls for one session and flags the
// agent repeating an identical call without making progress. Purely local,
// no I/O; the driver decides what to do on a positive result.
type DoomLoopDetector struct {
	mu        sync.Mutex
	threshold int
	capacity  int
	history   []doomRecord
}

// NewDoomLoopDetector creates a detector with default bounds.
func NewDoomLoopDetector() *DoomLoopDetector {
	return &DoomLoopDetector{
		threshold: DoomLoopThreshold,
		capacity:  DoomLoopCapacity,
	}
}

// Record appends a tool call to the bounded history.
func (d *DoomLoopDetector) Record(tool string, args map[string]any) {
	rec := doomRecord{tool: tool, hash: hashArgs(args), at: time.Now()}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.history = append(d.history, rec)
	if len(d.history) > d.capacity {
		d.history = d.history[len(d.history)-d.capacity:]
	}
}

// IsInLoop reports whether the most recent threshold records are all the
// same (tool, args) call.
func (d *DoomLoopDetector) IsInLoop() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.history) < d.threshold {
		return false
	}

	last := d.history[len(d.history)-1]
	for i := len(d.history) - d.threshold; i < len(d.history); i++ {
		if d.history[i].tool != last.tool || d.history[i].hash != last.hash {
			return false
		}
	}
	return true
}

// RepeatedCall returns the tool and length of the full contiguous run of
// identical trailing records, and whether that run meets the threshold.
func (d *DoomLoopDetector) RepeatedCall() (string, int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.history) == 0 {
		return "", 0, false
	}

	last := d.history[len(d.history)-1]
	count := 0
	for i := len(d.history) - 1; i >= 0; i-- {
		if d.history[i].tool != last.tool || d.history[i].hash != last.hash {
			break
		}
		count++
	}
	return last.tool, count, count >= d.threshold
}

// Reset clears the history, e.g. after the driver forced a plan change.
func (d *DoomLoopDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.history = nil
}

// hashArgs hashes arguments order-independently: keys are sorted and joined
// as key:JSON(value) pairs before hashing, so two calls with the same
// values in different key order collide as intended.
func hashArgs(args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte(':')
		v, err := json.Marshal(args[k])
		if err != nil {
			sb.WriteString("?")
			continue
		}
		sb.Write(v)
	}

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}
