package loopback

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drainRing(r *frameRing) []string {
	var out []string
	var spare []byte
	for {
		item, ok := r.pop(spare)
		if !ok {
			return out
		}
		if item.err != nil {
			out = append(out, "err:"+item.err.Error())
		} else {
			out = append(out, string(item.buf))
		}
		spare = item.buf
	}
}

func TestFrameRingFIFO(t *testing.T) {
	r := newFrameRing(8)
	r.push([]byte("A"))
	r.push([]byte("B"))
	r.push([]byte("C"))

	assert.Equal(t, []string{"A", "B", "C"}, drainRing(r))
	assert.Zero(t, r.droppedCount())
}

func TestFrameRingDropOldest(t *testing.T) {
	tests := map[string]struct {
		capacity    int
		pushes      []string
		want        []string
		wantDropped uint64
	}{
		"exactly full": {
			capacity: 3,
			pushes:   []string{"A", "B", "C"},
			want:     []string{"A", "B", "C"},
		},
		"one over": {
			capacity:    3,
			pushes:      []string{"A", "B", "C", "D"},
			want:        []string{"B", "C", "D"},
			wantDropped: 1,
		},
		"wraps several times": {
			capacity:    2,
			pushes:      []string{"A", "B", "C", "D", "E", "F", "G"},
			want:        []string{"F", "G"},
			wantDropped: 5,
		},
		"capacity one": {
			capacity:    1,
			pushes:      []string{"A", "B"},
			want:        []string{"B"},
			wantDropped: 1,
		},
		"zero capacity clamps to one": {
			capacity:    0,
			pushes:      []string{"A", "B"},
			want:        []string{"B"},
			wantDropped: 1,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			r := newFrameRing(tt.capacity)
			for _, p := range tt.pushes {
				r.push([]byte(p))
			}
			assert.Equal(t, tt.want, drainRing(r))
			assert.Equal(t, tt.wantDropped, r.droppedCount())
		})
	}
}

func TestFrameRingInterleaved(t *testing.T) {
	r := newFrameRing(2)
	r.push([]byte("A"))
	item, ok := r.pop(nil)
	require.True(t, ok)
	assert.Equal(t, "A", string(item.buf))

	r.push([]byte("B"))
	r.push([]byte("C"))
	r.push([]byte("D"))
	assert.Equal(t, []string{"C", "D"}, drainRing(r))
	assert.Equal(t, 0, r.len())
}

func TestFrameRingErrorOrdering(t *testing.T) {
	r := newFrameRing(4)
	r.push([]byte("A"))
	r.push([]byte("B"))
	r.pushErr(errors.New("gone"))

	assert.Equal(t, []string{"A", "B", "err:gone"}, drainRing(r))
}

func TestFrameRingCopiesInput(t *testing.T) {
	r := newFrameRing(4)
	frame := []byte("abc")
	r.push(frame)
	frame[0] = 'x'

	item, ok := r.pop(nil)
	require.True(t, ok)
	assert.Equal(t, "abc", string(item.buf))
}

func TestFrameRingClose(t *testing.T) {
	r := newFrameRing(4)
	r.push([]byte("A"))
	r.close()
	r.push([]byte("B"))
	r.pushErr(errors.New("late"))

	assert.True(t, r.isClosed())
	assert.Equal(t, []string{"A"}, drainRing(r), "queued items survive close, later pushes are discarded")

	select {
	case <-r.ready:
	default:
		t.Fatal("close must wake the consumer")
	}
}

func TestFrameRingNotifyCoalesces(t *testing.T) {
	r := newFrameRing(4)
	r.push([]byte("A"))
	r.push([]byte("B"))

	assert.Len(t, r.ready, 1)
}

func TestFrameRingSteadyStateDoesNotAllocate(t *testing.T) {
	r := newFrameRing(4)
	frame := make([]byte, 1920)
	var spare []byte

	// warm every slot
	for i := 0; i < 8; i++ {
		r.push(frame)
		item, _ := r.pop(spare)
		spare = item.buf
	}

	allocs := testing.AllocsPerRun(100, func() {
		r.push(frame)
		item, _ := r.pop(spare)
		spare = item.buf
	})
	assert.Zero(t, allocs)
}
