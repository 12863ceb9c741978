package loopback

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
)

func TestClassifyPacket(t *testing.T) {
	tests := map[string]struct {
		frames  uint32
		silent  bool
		hasData bool
		want    packetAction
	}{
		"data":                 {frames: 480, hasData: true, want: packetData},
		"flagged silent":       {frames: 480, silent: true, hasData: true, want: packetSilence},
		"no data pointer":      {frames: 480, want: packetSilence},
		"silent without data":  {frames: 480, silent: true, want: packetSilence},
		"empty packet":         {frames: 0, hasData: true, want: packetSkip},
		"empty flagged silent": {frames: 0, silent: true, want: packetSkip},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyPacket(tt.frames, tt.silent, tt.hasData))
		})
	}
}

func TestZeroBuffer(t *testing.T) {
	var z zeroBuffer

	small := z.get(8)
	assert.Len(t, small, 8)
	assert.Equal(t, make([]byte, 8), small)

	large := z.get(32)
	assert.Len(t, large, 32)
	assert.Equal(t, make([]byte, 32), large)

	again := z.get(16)
	assert.Len(t, again, 16)
	assert.Equal(t, &large[0], &again[0], "backing array reused")
}

func TestInt64Args(t *testing.T) {
	const hns = int64(200) * 10_000 // 200ms in 100ns units

	if unsafe.Sizeof(uintptr(0)) == 8 {
		assert.Equal(t, []uintptr{uintptr(hns)}, int64Args(hns))
		assert.Equal(t, []uintptr{0}, int64Args(0))
		return
	}

	assert.Equal(t, []uintptr{uintptr(hns), 0}, int64Args(hns))
	assert.Equal(t, []uintptr{0, 0}, int64Args(0))
	assert.Equal(t, []uintptr{0xFFFFFFFF, 0x1}, int64Args(0x1_FFFF_FFFF))
}
