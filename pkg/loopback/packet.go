package loopback

import "unsafe"

// packetAction is what the read loop does with one native capture packet.
type packetAction int

const (
	packetSkip packetAction = iota
	packetSilence
	packetData
)

// classifyPacket decides how a packet of frames sample frames is delivered.
// Empty packets are skipped. A packet the OS flagged silent, or one with no
// data pointer, is delivered as zeros of the same length.
func classifyPacket(frames uint32, silent, hasData bool) packetAction {
	switch {
	case frames == 0:
		return packetSkip
	case silent || !hasData:
		return packetSilence
	default:
		return packetData
	}
}

// zeroBuffer hands out zeroed slices backed by one reused allocation.
type zeroBuffer struct {
	buf []byte
}

func (z *zeroBuffer) get(n int) []byte {
	if cap(z.buf) < n {
		z.buf = make([]byte, n)
	}
	return z.buf[:n]
}

// int64Args splits a 64-bit by-value argument into syscall slots. 32-bit
// calling conventions pass it as two words, low word first.
func int64Args(v int64) []uintptr {
	if unsafe.Sizeof(uintptr(0)) == 8 {
		return []uintptr{uintptr(v)}
	}
	u := uint64(v)
	return []uintptr{uintptr(uint32(u)), uintptr(uint32(u >> 32))}
}
