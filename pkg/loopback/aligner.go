package loopback

// frameAligner regroups a byte stream into buffers whose length is a multiple
// of the block align. Sound servers may split a read on any byte boundary;
// the remainder is held back and prefixed to the next write.
type frameAligner struct {
	align int
	carry []byte
	out   []byte
}

func newFrameAligner(blockAlign int) *frameAligner {
	if blockAlign < 1 {
		blockAlign = 1
	}
	return &frameAligner{
		align: blockAlign,
		carry: make([]byte, 0, blockAlign),
	}
}

// write passes every whole frame in p to emit as a single buffer. emit is
// not called when p does not complete a frame.
func (a *frameAligner) write(p []byte, emit FrameSink) {
	if len(a.carry) > 0 {
		need := a.align - len(a.carry)
		if len(p) < need {
			a.carry = append(a.carry, p...)
			return
		}
		a.out = append(a.out[:0], a.carry...)
		a.out = append(a.out, p[:need]...)
		p = p[need:]
		a.carry = a.carry[:0]

		whole := len(p) - len(p)%a.align
		a.out = append(a.out, p[:whole]...)
		p = p[whole:]
		emit(a.out)
	} else {
		whole := len(p) - len(p)%a.align
		if whole > 0 {
			emit(p[:whole])
		}
		p = p[whole:]
	}
	a.carry = append(a.carry, p...)
}

// pending is the number of bytes held back for the next write.
func (a *frameAligner) pending() int {
	return len(a.carry)
}

func (a *frameAligner) reset() {
	a.carry = a.carry[:0]
}
