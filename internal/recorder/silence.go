package recorder

import (
	"time"

	"github.com/Raikerian/go-loopback/pkg/audio"
)

// silenceDetector fires once no observed buffer has reached the threshold
// for the timeout. A zero timeout disables it; C then never fires.
//
//	d := newSilenceDetector(format, 0.01, 5*time.Second)
//	defer d.stop()
//	for {
//	    select {
//	    case buf := <-chunks:
//	        d.observe(buf)
//	    case <-d.C():
//	        return // quiet for 5s
//	    }
//	}
type silenceDetector struct {
	format    audio.Format
	threshold float32
	timeout   time.Duration
	timer     *time.Timer
}

func newSilenceDetector(f audio.Format, threshold float64, timeout time.Duration) *silenceDetector {
	d := &silenceDetector{
		format:    f,
		threshold: float32(threshold),
		timeout:   timeout,
	}
	if timeout > 0 {
		d.timer = time.NewTimer(timeout)
	}
	return d
}

// observe restarts the countdown if buf is loud enough and reports whether
// it was.
func (d *silenceDetector) observe(buf []byte) bool {
	loud := audio.RMS(buf, d.format) >= d.threshold
	if loud && d.timer != nil {
		d.timer.Reset(d.timeout)
	}
	return loud
}

func (d *silenceDetector) C() <-chan time.Time {
	if d.timer == nil {
		return nil
	}
	return d.timer.C
}

func (d *silenceDetector) stop() {
	if d.timer != nil {
		d.timer.Stop()
	}
}
