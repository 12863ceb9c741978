package recorder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Raikerian/go-loopback/pkg/audio"
)

func TestSilenceDetector(t *testing.T) {
	f := audio.NewFormat(48000, 1, audio.EncodingInt16)
	quiet := make([]byte, 960)
	loud := audio.PCMInt16ToLE([]int16{16000, -16000, 16000, -16000})

	t.Run("fires after timeout", func(t *testing.T) {
		d := newSilenceDetector(f, 0.01, 30*time.Millisecond)
		defer d.stop()

		assert.False(t, d.observe(quiet))
		select {
		case <-d.C():
		case <-time.After(time.Second):
			t.Fatal("detector did not fire")
		}
	})

	t.Run("loud audio keeps it armed", func(t *testing.T) {
		d := newSilenceDetector(f, 0.01, 80*time.Millisecond)
		defer d.stop()

		deadline := time.After(120 * time.Millisecond)
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
	loop:
		for {
			select {
			case <-ticker.C:
				assert.True(t, d.observe(loud))
			case <-d.C():
				t.Fatal("detector fired while audio was playing")
			case <-deadline:
				break loop
			}
		}

		select {
		case <-d.C():
		case <-time.After(time.Second):
			t.Fatal("detector did not fire after audio stopped")
		}
	})

	t.Run("disabled", func(t *testing.T) {
		d := newSilenceDetector(f, 0.01, 0)
		defer d.stop()

		assert.Nil(t, d.C())
		assert.True(t, d.observe(loud))
	})
}
