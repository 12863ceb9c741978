package audio_test

import (
	"testing"
	"time"

	"github.com/Raikerian/go-loopback/pkg/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatValidate(t *testing.T) {
	tests := map[string]struct {
		format  audio.Format
		wantErr bool
	}{
		"float stereo": {
			format: audio.NewFormat(48000, 2, audio.EncodingFloat32),
		},
		"int16 mono": {
			format: audio.NewFormat(44100, 1, audio.EncodingInt16),
		},
		"zero rate": {
			format:  audio.NewFormat(0, 2, audio.EncodingFloat32),
			wantErr: true,
		},
		"zero channels": {
			format:  audio.NewFormat(48000, 0, audio.EncodingFloat32),
			wantErr: true,
		},
		"unknown encoding": {
			format:  audio.NewFormat(48000, 2, audio.EncodingUnknown),
			wantErr: true,
		},
		"bit depth mismatch": {
			format: audio.Format{
				SampleRate:    48000,
				Channels:      2,
				BitsPerSample: 24,
				Encoding:      audio.EncodingInt16,
			},
			wantErr: true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			err := tt.format.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestFormatSizes(t *testing.T) {
	f := audio.NewFormat(48000, 2, audio.EncodingFloat32)

	assert.Equal(t, 4, f.BytesPerSample())
	assert.Equal(t, 8, f.BlockAlign())
	assert.Equal(t, 384000, f.BytesPerSecond())
	assert.Equal(t, 7680, f.BytesFor(20*time.Millisecond))
	assert.Equal(t, 20*time.Millisecond, f.Duration(7680))
	assert.Zero(t, f.BytesFor(10*time.Microsecond), "partial frames round down")

	i16 := audio.NewFormat(16000, 1, audio.EncodingInt16)
	assert.Equal(t, 2, i16.BlockAlign())
	assert.Equal(t, 640, i16.BytesFor(20*time.Millisecond))
}

func TestFormatString(t *testing.T) {
	assert.Equal(t, "48000 Hz, 2 ch, 32-bit float", audio.NewFormat(48000, 2, audio.EncodingFloat32).String())
	assert.Equal(t, "44100 Hz, 1 ch, 16-bit int", audio.NewFormat(44100, 1, audio.EncodingInt16).String())
}

func TestDurationOfEmptyFormat(t *testing.T) {
	require.Zero(t, audio.Format{}.Duration(1024))
}
