package audio_test

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/Raikerian/go-loopback/pkg/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeWAV(t *testing.T, f audio.Format, chunks ...[]byte) []byte {
	t.Helper()

	path := filepath.Join(t.TempDir(), "out.wav")
	file, err := os.Create(path)
	require.NoError(t, err)

	w, err := audio.NewWAVWriter(file, f)
	require.NoError(t, err)
	for _, c := range chunks {
		n, err := w.Write(c)
		require.NoError(t, err)
		require.Equal(t, len(c), n)
	}
	require.NoError(t, w.Close())
	require.NoError(t, w.Close(), "close is idempotent")
	require.NoError(t, file.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func TestWAVWriterFloat(t *testing.T) {
	f := audio.NewFormat(48000, 2, audio.EncodingFloat32)
	pcm := audio.Float32ToLE(sine(440, 0.5, 48000, 480, 2))

	data := writeWAV(t, f, pcm[:len(pcm)/2], pcm[len(pcm)/2:])

	le := binary.LittleEndian
	assert.Equal(t, "RIFF", string(data[0:4]))
	assert.Equal(t, uint32(len(data)-8), le.Uint32(data[4:8]))
	assert.Equal(t, "WAVE", string(data[8:12]))
	assert.Equal(t, "fmt ", string(data[12:16]))
	assert.Equal(t, uint32(18), le.Uint32(data[16:20]))
	assert.Equal(t, uint16(3), le.Uint16(data[20:22]), "IEEE float tag")
	assert.Equal(t, uint16(2), le.Uint16(data[22:24]))
	assert.Equal(t, uint32(48000), le.Uint32(data[24:28]))
	assert.Equal(t, uint32(384000), le.Uint32(data[28:32]))
	assert.Equal(t, uint16(8), le.Uint16(data[32:34]))
	assert.Equal(t, uint16(32), le.Uint16(data[34:36]))
	assert.Equal(t, uint16(0), le.Uint16(data[36:38]))

	assert.Equal(t, "fact", string(data[38:42]))
	assert.Equal(t, uint32(480), le.Uint32(data[46:50]))

	assert.Equal(t, "data", string(data[50:54]))
	assert.Equal(t, uint32(len(pcm)), le.Uint32(data[54:58]))
	assert.Equal(t, pcm, data[58:])
}

func TestWAVWriterInt16(t *testing.T) {
	f := audio.NewFormat(16000, 1, audio.EncodingInt16)
	pcm := audio.PCMInt16ToLE([]int16{1, 2, 3, 4, 5})

	data := writeWAV(t, f, pcm)

	le := binary.LittleEndian
	assert.Equal(t, uint32(16), le.Uint32(data[16:20]))
	assert.Equal(t, uint16(1), le.Uint16(data[20:22]), "PCM tag")
	assert.Equal(t, "data", string(data[36:40]))
	assert.Equal(t, uint32(10), le.Uint32(data[40:44]))
	assert.Equal(t, pcm, data[44:])
	assert.Equal(t, uint32(len(data)-8), le.Uint32(data[4:8]))
}

func TestWAVWriterRejectsInvalidFormat(t *testing.T) {
	file, err := os.Create(filepath.Join(t.TempDir(), "bad.wav"))
	require.NoError(t, err)
	defer file.Close()

	_, err = audio.NewWAVWriter(file, audio.Format{})
	assert.Error(t, err)
}

func TestWAVWriterWriteAfterClose(t *testing.T) {
	file, err := os.Create(filepath.Join(t.TempDir(), "closed.wav"))
	require.NoError(t, err)
	defer file.Close()

	w, err := audio.NewWAVWriter(file, audio.NewFormat(48000, 2, audio.EncodingFloat32))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = w.Write([]byte{0, 0, 0, 0})
	assert.Error(t, err)
	assert.Zero(t, w.Written())
}
