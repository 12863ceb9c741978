package loopback

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/Raikerian/go-loopback/pkg/audio"
)

// WAVEFORMATEX tags.
const (
	waveFormatPCM        = 0x0001
	waveFormatIEEEFloat  = 0x0003
	waveFormatExtensible = 0xFFFE

	waveFormatExSize         = 18
	waveFormatExtensibleSize = 40
)

// KSDATAFORMAT_SUBTYPE_* GUIDs share everything after Data1, which carries
// the equivalent plain format tag.
var ksSubtypeTail = []byte{0x00, 0x00, 0x10, 0x00, 0x80, 0x00, 0x00, 0xaa, 0x00, 0x38, 0x9b, 0x71}

// parseWaveFormat decodes a WAVEFORMATEX or WAVEFORMATEXTENSIBLE as laid out
// in memory by the audio engine.
func parseWaveFormat(b []byte) (audio.Format, error) {
	if len(b) < waveFormatExSize-2 {
		return audio.Format{}, fmt.Errorf("%w: %d byte header", errUnsupportedNativeFormat, len(b))
	}

	le := binary.LittleEndian
	tag := le.Uint16(b[0:])
	channels := le.Uint16(b[2:])
	rate := le.Uint32(b[4:])
	bits := le.Uint16(b[14:])

	if tag == waveFormatExtensible {
		if len(b) < waveFormatExtensibleSize {
			return audio.Format{}, fmt.Errorf("%w: truncated extensible header", errUnsupportedNativeFormat)
		}
		if !bytes.Equal(b[28:40], ksSubtypeTail) {
			return audio.Format{}, fmt.Errorf("%w: unknown subformat", errUnsupportedNativeFormat)
		}
		tag = uint16(le.Uint32(b[24:]))
	}

	var enc audio.Encoding
	switch {
	case tag == waveFormatIEEEFloat && bits == 32:
		enc = audio.EncodingFloat32
	case tag == waveFormatPCM && bits == 16:
		enc = audio.EncodingInt16
	default:
		return audio.Format{}, fmt.Errorf("%w: tag 0x%04x at %d bits", errUnsupportedNativeFormat, tag, bits)
	}

	f := audio.NewFormat(rate, channels, enc)
	if err := f.Validate(); err != nil {
		return audio.Format{}, fmt.Errorf("%w: %w", errUnsupportedNativeFormat, err)
	}
	return f, nil
}
