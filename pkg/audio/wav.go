package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	wavFormatPCM       = 1
	wavFormatIEEEFloat = 3
)

// WAVWriter streams interleaved PCM into a RIFF/WAVE container. The header is
// written up front with zero sizes and patched on Close, so the destination
// must be seekable.
type WAVWriter struct {
	w       io.WriteSeeker
	format  Format
	written int64

	// offsets of the size fields patched on Close
	riffSizeAt int64
	factAt     int64
	dataSizeAt int64
	closed     bool
}

// NewWAVWriter writes the header for f and returns a writer positioned at
// the start of the data chunk.
func NewWAVWriter(w io.WriteSeeker, f Format) (*WAVWriter, error) {
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("wav header: %w", err)
	}

	ww := &WAVWriter{w: w, format: f, factAt: -1}
	if err := ww.writeHeader(); err != nil {
		return nil, err
	}
	return ww, nil
}

func (ww *WAVWriter) writeHeader() error {
	f := ww.format
	tag := uint16(wavFormatPCM)
	fmtSize := uint32(16)
	if f.Encoding == EncodingFloat32 {
		// non-PCM formats carry cbSize and a fact chunk
		tag = wavFormatIEEEFloat
		fmtSize = 18
	}

	var pos int64
	write := func(v any) error {
		if err := binary.Write(ww.w, binary.LittleEndian, v); err != nil {
			return err
		}
		pos += int64(binary.Size(v))
		return nil
	}
	writeTag := func(s string) error {
		n, err := io.WriteString(ww.w, s)
		pos += int64(n)
		return err
	}

	// RIFF chunk
	if err := writeTag("RIFF"); err != nil {
		return err
	}
	ww.riffSizeAt = pos
	if err := write(uint32(0)); err != nil {
		return err
	}
	if err := writeTag("WAVE"); err != nil {
		return err
	}

	// fmt  sub-chunk
	if err := writeTag("fmt "); err != nil {
		return err
	}
	fields := []any{
		fmtSize,
		tag,
		f.Channels,
		f.SampleRate,
		uint32(f.BytesPerSecond()),
		uint16(f.BlockAlign()),
		f.BitsPerSample,
	}
	for _, v := range fields {
		if err := write(v); err != nil {
			return err
		}
	}
	if fmtSize == 18 {
		if err := write(uint16(0)); err != nil {
			return err
		}
		if err := writeTag("fact"); err != nil {
			return err
		}
		if err := write(uint32(4)); err != nil {
			return err
		}
		ww.factAt = pos
		if err := write(uint32(0)); err != nil {
			return err
		}
	}

	// data sub-chunk
	if err := writeTag("data"); err != nil {
		return err
	}
	ww.dataSizeAt = pos
	return write(uint32(0))
}

// Write appends raw sample bytes. Callers pass whole sample frames.
func (ww *WAVWriter) Write(p []byte) (int, error) {
	if ww.closed {
		return 0, errors.New("wav writer closed")
	}
	n, err := ww.w.Write(p)
	ww.written += int64(n)
	return n, err
}

// Written reports the number of data bytes accepted so far.
func (ww *WAVWriter) Written() int64 {
	return ww.written
}

// Close patches the chunk sizes. It does not close the underlying writer.
func (ww *WAVWriter) Close() error {
	if ww.closed {
		return nil
	}
	ww.closed = true

	dataSize := uint32(ww.written)
	if ww.written%2 == 1 {
		// RIFF chunks are word aligned
		if _, err := ww.w.Write([]byte{0}); err != nil {
			return err
		}
	}
	end, err := ww.w.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}

	patch := func(at int64, v uint32) error {
		if _, err := ww.w.Seek(at, io.SeekStart); err != nil {
			return err
		}
		return binary.Write(ww.w, binary.LittleEndian, v)
	}
	if err := patch(ww.riffSizeAt, uint32(end-8)); err != nil {
		return err
	}
	if ww.factAt >= 0 {
		frames := uint32(0)
		if align := ww.format.BlockAlign(); align > 0 {
			frames = dataSize / uint32(align)
		}
		if err := patch(ww.factAt, frames); err != nil {
			return err
		}
	}
	if err := patch(ww.dataSizeAt, dataSize); err != nil {
		return err
	}
	_, err = ww.w.Seek(end, io.SeekStart)
	return err
}
