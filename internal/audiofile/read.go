// Package audiofile loads audio files into mono float32 buffers and writes
// renders back as 16-bit WAV.
package audiofile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cwbudde/wav"
	"github.com/go-audio/aiff"
	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

// ErrUnsupportedFormat reports a file extension no decoder handles.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Supported lists the file extensions ReadMono accepts.
var Supported = []string{".wav", ".wave", ".mp3", ".ogg", ".aif", ".aiff"}

// ReadMono decodes the file at path and downmixes it to mono by averaging
// channels. It returns the samples and the file's sample rate.
func ReadMono(path string) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	var (
		data []float32
		ch   int
		sr   int
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav", ".wave":
		data, ch, sr, err = decodeWAV(f)
	case ".mp3":
		data, ch, sr, err = decodeMP3(f)
	case ".ogg":
		data, ch, sr, err = decodeVorbis(f)
	case ".aif", ".aiff":
		data, ch, sr, err = decodeAIFF(f)
	default:
		return nil, 0, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", path, err)
	}
	if sr <= 0 {
		return nil, 0, fmt.Errorf("%s: invalid sample rate %d", path, sr)
	}
	return Downmix(data, ch), sr, nil
}

// Downmix averages interleaved frames of ch channels into one channel.
func Downmix(interleaved []float32, ch int) []float32 {
	if ch <= 1 {
		out := make([]float32, len(interleaved))
		copy(out, interleaved)
		return out
	}
	frames := len(interleaved) / ch
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < ch; c++ {
			sum += float64(interleaved[i*ch+c])
		}
		out[i] = float32(sum / float64(ch))
	}
	return out
}

func decodeWAV(r io.ReadSeeker) ([]float32, int, int, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, 0, 0, fmt.Errorf("invalid wav file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, 0, err
	}
	if buf == nil || buf.Format == nil || buf.Format.NumChannels < 1 {
		return nil, 0, 0, fmt.Errorf("invalid wav buffer")
	}
	return buf.Data, buf.Format.NumChannels, buf.Format.SampleRate, nil
}

// decodeMP3 reads the whole stream. go-mp3 always yields 16-bit
// little-endian stereo.
func decodeMP3(r io.Reader) ([]float32, int, int, error) {
	dec, err := gomp3.NewDecoder(r)
	if err != nil {
		return nil, 0, 0, err
	}
	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, 0, 0, err
	}
	samples := len(raw) / 2
	out := make([]float32, samples)
	for i := range samples {
		v := int16(uint16(raw[2*i]) | uint16(raw[2*i+1])<<8)
		out[i] = float32(v) / 32768.0
	}
	return out, 2, dec.SampleRate(), nil
}

func decodeVorbis(r io.Reader) ([]float32, int, int, error) {
	data, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return nil, 0, 0, err
	}
	if format == nil || format.Channels < 1 {
		return nil, 0, 0, fmt.Errorf("invalid vorbis stream")
	}
	return data, format.Channels, format.SampleRate, nil
}

func decodeAIFF(r io.ReadSeeker) ([]float32, int, int, error) {
	dec := aiff.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, 0, 0, fmt.Errorf("invalid aiff file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, 0, err
	}
	if buf == nil || buf.Format == nil || buf.Format.NumChannels < 1 {
		return nil, 0, 0, fmt.Errorf("invalid aiff buffer")
	}
	var scale float32
	switch dec.BitDepth {
	case 8:
		scale = 128.0
	case 24:
		scale = 8388608.0
	case 32:
		scale = 2147483648.0
	default:
		scale = 32768.0
	}
	out := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		out[i] = float32(v) / scale
	}
	return out, buf.Format.NumChannels, buf.Format.SampleRate, nil
}
