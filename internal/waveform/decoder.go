package waveform

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	mp3 "github.com/hajimehoshi/go-mp3"
)

// DecodeError reports that a source could not be parsed as audio.
// It is local and non-retryable: the user needs a different file.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// decodeMono decodes an audio file to normalized mono samples in [-1, 1],
// first channel only. WAV and MP3 are parsed natively; everything else
// goes through FFmpeg. Returns the samples and the source sample rate.
func decodeMono(path string) ([]float64, int, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		samples, rate, err := decodeWAV(path)
		if err != nil {
			return nil, 0, &DecodeError{Path: path, Err: err}
		}
		return samples, rate, nil
	case ".mp3":
		samples, rate, err := decodeMP3(path)
		if err != nil {
			return nil, 0, &DecodeError{Path: path, Err: err}
		}
		return samples, rate, nil
	default:
		samples, err := ffmpegMono(path)
		if err != nil {
			return nil, 0, &DecodeError{Path: path, Err: err}
		}
		return samples, ffmpegRate, nil
	}
}

func decodeWAV(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, err
	}
	if buf == nil || buf.Format == nil || buf.Format.NumChannels == 0 {
		return nil, 0, fmt.Errorf("wav: no PCM data")
	}

	channels := buf.Format.NumChannels
	depth := buf.SourceBitDepth
	if depth == 0 {
		depth = 16
	}
	scale := float64(int64(1) << (depth - 1))

	samples := make([]float64, 0, len(buf.Data)/channels)
	for i := 0; i < len(buf.Data); i += channels {
		samples = append(samples, float64(buf.Data[i])/scale)
	}
	return samples, buf.Format.SampleRate, nil
}

func decodeMP3(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, 0, err
	}

	// go-mp3 always emits 16-bit little-endian stereo.
	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, 0, err
	}

	samples := make([]float64, 0, len(raw)/4)
	for i := 0; i+3 < len(raw); i += 4 {
		left := int16(binary.LittleEndian.Uint16(raw[i : i+2]))
		samples = append(samples, float64(left)/32768)
	}
	return samples, dec.SampleRate(), nil
}

// ffmpegRate is the sample rate FFmpeg-decoded audio is resampled to.
const ffmpegRate = 48000

// ffmpegMono runs FFmpeg to decode any container to raw mono PCM,
// first channel only.
func ffmpegMono(path string) ([]float64, error) {
	cmd := exec.Command("ffmpeg",
		"-i", path,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", fmt.Sprint(ffmpegRate),
		"-af", "pan=mono|c0=c0",
		"-loglevel", "error",
		"pipe:1",
	)

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("ffmpeg: no audio stream")
	}
	if len(out)%2 != 0 {
		out = out[:len(out)-1]
	}

	samples := make([]float64, len(out)/2)
	for i := range samples {
		s := int16(binary.LittleEndian.Uint16(out[i*2 : i*2+2]))
		samples[i] = float64(s) / 32768
	}
	return samples, nil
}

// DecodeStereo runs FFmpeg to decode an audio file to raw PCM int16 samples
// for playback. Returns interleaved stereo samples at 48kHz.
func DecodeStereo(path string) ([]int16, error) {
	cmd := exec.Command("ffmpeg",
		"-i", path,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", "48000",
		"-ac", "2",
		"-loglevel", "error",
		"pipe:1",
	)

	out, err := cmd.Output()
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}

	// Ensure even byte count for int16 alignment
	if len(out)%2 != 0 {
		out = out[:len(out)-1]
	}

	samples := make([]int16, len(out)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(out[i*2 : i*2+2]))
	}

	return samples, nil
}

// SamplesToBytes converts int16 samples to little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}
