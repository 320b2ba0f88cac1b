package waveform

import "math"

// DefaultSize is the envelope resolution used when none is configured.
const DefaultSize = 1000

// Envelope is a fixed-length amplitude summary of an audio signal.
// Each value is the mean absolute amplitude of one block of source
// samples, normalized to [0, 1].
type Envelope []float64

// Sample decodes the file at path and reduces it to an n-point envelope.
// Also returns the source duration in seconds. The envelope always has
// exactly n values regardless of source length; decode failures surface
// as *DecodeError.
func Sample(path string, n int) (Envelope, float64, error) {
	if n <= 0 {
		n = DefaultSize
	}
	samples, rate, err := decodeMono(path)
	if err != nil {
		return nil, 0, err
	}
	duration := float64(len(samples)) / float64(rate)
	return Compute(samples, n), duration, nil
}

// Compute reduces a mono sample buffer to an n-point envelope.
// Block size is floor(S/n); blocks are clamped to the buffer and an
// empty block yields 0, so short sources pad with silence rather than
// changing the envelope length.
func Compute(samples []float64, n int) Envelope {
	env := make(Envelope, n)
	blockSize := len(samples) / n
	for i := range env {
		start := i * blockSize
		end := start + blockSize
		if end > len(samples) {
			end = len(samples)
		}
		if start >= end {
			continue
		}
		var sum float64
		for _, s := range samples[start:end] {
			sum += math.Abs(s)
		}
		env[i] = sum / float64(end-start)
	}
	return env
}

// Peak returns the largest envelope value, used to scale rendering.
func (e Envelope) Peak() float64 {
	var peak float64
	for _, v := range e {
		if v > peak {
			peak = v
		}
	}
	return peak
}
