package audio

import (
	"encoding/base64"
	"encoding/binary"
	"math"
	"sort"
)

// Telephony frames arrive at 8 kHz and the transcription service expects
// 24 kHz, so every sample is repeated UpsampleFactor times.
const (
	InputSampleRate  = 8000
	OutputSampleRate = 24000
	UpsampleFactor   = OutputSampleRate / InputSampleRate

	// RMSSliceMs is the window used for the loudness estimate.
	RMSSliceMs = 50

	MinGain     = 0.1
	MaxGain     = 20.0
	GainDivisor = 10.0
)

// sliceLen is the number of input samples per RMS window (400 at 8 kHz).
const sliceLen = InputSampleRate * RMSSliceMs / 1000

// Transform normalizes the gain of one 8 kHz L16 chunk and upsamples it to
// 24 kHz with a zero-order hold. The result is base64 ready to be appended
// to the transcription input buffer.
//
// Gain is recomputed for every chunk with no smoothing across chunks, which
// makes the level pump audibly between frames. Transcription tolerates it.
func Transform(chunk []byte) string {
	samples := BytesToPCM(chunk)
	gain := Gain(samples)

	out := make([]byte, len(samples)*UpsampleFactor*2)
	for i, s := range samples {
		v := uint16(applyGain(s, gain))
		for k := 0; k < UpsampleFactor; k++ {
			binary.LittleEndian.PutUint16(out[(i*UpsampleFactor+k)*2:], v)
		}
	}

	return base64.StdEncoding.EncodeToString(out)
}

// Gain returns the multiplier Transform applies to samples: the inverse of
// the 95th-percentile slice RMS, divided by GainDivisor and clamped to
// [MinGain, MaxGain]. Silence (or an empty chunk) yields 1.0.
func Gain(samples []int16) float64 {
	rms := sliceRMS(samples)
	if len(rms) == 0 {
		return 1.0
	}

	sort.Float64s(rms)
	idx := int(math.Floor(float64(len(rms)) * 0.95))
	if idx >= len(rms) {
		idx = len(rms) - 1
	}
	p95 := rms[idx]
	if p95 <= 0 {
		return 1.0
	}

	gain := 1.0 / p95 / GainDivisor
	return math.Min(math.Max(gain, MinGain), MaxGain)
}

// sliceRMS splits the samples into consecutive windows of sliceLen and
// returns the RMS of each as a float amplitude in [0, 1]. The last window may
// be shorter.
func sliceRMS(samples []int16) []float64 {
	if len(samples) == 0 {
		return nil
	}
	out := make([]float64, 0, (len(samples)+sliceLen-1)/sliceLen)
	for start := 0; start < len(samples); start += sliceLen {
		end := min(start+sliceLen, len(samples))
		var sum float64
		for _, s := range samples[start:end] {
			f := float64(s) / 32768.0
			sum += f * f
		}
		out = append(out, math.Sqrt(sum/float64(end-start)))
	}
	return out
}

// applyGain scales one sample, rounding half up, and clamps it to int16.
func applyGain(s int16, gain float64) int16 {
	v := math.Floor(float64(s)*gain + 0.5)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
