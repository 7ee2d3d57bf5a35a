package feedback

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	cueGain     = 0.3
	cueFloor    = 0.01
	cueBitDepth = 16
	pcmFormat   = 1
)

// WAV renders t as a mono 16-bit PCM WAV file at sampleRate. The amplitude
// starts at 0.3 and decays exponentially to 0.01 over the tone's duration.
func (t Tone) WAV(sampleRate int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("feedback: invalid sample rate %d", sampleRate)
	}
	if t.FrequencyHz <= 0 || t.Duration <= 0 {
		return nil, fmt.Errorf("feedback: invalid tone %v Hz for %s", t.FrequencyHz, t.Duration)
	}

	n := int(t.Duration.Seconds() * float64(sampleRate))
	if n < 1 {
		n = 1
	}
	maxAmp := float64(int(1)<<(cueBitDepth-1) - 1)
	decay := math.Log(cueFloor / cueGain)

	data := make([]int, n)
	for i := range data {
		pos := float64(i) / float64(n)
		gain := cueGain * math.Exp(decay*pos)
		sample := math.Sin(2 * math.Pi * t.FrequencyHz * float64(i) / float64(sampleRate))
		data[i] = int(math.Round(sample * gain * maxAmp))
	}

	var buf seekBuffer
	enc := wav.NewEncoder(&buf, sampleRate, cueBitDepth, 1, pcmFormat)
	err := enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: cueBitDepth,
	})
	if err != nil {
		return nil, fmt.Errorf("feedback: encode cue: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("feedback: finalize cue: %w", err)
	}
	return buf.data, nil
}

// seekBuffer is an in-memory io.WriteSeeker. The WAV encoder seeks back to
// patch chunk sizes once all samples are written.
type seekBuffer struct {
	data []byte
	pos  int
}

func (b *seekBuffer) Write(p []byte) (int, error) {
	end := b.pos + len(p)
	if end > len(b.data) {
		b.data = append(b.data, make([]byte, end-len(b.data))...)
	}
	copy(b.data[b.pos:], p)
	b.pos = end
	return len(p), nil
}

func (b *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(b.pos) + offset
	case io.SeekEnd:
		abs = int64(len(b.data)) + offset
	default:
		return 0, errors.New("feedback: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("feedback: negative position")
	}
	b.pos = int(abs)
	return abs, nil
}
