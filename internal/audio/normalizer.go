// Package audio turns arbitrary recordings into fixed-length mono 16 kHz WAV
// segments that fit the transcription provider's upload limit.
package audio

import (
	"context"
	"path/filepath"
	"strings"

	"interview-insights-go/internal/logger"
)

const (
	DefaultSampleRate     = 16000
	DefaultSegmentSeconds = 300
	defaultPassthroughExt = "webm"
)

// Segment is one uploadable piece of a recording.
type Segment struct {
	Index   int
	Total   int
	Data    []byte
	Ext     string
	Samples int // 0 for passthrough segments
}

type Options struct {
	SampleRate     int
	SegmentSeconds int
	FFmpegPath     string // empty disables non-WAV decoding
}

type Normalizer struct {
	opts Options
	run  runFunc
	log  *logger.Logger
}

func NewNormalizer(opts Options, log *logger.Logger) *Normalizer {
	if opts.SampleRate <= 0 {
		opts.SampleRate = DefaultSampleRate
	}
	if opts.SegmentSeconds <= 0 {
		opts.SegmentSeconds = DefaultSegmentSeconds
	}
	return &Normalizer{opts: opts, run: execRun, log: log.Component("audio")}
}

// Normalize decodes data, downmixes to mono, resamples and splits it into
// windows of SegmentSeconds. When the input cannot be decoded it is returned
// unchanged as a single segment. A recording with no samples yields no segments.
func (n *Normalizer) Normalize(ctx context.Context, data []byte, filename string) ([]Segment, error) {
	if len(data) == 0 {
		return nil, nil
	}

	decoded, err := n.decode(ctx, data)
	if err != nil {
		ext := extFromName(filename)
		n.log.WithError(err).WithField("ext", ext).Warn("audio decode failed, uploading original")
		return []Segment{{Index: 0, Total: 1, Data: data, Ext: ext}}, nil
	}

	mono := Downmix(decoded.channels)
	mono = Resample(mono, decoded.sampleRate, n.opts.SampleRate)
	windows := Split(mono, n.opts.SampleRate, n.opts.SegmentSeconds)

	segments := make([]Segment, len(windows))
	for i, w := range windows {
		segments[i] = Segment{
			Index:   i,
			Total:   len(windows),
			Data:    EncodeWAV(w, n.opts.SampleRate),
			Ext:     "wav",
			Samples: len(w),
		}
	}
	n.log.WithField("segments", len(segments)).WithField("samples", len(mono)).Debug("audio normalized")
	return segments, nil
}

func (n *Normalizer) decode(ctx context.Context, data []byte) (pcm, error) {
	if isWAV(data) {
		if p, err := decodeWAV(data); err == nil {
			return p, nil
		} else if n.opts.FFmpegPath == "" {
			return pcm{}, err
		}
	}
	if n.opts.FFmpegPath == "" {
		return pcm{}, errUndecodable
	}
	return decodeFFmpeg(ctx, n.run, n.opts.FFmpegPath, data, n.opts.SampleRate)
}

// Downmix averages channels sample by sample.
func Downmix(channels [][]float32) []float32 {
	switch len(channels) {
	case 0:
		return nil
	case 1:
		return channels[0]
	}
	frames := len(channels[0])
	out := make([]float32, frames)
	scale := 1 / float32(len(channels))
	for i := 0; i < frames; i++ {
		var sum float32
		for _, ch := range channels {
			sum += ch[i]
		}
		out[i] = sum * scale
	}
	return out
}

// Resample converts between sample rates by linear interpolation.
func Resample(in []float32, from, to int) []float32 {
	if from == to || len(in) == 0 || from <= 0 || to <= 0 {
		return in
	}
	outLen := int(int64(len(in)) * int64(to) / int64(from))
	out := make([]float32, outLen)
	ratio := float64(from) / float64(to)
	last := len(in) - 1
	for i := range out {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= last {
			out[i] = in[last]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = in[j] + (in[j+1]-in[j])*frac
	}
	return out
}

// Split partitions samples into consecutive windows of seconds*sampleRate.
// The last window may be shorter; no window is ever empty.
func Split(samples []float32, sampleRate, seconds int) [][]float32 {
	window := sampleRate * seconds
	if window <= 0 || len(samples) == 0 {
		return nil
	}
	out := make([][]float32, 0, (len(samples)+window-1)/window)
	for start := 0; start < len(samples); start += window {
		end := min(start+window, len(samples))
		out = append(out, samples[start:end])
	}
	return out
}

func extFromName(name string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if ext == "" {
		return defaultPassthroughExt
	}
	return ext
}

// MIMEType maps a file extension to the content type sent to the transcription
// provider and stored with uploaded objects.
func MIMEType(ext string) string {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "m4a", "mp4":
		return "audio/mp4"
	case "mp3", "mpeg", "mpga":
		return "audio/mpeg"
	case "webm":
		return "audio/webm"
	case "ogg", "oga":
		return "audio/ogg"
	case "flac":
		return "audio/flac"
	default:
		return "audio/wav"
	}
}
