package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/go-audio/wav"
)

// pcm is decoded audio: interleaved-free, one slice per channel.
type pcm struct {
	channels   [][]float32
	sampleRate int
}

var errUndecodable = errors.New("audio: undecodable input")

// decodeWAV decodes integer PCM WAV data with go-audio.
func decodeWAV(data []byte) (pcm, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	d.ReadInfo()
	if err := d.Err(); err != nil {
		return pcm{}, fmt.Errorf("read wav info: %w", err)
	}
	if d.WavAudioFormat != 1 {
		return pcm{}, fmt.Errorf("%w: wav format %d", errUndecodable, d.WavAudioFormat)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return pcm{}, fmt.Errorf("read wav samples: %w", err)
	}
	if buf == nil || buf.Format == nil || buf.Format.NumChannels < 1 || buf.Format.SampleRate < 1 {
		return pcm{}, fmt.Errorf("%w: missing wav format", errUndecodable)
	}

	nch := buf.Format.NumChannels
	depth := buf.SourceBitDepth
	if depth == 0 {
		depth = int(d.BitDepth)
	}
	frames := len(buf.Data) / nch
	out := pcm{channels: make([][]float32, nch), sampleRate: buf.Format.SampleRate}
	for c := range out.channels {
		out.channels[c] = make([]float32, frames)
	}
	for i := 0; i < frames*nch; i++ {
		out.channels[i%nch][i/nch] = intToFloat(buf.Data[i], depth)
	}
	return out, nil
}

func intToFloat(v, depth int) float32 {
	if depth == 8 {
		// 8-bit WAV is unsigned
		return float32(v-128) / 128
	}
	return float32(v) / float32(int64(1)<<(depth-1))
}

// runFunc runs a command with stdin and returns its stdout.
type runFunc func(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error)

func execRun(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(stdin)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(lastLine(stderr.String())))
	}
	return stdout.Bytes(), nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// ffmpegArgs decodes stdin to raw mono 16-bit PCM on stdout at the target rate.
func ffmpegArgs(sampleRate int) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-loglevel", "error",
		"-i", "pipe:0",
		"-vn",
		"-ac", "1",
		"-ar", fmt.Sprint(sampleRate),
		"-c:a", "pcm_s16le",
		"-f", "s16le",
		"pipe:1",
	}
}

// decodeFFmpeg decodes any container ffmpeg understands into mono PCM at sampleRate.
func decodeFFmpeg(ctx context.Context, run runFunc, ffmpegPath string, data []byte, sampleRate int) (pcm, error) {
	raw, err := run(ctx, data, ffmpegPath, ffmpegArgs(sampleRate)...)
	if err != nil {
		return pcm{}, err
	}
	samples := make([]float32, len(raw)/2)
	for i := range samples {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(raw[i*2:]))) / 32768
	}
	return pcm{channels: [][]float32{samples}, sampleRate: sampleRate}, nil
}
