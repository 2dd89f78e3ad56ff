package audio

import (
	"bytes"
	"encoding/binary"
)

const wavHeaderSize = 44

// writeWAVHeader writes a canonical 44-byte RIFF/WAVE header for integer PCM.
func writeWAVHeader(buf *bytes.Buffer, channels, sampleRate, bitDepth, dataLen int) {
	blockAlign := channels * bitDepth / 8
	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate*blockAlign))
	_ = binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(buf, binary.LittleEndian, uint16(bitDepth))
	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, uint32(dataLen))
}

// EncodeWAV encodes mono float samples as 16-bit little-endian PCM WAV.
// Samples are clamped to [-1, 1]; negatives scale by 0x8000, positives by 0x7FFF.
func EncodeWAV(samples []float32, sampleRate int) []byte {
	dataLen := len(samples) * 2
	var buf bytes.Buffer
	buf.Grow(wavHeaderSize + dataLen)
	writeWAVHeader(&buf, 1, sampleRate, 16, dataLen)

	pcm := make([]byte, dataLen)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(quantize(s)))
	}
	buf.Write(pcm)
	return buf.Bytes()
}

func quantize(s float32) int16 {
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	if s < 0 {
		return int16(s * 0x8000)
	}
	return int16(s * 0x7FFF)
}

func isWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}
