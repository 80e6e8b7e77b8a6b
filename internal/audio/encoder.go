package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// WAV container constants. The canonical PCM header is 44 bytes: RIFF
// descriptor, fmt sub-chunk (16-byte PCM layout) and the data sub-chunk.
const (
	wavHeaderSize = 44
	pcmFormatTag  = 1
)

// Format describes the PCM layout of a WAV container.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// FloatToPCM16 converts normalized float samples to 16-bit little-endian
// PCM. Samples are clamped to [-1, 1] before scaling, so out-of-range
// input maps to the boundary value. The result is always len(samples)*2
// bytes.
func FloatToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		f := float64(s)
		if f > 1.0 {
			f = 1.0
		} else if f < -1.0 {
			f = -1.0
		}
		v := int16(math.Round(f * 32767))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// BuildWAV concatenates PCM chunks in arrival order and prefixes the
// canonical 44-byte RIFF/WAVE header. The data length field always equals
// the concatenated payload length; all fields are little-endian.
func BuildWAV(chunks [][]byte, sampleRate, channels, bitsPerSample int) []byte {
	dataLen := 0
	for _, c := range chunks {
		dataLen += len(c)
	}

	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	buf := make([]byte, wavHeaderSize, wavHeaderSize+dataLen)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataLen))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], pcmFormatTag)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], uint16(bitsPerSample))

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataLen))

	for _, c := range chunks {
		buf = append(buf, c...)
	}
	return buf
}

// ParseWAV recovers the PCM format and payload from a container produced
// by BuildWAV. It rejects blobs that are too short, carry the wrong magic
// values, or whose data length field disagrees with the payload.
func ParseWAV(blob []byte) (Format, []byte, error) {
	if len(blob) < wavHeaderSize {
		return Format{}, nil, fmt.Errorf("wav container too short: %d bytes", len(blob))
	}
	if string(blob[0:4]) != "RIFF" || string(blob[8:12]) != "WAVE" {
		return Format{}, nil, fmt.Errorf("not a RIFF/WAVE container")
	}
	if string(blob[12:16]) != "fmt " || string(blob[36:40]) != "data" {
		return Format{}, nil, fmt.Errorf("unexpected sub-chunk layout")
	}
	if tag := binary.LittleEndian.Uint16(blob[20:22]); tag != pcmFormatTag {
		return Format{}, nil, fmt.Errorf("unsupported format tag %d", tag)
	}

	f := Format{
		Channels:      int(binary.LittleEndian.Uint16(blob[22:24])),
		SampleRate:    int(binary.LittleEndian.Uint32(blob[24:28])),
		BitsPerSample: int(binary.LittleEndian.Uint16(blob[34:36])),
	}

	dataLen := int(binary.LittleEndian.Uint32(blob[40:44]))
	payload := blob[wavHeaderSize:]
	if dataLen != len(payload) {
		return Format{}, nil, fmt.Errorf("data length field %d does not match payload %d", dataLen, len(payload))
	}
	return f, payload, nil
}
