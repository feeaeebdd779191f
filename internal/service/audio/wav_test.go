package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestWav(t *testing.T, samples []int16) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "night.wav")
	var buf bytes.Buffer
	require.NoError(t, WriteWav(&buf, 16000, samples))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestReadWavHeader_SkipsUnknownChunks(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(0))
	buf.WriteString("WAVE")
	buf.WriteString("LIST")
	binary.Write(&buf, binary.LittleEndian, uint32(3))
	buf.Write([]byte{1, 2, 3, 0}) // odd chunk padded
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint32(8000))
	binary.Write(&buf, binary.LittleEndian, uint32(16000))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(8000))

	info, err := ReadWavHeader(&buf)
	require.NoError(t, err)
	assert.Equal(t, 8000, info.SampleRate)
	assert.Equal(t, 1, info.Channels)
	assert.Equal(t, 16, info.BitsPerSample)
	assert.Equal(t, 500*time.Millisecond, info.Duration())
}

func TestReadWavHeader_Rejects(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"not riff", []byte("JUNKxxxxWAVE")},
		{"no data chunk", []byte("RIFF\x00\x00\x00\x00WAVE")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadWavHeader(bytes.NewReader(tt.data))
			assert.ErrorIs(t, err, ErrFormat)
		})
	}
}

func TestWavSource_FramesAndEOF(t *testing.T) {
	samples := make([]int16, 2500)
	for i := range samples {
		samples[i] = int16(i)
	}
	path := writeTestWav(t, samples)
	base := time.UnixMilli(1773450000000)

	src := NewWavSource(path, WavOptions{FrameSamples: 1000, Base: base})
	require.NoError(t, src.Open(context.Background()))
	defer src.Close()

	var lens []int
	var times []time.Time
	for {
		f, err := src.Read(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		lens = append(lens, len(f.Samples))
		times = append(times, f.At)
	}

	assert.Equal(t, []int{1000, 1000, 500}, lens)
	assert.True(t, times[0].Equal(base))
	assert.True(t, times[1].Equal(base.Add(62500*time.Microsecond)))
	assert.True(t, times[2].Equal(base.Add(125*time.Millisecond)))
}

func TestWavSource_RejectsStereo(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteWav(&buf, 16000, []int16{1, 2}))
	data := buf.Bytes()
	binary.LittleEndian.PutUint16(data[22:24], 2)
	path := filepath.Join(t.TempDir(), "stereo.wav")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	err := NewWavSource(path, WavOptions{}).Open(context.Background())
	assert.ErrorIs(t, err, ErrFormat)
}

func TestWavSource_MissingFile(t *testing.T) {
	err := NewWavSource(filepath.Join(t.TempDir(), "nope.wav"), WavOptions{}).Open(context.Background())
	assert.Error(t, err)
}

func TestWavSource_ReadAfterClose(t *testing.T) {
	path := writeTestWav(t, []int16{1, 2, 3})
	src := NewWavSource(path, WavOptions{})
	require.NoError(t, src.Open(context.Background()))
	require.NoError(t, src.Close())
	require.NoError(t, src.Close())

	_, err := src.Read(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}
