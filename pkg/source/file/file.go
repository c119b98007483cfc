package file

import (
	"context"
	"encoding/binary"
	"math"
	"os"
	"time"
)

// FileSource replays a raw interleaved float32 I/Q capture at roughly
// real-time pace.
type FileSource struct {
	readFile   *os.File
	bufferSize int
	sampleRate int
}

func NewFileSource(path string, bufferSize, sampleRate int) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	return &FileSource{
		readFile:   f,
		bufferSize: bufferSize,
		sampleRate: sampleRate,
	}, nil
}

func (f *FileSource) SampleRate() int {
	return f.sampleRate
}

func (f *FileSource) Start(ctx context.Context, out chan<- []complex64) error {
	interval := time.Duration(float64(f.bufferSize) / float64(f.sampleRate) * float64(time.Second))
	tick := time.NewTicker(interval)
	defer tick.Stop()

	raw := make([]byte, f.bufferSize*8)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			n, err := f.readFile.Read(raw)
			if err != nil {
				return err
			}

			buf := make([]complex64, n/8)
			for i := range buf {
				re := math.Float32frombits(binary.LittleEndian.Uint32(raw[i*8:]))
				im := math.Float32frombits(binary.LittleEndian.Uint32(raw[i*8+4:]))
				buf[i] = complex(re, im)
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case out <- buf:
			}
		}
	}
}

func (f *FileSource) Stop() error {
	return f.readFile.Close()
}
