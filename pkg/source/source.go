package source

import "context"

// Source produces the complex baseband stream the analyzer consumes.
// Start blocks until the context dies or the stream ends, delivering
// fixed-size buffers on out. Buffers become read-only once delivered.
type Source interface {
	Start(ctx context.Context, out chan<- []complex64) error
	SampleRate() int
	Stop() error
}
