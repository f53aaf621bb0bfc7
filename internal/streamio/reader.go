package streamio

import (
	"context"
	"errors"
	"sync"
)

// Source is the read side of a blob: the owner of the actual bytes (disk
// file, remote p2pclient.ReadBlob call, object store). ReadAt returns the
// bytes available at pos, the full blob size once known, and a sentinel
// error (ErrNotAllowed, ErrNotAvailable, ErrUnrecoverable) or a plain error
// for StatusError.
type Source interface {
	ReadAt(ctx context.Context, pos int64, chunkSize int) (data []byte, size int64, err error)
}

// Reader produces the lazy, finite sequence of chunks described in
// spec §4.F. It is safe for a single producer/consumer pair; Seek and Close
// are safe to call concurrently with Next.
type Reader struct {
	src Source

	mu     sync.Mutex
	pos    int64
	buf    []Chunk
	closed bool
	size   int64
	sawEOF bool
}

// NewReader wraps src starting at offset 0.
func NewReader(src Source) *Reader {
	return &Reader{src: src}
}

// Next returns the next chunk, fetching from the Source if the internal
// buffer is empty. chunkSize defaults to MaxReadChunk when <= 0.
func (r *Reader) Next(ctx context.Context, chunkSize int) Chunk {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return Chunk{Status: StatusUnrecoverable, Err: ErrClosedWhileStreaming}
	}
	if len(r.buf) > 0 {
		c := r.buf[0]
		r.buf = r.buf[1:]
		return c
	}
	if r.sawEOF {
		return Chunk{Status: StatusEOF, Pos: r.pos, Size: r.size}
	}

	if chunkSize <= 0 {
		chunkSize = MaxReadChunk
	}
	if chunkSize > MaxReadChunk {
		return Chunk{Status: StatusUnrecoverable, Err: ErrChunkTooLarge}
	}

	data, size, err := r.src.ReadAt(ctx, r.pos, chunkSize)
	if err != nil {
		return chunkFromError(r.pos, size, err)
	}
	r.size = size
	c := Chunk{Status: StatusResult, Data: data, Pos: r.pos, Size: size}
	r.pos += int64(len(data))
	if r.pos >= size {
		r.sawEOF = true
	}
	return c
}

// Buffer appends additional prefetched chunks to the back of the pending
// queue so a Writer can read ahead of what it has consumed; chunks are
// returned by Next in the order they were buffered.
func (r *Reader) Buffer(chunks ...Chunk) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf = append(r.buf, chunks...)
}

// Seek clears any buffered chunks and resumes reading from pos.
func (r *Reader) Seek(pos int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf = nil
	r.pos = pos
	r.sawEOF = false
}

// Pos reports the reader's current offset.
func (r *Reader) Pos() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pos
}

// Close terminates the reader; subsequent Next calls return Unrecoverable
// until Reinit.
func (r *Reader) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.buf = nil
}

// Reinit allows reuse of a closed Reader against a (possibly new) Source,
// starting at pos. It fails with ErrReinitNotClosed if the reader is still
// open, per spec §4.F.
func (r *Reader) Reinit(src Source, pos int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		return ErrReinitNotClosed
	}
	r.src = src
	r.pos = pos
	r.buf = nil
	r.closed = false
	r.sawEOF = false
	r.size = 0
	return nil
}

func chunkFromError(pos, size int64, err error) Chunk {
	switch {
	case errors.Is(err, ErrNotAllowed):
		return Chunk{Status: StatusNotAllowed, Pos: pos, Size: size, Err: err}
	case errors.Is(err, ErrNotAvailable):
		return Chunk{Status: StatusNotAvailable, Pos: pos, Size: size, Err: err}
	case errors.Is(err, ErrUnrecoverable):
		return Chunk{Status: StatusUnrecoverable, Pos: pos, Size: size, Err: err}
	default:
		return Chunk{Status: StatusError, Pos: pos, Size: size, Err: err}
	}
}
