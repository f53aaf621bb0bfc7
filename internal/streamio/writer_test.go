package streamio

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

type recordingSink struct {
	mu      sync.Mutex
	written []byte
}

func (s *recordingSink) Write(_ context.Context, _ int64, data []byte) (*int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = append(s.written, data...)
	return nil, nil
}

func TestWriterRunToEOF(t *testing.T) {
	src := &fakeSource{data: []byte("the quick brown fox")}
	r := NewReader(src)
	sink := &recordingSink{}
	w := NewWriter(r, sink, clock.NewMock())

	stats := w.Run(context.Background(), 0, time.Millisecond)
	if stats.Error != nil {
		t.Fatalf("unexpected error: %v", stats.Error)
	}
	if string(sink.written) != "the quick brown fox" {
		t.Fatalf("unexpected sink contents: %q", sink.written)
	}
	if stats.Written != int64(len(sink.written)) {
		t.Fatalf("stats.Written mismatch: %d vs %d", stats.Written, len(sink.written))
	}
}

type notAllowedSource struct{}

func (notAllowedSource) ReadAt(context.Context, int64, int) ([]byte, int64, error) {
	return nil, 0, ErrNotAllowed
}

func TestWriterRunTerminatesOnNotAllowed(t *testing.T) {
	r := NewReader(notAllowedSource{})
	w := NewWriter(r, &recordingSink{}, clock.NewMock())

	stats := w.Run(context.Background(), 0, time.Millisecond)
	if stats.Error == nil {
		t.Fatal("expected a terminal error for NotAllowed")
	}
}

type flakySource struct {
	mu       sync.Mutex
	attempts int
	failN    int
	data     []byte
}

func (f *flakySource) ReadAt(_ context.Context, pos int64, chunkSize int) ([]byte, int64, error) {
	f.mu.Lock()
	f.attempts++
	fail := f.attempts <= f.failN
	f.mu.Unlock()
	if fail {
		return nil, int64(len(f.data)), ErrNotAvailable
	}
	if pos >= int64(len(f.data)) {
		return nil, int64(len(f.data)), nil
	}
	end := pos + int64(chunkSize)
	if end > int64(len(f.data)) {
		end = int64(len(f.data))
	}
	return f.data[pos:end], int64(len(f.data)), nil
}

func TestWriterRunRetriesOnNotAvailable(t *testing.T) {
	src := &flakySource{failN: 2, data: []byte("retry-me")}
	r := NewReader(src)
	sink := &recordingSink{}
	mock := clock.NewMock()
	w := NewWriter(r, sink, mock)

	done := make(chan Stats, 1)
	go func() { done <- w.Run(context.Background(), 10*time.Second, time.Second) }()

	// Advance the mock clock enough to satisfy both retry waits, polling
	// so the advance always lands after Run has armed its timer.
	var stats Stats
	deadline := time.After(2 * time.Second)
loop:
	for {
		select {
		case stats = <-done:
			break loop
		case <-deadline:
			t.Fatal("writer did not finish before the test deadline")
		default:
			mock.Add(10 * time.Millisecond)
			time.Sleep(time.Millisecond)
		}
	}
	if stats.Error != nil {
		t.Fatalf("unexpected error: %v", stats.Error)
	}
	if string(sink.written) != "retry-me" {
		t.Fatalf("unexpected sink contents: %q", sink.written)
	}
	if stats.PausedDuration < 2*time.Second {
		t.Fatalf("expected at least 2s of paused duration, got %v", stats.PausedDuration)
	}
}

func TestWriterCloseSetsTerminalError(t *testing.T) {
	src := &flakySource{failN: 1 << 20, data: []byte("never")}
	r := NewReader(src)
	w := NewWriter(r, &recordingSink{}, clock.NewMock())

	done := make(chan Stats, 1)
	go func() { done <- w.Run(context.Background(), -1, time.Hour) }()

	w.Close()
	stats := <-done
	if stats.Error != ErrClosedWhileStreaming {
		t.Fatalf("expected ErrClosedWhileStreaming, got %v", stats.Error)
	}
}
