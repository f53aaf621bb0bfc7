package streamio

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Sink is the write side of a blob transfer. A non-nil fseek return tells
// the Writer to seek its Reader there and discard the chunk just handed to
// Write — the resume semantics in spec §4.F.
type Sink interface {
	Write(ctx context.Context, pos int64, data []byte) (fseek *int64, err error)
}

// Stats is the cumulative progress snapshot maintained by Writer.Run
// (spec §4.F).
type Stats struct {
	Written        int64
	Pos            int64
	Size           int64
	Throughput     float64 // bytes per second, computed over Duration
	StartTime      time.Time
	PausedDuration time.Duration
	Duration       time.Duration
	IsPaused       bool
	Error          error
	FinishTime     time.Time
}

// Writer drives a Reader, handing each chunk to a Sink, with the
// retry/backoff behavior of spec §4.F's run operation.
type Writer struct {
	reader *Reader
	sink   Sink
	clk    clock.Clock

	mu       sync.Mutex
	stats    Stats
	closed   bool
	closeCh  chan struct{}
	closeSet sync.Once
}

// NewWriter pairs a Reader with a Sink. clk may be nil, in which case the
// real wall clock is used.
func NewWriter(r *Reader, sink Sink, clk clock.Clock) *Writer {
	if clk == nil {
		clk = clock.New()
	}
	return &Writer{reader: r, sink: sink, clk: clk, closeCh: make(chan struct{})}
}

// Stats returns a snapshot of the writer's cumulative progress.
func (w *Writer) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// write performs a single next/write step, mirroring spec §4.F's write
// operation: (status, error, fseek?).
func (w *Writer) write(ctx context.Context) (Status, error, *int64) {
	chunk := w.reader.Next(ctx, 0)
	switch chunk.Status {
	case StatusResult:
		fseek, err := w.sink.Write(ctx, chunk.Pos, chunk.Data)
		if err != nil {
			return StatusError, err, nil
		}
		w.mu.Lock()
		w.stats.Written += int64(len(chunk.Data))
		w.stats.Pos = chunk.Pos + int64(len(chunk.Data))
		w.stats.Size = chunk.Size
		w.mu.Unlock()
		if fseek != nil {
			w.reader.Seek(*fseek)
		}
		return StatusResult, nil, fseek
	default:
		return chunk.Status, chunk.Err, nil
	}
}

// Run loops write until EOF or a terminal (non-NotAvailable) status,
// pausing and retrying on NotAvailable. When retryTimeout < 0 the delay
// between retries doubles every 10 seconds of elapsed pause time, matching
// the teacher's reaper-style ticking loop in core/connection_pool.go:
// select on a timer tick or a closing signal. When retryTimeout >= 0,
// retrying stops once that much time has elapsed in NotAvailable state and
// the loop terminates with StatusNotAvailable.
func (w *Writer) Run(ctx context.Context, retryTimeout, retryDelay time.Duration) Stats {
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}

	w.mu.Lock()
	w.stats.StartTime = w.clk.Now()
	w.mu.Unlock()

	var notAvailableElapsed, lastDoubled time.Duration
	delay := retryDelay

	for {
		select {
		case <-w.closeCh:
			w.finish(StatusUnrecoverable, ErrClosedWhileStreaming)
			return w.Stats()
		case <-ctx.Done():
			w.finish(StatusUnrecoverable, ctx.Err())
			return w.Stats()
		default:
		}

		status, err, _ := w.write(ctx)
		switch status {
		case StatusResult:
			notAvailableElapsed = 0
			lastDoubled = 0
			delay = retryDelay
			continue
		case StatusEOF:
			w.finish(StatusEOF, nil)
			return w.Stats()
		case StatusNotAvailable:
			if retryTimeout >= 0 && notAvailableElapsed >= retryTimeout {
				w.finish(StatusNotAvailable, err)
				return w.Stats()
			}
			w.setPaused(true)
			timer := w.clk.Timer(delay)
			select {
			case <-timer.C:
			case <-w.closeCh:
				timer.Stop()
				w.finish(StatusUnrecoverable, ErrClosedWhileStreaming)
				return w.Stats()
			case <-ctx.Done():
				timer.Stop()
				w.finish(StatusUnrecoverable, ctx.Err())
				return w.Stats()
			}
			w.setPaused(false)
			notAvailableElapsed += delay
			w.mu.Lock()
			w.stats.PausedDuration += delay
			w.mu.Unlock()
			if retryTimeout < 0 && notAvailableElapsed-lastDoubled >= 10*time.Second {
				delay *= 2
				lastDoubled = notAvailableElapsed
			}
			continue
		default:
			// NotAllowed, Error, Unrecoverable all terminate the run.
			w.finish(status, err)
			return w.Stats()
		}
	}
}

func (w *Writer) setPaused(paused bool) {
	w.mu.Lock()
	w.stats.IsPaused = paused
	w.mu.Unlock()
}

func (w *Writer) finish(status Status, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stats.IsPaused = false
	w.stats.FinishTime = w.clk.Now()
	w.stats.Duration = w.stats.FinishTime.Sub(w.stats.StartTime)
	if status != StatusEOF {
		if err != nil {
			w.stats.Error = err
		} else {
			w.stats.Error = errForStatus(status)
		}
	}
	if w.stats.Duration > 0 {
		w.stats.Throughput = float64(w.stats.Written) / w.stats.Duration.Seconds()
	}
}

func errForStatus(status Status) error {
	switch status {
	case StatusNotAllowed:
		return ErrNotAllowed
	case StatusNotAvailable:
		return ErrNotAvailable
	default:
		return ErrUnrecoverable
	}
}

// Close interrupts a paused or blocked Run loop, setting the terminal
// "closed while streaming" error, and closes the underlying Reader
// (spec §4.F "Cancellation").
func (w *Writer) Close() {
	w.closeSet.Do(func() { close(w.closeCh) })
	w.reader.Close()
}
