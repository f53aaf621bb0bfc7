package p2pclient

import (
	"sync"
	"testing"

	"github.com/benbjohnson/clock"
)

func TestGetResponseDeliverAndFinal(t *testing.T) {
	var replies int
	var mu sync.Mutex
	g := newGetResponse(NewMsgID(), clock.New(), func(Envelope) error { return nil }, Handlers{
		OnReply: func(Envelope) {
			mu.Lock()
			replies++
			mu.Unlock()
		},
	}, 0, 0, 0)

	g.deliver(Envelope{Seq: 1, EndSeq: 2, Data: []byte("a")})
	g.deliver(Envelope{Seq: 2, EndSeq: 2, Data: []byte("b")})

	mu.Lock()
	defer mu.Unlock()
	if replies != 2 {
		t.Fatalf("expected 2 replies, got %d", replies)
	}
}

func TestGetResponseDiscardsLateReply(t *testing.T) {
	var replies int
	g := newGetResponse(NewMsgID(), clock.New(), func(Envelope) error { return nil }, Handlers{
		OnReply: func(Envelope) { replies++ },
	}, 0, 0, 0)

	g.deliver(Envelope{Seq: 1, EndSeq: 1, Data: []byte("final")})
	g.deliver(Envelope{Seq: 2, EndSeq: 2, Data: []byte("late")})

	if replies != 1 {
		t.Fatalf("expected the late reply after the final one to be discarded, got %d delivered", replies)
	}
}

func TestGetResponseCancelSendsUnsubscribeAndFiresOnCancel(t *testing.T) {
	var sentAction RouteAction
	var canceled bool
	msgID := NewMsgID()
	g := newGetResponse(msgID, clock.New(), func(env Envelope) error {
		sentAction = env.Action
		return nil
	}, Handlers{
		OnCancel: func() { canceled = true },
	}, 0, 0, 0)

	g.Cancel()

	if sentAction != RouteUnsubscribe {
		t.Fatalf("expected Cancel to send RouteUnsubscribe, got %v", sentAction)
	}
	if !canceled {
		t.Fatal("expected OnCancel to fire")
	}

	// A second Cancel must be a no-op.
	sentAction = RouteFetch // sentinel to detect a second send
	g.Cancel()
	if sentAction != RouteFetch {
		t.Fatal("expected a second Cancel to be a no-op")
	}
}

func TestGetResponseByteLimitExceeded(t *testing.T) {
	var gotErr error
	var canceled bool
	g := newGetResponse(NewMsgID(), clock.New(), func(Envelope) error {
		canceled = true
		return nil
	}, Handlers{
		OnError: func(err error) { gotErr = err },
	}, 4, 0, 0)

	g.deliver(Envelope{Seq: 1, EndSeq: 3, Data: []byte("12345")})

	if gotErr == nil {
		t.Fatal("expected ErrLimitExceeded to be reported")
	}
	if !canceled {
		t.Fatal("expected exceeding the limit to trigger a cancel")
	}
}

func TestGetResponseCloseWithError(t *testing.T) {
	var gotErr error
	g := newGetResponse(NewMsgID(), clock.New(), func(Envelope) error { return nil }, Handlers{
		OnError: func(err error) { gotErr = err },
	}, 0, 0, 0)

	g.closeWithError(ErrUnrecoverable)
	if gotErr != ErrUnrecoverable {
		t.Fatalf("expected OnError(ErrUnrecoverable), got %v", gotErr)
	}
}
