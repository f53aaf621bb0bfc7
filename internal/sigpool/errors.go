package sigpool

import "errors"

// ErrThreadingFailure is returned whenever the coordinator cannot reach a
// worker (channel closed, context canceled mid-dispatch). Per spec §4.B the
// caller must then assume no side effects occurred.
var ErrThreadingFailure = errors.New("sigpool: threading failure")

// ErrClosed is returned by any call made after Close.
var ErrClosed = errors.New("sigpool: offloader closed")

// ErrKeyNotFound is returned when a worker is asked to sign with a public
// key it has no matching private key for.
var ErrKeyNotFound = errors.New("sigpool: key pair not found")
