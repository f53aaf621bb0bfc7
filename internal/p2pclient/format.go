package p2pclient

import "fmt"

// Format describes one serialization format this build recognizes (spec
// §4.E). FirstVersionKnowing records the lowest remote format ID that is
// known to understand this format — used by the downgrade rule below.
// ExpiresMillis, when non-zero, is a Unix-millisecond deadline after which the
// format may no longer be negotiated.
type Format struct {
	ID                 int
	FirstVersionKnowing int
	ExpiresMillis       int64
}

// CanonicalFormat is version 0, the canonical binary format (spec §4.E).
var CanonicalFormat = Format{ID: 0}

// NegotiateFormat implements spec §4.E's serialization format negotiation
// rule given the local side's preferred format, the remote's preferred
// format ID, and the set of formats this build recognizes (keyed by ID).
// nowMillis is the current time, used to check an ExpiresMillis deadline
// on the chosen format.
func NegotiateFormat(local Format, remotePreferredID int, known map[int]Format, nowMillis int64) (Format, error) {
	var chosen Format
	switch {
	case remotePreferredID > local.ID:
		if f, ok := known[remotePreferredID]; ok {
			// Remote's preferred format is higher and we recognize it:
			// adopt it.
			chosen = f
		} else {
			// Higher but unknown to us: we expect the remote to downgrade
			// to ours.
			chosen = local
		}
	case remotePreferredID < local.ID:
		if remotePreferredID < local.FirstVersionKnowing {
			// Remote is older than the first version that knows our
			// format: adopt the lower one.
			if f, ok := known[remotePreferredID]; ok {
				chosen = f
			} else {
				chosen = local
			}
		} else {
			chosen = local
		}
	default:
		chosen = local
	}

	if chosen.ExpiresMillis != 0 && chosen.ExpiresMillis < nowMillis {
		return Format{}, fmt.Errorf("%w: format %d expired at %d (now %d)", ErrExpiredFormat, chosen.ID, chosen.ExpiresMillis, nowMillis)
	}
	return chosen, nil
}
