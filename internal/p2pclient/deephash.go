package p2pclient

import "github.com/meshfabric/fabricd/internal/record"

// deepHashBytes is the DeepHash convention (spec §4.D, §6) reused here to
// deduplicate allowEmbed filter lists by content rather than by pointer
// identity.
func deepHashBytes(parts [][]byte) [32]byte {
	return record.HashList(parts)
}
