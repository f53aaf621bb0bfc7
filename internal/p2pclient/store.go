package p2pclient

import "context"

// NodeStore is the SQL-backed node/cert storage driver this spec treats as
// an external collaborator (spec §1): the router calls it to persist
// stored records and to resolve a fetch query's matching records. No SQL
// driver is shipped; internal/memstore provides an in-memory one.
type NodeStore interface {
	Put(ctx context.Context, id1 [32]byte, packed []byte) error
	Get(ctx context.Context, id1 [32]byte) ([]byte, bool, error)
	Query(ctx context.Context, q FetchQuery) ([][]byte, error)
}

// BlobStore is the SQL-backed blob storage driver this spec treats as an
// external collaborator (spec §1).
type BlobStore interface {
	ReadAt(ctx context.Context, blobID [32]byte, offset int64, chunkSize int) (data []byte, pos, size int64, err error)
	WriteAt(ctx context.Context, blobID [32]byte, offset int64, data []byte) error
	Size(ctx context.Context, blobID [32]byte) (int64, bool, error)
}
