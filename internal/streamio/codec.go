package streamio

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Compression negotiates, the same way internal/p2pclient negotiates a
// serialization format, whether blob chunks are zstd-compressed in transit
// (spec §4.F expansion). Both peers must advertise support for the same
// value for compression to be used; otherwise chunks travel uncompressed.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionZstd
)

// NegotiateCompression picks the strongest compression both peers support.
// With only "none" and "zstd" defined today, this reduces to a logical AND,
// but is kept as a function (rather than inlined at call sites) so adding a
// third tier later doesn't ripple through callers, mirroring how
// NegotiateFormat is structured in internal/p2pclient.
func NegotiateCompression(local, remote Compression) Compression {
	if local == CompressionZstd && remote == CompressionZstd {
		return CompressionZstd
	}
	return CompressionNone
}

var (
	encOnce sync.Once
	enc     *zstd.Encoder
	encErr  error

	decOnce sync.Once
	dec     *zstd.Decoder
	decErr  error
)

func encoder() (*zstd.Encoder, error) {
	encOnce.Do(func() {
		enc, encErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	})
	return enc, encErr
}

func decoder() (*zstd.Decoder, error) {
	decOnce.Do(func() {
		dec, decErr = zstd.NewReader(nil)
	})
	return dec, decErr
}

// CompressChunk compresses data when the negotiated Compression is zstd;
// otherwise it returns data unchanged.
func CompressChunk(c Compression, data []byte) ([]byte, error) {
	if c != CompressionZstd {
		return data, nil
	}
	e, err := encoder()
	if err != nil {
		return nil, fmt.Errorf("streamio: zstd encoder: %w", err)
	}
	return e.EncodeAll(data, nil), nil
}

// DecompressChunk reverses CompressChunk.
func DecompressChunk(c Compression, data []byte) ([]byte, error) {
	if c != CompressionZstd {
		return data, nil
	}
	d, err := decoder()
	if err != nil {
		return nil, fmt.Errorf("streamio: zstd decoder: %w", err)
	}
	return d.DecodeAll(data, nil)
}
