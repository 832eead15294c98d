package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/golang/snappy"
	"github.com/pierrec/lz4/v4"
)

// BodyCompressor compresses a frame body for the wire.
type BodyCompressor interface {
	Name() string
	Compress(body []byte) ([]byte, error)
}

// BodyDecompressor reverses a BodyCompressor's transform.
type BodyDecompressor interface {
	Name() string
	Decompress(body []byte) ([]byte, error)
}

// bodyCodec implements both directions for one algorithm, so a single
// negotiated choice (spec §6: "Compression: LZ4 or Snappy after
// negotiation") serves as both the connection's compressor and
// decompressor.
type bodyCodec interface {
	BodyCompressor
	BodyDecompressor
}

// NegotiateCompression resolves the STARTUP "COMPRESSION" option against
// what the server advertised in SUPPORTED, preferring LZ4 (the CQL
// protocol's traditional default) over Snappy.
func NegotiateCompression(serverSupported []string, preferred string) bodyCodec {
	supports := func(name string) bool {
		for _, s := range serverSupported {
			if s == name {
				return true
			}
		}
		return false
	}

	switch preferred {
	case "lz4":
		if supports("lz4") {
			return lz4Codec{}
		}
	case "snappy":
		if supports("snappy") {
			return snappyCodec{}
		}
	case "":
		if supports("lz4") {
			return lz4Codec{}
		}
		if supports("snappy") {
			return snappyCodec{}
		}
	}
	return nil
}

// lz4Codec wraps github.com/pierrec/lz4/v4. CQL LZ4 frame bodies are
// prefixed with a 4-byte big-endian uncompressed length, unlike the
// standalone lz4 frame format.
type lz4Codec struct{}

func (lz4Codec) Name() string { return "lz4" }

func (lz4Codec) Compress(body []byte) ([]byte, error) {
	maxSize := lz4.CompressBlockBound(len(body))
	compressed := make([]byte, 4+maxSize)
	binary.BigEndian.PutUint32(compressed[:4], uint32(len(body)))

	var c lz4.Compressor
	n, err := c.CompressBlock(body, compressed[4:])
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if n == 0 && len(body) > 0 {
		return nil, fmt.Errorf("lz4 compress: incompressible input rejected by block compressor")
	}
	return compressed[:4+n], nil
}

func (lz4Codec) Decompress(body []byte) ([]byte, error) {
	if len(body) < 4 {
		return nil, fmt.Errorf("lz4 decompress: body too short for length prefix")
	}
	uncompressedLen := binary.BigEndian.Uint32(body[:4])
	dst := make([]byte, uncompressedLen)
	n, err := lz4.UncompressBlock(body[4:], dst)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	return dst[:n], nil
}

// snappyCodec wraps github.com/golang/snappy, whose block format already
// self-describes the uncompressed length.
type snappyCodec struct{}

func (snappyCodec) Name() string { return "snappy" }

func (snappyCodec) Compress(body []byte) ([]byte, error) {
	return snappy.Encode(nil, body), nil
}

func (snappyCodec) Decompress(body []byte) ([]byte, error) {
	out, err := snappy.Decode(nil, body)
	if err != nil {
		return nil, fmt.Errorf("snappy decompress: %w", err)
	}
	return out, nil
}
