package store

import (
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/x448/float16"
)

// Point clouds are stored as little-endian float16 values compressed
// with zstd. float16 matches the upstream dataset precision for point
// coordinates; zstd replaces its gzip container compression.

func encodeCloud(enc *zstd.Encoder, cloud []float32) []byte {
	raw := make([]byte, len(cloud)*2)
	for i, v := range cloud {
		binary.LittleEndian.PutUint16(raw[i*2:], float16.Fromfloat32(v).Bits())
	}
	return enc.EncodeAll(raw, nil)
}

func decodeCloud(dec *zstd.Decoder, blob []byte, values int) ([]float32, error) {
	raw, err := dec.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress cloud: %w", err)
	}
	if len(raw) != values*2 {
		return nil, fmt.Errorf("cloud blob holds %d bytes, want %d", len(raw), values*2)
	}
	cloud := make([]float32, values)
	for i := range cloud {
		cloud[i] = float16.Frombits(binary.LittleEndian.Uint16(raw[i*2:])).Float32()
	}
	return cloud, nil
}
