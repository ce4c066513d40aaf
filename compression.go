package kvbridge

import (
	"fmt"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
)

// CompressionAlgorithm selects the codec for transparent value compression.
type CompressionAlgorithm int

const (
	CompressionZstd CompressionAlgorithm = iota
	CompressionS2
)

const defaultCompressionThreshold = 64

// Compressed values are stored with a 4-byte header so reads can tell them
// apart from plain values. The last byte names the algorithm.
var compressionMagic = [3]byte{0xC7, 'k', 'v'}

// CompressionConfig enables transparent compression of values written by Set
// and MSet. Values shorter than Threshold bytes are stored as is. Reads
// decompress transparently regardless of the configured algorithm.
type CompressionConfig struct {
	Algorithm CompressionAlgorithm

	// Threshold is the minimum value size, in bytes, worth compressing.
	// Defaults to 64.
	Threshold int

	// Level applies to zstd only. Zero means the codec default.
	Level zstd.EncoderLevel
}

func (c *CompressionConfig) setDefaults() {
	if c.Threshold <= 0 {
		c.Threshold = defaultCompressionThreshold
	}
	if c.Level == 0 {
		c.Level = zstd.SpeedDefault
	}
}

// compressor applies the configured codec on the write path and recognizes
// any supported codec on the read path.
type compressor struct {
	cfg   CompressionConfig
	enc   *zstd.Encoder
	dec   *zstd.Decoder
	stats *Stats
}

func newCompressor(cfg CompressionConfig, stats *Stats) (*compressor, error) {
	if cfg.Algorithm != CompressionZstd && cfg.Algorithm != CompressionS2 {
		return nil, fmt.Errorf("unknown compression algorithm %d", int(cfg.Algorithm))
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(cfg.Level), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	return &compressor{cfg: cfg, enc: enc, dec: dec, stats: stats}, nil
}

// compress returns the stored form of value. Values below the threshold, and
// values the codec cannot shrink, are returned unchanged.
func (c *compressor) compress(value string) string {
	if len(value) < c.cfg.Threshold {
		return value
	}
	var payload []byte
	switch c.cfg.Algorithm {
	case CompressionS2:
		payload = s2.Encode(nil, []byte(value))
	default:
		payload = c.enc.EncodeAll([]byte(value), nil)
	}
	if len(payload)+4 >= len(value) {
		return value
	}
	out := make([]byte, 0, len(payload)+4)
	out = append(out, compressionMagic[:]...)
	out = append(out, byte(c.cfg.Algorithm))
	out = append(out, payload...)
	c.stats.originalBytes.Add(uint64(len(value)))
	c.stats.compressedBytes.Add(uint64(len(out)))
	c.stats.compressedValues.Add(1)
	return string(out)
}

// decompress reverses compress. Values without the header pass through, so
// data written without compression stays readable.
func (c *compressor) decompress(value string) (string, error) {
	alg, payload, ok := splitCompressed(value)
	if !ok {
		return value, nil
	}
	var (
		plain []byte
		err   error
	)
	switch alg {
	case CompressionS2:
		plain, err = s2.Decode(nil, payload)
	case CompressionZstd:
		plain, err = c.dec.DecodeAll(payload, nil)
	default:
		return "", fmt.Errorf("value compressed with unknown algorithm %d", int(alg))
	}
	if err != nil {
		return "", fmt.Errorf("decompress value: %w", err)
	}
	return string(plain), nil
}

func splitCompressed(value string) (CompressionAlgorithm, []byte, bool) {
	if len(value) < 4 || value[0] != compressionMagic[0] || value[1] != compressionMagic[1] || value[2] != compressionMagic[2] {
		return 0, nil, false
	}
	return CompressionAlgorithm(value[3]), []byte(value[4:]), true
}
