package kvbridge

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCompressor(t *testing.T, cfg CompressionConfig) (*compressor, *Stats) {
	t.Helper()
	cfg.setDefaults()
	stats := &Stats{}
	c, err := newCompressor(cfg, stats)
	require.NoError(t, err)
	return c, stats
}

func TestCompressorRoundTrip(t *testing.T) {
	for _, alg := range []CompressionAlgorithm{CompressionZstd, CompressionS2} {
		c, _ := testCompressor(t, CompressionConfig{Algorithm: alg})

		original := strings.Repeat("the quick brown fox ", 50)
		stored := c.compress(original)
		assert.NotEqual(t, original, stored)
		assert.Less(t, len(stored), len(original))

		plain, err := c.decompress(stored)
		require.NoError(t, err)
		assert.Equal(t, original, plain)
	}
}

func TestCompressorThresholdPassthrough(t *testing.T) {
	c, stats := testCompressor(t, CompressionConfig{Threshold: 100})

	short := "tiny"
	assert.Equal(t, short, c.compress(short))
	assert.Zero(t, stats.Snapshot().TotalValuesCompressed)
}

func TestCompressorIncompressiblePassthrough(t *testing.T) {
	c, stats := testCompressor(t, CompressionConfig{Threshold: 8})

	// Already-compressed bytes do not shrink; the value is stored as is.
	var b strings.Builder
	for i := 0; i < 256; i++ {
		b.WriteByte(byte(i * 7))
	}
	noise := b.String()
	stored := c.compress(noise)
	assert.Equal(t, noise, stored)
	assert.Zero(t, stats.Snapshot().TotalValuesCompressed)
}

func TestCompressorPlainValuePassthroughOnRead(t *testing.T) {
	c, _ := testCompressor(t, CompressionConfig{})

	plain, err := c.decompress("written without compression")
	require.NoError(t, err)
	assert.Equal(t, "written without compression", plain)
}

func TestCompressorCrossAlgorithmRead(t *testing.T) {
	// A zstd reader still decodes values written with s2, and vice versa.
	zc, _ := testCompressor(t, CompressionConfig{Algorithm: CompressionZstd})
	sc, _ := testCompressor(t, CompressionConfig{Algorithm: CompressionS2})

	original := strings.Repeat("payload ", 64)

	fromZstd := zc.compress(original)
	plain, err := sc.decompress(fromZstd)
	require.NoError(t, err)
	assert.Equal(t, original, plain)

	fromS2 := sc.compress(original)
	plain, err = zc.decompress(fromS2)
	require.NoError(t, err)
	assert.Equal(t, original, plain)
}

func TestCompressorCorruptPayload(t *testing.T) {
	c, _ := testCompressor(t, CompressionConfig{})

	corrupt := string(compressionMagic[:]) + string(byte(CompressionZstd)) + "not a frame"
	_, err := c.decompress(corrupt)
	assert.Error(t, err)
}

func TestCompressorUnknownAlgorithmTag(t *testing.T) {
	c, _ := testCompressor(t, CompressionConfig{})

	bad := string(compressionMagic[:]) + string(byte(9)) + "payload"
	_, err := c.decompress(bad)
	assert.Error(t, err)
}

func TestCompressorStats(t *testing.T) {
	c, stats := testCompressor(t, CompressionConfig{})

	original := strings.Repeat("abcdef ", 40)
	stored := c.compress(original)

	snap := stats.Snapshot()
	assert.Equal(t, uint64(1), snap.TotalValuesCompressed)
	assert.Equal(t, uint64(len(original)), snap.TotalOriginalBytes)
	assert.Equal(t, uint64(len(stored)), snap.TotalBytesCompressed)
}

func TestNewCompressorRejectsUnknownAlgorithm(t *testing.T) {
	_, err := newCompressor(CompressionConfig{Algorithm: CompressionAlgorithm(5), Threshold: 1, Level: 1}, &Stats{})
	assert.Error(t, err)
}
