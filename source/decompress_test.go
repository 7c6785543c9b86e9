package source

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gzipCompress(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func zlibCompress(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	_, err := zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestDecompressBodyPassthrough(t *testing.T) {
	body := []byte("plain text, not compressed")

	for _, encoding := range []string{"", "identity", " identity , identity "} {
		got, em := decompressBody(body, encoding, 1<<20)
		require.Nil(t, em, "encoding %q", encoding)
		assert.Equal(t, body, got)
	}
}

func TestDecompressBodyGzip(t *testing.T) {
	plain := []byte("gzip roundtrip payload")

	got, em := decompressBody(gzipCompress(t, plain), "gzip", 1<<20)
	require.Nil(t, em)
	assert.Equal(t, plain, got)
}

func TestDecompressBodyDeflate(t *testing.T) {
	plain := []byte("deflate roundtrip payload")

	got, em := decompressBody(zlibCompress(t, plain), "deflate", 1<<20)
	require.Nil(t, em)
	assert.Equal(t, plain, got)
}

func TestDecompressBodyStacked(t *testing.T) {
	// Sender applied gzip first, then deflate on top; the header reads
	// left to right in application order. Decoding must walk it backwards.
	plain := []byte("stacked compression payload")
	wire := zlibCompress(t, gzipCompress(t, plain))

	got, em := decompressBody(wire, "gzip, deflate", 1<<20)
	require.Nil(t, em)
	assert.Equal(t, plain, got)
}

func TestDecompressBodyTokenNormalization(t *testing.T) {
	plain := []byte("case insensitive")

	got, em := decompressBody(gzipCompress(t, plain), "  GZip ", 1<<20)
	require.Nil(t, em)
	assert.Equal(t, plain, got)
}

func TestDecompressBodyErrors(t *testing.T) {
	plain := []byte("hello hello hello")
	gzipped := gzipCompress(t, plain)
	truncated := gzipped[:len(gzipped)-4]

	tests := []struct {
		name     string
		body     []byte
		encoding string
		wantCode int
		wantMsg  string
	}{
		{"corrupt gzip", []byte("junk"), "gzip", http.StatusBadRequest, "failed to decompress payload with gzip decoder"},
		{"corrupt deflate", []byte("junk"), "deflate", http.StatusBadRequest, "failed to decompress payload with deflate decoder"},
		{"truncated gzip", truncated, "gzip", http.StatusBadRequest, "gzip decoder"},
		{"unsupported token", []byte("x"), "br", http.StatusUnsupportedMediaType, "unsupported content encoding: br"},
		{"unsupported outer layer", gzipped, "gzip, br", http.StatusUnsupportedMediaType, "br"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, em := decompressBody(tt.body, tt.encoding, 1<<20)
			require.NotNil(t, em)
			assert.Nil(t, got)
			assert.Equal(t, tt.wantCode, em.Code)
			assert.Contains(t, em.Message, tt.wantMsg)
		})
	}
}

func TestDecompressBodyLimit(t *testing.T) {
	// Highly compressible input: make sure expansion past the limit is
	// cut off instead of allocated.
	plain := bytes.Repeat([]byte{0}, 10_000)

	_, em := decompressBody(gzipCompress(t, plain), "gzip", 100)
	require.NotNil(t, em)
	assert.Equal(t, http.StatusRequestEntityTooLarge, em.Code)
	assert.Contains(t, em.Message, "decompressed payload too large")

	got, em := decompressBody(gzipCompress(t, plain), "gzip", 10_000)
	require.Nil(t, em)
	assert.Equal(t, plain, got)
}
