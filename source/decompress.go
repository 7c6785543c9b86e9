package source

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// decompressBody undoes the Content-Encoding header's compression layers.
// The header lists encodings in the order the sender applied them, so
// decoding walks the tokens right to left. Supported tokens are gzip,
// deflate (zlib-wrapped per RFC 1950) and identity. limit bounds the
// decompressed size at every layer so a compression bomb fails fast with 413.
func decompressBody(body []byte, contentEncoding string, limit int64) ([]byte, *ErrorMessage) {
	if contentEncoding == "" {
		return body, nil
	}

	tokens := strings.Split(contentEncoding, ",")
	for i := len(tokens) - 1; i >= 0; i-- {
		token := strings.ToLower(strings.TrimSpace(tokens[i]))

		var reader io.ReadCloser
		switch token {
		case "", "identity":
			continue
		case "gzip":
			r, err := gzip.NewReader(bytes.NewReader(body))
			if err != nil {
				return nil, NewErrorMessage(http.StatusBadRequest,
					fmt.Sprintf("failed to decompress payload with %s decoder", token))
			}
			reader = r
		case "deflate":
			r, err := zlib.NewReader(bytes.NewReader(body))
			if err != nil {
				return nil, NewErrorMessage(http.StatusBadRequest,
					fmt.Sprintf("failed to decompress payload with %s decoder", token))
			}
			reader = r
		default:
			return nil, NewErrorMessage(http.StatusUnsupportedMediaType,
				fmt.Sprintf("unsupported content encoding: %s", token))
		}

		decoded, em := readLimited(reader, token, limit)
		_ = reader.Close()
		if em != nil {
			return nil, em
		}
		body = decoded
	}

	return body, nil
}

// readLimited drains the decompression reader up to limit bytes. Corrupt
// streams surface here because gzip and zlib validate checksums at EOF.
func readLimited(r io.Reader, token string, limit int64) ([]byte, *ErrorMessage) {
	decoded, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, NewErrorMessage(http.StatusBadRequest,
			fmt.Sprintf("failed to decompress payload with %s decoder", token))
	}
	if int64(len(decoded)) > limit {
		return nil, NewErrorMessage(http.StatusRequestEntityTooLarge, "decompressed payload too large")
	}
	return decoded, nil
}
