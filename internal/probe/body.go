package probe

import (
	"compress/gzip"
	"compress/zlib"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/pkg/errors"
	"golang.org/x/net/html/charset"
)

// ReadBody decodes the response body to UTF-8 text, keeping at most limit
// bytes of decoded content. Hitting the limit is not an error.
func ReadBody(resp *http.Response, limit int64) (string, bool, error) {
	var r io.Reader = resp.Body
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return "", false, errors.Wrap(err, "gzip body")
		}
		defer gz.Close()
		r = gz
	case "deflate":
		zr, err := zlib.NewReader(resp.Body)
		if err != nil {
			return "", false, errors.Wrap(err, "deflate body")
		}
		defer zr.Close()
		r = zr
	case "br":
		r = brotli.NewReader(resp.Body)
	}

	r, err := charset.NewReader(r, resp.Header.Get("Content-Type"))
	if err != nil {
		return "", false, errors.Wrap(err, "decode charset")
	}

	b, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return "", false, err
	}
	if int64(len(b)) > limit {
		return string(b[:limit]), true, nil
	}
	return string(b), false, nil
}
