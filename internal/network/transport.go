// internal/network/transport.go
package network

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
)

// Reader pools keep decompressor allocations off the per-request path.
var (
	gzipReaders = sync.Pool{
		New: func() interface{} { return new(gzip.Reader) },
	}
	brotliReaders = sync.Pool{
		New: func() interface{} { return brotli.NewReader(nil) },
	}
)

// Shared empty reader used when parking pooled readers.
var emptyReader = strings.NewReader("")

// DecompressionTransport is an http.RoundTripper that negotiates compression
// via Accept-Encoding and transparently decompresses response bodies. It
// handles gzip, brotli, and both zlib-wrapped and raw deflate streams,
// including layered encodings, applied in reverse order.
type DecompressionTransport struct {
	// Base is the underlying round tripper. Nil means http.DefaultTransport.
	Base http.RoundTripper
}

// NewDecompressionTransport wraps base, defaulting to http.DefaultTransport
// when base is nil.
func NewDecompressionTransport(base http.RoundTripper) *DecompressionTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &DecompressionTransport{Base: base}
}

// RoundTrip implements http.RoundTripper.
func (t *DecompressionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Advertise compression support unless the caller pinned its own value.
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "br, gzip, deflate, identity")
	}

	resp, err := t.Base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if err := decompressResponse(resp); err != nil {
		// The body may be partially consumed at this point; it cannot be reused.
		_ = resp.Body.Close()
		return nil, fmt.Errorf("failed to initialize response decompression: %w", err)
	}
	return resp, nil
}

// bodyWrapper closes the decompression reader and the original body, and
// returns pooled readers on Close.
type bodyWrapper struct {
	io.ReadCloser
	original io.ReadCloser
	release  func()
}

func (w *bodyWrapper) Close() error {
	if w.release != nil {
		w.release()
		w.release = nil
	}
	err1 := w.ReadCloser.Close()
	err2 := w.original.Close()
	return errors.Join(err1, err2)
}

// decompressResponse wraps resp.Body with decoders for every layer listed in
// Content-Encoding, processed in reverse application order. On success it
// strips Content-Encoding/Content-Length and marks the response Uncompressed.
func decompressResponse(resp *http.Response) error {
	if resp == nil || resp.Body == nil {
		return nil
	}
	encodings := resp.Header.Values("Content-Encoding")
	if len(encodings) == 0 {
		return nil
	}

	for i := len(encodings) - 1; i >= 0; i-- {
		encoding := strings.ToLower(strings.TrimSpace(encodings[i]))

		var (
			reader  io.ReadCloser
			release func()
			err     error
		)

		switch encoding {
		case "gzip":
			zr := gzipReaders.Get().(*gzip.Reader)
			if err := zr.Reset(resp.Body); err != nil {
				gzipReaders.Put(zr)
				return fmt.Errorf("gzip initialization error: %w", err)
			}
			reader = zr
			release = func() {
				// Reset against an empty reader so the pooled instance drops
				// its reference to the response stream.
				_ = zr.Reset(emptyReader)
				gzipReaders.Put(zr)
			}

		case "deflate":
			reader, err = newDeflateReader(resp.Body)
			if err != nil {
				return fmt.Errorf("deflate initialization error: %w", err)
			}

		case "br":
			br := brotliReaders.Get().(*brotli.Reader)
			if err := br.Reset(resp.Body); err != nil {
				brotliReaders.Put(br)
				return fmt.Errorf("brotli initialization error: %w", err)
			}
			// brotli.Reader has no Close.
			reader = io.NopCloser(br)
			release = func() {
				_ = br.Reset(emptyReader)
				brotliReaders.Put(br)
			}

		case "identity", "":
			continue

		default:
			return fmt.Errorf("unsupported Content-Encoding layer: %s", encoding)
		}

		resp.Body = &bodyWrapper{ReadCloser: reader, original: resp.Body, release: release}
	}

	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return nil
}

// replayReader buffers the head of a stream so a failed decode attempt can be
// replayed against another decoder.
type replayReader struct {
	r      io.Reader
	buf    *bytes.Buffer
	source io.Reader
}

func newReplayReader(r io.Reader) *replayReader {
	buf := bytes.NewBuffer(make([]byte, 0, 128))
	return &replayReader{r: io.TeeReader(r, buf), buf: buf, source: r}
}

func (rr *replayReader) Read(p []byte) (int, error) { return rr.r.Read(p) }

func (rr *replayReader) rewind() {
	rr.r = io.MultiReader(bytes.NewReader(rr.buf.Bytes()), rr.source)
}

// newDeflateReader decodes "deflate" bodies. Servers disagree on whether that
// means zlib (RFC 1950) or raw deflate (RFC 1951); try zlib first and fall
// back to raw on a header failure.
func newDeflateReader(r io.Reader) (io.ReadCloser, error) {
	rr := newReplayReader(r)

	zr, err := zlib.NewReader(rr)
	if err == nil {
		return zr, nil
	}

	rr.rewind()
	return flate.NewReader(rr), nil
}
