package bare

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flushRecorder is a ResponseWriter which counts flushes and can be read
// while a body is still being written.
type flushRecorder struct {
	mu      sync.Mutex
	header  http.Header
	body    bytes.Buffer
	flushes int
}

func (f *flushRecorder) Header() http.Header {
	return f.header
}

func (f *flushRecorder) WriteHeader(int) {}

func (f *flushRecorder) Write(b []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.body.Write(b)
}

func (f *flushRecorder) Flush() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
}

func (f *flushRecorder) snapshot() (string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.body.String(), f.flushes
}

// plainWriter cannot flush.
type plainWriter struct {
	header http.Header
	body   bytes.Buffer
}

func (p *plainWriter) Header() http.Header         { return p.header }
func (p *plainWriter) WriteHeader(int)             {}
func (p *plainWriter) Write(b []byte) (int, error) { return p.body.Write(b) }

func TestStreamBodyFlushesWhileCopying(t *testing.T) {
	w := &flushRecorder{header: http.Header{}}
	pr, pw := io.Pipe()

	type result struct {
		n   int64
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := streamBody(w, pr, 5*time.Millisecond)
		done <- result{n, err}
	}()

	_, err := pw.Write([]byte("first "))
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		body, flushes := w.snapshot()
		return body == "first " && flushes > 0
	}, 5*time.Second, 5*time.Millisecond, "first chunk should be flushed before the body ends")

	_, err = pw.Write([]byte("second"))
	require.NoError(t, err)
	require.NoError(t, pw.Close())

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, int64(12), res.n)
	body, _ := w.snapshot()
	assert.Equal(t, "first second", body)
}

func TestStreamBodyWithoutFlusher(t *testing.T) {
	w := &plainWriter{header: http.Header{}}

	n, err := streamBody(w, strings.NewReader("whole body"), time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)
	assert.Equal(t, "whole body", w.body.String())
}
