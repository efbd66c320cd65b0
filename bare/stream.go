package bare

import (
	"io"
	"net/http"
	"sync"
	"time"
)

// periodicFlusher flushes a response on a fixed interval while a remote
// body is copied into it.  Writes and flushes never overlap.
type periodicFlusher struct {
	mu   sync.Mutex
	w    http.ResponseWriter
	rc   *http.ResponseController
	stop chan struct{}
	wg   sync.WaitGroup
}

func startFlushing(w http.ResponseWriter, interval time.Duration) *periodicFlusher {
	p := &periodicFlusher{
		w:    w,
		rc:   http.NewResponseController(w),
		stop: make(chan struct{}),
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.flush()
			case <-p.stop:
				return
			}
		}
	}()
	return p
}

func (p *periodicFlusher) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.w.Write(b)
}

// flush ignores http.ErrNotSupported; such writers deliver the body when the
// handler returns.
func (p *periodicFlusher) flush() {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.rc.Flush()
}

// finish stops the ticker and flushes whatever is still buffered.
func (p *periodicFlusher) finish() {
	close(p.stop)
	p.wg.Wait()
	p.flush()
}

// streamBody copies body to w, flushing every interval so that slow remotes
// reach the client as they arrive.
func streamBody(w http.ResponseWriter, body io.Reader, interval time.Duration) (int64, error) {
	p := startFlushing(w, interval)
	defer p.finish()
	return io.Copy(p, body)
}
