package report

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tdh8316/watson/internal/detect"
	"github.com/tdh8316/watson/internal/probe"
)

// Progress shows sweep progress on a terminal. It implements scan.Observer.
type Progress struct {
	w     io.Writer
	total int
	start time.Time

	inFlight  atomic.Int64
	completed atomic.Int64
	found     atomic.Int64
	errors    atomic.Int64

	done chan struct{}
	wg   sync.WaitGroup
}

func NewProgress(w io.Writer, total int) *Progress {
	return &Progress{
		w:     w,
		total: total,
		start: time.Now(),
		done:  make(chan struct{}),
	}
}

// Start begins periodically printing progress.
func (p *Progress) Start() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.print()
			case <-p.done:
				p.print()
				fmt.Fprint(p.w, "\n")
				return
			}
		}
	}()
}

// Stop ends the display and waits for the final line.
func (p *Progress) Stop() {
	close(p.done)
	p.wg.Wait()
}

func (p *Progress) ProbeStarted() {
	p.inFlight.Add(1)
}

func (p *Progress) ProbeFinished(res probe.Result) {
	p.inFlight.Add(-1)
	p.completed.Add(1)
	switch res.Status {
	case detect.Found:
		p.found.Add(1)
	case detect.Unknown:
		p.errors.Add(1)
	}
}

func (p *Progress) Line() string {
	completed := p.completed.Load()
	pct := float64(0)
	if p.total > 0 {
		pct = float64(completed) / float64(p.total) * 100
	}
	return fmt.Sprintf("[%3.0f%%] %d/%d | in flight: %d | found: %d | errors: %d | %s",
		pct, completed, p.total, p.inFlight.Load(), p.found.Load(), p.errors.Load(),
		time.Since(p.start).Round(time.Second))
}

func (p *Progress) print() {
	fmt.Fprintf(p.w, "\r\033[K%s", p.Line())
}
