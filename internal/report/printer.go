package report

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/tdh8316/watson/internal/catalog"
	"github.com/tdh8316/watson/internal/detect"
	"github.com/tdh8316/watson/internal/probe"
	"github.com/tdh8316/watson/internal/scan"
)

// Printer streams result lines as probes finish. It implements scan.Observer.
type Printer struct {
	noColor bool
	all     bool

	mu     sync.Mutex
	logger *log.Logger
}

// NewPrinter writes to stdout. Color is used only when stdout is a terminal
// and noColor is off. When all is set NotFound and Unknown results are
// printed too.
func NewPrinter(stdout io.Writer, noColor, all bool) *Printer {
	return &Printer{
		noColor: noColor || !IsTerminal(stdout),
		all:     all,
		logger:  log.New(stdout, "", 0),
	}
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (p *Printer) ProbeStarted() {}

func (p *Printer) ProbeFinished(res probe.Result) {
	p.Result(res)
}

func (p *Printer) Result(res probe.Result) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.noColor {
		if line, ok := PlainLine(res, p.all); ok {
			p.logger.Print(line)
		}
		return
	}

	switch {
	case res.Status == detect.Found:
		p.logger.Printf("[%s] %s: %s", color.HiGreenString("+"), color.HiWhiteString(res.Site), res.URL)
	case !p.all:
	case res.Status == detect.NotFound:
		p.logger.Printf("[%s] %s: %s", color.HiRedString("-"), res.Site, color.HiYellowString("Not Found!"))
	default:
		p.logger.Printf("[%s] %s: %s (%s): %s",
			color.HiRedString("!"),
			res.Site,
			color.HiMagentaString("ERROR"),
			res.Failure,
			color.HiRedString(res.Detail),
		)
	}
}

func (p *Printer) Banner(identifier string, sites int, transport string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	msg := fmt.Sprintf("Investigating %s on %d sites (%s)", identifier, sites, transport)
	if p.noColor {
		p.logger.Print(msg)
		return
	}
	p.logger.Print(color.HiCyanString(msg))
}

func (p *Printer) Summary(c scan.Counts, elapsed time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	msg := fmt.Sprintf("%d found, %d not found, %d unknown in %s",
		c.Found, c.NotFound, c.Unknown, elapsed.Round(time.Millisecond))
	if p.noColor || c.Found == 0 {
		p.logger.Print(msg)
		return
	}
	p.logger.Print(color.HiGreenString(msg))
}

func (p *Printer) Emails(site string, emails []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range emails {
		if p.noColor {
			p.logger.Printf("[@] %s: %s", site, e)
		} else {
			p.logger.Printf("[%s] %s: %s", color.HiBlueString("@"), site, e)
		}
	}
}

func (p *Printer) ValidationFailure(f scan.ValidationFailure) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.noColor {
		p.logger.Printf("[!] %s: %s", f.Site, f.Reason())
		return
	}
	p.logger.Printf("[%s] %s: %s", color.HiRedString("!"), color.HiWhiteString(f.Site), f.Reason())
}

// Sites lists the catalog, one site per line.
func (p *Printer) Sites(sites []catalog.Site) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range sites {
		home := s.URLMain
		if home == "" {
			home = s.URL
		}
		name := s.Name
		if s.NSFW {
			name += " (nsfw)"
		}
		if p.noColor {
			p.logger.Printf("%s: %s", name, home)
		} else {
			p.logger.Printf("%s: %s", color.HiWhiteString(name), home)
		}
	}
}
