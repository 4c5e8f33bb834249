package scan

import (
	"github.com/tdh8316/watson/internal/catalog"
	"github.com/tdh8316/watson/internal/detect"
	"github.com/tdh8316/watson/internal/probe"
)

// Indexed is a probe result tagged with its catalog slot.
type Indexed struct {
	Index  int
	Result probe.Result
}

// Sweep holds one result per probed site, in catalog order. It is sealed
// when returned by Finalize and is read-only from then on.
type Sweep struct {
	identifier string
	results    []probe.Result
	sealed     bool
}

// Finalize places every result at its catalog index. Slots without a
// result are reported as cancelled; for duplicated indices the first
// result wins and out-of-range indices are dropped.
func Finalize(results []Indexed, sites []catalog.Site, identifier string) *Sweep {
	sw := &Sweep{
		identifier: identifier,
		results:    make([]probe.Result, len(sites)),
	}
	filled := make([]bool, len(sites))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(sites) || filled[r.Index] {
			continue
		}
		sw.results[r.Index] = r.Result
		filled[r.Index] = true
	}
	for i, ok := range filled {
		if !ok {
			sw.results[i] = probe.Cancelled(sites[i], identifier)
		}
	}
	sw.sealed = true
	return sw
}

func (s *Sweep) Identifier() string { return s.identifier }

func (s *Sweep) Len() int { return len(s.results) }

func (s *Sweep) Sealed() bool { return s.sealed }

// At returns the result of the i-th site in catalog order.
func (s *Sweep) At(i int) probe.Result {
	return s.results[i]
}

// Results returns a copy of all results in catalog order.
func (s *Sweep) Results() []probe.Result {
	return append([]probe.Result(nil), s.results...)
}

// Found returns the Found results in catalog order.
func (s *Sweep) Found() []probe.Result {
	var out []probe.Result
	for _, r := range s.results {
		if r.Status == detect.Found {
			out = append(out, r)
		}
	}
	return out
}

type Counts struct {
	Found    int
	NotFound int
	Unknown  int
	Failures map[probe.Failure]int
}

func (c Counts) Total() int {
	return c.Found + c.NotFound + c.Unknown
}

func (s *Sweep) Counts() Counts {
	c := Counts{Failures: make(map[probe.Failure]int)}
	for _, r := range s.results {
		switch r.Status {
		case detect.Found:
			c.Found++
		case detect.NotFound:
			c.NotFound++
		default:
			c.Unknown++
			c.Failures[r.Failure]++
		}
	}
	return c
}

// AllUnavailable reports whether every site failed because the configured
// proxy or Tor endpoint could not be reached.
func (s *Sweep) AllUnavailable() bool {
	if len(s.results) == 0 {
		return false
	}
	for _, r := range s.results {
		if r.Failure != probe.FailureUnavailable {
			return false
		}
	}
	return true
}
