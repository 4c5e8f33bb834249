package scan

import (
	"context"

	"github.com/tdh8316/watson/internal/catalog"
	"github.com/tdh8316/watson/internal/detect"
	"github.com/tdh8316/watson/internal/probe"
)

// ValidationFailure is a site whose detection rule misjudged its own
// claimed or unclaimed sample username.
type ValidationFailure struct {
	Site      string
	Claimed   probe.Result
	Unclaimed probe.Result
}

func (f ValidationFailure) Reason() string {
	switch {
	case f.Claimed.Status == detect.Unknown:
		return "claimed username probe failed: " + f.Claimed.Detail
	case f.Unclaimed.Status == detect.Unknown:
		return "unclaimed username probe failed: " + f.Unclaimed.Detail
	case f.Claimed.Status != detect.Found:
		return "claimed username " + f.Claimed.Identifier + " not found"
	default:
		return "unclaimed username " + f.Unclaimed.Identifier + " reported as found"
	}
}

// SelfTest probes each site with its claimed and unclaimed sample usernames
// and returns the sites where the rule gave the wrong answer, in catalog
// order. Sites without both samples are skipped and counted in skipped.
func (s *Scanner) SelfTest(ctx context.Context, sites []catalog.Site) (failures []ValidationFailure, skipped int, err error) {
	var testable []catalog.Site
	for _, site := range sites {
		if site.ClaimedUsername == "" || site.UnclaimedUsername == "" {
			skipped++
			continue
		}
		testable = append(testable, site)
	}

	// Slot 2i is the claimed probe of site i, slot 2i+1 the unclaimed one.
	results := s.run(ctx, 2*len(testable), func(ctx context.Context, slot int) probe.Result {
		site := testable[slot/2]
		name := site.ClaimedUsername
		if slot%2 == 1 {
			name = site.UnclaimedUsername
		}
		return s.prober.Run(ctx, site, name, s.cfg.Timeout)
	})

	paired := make([]probe.Result, 2*len(testable))
	done := make([]bool, 2*len(testable))
	for _, r := range results {
		paired[r.Index] = r.Result
		done[r.Index] = true
	}

	for i, site := range testable {
		if !done[2*i] || !done[2*i+1] {
			continue
		}
		claimed, unclaimed := paired[2*i], paired[2*i+1]
		if claimed.Status == detect.Found && unclaimed.Status == detect.NotFound {
			continue
		}
		failures = append(failures, ValidationFailure{
			Site:      site.Name,
			Claimed:   claimed,
			Unclaimed: unclaimed,
		})
	}
	return failures, skipped, ctx.Err()
}
