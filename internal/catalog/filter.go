package catalog

import (
	"strings"

	"golang.org/x/text/cases"
)

// Filter selects the working subset of a catalog. It is applied once,
// before a sweep starts.
type Filter struct {
	Include []string // empty means every site
	Exclude []string
	NSFW    bool
}

// Apply keeps catalog order. Site names are matched case-insensitively.
// An NSFW site named explicitly in Include is kept even when NSFW is off.
// Include names that match no site are returned as unknown.
func (f Filter) Apply(sites []Site) (selected []Site, unknown []string) {
	fold := cases.Fold()
	key := func(s string) string {
		return fold.String(strings.TrimSpace(s))
	}

	include := make(map[string]bool, len(f.Include))
	for _, name := range f.Include {
		if k := key(name); k != "" {
			include[k] = false
		}
	}
	exclude := make(map[string]struct{}, len(f.Exclude))
	for _, name := range f.Exclude {
		if k := key(name); k != "" {
			exclude[k] = struct{}{}
		}
	}

	for _, s := range sites {
		k := key(s.Name)
		if _, ok := exclude[k]; ok {
			continue
		}
		if len(include) > 0 {
			if _, ok := include[k]; !ok {
				continue
			}
			include[k] = true
		} else if s.NSFW && !f.NSFW {
			continue
		}
		selected = append(selected, s)
	}

	for _, name := range f.Include {
		if k := key(name); k != "" && !include[k] {
			unknown = append(unknown, strings.TrimSpace(name))
			include[k] = true // report once
		}
	}
	return selected, unknown
}
