package catalog

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

// Warning describes a catalog entry that was dropped during validation.
type Warning struct {
	Index  int
	Name   string
	Reason string
}

func (w Warning) String() string {
	name := w.Name
	if name == "" {
		name = fmt.Sprintf("#%d", w.Index)
	}
	return fmt.Sprintf("site %s: %s", name, w.Reason)
}

// Validate turns raw entries into sites. Invalid entries are dropped and
// reported as warnings; the relative order of valid entries is preserved.
func Validate(raw []RawEntry) ([]Site, []Warning) {
	sites := make([]Site, 0, len(raw))
	var warnings []Warning
	seen := make(map[string]struct{}, len(raw))

	for _, e := range raw {
		site, err := build(e)
		if err == nil {
			if _, dup := seen[site.Name]; dup {
				err = errors.New("duplicate site name")
			}
		}
		if err != nil {
			warnings = append(warnings, Warning{Index: e.Index, Name: e.Name, Reason: err.Error()})
			continue
		}
		seen[site.Name] = struct{}{}
		sites = append(sites, site)
	}
	return sites, warnings
}

func build(e RawEntry) (Site, error) {
	name := strings.TrimSpace(e.Name)
	if name == "" {
		return Site{}, errors.New("empty site name")
	}
	v := e.Value
	if !v.IsObject() {
		return Site{}, errors.New("entry is not an object")
	}

	s := Site{
		Name:              name,
		URL:               v.Get("url").String(),
		URLMain:           v.Get("urlMain").String(),
		URLProbe:          v.Get("urlProbe").String(),
		Method:            strings.ToUpper(strings.TrimSpace(v.Get("request_method").String())),
		NSFW:              v.Get("isNSFW").Bool(),
		ClaimedUsername:   v.Get("username_claimed").String(),
		UnclaimedUsername: v.Get("username_unclaimed").String(),
	}

	if n := strings.Count(s.URL, Placeholder); n != 1 {
		return Site{}, errors.Errorf("url template must contain %s exactly once, found %d", Placeholder, n)
	}
	if err := checkURL(s.URL); err != nil {
		return Site{}, errors.Wrap(err, "url")
	}
	if s.URLProbe != "" {
		if err := checkURL(s.URLProbe); err != nil {
			return Site{}, errors.Wrap(err, "urlProbe")
		}
	}

	if s.Method == "" {
		s.Method = "GET"
	}
	if !supportedMethods[s.Method] {
		return Site{}, errors.Errorf("unsupported request_method %q", s.Method)
	}

	if h := v.Get("headers"); h.IsObject() {
		s.Headers = make(map[string]string)
		h.ForEach(func(key, value gjson.Result) bool {
			s.Headers[key.String()] = value.String()
			return true
		})
	}

	if p := v.Get("request_payload"); p.Exists() && p.Type != gjson.Null {
		if s.Method != "POST" && s.Method != "PUT" {
			return Site{}, errors.Errorf("request_payload requires POST or PUT, got %s", s.Method)
		}
		s.Payload = p.Raw
	}

	if expr := v.Get("regexCheck").String(); expr != "" {
		re, err := compilePattern(expr)
		if err != nil {
			return Site{}, errors.Wrap(err, "invalid regexCheck")
		}
		s.UsernameCheck = re
	}

	rule, err := parseRule(v, s.URL)
	if err != nil {
		return Site{}, err
	}
	if s.Method == http.MethodHead && rule.Kind.ReadsBody() {
		return Site{}, errors.Errorf("request_method HEAD cannot be used with errorType %s: the response has no body", rule.Kind)
	}
	s.Detection = rule
	return s, nil
}

func parseRule(v gjson.Result, profileURL string) (Rule, error) {
	var kind string
	switch et := v.Get("errorType"); {
	case et.IsArray():
		kinds := et.Array()
		if len(kinds) != 1 {
			return Rule{}, errors.Errorf("expected exactly one detection rule, found %d", len(kinds))
		}
		kind = kinds[0].String()
	case et.Type == gjson.String:
		kind = et.String()
	default:
		return Rule{}, errors.New("missing errorType")
	}

	switch kind {
	case "status_code":
		code := 200
		if c := v.Get("expectedStatus"); c.Exists() {
			code = int(c.Int())
			if code < 100 || code > 599 {
				return Rule{}, errors.Errorf("expectedStatus %d out of range", code)
			}
		}
		return StatusRule(code), nil

	case "message":
		needles := nonEmptyStrings(v.Get("errorMsg"))
		if len(needles) == 0 {
			return Rule{}, errors.New("errorMsg is required for errorType=message")
		}
		return AbsentRule(needles...), nil

	case "body_contains":
		needle := v.Get("presenceMsg").String()
		if needle == "" {
			return Rule{}, errors.New("presenceMsg is required for errorType=body_contains")
		}
		return ContainsRule(needle), nil

	case "regex":
		expr := v.Get("matchRegex").String()
		if expr == "" {
			return Rule{}, errors.New("matchRegex is required for errorType=regex")
		}
		rule, err := RegexRule(expr)
		if err != nil {
			return Rule{}, errors.Wrap(err, "invalid matchRegex")
		}
		return rule, nil

	case "response_url":
		tmpl := v.Get("responseUrl").String()
		if tmpl == "" {
			tmpl = profileURL
		}
		return RedirectRule(tmpl), nil

	default:
		return Rule{}, errors.Errorf("unsupported errorType %q", kind)
	}
}

// nonEmptyStrings accepts either a string or an array of strings.
func nonEmptyStrings(r gjson.Result) []string {
	var out []string
	if r.IsArray() {
		for _, it := range r.Array() {
			if it.Type == gjson.String && it.String() != "" {
				out = append(out, it.String())
			}
		}
		return out
	}
	if r.Type == gjson.String && r.String() != "" {
		out = append(out, r.String())
	}
	return out
}

func checkURL(template string) error {
	u, err := url.Parse(Substitute(template, "watson"))
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}
