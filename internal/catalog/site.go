package catalog

import (
	"net/http"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/go-json-experiment/json"
)

// Placeholder is substituted by the target identifier in url templates and payloads.
const Placeholder = "{}"

// RuleKind selects the detection strategy of a site. The set is closed.
type RuleKind int

const (
	StatusCode RuleKind = iota + 1
	BodyContains
	BodyAbsent
	Regex
	RedirectURLEquals
)

func (k RuleKind) String() string {
	switch k {
	case StatusCode:
		return "status_code"
	case BodyContains:
		return "body_contains"
	case BodyAbsent:
		return "body_absent"
	case Regex:
		return "regex"
	case RedirectURLEquals:
		return "redirect_url"
	default:
		return "unknown"
	}
}

// ReadsBody reports whether the rule inspects the response body.
func (k RuleKind) ReadsBody() bool {
	switch k {
	case BodyContains, BodyAbsent, Regex:
		return true
	default:
		return false
	}
}

// Rule is a tagged variant: only the fields of Kind are meaningful.
type Rule struct {
	Kind RuleKind

	Status  int             // StatusCode
	Needles []string        // BodyContains (one), BodyAbsent (one or more)
	Pattern *regexp2.Regexp // Regex
	URL     string          // RedirectURLEquals, may contain Placeholder
}

func StatusRule(code int) Rule {
	return Rule{Kind: StatusCode, Status: code}
}

func ContainsRule(needle string) Rule {
	return Rule{Kind: BodyContains, Needles: []string{needle}}
}

func AbsentRule(needles ...string) Rule {
	return Rule{Kind: BodyAbsent, Needles: needles}
}

// MatchTimeout bounds a single match of a catalog pattern. regexp2
// backtracks, so a hostile pattern could otherwise run without end.
const MatchTimeout = time.Second

// compilePattern compiles a catalog pattern with MatchTimeout set.
func compilePattern(expr string) (*regexp2.Regexp, error) {
	re, err := regexp2.Compile(expr, regexp2.None)
	if err != nil {
		return nil, err
	}
	re.MatchTimeout = MatchTimeout
	return re, nil
}

// RegexRule compiles expr once; the compiled pattern is shared by all probes.
func RegexRule(expr string) (Rule, error) {
	re, err := compilePattern(expr)
	if err != nil {
		return Rule{}, err
	}
	return Rule{Kind: Regex, Pattern: re}, nil
}

func RedirectRule(template string) Rule {
	return Rule{Kind: RedirectURLEquals, URL: template}
}

// Bind resolves identifier-dependent parts of the rule.
func (r Rule) Bind(identifier string) Rule {
	if r.Kind == RedirectURLEquals {
		r.URL = Substitute(r.URL, identifier)
	}
	return r
}

// Site is one validated probe recipe. It is never mutated after Validate.
type Site struct {
	Name     string
	URL      string
	URLMain  string
	URLProbe string

	Detection Rule

	Method  string
	Headers map[string]string
	Payload string // raw JSON, empty when the request has no body

	UsernameCheck *regexp2.Regexp
	NSFW          bool

	ClaimedUsername   string
	UnclaimedUsername string
}

// ProfileURL is the URL shown to the user.
func (s Site) ProfileURL(identifier string) string {
	return Substitute(s.URL, identifier)
}

// ProbeURL is the URL actually requested.
func (s Site) ProbeURL(identifier string) string {
	if s.URLProbe != "" {
		return Substitute(s.URLProbe, identifier)
	}
	return s.ProfileURL(identifier)
}

// RequestBody returns the payload with the identifier substituted where the
// placeholder is a whole JSON string value.
func (s Site) RequestBody(identifier string) string {
	if s.Payload == "" {
		return ""
	}
	quoted, err := json.Marshal(identifier)
	if err != nil {
		return s.Payload
	}
	return strings.ReplaceAll(s.Payload, `"`+Placeholder+`"`, string(quoted))
}

// AcceptsUsername reports whether the site's username pattern allows identifier.
func (s Site) AcceptsUsername(identifier string) bool {
	if s.UsernameCheck == nil {
		return true
	}
	ok, err := s.UsernameCheck.MatchString(identifier)
	return err == nil && ok
}

func Substitute(template, identifier string) string {
	return strings.ReplaceAll(template, Placeholder, identifier)
}

var supportedMethods = map[string]bool{
	http.MethodGet:  true,
	http.MethodPost: true,
	http.MethodHead: true,
	http.MethodPut:  true,
}
