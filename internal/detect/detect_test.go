package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tdh8316/watson/internal/catalog"
)

func TestEvaluate(t *testing.T) {
	digits, err := catalog.RegexRule(`"followers":\s*\d+`)
	require.NoError(t, err)

	tests := []struct {
		name string
		rule catalog.Rule
		ex   Exchange
		want Status
	}{
		{"status match", catalog.StatusRule(200), Exchange{StatusCode: 200}, Found},
		{"status mismatch", catalog.StatusRule(200), Exchange{StatusCode: 404}, NotFound},
		{"status custom", catalog.StatusRule(204), Exchange{StatusCode: 204}, Found},
		{"contains", catalog.ContainsRule("profile-card"), Exchange{Body: "<div class=profile-card>"}, Found},
		{"contains missing", catalog.ContainsRule("profile-card"), Exchange{Body: "<div>"}, NotFound},
		{"absent missing", catalog.AbsentRule("User not found"), Exchange{StatusCode: 200, Body: "welcome back"}, Found},
		{"absent present", catalog.AbsentRule("User not found"), Exchange{StatusCode: 200, Body: "Oops: User not found."}, NotFound},
		{"absent any of many", catalog.AbsentRule("Gone", "Not here"), Exchange{Body: "Not here"}, NotFound},
		{"regex match", digits, Exchange{Body: `{"followers": 12}`}, Found},
		{"regex no match", digits, Exchange{Body: `{"error": "no user"}`}, NotFound},
		{"redirect equal", catalog.RedirectRule("https://a.example/{}").Bind("bob"), Exchange{FinalURL: "https://a.example/bob"}, Found},
		{"redirect away", catalog.RedirectRule("https://a.example/{}").Bind("bob"), Exchange{FinalURL: "https://a.example/login"}, NotFound},
		{"redirect no url", catalog.RedirectRule("https://a.example/{}").Bind("bob"), Exchange{}, NotFound},
		{"truncated body still matched", catalog.ContainsRule("x"), Exchange{Body: "xx", Truncated: true}, Found},
		{"zero rule", catalog.Rule{}, Exchange{StatusCode: 200}, Unknown},
		{"regex without pattern", catalog.Rule{Kind: catalog.Regex}, Exchange{Body: "a"}, Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.rule, tt.ex))
		})
	}
}

func TestEvaluate_IsDeterministic(t *testing.T) {
	rule := catalog.AbsentRule("User not found")
	ex := Exchange{StatusCode: 200, Body: "User not found"}

	first := Evaluate(rule, ex)
	for range 100 {
		assert.Equal(t, first, Evaluate(rule, ex))
	}
	assert.Equal(t, "User not found", ex.Body)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "found", Found.String())
	assert.Equal(t, "not_found", NotFound.String())
	assert.Equal(t, "unknown", Unknown.String())
}
