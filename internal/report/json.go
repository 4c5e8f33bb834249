package report

import (
	"io"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

type jsonResult struct {
	Site       string `json:"site"`
	URL        string `json:"url"`
	URLMain    string `json:"url_main,omitempty"`
	Status     string `json:"status"`
	HTTPStatus int    `json:"http_status,omitempty"`
	ElapsedMs  int64  `json:"elapsed_ms"`
	Rejected   bool   `json:"rejected,omitempty"`
	Failure    string `json:"failure,omitempty"`
	Error      string `json:"error,omitempty"`
}

type jsonSummary struct {
	Total    int            `json:"total"`
	Found    int            `json:"found"`
	NotFound int            `json:"not_found"`
	Unknown  int            `json:"unknown"`
	Failures map[string]int `json:"failures,omitempty"`
}

type jsonReport struct {
	RunID      string              `json:"run_id"`
	Identifier string              `json:"identifier"`
	Transport  string              `json:"transport"`
	Started    time.Time           `json:"started"`
	Finished   time.Time           `json:"finished"`
	Summary    jsonSummary         `json:"summary"`
	Results    []jsonResult        `json:"results"`
	Emails     map[string][]string `json:"emails,omitempty"`
}

// JSONWriter writes the whole report, including NotFound and Unknown results.
type JSONWriter struct{}

func (JSONWriter) Write(w io.Writer, r Report) error {
	out := jsonReport{
		RunID:      r.RunID,
		Identifier: r.Identifier,
		Transport:  r.Transport,
		Started:    r.Started,
		Finished:   r.Finished,
		Summary: jsonSummary{
			Total:    r.Counts.Total(),
			Found:    r.Counts.Found,
			NotFound: r.Counts.NotFound,
			Unknown:  r.Counts.Unknown,
		},
		Results: make([]jsonResult, 0, len(r.Results)),
		Emails:  r.Emails,
	}
	if len(r.Counts.Failures) > 0 {
		out.Summary.Failures = make(map[string]int, len(r.Counts.Failures))
		for k, v := range r.Counts.Failures {
			out.Summary.Failures[string(k)] = v
		}
	}
	for _, res := range r.Results {
		out.Results = append(out.Results, jsonResult{
			Site:       res.Site,
			URL:        res.URL,
			URLMain:    res.URLMain,
			Status:     res.Status.String(),
			HTTPStatus: res.HTTPStatus,
			ElapsedMs:  res.Elapsed.Milliseconds(),
			Rejected:   res.Rejected,
			Failure:    string(res.Failure),
			Error:      res.Detail,
		})
	}

	if err := json.MarshalWrite(w, out, jsontext.WithIndent("  "), json.Deterministic(true)); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}
