package report

import (
	"encoding/csv"
	"io"
	"strconv"
)

// CSVWriter writes one row per probed site.
type CSVWriter struct{}

func (CSVWriter) Write(w io.Writer, r Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"site", "url", "status", "http_status", "elapsed_ms", "failure", "error"}); err != nil {
		return err
	}
	for _, res := range r.Results {
		if err := cw.Write([]string{
			res.Site,
			res.URL,
			res.Status.String(),
			strconv.Itoa(res.HTTPStatus),
			strconv.FormatInt(res.Elapsed.Milliseconds(), 10),
			string(res.Failure),
			res.Detail,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
