// Package catalog loads and validates Sherlock-style site databases.
package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

const SherlockDataURL = "https://raw.githubusercontent.com/sherlock-project/sherlock/refs/heads/master/sherlock_project/resources/data.json"

var ErrInvalidDocument = errors.New("invalid site database")

// RawEntry is one untyped catalog entry. Index is its position in the
// document, which is the canonical order of the catalog.
type RawEntry struct {
	Index int
	Name  string
	Value gjson.Result
}

// Parse reads a data.json document in document order and skips the
// top-level "$schema" key.
func Parse(raw []byte) ([]RawEntry, error) {
	if !gjson.ValidBytes(raw) {
		return nil, errors.Wrap(ErrInvalidDocument, "malformed json")
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return nil, errors.Wrap(ErrInvalidDocument, "top level is not an object")
	}

	var entries []RawEntry
	root.ForEach(func(key, value gjson.Result) bool {
		if key.String() == "$schema" {
			return true
		}
		entries = append(entries, RawEntry{
			Index: len(entries),
			Name:  key.String(),
			Value: value,
		})
		return true
	})
	return entries, nil
}

func LoadFile(filename string) ([]RawEntry, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	entries, err := Parse(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", filename)
	}
	return entries, nil
}

// Merge appends extra entries whose names are not already in base.
func Merge(base, extra []RawEntry) []RawEntry {
	seen := make(map[string]struct{}, len(base))
	out := make([]RawEntry, 0, len(base)+len(extra))
	for _, e := range base {
		seen[e.Name] = struct{}{}
		out = append(out, e)
	}
	for _, e := range extra {
		if _, ok := seen[e.Name]; ok {
			continue
		}
		e.Index = len(out)
		out = append(out, e)
	}
	return out
}

type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetch downloads the database from rawURL and atomically replaces destPath.
func Fetch(ctx context.Context, client Doer, rawURL, userAgent, destPath string) error {
	if rawURL == "" {
		rawURL = SherlockDataURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrap(err, "download site database")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Read a small snippet for diagnostics.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("download failed: %s (%s)", resp.Status, string(snippet))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "read site database")
	}
	if _, err := Parse(body); err != nil {
		return err
	}

	if dir := filepath.Dir(destPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	tmp := destPath + ".tmp"
	if err := os.WriteFile(tmp, body, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, destPath)
}
