package app

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const catalogTemplate = `{
  "Slow": {
    "errorType": "status_code",
    "url": "SRV/slow/{}"
  },
  "Local": {
    "errorType": "status_code",
    "url": "SRV/users/{}",
    "urlMain": "SRV/",
    "username_claimed": "alice",
    "username_unclaimed": "nobody"
  },
  "Always": {
    "errorType": "status_code",
    "url": "SRV/always/{}",
    "username_claimed": "alice",
    "username_unclaimed": "nobody"
  },
  "Broken": {"url": "no placeholder"}
}`

type fixture struct {
	srv     *httptest.Server
	dir     string
	catalog string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	f := &fixture{dir: t.TempDir()}
	mux := http.NewServeMux()
	mux.HandleFunc("/users/", func(w http.ResponseWriter, r *http.Request) {
		if strings.TrimPrefix(r.URL.Path, "/users/") == "alice" {
			_, _ = w.Write([]byte("<html>alice</html>"))
			return
		}
		http.NotFound(w, r)
	})
	mux.HandleFunc("/slow/", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/always/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/data.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(f.catalog))
	})
	mux.HandleFunc("/release", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"tag_name": "v9.9.9", "html_url": "https://example.com/r"}`))
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)

	f.catalog = strings.ReplaceAll(catalogTemplate, "SRV", f.srv.URL)
	return f
}

func (f *fixture) writeDatabase(t *testing.T) string {
	t.Helper()
	path := filepath.Join(f.dir, "data.json")
	require.NoError(t, os.WriteFile(path, []byte(f.catalog), 0o600))
	return path
}

func run(ctx context.Context, args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := Run(ctx, args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_Search(t *testing.T) {
	f := newFixture(t)
	db := f.writeDatabase(t)
	report := filepath.Join(f.dir, "out", "alice.json")
	results := filepath.Join(f.dir, "results")

	code, stdout, stderr := run(context.Background(),
		"alice", "--database", db, "--local", "--sites", "Local",
		"-o", report, "--results", results, "--no-color")
	require.Equal(t, ExitOK, code, stderr)

	assert.Contains(t, stdout, "[+] Local: "+f.srv.URL+"/users/alice")
	assert.Contains(t, stdout, "1 found, 0 not found, 0 unknown")
	assert.Contains(t, stderr, "Broken", "invalid catalog entries are logged")

	raw, err := os.ReadFile(report)
	require.NoError(t, err)
	doc := gjson.ParseBytes(raw)
	assert.Equal(t, "alice", doc.Get("identifier").String())
	assert.Equal(t, int64(1), doc.Get("summary.found").Int())
	assert.Equal(t, "Local", doc.Get("results.0.site").String())

	out, err := os.ReadFile(filepath.Join(results, "alice", "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "[+] Local: "+f.srv.URL+"/users/alice\n", string(out))
}

func TestRun_ResultsFileFollowsCatalogOrder(t *testing.T) {
	f := newFixture(t)
	db := f.writeDatabase(t)
	results := filepath.Join(f.dir, "results")

	// Slow comes first in the catalog but answers last.
	code, _, stderr := run(context.Background(),
		"alice", "--database", db, "--local", "--sites", "Local,Slow",
		"--results", results, "--no-color")
	require.Equal(t, ExitOK, code, stderr)

	out, err := os.ReadFile(filepath.Join(results, "alice", "out.txt"))
	require.NoError(t, err)
	assert.Equal(t,
		"[+] Slow: "+f.srv.URL+"/slow/alice\n[+] Local: "+f.srv.URL+"/users/alice\n",
		string(out))
}

func TestRun_PrintAllAndMultipleIdentifiers(t *testing.T) {
	f := newFixture(t)
	db := f.writeDatabase(t)
	ids := filepath.Join(f.dir, "ids.txt")
	require.NoError(t, os.WriteFile(ids, []byte("bob\n# skipped\n"), 0o600))
	report := filepath.Join(f.dir, "out.csv")

	code, stdout, stderr := run(context.Background(),
		"alice", "--file", ids, "--database", db, "--local", "--sites", "Local", "-a", "-o", report)
	require.Equal(t, ExitOK, code, stderr)

	assert.Contains(t, stdout, "Investigating alice")
	assert.Contains(t, stdout, "Investigating bob")
	assert.Contains(t, stdout, "[-] Local: Not Found!")

	assert.FileExists(t, filepath.Join(f.dir, "out-alice.csv"))
	assert.FileExists(t, filepath.Join(f.dir, "out-bob.csv"))
	assert.NoFileExists(t, report)
}

func TestRun_DownloadsMissingDatabase(t *testing.T) {
	f := newFixture(t)
	db := filepath.Join(f.dir, "fresh", "data.json")

	code, _, stderr := run(context.Background(),
		"sites", "--database", db, "--catalog-url", f.srv.URL+"/data.json", "--no-color")
	require.Equal(t, ExitOK, code, stderr)
	assert.FileExists(t, db)
}

func TestRun_UpdateFallsBackToExistingDatabase(t *testing.T) {
	f := newFixture(t)
	db := f.writeDatabase(t)

	code, stdout, stderr := run(context.Background(),
		"sites", "--database", db, "--update", "--catalog-url", f.srv.URL+"/missing.json", "--no-color")
	require.Equal(t, ExitOK, code, stderr)
	assert.Contains(t, stderr, "using the existing one")
	assert.Contains(t, stdout, "Local: "+f.srv.URL+"/")
}

func TestRun_NoDatabase(t *testing.T) {
	f := newFixture(t)
	code, _, _ := run(context.Background(), "alice", "--database", filepath.Join(f.dir, "none.json"), "--local")
	assert.Equal(t, ExitFailure, code)
}

func TestRun_NoSitesSelected(t *testing.T) {
	f := newFixture(t)
	db := f.writeDatabase(t)
	code, _, stderr := run(context.Background(), "alice", "--database", db, "--local", "--sites", "Nowhere")
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, stderr, "unknown sites ignored")
	assert.Contains(t, stderr, "no sites selected")
}

func TestRun_Usage(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	code, _, stderr := run(context.Background())
	assert.Equal(t, ExitUsage, code)
	assert.Contains(t, stderr, "identifier")

	code, _, _ = run(context.Background(), "alice", "--timeout", "0")
	assert.Equal(t, ExitUsage, code)

	code, stdout, _ := run(context.Background(), "--help")
	assert.Equal(t, ExitOK, code)
	assert.Contains(t, stdout, "Usage:")
}

func TestRun_SelfTest(t *testing.T) {
	f := newFixture(t)
	db := f.writeDatabase(t)

	code, stdout, stderr := run(context.Background(), "selftest", "--database", db, "--local", "--no-color")
	require.Equal(t, ExitOK, code, stderr)
	assert.Contains(t, stdout, "[!] Always: unclaimed username nobody reported as found")
	assert.NotContains(t, stdout, "Local:")
	assert.Contains(t, stdout, "1 of 2 sites")
}

func TestRun_UnreachableProxy(t *testing.T) {
	f := newFixture(t)
	db := f.writeDatabase(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	code, stdout, stderr := run(context.Background(),
		"alice", "--database", db, "--local", "--sites", "Local,Always",
		"--proxy", "socks5://"+addr, "-a", "--no-color")
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, stdout, "ERROR (transport_unavailable)")
	assert.Contains(t, stderr, "no usable transport")
}

func TestRun_Interrupted(t *testing.T) {
	f := newFixture(t)
	db := f.writeDatabase(t)
	report := filepath.Join(f.dir, "partial.json")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	code, _, _ := run(ctx, "alice", "--database", db, "--local", "--sites", "Local", "-o", report)
	assert.Equal(t, ExitInterrupted, code)

	raw, err := os.ReadFile(report)
	require.NoError(t, err, "the partial report is still written")
	assert.Equal(t, "cancelled", gjson.GetBytes(raw, "results.0.failure").String())
}

func TestRun_Version(t *testing.T) {
	f := newFixture(t)

	code, stdout, _ := run(context.Background(), "version")
	assert.Equal(t, ExitOK, code)
	assert.Equal(t, "watson dev\n", stdout)

	old := releaseURL
	releaseURL = f.srv.URL + "/release"
	t.Cleanup(func() { releaseURL = old })

	code, stdout, _ = run(context.Background(), "version", "--check")
	assert.Equal(t, ExitOK, code)
	assert.Contains(t, stdout, "latest version")
}

func TestReportPath(t *testing.T) {
	assert.Equal(t, "out.json", reportPath("out.json", "alice", false))
	assert.Equal(t, "dir/out-alice.json", reportPath("dir/out.json", "alice", true))
	assert.Equal(t, "out-a_b", reportPath("out", "a/b", true))
	assert.Equal(t, "_", safeName(".."))
}
