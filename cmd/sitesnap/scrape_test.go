package main

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/nao1215/sitesnap/internal/config"
	"github.com/nao1215/sitesnap/internal/database"
)

// newTestSite serves two pages sharing one image plus a disallowed page.
func newTestSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head><title>Home</title></head><body>
<img src="/img/logo.png"><a href="/about">About</a><a href="/private/x">Private</a></body></html>`))
	})
	mux.HandleFunc("/about", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title>About</title></head><body><img src="/img/logo.png"></body></html>`))
	})
	mux.HandleFunc("/private/x", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><title>Private</title></html>`))
	})
	mux.HandleFunc("/img/logo.png", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("\x89PNG fake"))
	})
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /private/\n"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// writeConfig writes an empty config file so tests never read the
// user's own configuration.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), config.DefaultConfigFile)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func zipNames(t *testing.T, path string) []string {
	t.Helper()
	r, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	defer r.Close()
	names := make([]string, 0, len(r.File))
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	slices.Sort(names)
	return names
}

func TestScrapeCmd(t *testing.T) {
	srv := newTestSite(t)
	cacheDir := t.TempDir()
	outDir := t.TempDir()
	reportPath := filepath.Join(t.TempDir(), "report.md")

	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{
		"scrape", srv.URL,
		"--config", writeConfig(t, "defaults: {}\n"),
		"--cache-dir", cacheDir,
		"--out", outDir,
		"--chunk-delay", "1ms",
		"--load-timeout", "5s",
		"--respect-robots",
		"--report", reportPath,
	})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v\n%s", err, out.String())
	}

	got := zipNames(t, filepath.Join(outDir, "site-archive-part1.zip"))
	want := []string{"about/index.html", "img/logo.png", "index.html", "sitemap.json"}
	if !slices.Equal(got, want) {
		t.Errorf("archive entries = %v, want %v", got, want)
	}

	if !strings.Contains(out.String(), "completed") {
		t.Errorf("output lacks the session outcome:\n%s", out.String())
	}
	reportData, err := os.ReadFile(reportPath)
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	if !strings.Contains(string(reportData), "site-archive-part1.zip") {
		t.Errorf("report lacks the archive:\n%s", reportData)
	}

	store, err := database.Open(cacheDir, database.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	stats, err := store.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Pages != 0 || stats.Files != 0 {
		t.Errorf("cache not cleared after export: %+v", stats)
	}
}

func TestScrapeCmdSiteConfig(t *testing.T) {
	srv := newTestSite(t)
	outDir := t.TempDir()
	cfgPath := writeConfig(t, "sites:\n  "+srv.URL+":\n    ignorePatterns:\n      - \"/about\"\n")

	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{
		"scrape", srv.URL,
		"--config", cfgPath,
		"--cache-dir", t.TempDir(),
		"--out", outDir,
		"--chunk-delay", "1ms",
	})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v\n%s", err, out.String())
	}

	got := zipNames(t, filepath.Join(outDir, "site-archive-part1.zip"))
	if slices.Contains(got, "about/index.html") {
		t.Errorf("ignored page was archived: %v", got)
	}
	if !slices.Contains(got, "private/x/index.html") {
		t.Errorf("robots.txt applied without --respect-robots: %v", got)
	}
}

func TestScrapeCmdInvalidFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "unknown renderer", args: []string{"--renderer", "lynx"}, want: "unknown renderer"},
		{name: "zero chunk size", args: []string{"--chunk-size", "0"}, want: "chunk size"},
		{name: "unknown report format", args: []string{"--report-format", "pdf"}, want: "report format"},
		{name: "missing config file", args: []string{"--config", "/nonexistent/.sitesnap.yaml"}, want: "not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := []string{"scrape", "https://example.com", "--cache-dir", t.TempDir()}
			if tt.name != "missing config file" {
				args = append(args, "--config", writeConfig(t, "defaults: {}\n"))
			}
			cmd := NewRootCmd()
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			cmd.SetArgs(append(args, tt.args...))

			err := cmd.Execute()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Execute() error = %v, want one containing %q", err, tt.want)
			}
		})
	}
}

func TestAllOf(t *testing.T) {
	t.Parallel()

	if allOf(nil, nil) != nil {
		t.Error("allOf of nil filters should be nil")
	}
	noPrivate := func(u string) bool { return !strings.Contains(u, "/private") }
	noAdmin := func(u string) bool { return !strings.Contains(u, "/admin") }
	f := allOf(noPrivate, nil, noAdmin)

	tests := map[string]bool{
		"https://example.com/":          true,
		"https://example.com/private/a": false,
		"https://example.com/admin":     false,
	}
	for url, want := range tests {
		if got := f(url); got != want {
			t.Errorf("filter(%q) = %v, want %v", url, got, want)
		}
	}
}
