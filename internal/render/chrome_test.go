package render

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"slices"
	"testing"
	"time"

	"github.com/nao1215/sitesnap/internal/resource"
)

func TestNewChromeRenderer(t *testing.T) {
	t.Parallel()

	t.Run("does not launch a browser", func(t *testing.T) {
		t.Parallel()

		r := NewChromeRenderer(ChromeOptions{})
		if r.browserCtx != nil {
			t.Error("browser started eagerly")
		}
		if err := r.Close(); err != nil {
			t.Errorf("Close on unstarted renderer: %v", err)
		}
	})

	t.Run("allocator options", func(t *testing.T) {
		t.Parallel()

		base := len(NewChromeRenderer(ChromeOptions{}).allocatorOptions())
		full := len(NewChromeRenderer(ChromeOptions{
			ExecPath:     "/usr/bin/chromium",
			UserAgent:    "sitesnap",
			ProxyAddress: "127.0.0.1:9050",
		}).allocatorOptions())
		if full != base+3 {
			t.Errorf("expected 3 extra options, got %d", full-base)
		}
	})
}

func TestDedupe(t *testing.T) {
	t.Parallel()

	got := dedupe([]string{"a", "", "b", "a", "c", "b"})
	if !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Errorf("dedupe = %v", got)
	}
}

func TestChromeRendererRender(t *testing.T) {
	t.Parallel()

	path := ""
	for _, name := range []string{"google-chrome", "chromium", "chromium-browser"} {
		if p, err := exec.LookPath(name); err == nil {
			path = p
			break
		}
	}
	if path == "" {
		t.Skip("no chrome binary available")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title>Dynamic</title></head><body>
			<script>
			const a = document.createElement('a');
			a.href = '/generated';
			document.body.appendChild(a);
			</script></body></html>`))
	}))
	defer srv.Close()

	reg := resource.NewRegistry()
	r := NewChromeRenderer(ChromeOptions{ExecPath: path}, WithRegistry(reg))
	defer r.Close()

	res, err := r.Render(context.Background(), srv.URL, 30*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if res.Title != "Dynamic" {
		t.Errorf("title = %q", res.Title)
	}
	if !slices.Contains(res.Links, srv.URL+"/generated") {
		t.Errorf("script generated link missing from %v", res.Links)
	}
	if reg.OpenTabs() != 0 {
		t.Errorf("tab left open: %d", reg.OpenTabs())
	}
}
