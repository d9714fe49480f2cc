package fetch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matzehuels/stackpip/pkg/dist"
	"github.com/matzehuels/stackpip/pkg/errors"
	"github.com/matzehuels/stackpip/pkg/observability"
)

func urlReq(u string) dist.Requirement {
	return dist.Requirement{Name: "demo", Source: dist.Source{Kind: dist.SourceURL, URL: u}}
}

func TestLocation(t *testing.T) {
	tests := []struct {
		name string
		req  dist.Requirement
		want string
		code errors.Code
	}{
		{"url", urlReq("https://x.example/demo-1.0-py3-none-any.whl"), "https://x.example/demo-1.0-py3-none-any.whl", ""},
		{"path", dist.Requirement{Name: "demo", Source: dist.Source{Kind: dist.SourcePath, Path: "/w/demo.whl"}}, "file:///w/demo.whl", ""},
		{"registry without url", dist.Requirement{Name: "demo", Specifier: dist.MustSpecifier("==1.0")}, "", errors.ErrCodeNotFound},
		{"editable", dist.Requirement{Name: "demo", Source: dist.Source{Kind: dist.SourceEditable, Path: "/src"}}, "", errors.ErrCodeUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Location(tt.req)
			if tt.code != "" {
				if !errors.Is(err, tt.code) {
					t.Errorf("err = %v, want %s", err, tt.code)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("Location = %q, %v; want %q", got, err, tt.want)
			}
		})
	}
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.whl" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("wheel-bytes"))
	}))
	defer srv.Close()

	f := &HTTPFetcher{Client: srv.Client(), Attempts: 1}

	resp, err := f.Fetch(context.Background(), urlReq(srv.URL+"/files/demo-1.0-py3-none-any.whl"))
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "wheel-bytes" {
		t.Errorf("body = %q", body)
	}
	if resp.Filename != "demo-1.0-py3-none-any.whl" || resp.Kind() != dist.ArchiveWheel {
		t.Errorf("Filename = %q, Kind = %v", resp.Filename, resp.Kind())
	}

	_, err = f.Fetch(context.Background(), urlReq(srv.URL+"/missing.whl"))
	if !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("missing artifact: err = %v, want NOT_FOUND", err)
	}
}

func TestHTTPFetcherRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := &HTTPFetcher{Client: srv.Client(), Attempts: 3, Backoff: time.Millisecond}
	resp, err := f.Fetch(context.Background(), urlReq(srv.URL+"/demo-1.0.tar.gz"))
	if err != nil {
		t.Fatalf("Fetch after transient failures: %v", err)
	}
	resp.Body.Close()
	if calls.Load() != 3 {
		t.Errorf("server saw %d requests, want 3", calls.Load())
	}
	if resp.Kind() != dist.ArchiveSdist {
		t.Errorf("Kind = %v, want sdist", resp.Kind())
	}
}

type retryLog struct {
	observability.NoopHTTPHooks
	attempts []int
	paths    []string
}

func (r *retryLog) OnRetry(_ context.Context, _, path string, attempt int, _ error, _ time.Duration) {
	r.attempts = append(r.attempts, attempt)
	r.paths = append(r.paths, path)
}

func TestHTTPFetcherReportsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path == "/gone.whl" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	log := &retryLog{}
	observability.SetHTTPHooks(log)
	defer observability.Reset()

	f := &HTTPFetcher{Client: srv.Client(), Attempts: 3, Backoff: time.Millisecond}

	_, err := f.Fetch(context.Background(), urlReq(srv.URL+"/gone.whl"))
	if !errors.Is(err, errors.ErrCodeNotFound) {
		t.Fatalf("err = %v, want NOT_FOUND", err)
	}
	if calls.Load() != 1 || len(log.attempts) != 0 {
		t.Errorf("NOT_FOUND retried: %d requests, %d retries", calls.Load(), len(log.attempts))
	}

	calls.Store(0)
	_, err = f.Fetch(context.Background(), urlReq(srv.URL+"/flaky.whl"))
	if !errors.Is(err, errors.ErrCodeNetwork) {
		t.Fatalf("err = %v, want NETWORK_ERROR", err)
	}
	if calls.Load() != 3 {
		t.Errorf("server saw %d requests, want 3", calls.Load())
	}
	if len(log.attempts) != 2 || log.attempts[0] != 1 || log.attempts[1] != 2 {
		t.Errorf("retries = %v, want [1 2]", log.attempts)
	}
	for _, p := range log.paths {
		if p != "/flaky.whl" {
			t.Errorf("retry path = %q", p)
		}
	}
}

func TestFileFetcher(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "demo-1.0-py3-none-any.whl")
	os.WriteFile(path, []byte("abc"), 0o644)

	req := dist.Requirement{Name: "demo", Source: dist.Source{Kind: dist.SourcePath, Path: path}}
	resp, err := FileFetcher{}.Fetch(context.Background(), req)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	defer resp.Body.Close()
	if resp.Size != 3 || resp.Filename != filepath.Base(path) {
		t.Errorf("Response = %+v", resp)
	}

	req.Source.Path = filepath.Join(dir, "nope.whl")
	if _, err := (FileFetcher{}).Fetch(context.Background(), req); !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("missing file: err = %v", err)
	}
}

func TestParseObjectURL(t *testing.T) {
	bucket, key, err := ParseObjectURL("s3://wheels/demo/demo-1.0-py3-none-any.whl")
	if err != nil || bucket != "wheels" || key != "demo/demo-1.0-py3-none-any.whl" {
		t.Errorf("ParseObjectURL = %q, %q, %v", bucket, key, err)
	}
	for _, bad := range []string{"s3://wheels", "s3:///key", "https://wheels/key"} {
		if _, _, err := ParseObjectURL(bad); err == nil {
			t.Errorf("ParseObjectURL(%q) should fail", bad)
		}
	}
}

func TestNewObjectStoreFetcherRequiresEndpoint(t *testing.T) {
	if _, err := NewObjectStoreFetcher(ObjectStoreConfig{}); !errors.Is(err, errors.ErrCodeInvalidConfig) {
		t.Errorf("err = %v, want INVALID_CONFIG", err)
	}
	f, err := NewObjectStoreFetcher(ObjectStoreConfig{Endpoint: "localhost:9000", AccessKey: "k", SecretKey: "s"})
	if err != nil || f.Client == nil {
		t.Errorf("NewObjectStoreFetcher = %v, %v", f, err)
	}
}

func TestRouter(t *testing.T) {
	var hits atomic.Int32
	stub := Func(func(ctx context.Context, req dist.Requirement) (*Response, error) {
		hits.Add(1)
		return &Response{Body: io.NopCloser(nil), Filename: "x.whl"}, nil
	})

	r := NewRouter(stub)
	r.Handle("s3", stub)

	for _, u := range []string{"https://x.example/a.whl", "http://x.example/a.whl", "s3://b/a.whl"} {
		if _, err := r.Fetch(context.Background(), urlReq(u)); err != nil {
			t.Errorf("Fetch(%s): %v", u, err)
		}
	}
	if hits.Load() != 3 {
		t.Errorf("stub hit %d times, want 3", hits.Load())
	}

	if _, err := r.Fetch(context.Background(), urlReq("ftp://x.example/a.whl")); !errors.Is(err, errors.ErrCodeUnsupported) {
		t.Errorf("unknown scheme: err = %v", err)
	}
}
