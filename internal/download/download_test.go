package download

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	ET "github.com/IBM/fp-go/v2/either"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/Qubut/IP-Claim/packages/gpatents_processor/internal/config"
	"github.com/Qubut/IP-Claim/packages/gpatents_processor/internal/patent"
)

const resultPage = `<html><body><article class="result"><h1 itemprop="pageTitle">US9145048B2 - Hybrid drive</h1></article></body></html>`

const familyPage = `<html><body><table>
<tr><td><table><tr><td>US9145048</td><td>US9145048B2 DE102011001234A1</td></tr></table></td></tr>
<tr><td><table><tr><td>EP2371646</td><td>Not found</td></tr></table></td></tr>
</table></body></html>`

func newTestDownloader(t *testing.T, baseURL, familyURL string) *Downloader {
	t.Helper()
	cfg := config.Config{
		GooglePatents: config.GooglePatents{
			BaseURL:           baseURL,
			Language:          "en",
			Timeout:           5 * time.Second,
			MaxRetries:        2,
			Concurrency:       2,
			RequestsPerSecond: 1000,
		},
		Familizer: config.Familizer{
			URL:               familyURL,
			Timeout:           5 * time.Second,
			MaxRetries:        1,
			RequestsPerSecond: 1000,
		},
		Download: config.Download{Directory: t.TempDir(), SkipExists: true},
	}
	d, err := NewDownloader(
		cfg,
		tracenoop.NewTracerProvider().Tracer("test"),
		zap.NewNop().Sugar(),
		metricnoop.NewMeterProvider().Meter("test"),
	)
	require.NoError(t, err)
	d.out = io.Discard
	return d
}

func numbers(t *testing.T, raws ...string) []patent.PatentNumber {
	t.Helper()
	out := make([]patent.PatentNumber, 0, len(raws))
	for _, raw := range raws {
		pn, err := patent.Parse(raw)
		require.NoError(t, err)
		out = append(out, pn)
	}
	return out
}

func TestPageFor(t *testing.T) {
	d := newTestDownloader(t, "https://patents.example/xhr/", "http://unused")

	page := d.PageFor(numbers(t, "US9145048B2")[0], "EN")
	assert.Equal(t, "https://patents.example/xhr/result?id=patent/US9145048B2/en", page.URL)
	assert.Equal(t, filepath.Join(d.Cfg.Download.Directory, "US-9145048-B2_en.html"), page.Path)

	bare := d.PageFor(numbers(t, "EP11234")[0], "de")
	assert.Equal(t, filepath.Join(d.Cfg.Download.Directory, "EP-0011234_de.html"), bare.Path)
}

func TestFetchDocuments_SavesPages(t *testing.T) {
	var ids recorder
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ids.add(r.URL.Query().Get("id"))
		_, _ = io.WriteString(w, resultPage)
	}))
	defer srv.Close()

	d := newTestDownloader(t, srv.URL, "http://unused")
	sizes, err := ET.UnwrapError(d.FetchDocuments(context.Background(), numbers(t, "US9145048B2", "EP2371646B1"))())
	require.NoError(t, err)
	assert.Equal(t, []int64{int64(len(resultPage)), int64(len(resultPage))}, sizes)
	assert.ElementsMatch(t, []string{"patent/US9145048B2/en", "patent/EP2371646B1/en"}, ids.values())

	data, err := os.ReadFile(filepath.Join(d.Cfg.Download.Directory, "US-9145048-B2_en.html"))
	require.NoError(t, err)
	assert.Equal(t, resultPage, string(data))

	leftovers, err := filepath.Glob(filepath.Join(d.Cfg.Download.Directory, "*.part"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestFetchDocuments_SkipsCachedPages(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = io.WriteString(w, resultPage)
	}))
	defer srv.Close()

	d := newTestDownloader(t, srv.URL, "http://unused")
	cached := filepath.Join(d.Cfg.Download.Directory, "US-9145048-B2_en.html")
	require.NoError(t, os.WriteFile(cached, []byte("cached"), 0o644))
	empty := filepath.Join(d.Cfg.Download.Directory, "EP-2371646-B1_en.html")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))

	sizes, err := ET.UnwrapError(d.FetchDocuments(context.Background(), numbers(t, "US9145048B2", "EP2371646B1"))())
	require.NoError(t, err)
	assert.Equal(t, []int64{6, int64(len(resultPage))}, sizes)
	assert.Equal(t, int32(1), hits.Load())

	data, err := os.ReadFile(cached)
	require.NoError(t, err)
	assert.Equal(t, "cached", string(data))
}

func TestFetchDocuments_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, resultPage)
	}))
	defer srv.Close()

	d := newTestDownloader(t, srv.URL, "http://unused")
	_, err := ET.UnwrapError(d.FetchDocuments(context.Background(), numbers(t, "US9145048B2"))())
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestFetchDocuments_DoesNotRetryNotFound(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	d := newTestDownloader(t, srv.URL, "http://unused")
	_, err := ET.UnwrapError(d.FetchDocuments(context.Background(), numbers(t, "US9145048B2"))())
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.Equal(t, int32(1), hits.Load())

	_, statErr := os.Stat(filepath.Join(d.Cfg.Download.Directory, "US-9145048-B2_en.html"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestFetchDocuments_SpansCoverExecution(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") == "patent/EP2371646B1/en" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, resultPage)
	}))
	defer srv.Close()

	spans := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	d := newTestDownloader(t, srv.URL, "http://unused")
	d.Tracer = provider.Tracer("test")
	d.Cfg.GooglePatents.Concurrency = 1

	program := d.FetchDocuments(context.Background(), numbers(t, "US9145048B2", "EP2371646B1"))
	assert.Empty(t, spans.Started())
	assert.Empty(t, spans.Ended())

	_, err := ET.UnwrapError(program())
	require.Error(t, err)

	ended := map[string][]sdktrace.ReadOnlySpan{}
	for _, span := range spans.Ended() {
		ended[span.Name()] = append(ended[span.Name()], span)
	}
	require.Len(t, ended["fetch.session"], 1)
	require.Len(t, ended["fetch.page"], 2)
	session := ended["fetch.session"][0]
	assert.Equal(t, codes.Error, session.Status().Code)

	var failed, succeeded int
	for _, page := range ended["fetch.page"] {
		assert.Equal(t, session.SpanContext().SpanID(), page.Parent().SpanID())
		assert.False(t, page.EndTime().After(session.EndTime()))
		if page.Status().Code == codes.Error {
			failed++
			assert.NotEmpty(t, page.Events())
		} else {
			succeeded++
		}
	}
	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, succeeded)
}

func TestFetchDocuments_Cancelled(t *testing.T) {
	d := newTestDownloader(t, "http://127.0.0.1:1", "http://unused")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ET.UnwrapError(d.FetchDocuments(ctx, numbers(t, "US9145048B2"))())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetchFamilies(t *testing.T) {
	var form string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, r.ParseForm())
		form = r.PostForm.Get("patno")
		_, _ = io.WriteString(w, familyPage)
	}))
	defer srv.Close()

	d := newTestDownloader(t, "http://unused", srv.URL)
	body, err := ET.UnwrapError(d.FetchFamilies(context.Background(), numbers(t, "US9145048B2", "EP2371646B1"))())
	require.NoError(t, err)
	assert.Equal(t, familyPage, string(body))
	assert.Equal(t, "US9145048\nEP2371646", form)

	saved, err := filepath.Glob(filepath.Join(d.Cfg.Download.Directory, FamilyFilePrefix+"*.html"))
	require.NoError(t, err)
	require.Len(t, saved, 1)
	data, err := os.ReadFile(saved[0])
	require.NoError(t, err)
	assert.Equal(t, familyPage, string(data))
}

func TestFetchFamilies_NoNumbers(t *testing.T) {
	d := newTestDownloader(t, "http://unused", "http://unused")
	_, err := ET.UnwrapError(d.FetchFamilies(context.Background(), nil)())
	assert.Error(t, err)
}

func TestResolveFamilies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, familyPage)
	}))
	defer srv.Close()

	d := newTestDownloader(t, "http://unused", srv.URL)
	res, err := ET.UnwrapError(d.ResolveFamilies(context.Background(), numbers(t, "US9145048", "EP2371646"))())
	require.NoError(t, err)

	assert.Equal(t, numbers(t, "US9145048B2", "EP2371646"), res.Inputs())
	assert.Equal(t, numbers(t, "DE102011001234A1"), res.Family(numbers(t, "US9145048B2")[0]))
	assert.Nil(t, res.Family(numbers(t, "EP2371646")[0]))
}

type recorder struct {
	mu   sync.Mutex
	seen []string
}

func (r *recorder) add(v string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, v)
}

func (r *recorder) values() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.seen...)
}
