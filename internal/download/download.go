package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/IBM/fp-go/v2/array"
	ET "github.com/IBM/fp-go/v2/either"
	"github.com/IBM/fp-go/v2/function"
	IOE "github.com/IBM/fp-go/v2/ioeither"
	Http "github.com/IBM/fp-go/v2/ioeither/http"
	"github.com/IBM/fp-go/v2/retry"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Qubut/IP-Claim/packages/gpatents_processor/internal/config"
	"github.com/Qubut/IP-Claim/packages/gpatents_processor/internal/familizer"
	"github.com/Qubut/IP-Claim/packages/gpatents_processor/internal/patent"
	T "github.com/Qubut/IP-Claim/packages/gpatents_processor/internal/typing"
)

// FamilyFilePrefix marks saved family-lookup responses in the download directory.
const FamilyFilePrefix = "family_"

// StatusError is a non-200 response. Only 429 and 5xx are retried.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: bad status: %d", e.URL, e.Code)
}

func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

type Downloader struct {
	Cfg      config.Config
	Logger   *zap.SugaredLogger
	Tracer   trace.Tracer
	Meter    metric.Meter
	progress *progressbar.ProgressBar
	out      io.Writer
	total    int

	pageLimiter   *rate.Limiter
	familyLimiter *rate.Limiter

	sessionDuration metric.Int64Histogram
	pagesTotal      metric.Int64Counter
	pagesSuccess    metric.Int64Counter
	pagesFailed     metric.Int64Counter
	bytesTotal      metric.Int64Counter
	requestDuration metric.Int64Histogram
	familyRequests  metric.Int64Counter
}

// Page is one result page to fetch and where it is cached.
type Page struct {
	Identifier patent.PatentNumber
	Language   string
	URL        string
	Path       string
}

func NewDownloader(
	cfg config.Config,
	tracer trace.Tracer,
	logger *zap.SugaredLogger,
	meter metric.Meter,
) (*Downloader, error) {
	d := &Downloader{
		Cfg:           cfg,
		Tracer:        tracer,
		Logger:        logger,
		Meter:         meter,
		out:           os.Stderr,
		pageLimiter:   newLimiter(cfg.GooglePatents.RequestsPerSecond),
		familyLimiter: newLimiter(cfg.Familizer.RequestsPerSecond),
	}

	var err error
	d.sessionDuration, err = d.Meter.Int64Histogram(
		"fetch.session.duration",
		metric.WithDescription("Duration of a fetch session"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	d.pagesTotal, err = d.Meter.Int64Counter(
		"fetch.pages.total",
		metric.WithDescription("Total number of result pages requested"),
	)
	if err != nil {
		return nil, err
	}
	d.pagesSuccess, err = d.Meter.Int64Counter(
		"fetch.pages.success",
		metric.WithDescription("Number of result pages fetched or found in the cache"),
	)
	if err != nil {
		return nil, err
	}
	d.pagesFailed, err = d.Meter.Int64Counter(
		"fetch.pages.failed",
		metric.WithDescription("Number of result pages that failed after retries"),
	)
	if err != nil {
		return nil, err
	}
	d.bytesTotal, err = d.Meter.Int64Counter(
		"fetch.bytes.total",
		metric.WithDescription("Total bytes actually downloaded"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}
	d.requestDuration, err = d.Meter.Int64Histogram(
		"fetch.request.duration",
		metric.WithDescription("Duration of a single page or family request"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	d.familyRequests, err = d.Meter.Int64Counter(
		"fetch.family.requests",
		metric.WithDescription("Number of family lookups sent"),
	)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// PageFor returns where pn's result page in lang is fetched from and cached.
func (downloader *Downloader) PageFor(pn patent.PatentNumber, lang string) Page {
	lang = strings.ToLower(lang)
	name := strings.TrimSuffix(pn.Format(patent.DefaultTemplate), "-")
	return Page{
		Identifier: pn,
		Language:   lang,
		URL: fmt.Sprintf(
			"%s/result?id=%s",
			strings.TrimSuffix(downloader.Cfg.GooglePatents.BaseURL, "/"),
			strings.TrimPrefix(pn.IDPath(lang), "/"),
		),
		Path: filepath.Join(downloader.Cfg.Download.Directory, fmt.Sprintf("%s_%s.html", name, lang)),
	}
}

// FetchDocuments fetches the result page of every identifier into the
// download directory and yields the size of each cached page.
func (downloader *Downloader) FetchDocuments(
	ctx context.Context,
	numbers []patent.PatentNumber,
) IOE.IOEither[error, []int64] {
	runID := uuid.NewString()
	cfg := downloader.Cfg.GooglePatents
	return traced(ctx, downloader.Tracer, "fetch.session", []attribute.KeyValue{
		attribute.String("run_id", runID),
		attribute.String("base_url", cfg.BaseURL),
		attribute.String("language", cfg.Language),
		attribute.Int("max_concurrent", cfg.Concurrency),
		attribute.Int("max_retries", cfg.MaxRetries),
		attribute.Int("documents", len(numbers)),
	}, func(ctx context.Context, _ trace.Span) IOE.IOEither[error, []int64] {
		startTime := time.Now()
		downloader.Logger.Infow("Starting fetch session",
			"run_id", runID,
			"documents", len(numbers),
			"concurrent", cfg.Concurrency)

		pages := array.Map(func(pn patent.PatentNumber) Page {
			return downloader.PageFor(pn, cfg.Language)
		})(numbers)

		prepare := IOE.TryCatchError(func() (T.Unit, error) {
			downloader.pagesTotal.Add(ctx, int64(len(pages)),
				metric.WithAttributes(attribute.String("run_id", runID)))
			downloader.total = len(pages)
			downloader.progress = progressbar.NewOptions(
				len(pages),
				progressbar.OptionSetWriter(downloader.out),
				progressbar.OptionSetWidth(60),
				progressbar.OptionSetDescription(fmt.Sprintf("[0/%d] Fetching pages...", len(pages))),
				progressbar.OptionShowCount(),
				progressbar.OptionSetElapsedTime(true),
				progressbar.OptionSetPredictTime(true),
				progressbar.OptionThrottle(50*time.Millisecond),
				progressbar.OptionSetRenderBlankState(true),
			)
			return T.Unit{}, os.MkdirAll(downloader.Cfg.Download.Directory, 0o755)
		})

		var completed atomic.Int64
		client := Http.MakeClient(&http.Client{Timeout: cfg.Timeout})
		semaphore := make(chan T.Unit, cfg.Concurrency)
		fetch := func(page Page) IOE.IOEither[error, int64] {
			select {
			case <-ctx.Done():
				return IOE.Left[int64](ctx.Err())
			default:
			}
			acquire := IOE.FromIO[error](func() Page { semaphore <- T.Unit{}; return page })
			use := function.Flow2(
				function.Curry3(downloader.FetchPage)(ctx)(client),
				IOE.Tap(func(_ int64) IOE.IOEither[error, T.Unit] {
					completed.Add(1)
					downloader.progress.Describe(fmt.Sprintf(
						"[%d/%d completed] Fetching pages...", completed.Load(), downloader.total,
					))
					_ = downloader.progress.Add(1)
					return IOE.Of[error](T.Unit{})
				}),
			)
			release := func(_ Page, _ ET.Either[error, int64]) IOE.IOEither[error, T.Unit] {
				<-semaphore
				return IOE.Of[error](T.Unit{})
			}
			return IOE.Bracket(acquire, use, release)
		}
		finish := func(sizes []int64) IOE.IOEither[error, T.Unit] {
			downloader.progress.Describe("Fetch complete")
			if err := downloader.progress.Finish(); err != nil {
				return IOE.Left[T.Unit](fmt.Errorf("finish progress bar: %w", err))
			}
			status := "success"
			if len(sizes) == 0 {
				status = "empty"
			}
			downloader.sessionDuration.Record(ctx, time.Since(startTime).Milliseconds(),
				metric.WithAttributes(
					attribute.String("status", status),
					attribute.Int("concurrent", cfg.Concurrency),
				),
			)
			downloader.Logger.Infow("Fetch session finished",
				"run_id", runID,
				"documents", len(sizes),
				"duration_ms", time.Since(startTime).Milliseconds())
			return IOE.Of[error](T.Unit{})
		}

		return function.Pipe3(
			prepare,
			IOE.Chain(func(_ T.Unit) IOE.IOEither[error, []int64] {
				return IOE.TraverseArrayPar(fetch)(pages)
			}),
			IOE.Tap(finish),
			IOE.TapLeft[[]int64](func(err error) IOE.IOEither[error, T.Unit] {
				downloader.Logger.Errorw("Fetch session failed", "run_id", runID, "err", err)
				return IOE.Of[error](T.Unit{})
			}),
		)
	})
}

// FetchPage downloads one result page unless a non-empty copy is already
// cached and skip_exists is set. The body is written to a temporary file
// that replaces the cached page only once complete.
func (downloader *Downloader) FetchPage(
	ctx context.Context,
	client Http.Client,
	page Page,
) IOE.IOEither[error, int64] {
	return traced(ctx, downloader.Tracer, "fetch.page", []attribute.KeyValue{
		attribute.String("patent.id", page.Identifier.String()),
		attribute.String("page.url", page.URL),
		attribute.String("page.path", page.Path),
	}, func(ctx context.Context, span trace.Span) IOE.IOEither[error, int64] {
		startTime := time.Now()
		select {
		case <-ctx.Done():
			return IOE.Left[int64](ctx.Err())
		default:
		}
		if downloader.Cfg.Download.SkipExists {
			if info, err := os.Stat(page.Path); err == nil && info.Size() > 0 {
				span.SetAttributes(attribute.Bool("skipped", true))
				span.AddEvent("page_already_cached")
				downloader.pagesSuccess.Add(ctx, 1, metric.WithAttributes(
					attribute.String("method", "skip"),
					attribute.Bool("skipped", true),
				))
				return IOE.Of[error](info.Size())
			}
		}

		request := IOE.TryCatchError(func() (*http.Request, error) {
			return http.NewRequestWithContext(ctx, http.MethodGet, page.URL, nil)
		})
		action := func(status retry.RetryStatus) IOE.IOEither[error, int64] {
			if status.IterNumber > 0 {
				span.AddEvent("retry", trace.WithAttributes(attribute.Int("attempt", int(status.IterNumber))))
			}
			return function.Pipe1(
				downloader.wait(ctx, downloader.pageLimiter),
				IOE.Chain(func(_ T.Unit) IOE.IOEither[error, int64] {
					return IOE.Bracket(
						client.Do(request),
						func(resp *http.Response) IOE.IOEither[error, int64] {
							if resp.StatusCode != http.StatusOK {
								return IOE.Left[int64, error](&StatusError{URL: page.URL, Code: resp.StatusCode})
							}
							return writeAtomic(page.Path, resp.Body)
						},
						closeBody[int64],
					)
				}),
			)
		}

		return function.Pipe2(
			IOE.Retrying(downloader.policy(downloader.Cfg.GooglePatents.MaxRetries), action, shouldRetry[int64]),
			IOE.Tap(func(size int64) IOE.IOEither[error, T.Unit] {
				attrs := metric.WithAttributes(
					attribute.String("method", "download"),
					attribute.Bool("skipped", false),
				)
				downloader.pagesSuccess.Add(ctx, 1, attrs)
				downloader.bytesTotal.Add(ctx, size, attrs)
				downloader.requestDuration.Record(ctx, time.Since(startTime).Milliseconds(),
					metric.WithAttributes(attribute.String("kind", "page"), attribute.String("status", "success")))
				downloader.Logger.Debugw("Fetched page", "patent", page.Identifier.String(), "bytes", size)
				return IOE.Of[error](T.Unit{})
			}),
			IOE.TapLeft[int64](func(err error) IOE.IOEither[error, T.Unit] {
				downloader.pagesFailed.Add(ctx, 1, metric.WithAttributes(
					attribute.String("error", err.Error()),
				))
				downloader.requestDuration.Record(ctx, time.Since(startTime).Milliseconds(),
					metric.WithAttributes(attribute.String("kind", "page"), attribute.String("status", "failed")))
				downloader.Logger.Warnw("Page fetch failed", "patent", page.Identifier.String(), "err", err)
				return IOE.Of[error](T.Unit{})
			}),
		)
	})
}

// FetchFamilies posts the identifiers to the family-lookup service, saves the
// raw response as family_<run-id>.html and returns it.
func (downloader *Downloader) FetchFamilies(
	ctx context.Context,
	numbers []patent.PatentNumber,
) IOE.IOEither[error, []byte] {
	if len(numbers) == 0 {
		return IOE.Left[[]byte](errors.New("family lookup needs at least one patent number"))
	}
	runID := uuid.NewString()
	cfg := downloader.Cfg.Familizer
	return traced(ctx, downloader.Tracer, "fetch.family", []attribute.KeyValue{
		attribute.String("run_id", runID),
		attribute.String("url", cfg.URL),
		attribute.Int("documents", len(numbers)),
	}, func(ctx context.Context, _ trace.Span) IOE.IOEither[error, []byte] {
		startTime := time.Now()

		form := url.Values{"patno": {strings.Join(array.Map(func(pn patent.PatentNumber) string {
			return pn.CountryCode + pn.Number
		})(numbers), "\n")}}.Encode()
		request := IOE.TryCatchError(func() (*http.Request, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, strings.NewReader(form))
			if err != nil {
				return nil, err
			}
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			return req, nil
		})
		client := Http.MakeClient(&http.Client{Timeout: cfg.Timeout})
		action := func(_ retry.RetryStatus) IOE.IOEither[error, []byte] {
			return function.Pipe1(
				downloader.wait(ctx, downloader.familyLimiter),
				IOE.Chain(func(_ T.Unit) IOE.IOEither[error, []byte] {
					downloader.familyRequests.Add(ctx, 1)
					return IOE.Bracket(
						client.Do(request),
						func(resp *http.Response) IOE.IOEither[error, []byte] {
							if resp.StatusCode != http.StatusOK {
								return IOE.Left[[]byte, error](&StatusError{URL: cfg.URL, Code: resp.StatusCode})
							}
							return IOE.TryCatchError(func() ([]byte, error) { return io.ReadAll(resp.Body) })
						},
						closeBody[[]byte],
					)
				}),
			)
		}
		path := filepath.Join(downloader.Cfg.Download.Directory, FamilyFilePrefix+runID+".html")

		return function.Pipe3(
			IOE.Retrying(downloader.policy(cfg.MaxRetries), action, shouldRetry[[]byte]),
			IOE.Tap(func(body []byte) IOE.IOEither[error, T.Unit] {
				return IOE.TryCatchError(func() (T.Unit, error) {
					if err := os.MkdirAll(downloader.Cfg.Download.Directory, 0o755); err != nil {
						return T.Unit{}, err
					}
					return T.Unit{}, os.WriteFile(path, body, 0o644)
				})
			}),
			IOE.Tap(func(body []byte) IOE.IOEither[error, T.Unit] {
				downloader.requestDuration.Record(ctx, time.Since(startTime).Milliseconds(),
					metric.WithAttributes(attribute.String("kind", "family"), attribute.String("status", "success")))
				downloader.Logger.Infow("Family lookup saved",
					"run_id", runID, "path", path, "bytes", len(body), "documents", len(numbers))
				return IOE.Of[error](T.Unit{})
			}),
			IOE.TapLeft[[]byte](func(err error) IOE.IOEither[error, T.Unit] {
				downloader.requestDuration.Record(ctx, time.Since(startTime).Milliseconds(),
					metric.WithAttributes(attribute.String("kind", "family"), attribute.String("status", "failed")))
				downloader.Logger.Errorw("Family lookup failed", "run_id", runID, "err", err)
				return IOE.Of[error](T.Unit{})
			}),
		)
	})
}

// ResolveFamilies looks up and parses the families of numbers.
func (downloader *Downloader) ResolveFamilies(
	ctx context.Context,
	numbers []patent.PatentNumber,
) IOE.IOEither[error, familizer.Result] {
	return function.Pipe1(
		downloader.FetchFamilies(ctx, numbers),
		IOE.Chain(func(body []byte) IOE.IOEither[error, familizer.Result] {
			return IOE.TryCatchError(func() (familizer.Result, error) { return familizer.Parse(body) })
		}),
	)
}

func (downloader *Downloader) policy(maxRetries int) retry.RetryPolicy {
	return retry.Monoid.Concat(
		retry.LimitRetries(uint(maxRetries)),
		retry.ExponentialBackoff(50*time.Millisecond),
	)
}

func shouldRetry[A any](result ET.Either[error, A]) bool {
	return ET.Fold(retryable, function.Constant1[A](false))(result)
}

func (downloader *Downloader) wait(ctx context.Context, limiter *rate.Limiter) IOE.IOEither[error, T.Unit] {
	return IOE.TryCatchError(func() (T.Unit, error) {
		return T.Unit{}, limiter.Wait(ctx)
	})
}

// spanned pairs a started span with the context that carries it.
type spanned struct {
	ctx  context.Context
	span trace.Span
}

// traced runs the pipeline built by program inside a span that starts when
// the pipeline executes and ends, recording any error, once it has finished.
func traced[A any](
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	attrs []attribute.KeyValue,
	program func(context.Context, trace.Span) IOE.IOEither[error, A],
) IOE.IOEither[error, A] {
	return IOE.Bracket(
		IOE.FromIO[error](func() spanned {
			spanCtx, span := tracer.Start(ctx, name, trace.WithAttributes(attrs...))
			return spanned{ctx: spanCtx, span: span}
		}),
		func(s spanned) IOE.IOEither[error, A] { return program(s.ctx, s.span) },
		func(s spanned, result ET.Either[error, A]) IOE.IOEither[error, T.Unit] {
			ET.Fold(
				func(err error) T.Unit {
					s.span.RecordError(err)
					s.span.SetStatus(codes.Error, err.Error())
					return T.Unit{}
				},
				function.Constant1[A](T.Unit{}),
			)(result)
			s.span.End()
			return IOE.Of[error](T.Unit{})
		},
	)
}

func closeBody[A any](resp *http.Response, _ ET.Either[error, A]) IOE.IOEither[error, any] {
	return IOE.TryCatchError(func() (any, error) { return nil, resp.Body.Close() })
}

func writeAtomic(path string, body io.Reader) IOE.IOEither[error, int64] {
	return IOE.TryCatchError(func() (int64, error) {
		tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.part")
		if err != nil {
			return 0, err
		}
		defer os.Remove(tmp.Name())
		size, err := io.Copy(tmp, body)
		if closeErr := tmp.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return 0, err
		}
		return size, os.Rename(tmp.Name(), path)
	})
}
