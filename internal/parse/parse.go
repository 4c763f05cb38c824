package parse

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	ET "github.com/IBM/fp-go/v2/either"
	F "github.com/IBM/fp-go/v2/function"
	IOE "github.com/IBM/fp-go/v2/ioeither"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/Qubut/IP-Claim/packages/gpatents_processor/internal/config"
	"github.com/Qubut/IP-Claim/packages/gpatents_processor/internal/download"
	"github.com/Qubut/IP-Claim/packages/gpatents_processor/internal/googlepatents"
	"github.com/Qubut/IP-Claim/packages/gpatents_processor/internal/models"
	"github.com/Qubut/IP-Claim/packages/gpatents_processor/internal/patent"
)

type Parser struct {
	Cfg             config.Config
	Logger          *zap.SugaredLogger
	Tracer          trace.Tracer
	Meter           metric.Meter
	progress        *progressbar.ProgressBar
	out             io.Writer
	sessionDuration metric.Int64Histogram
	pagesTotal      metric.Int64Counter
	pagesSuccess    metric.Int64Counter
	pagesFailed     metric.Int64Counter
	bytesTotal      metric.Int64Counter
	pageDuration    metric.Int64Histogram
}

// Summary counts the outcome of one ParseAll run. Rejected pages are those
// whose mandatory content was missing; they produce no record.
type Summary struct {
	RunID    string
	Pages    int
	Parsed   int
	Rejected int
}

func NewParser(
	cfg config.Config,
	tracer trace.Tracer,
	logger *zap.SugaredLogger,
	meter metric.Meter,
) (*Parser, error) {
	p := &Parser{
		Cfg:    cfg,
		Logger: logger,
		Tracer: tracer,
		Meter:  meter,
		out:    os.Stderr,
	}

	var err error
	p.sessionDuration, err = meter.Int64Histogram(
		"parse.session.duration",
		metric.WithDescription("Duration of the full parsing session"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	p.pagesTotal, err = meter.Int64Counter(
		"parse.pages.total",
		metric.WithDescription("Total number of result pages found"),
	)
	if err != nil {
		return nil, err
	}
	p.pagesSuccess, err = meter.Int64Counter(
		"parse.pages.success",
		metric.WithDescription("Number of result pages turned into records"),
	)
	if err != nil {
		return nil, err
	}
	p.pagesFailed, err = meter.Int64Counter(
		"parse.pages.failed",
		metric.WithDescription("Number of result pages rejected for missing content"),
	)
	if err != nil {
		return nil, err
	}
	p.bytesTotal, err = meter.Int64Counter(
		"parse.bytes.total",
		metric.WithDescription("Total bytes of markup parsed"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}
	p.pageDuration, err = meter.Int64Histogram(
		"parse.page.duration",
		metric.WithDescription("Duration of parsing a single result page"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// FindPages lists the cached result pages under dir in lexical order,
// leaving out saved family lookups.
func FindPages(ctx context.Context, dir string) ([]string, error) {
	var pages []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() || !strings.EqualFold(filepath.Ext(name), ".html") ||
			strings.HasPrefix(name, download.FamilyFilePrefix) {
			return nil
		}
		pages = append(pages, path)
		return nil
	})
	sort.Strings(pages)
	return pages, err
}

// ParseFile reads and parses one cached result page.
func (p *Parser) ParseFile(ctx context.Context, path string) IOE.IOEither[error, models.GoogleRawPatent] {
	return F.Pipe2(
		IOE.Eitherize1(os.ReadFile)(path),
		IOE.Tap(func(content []byte) IOE.IOEither[error, int] {
			select {
			case <-ctx.Done():
				return IOE.Left[int](ctx.Err())
			default:
			}
			p.bytesTotal.Add(ctx, int64(len(content)))
			return IOE.Right[error](len(content))
		}),
		IOE.Chain(IOE.Eitherize1(googlepatents.ParseDocument)),
	)
}

// ParseAll parses every cached page under dir with up to maxWorkers pages in
// flight, writing one JSON record per line to outputJSONL and a summary row
// per record to outputCSV. Either output may be "" to skip it. A page with
// missing mandatory content is logged and counted, and the run goes on; any
// other failure stops it.
func (p *Parser) ParseAll(
	ctx context.Context,
	dir, outputJSONL, outputCSV string,
	maxWorkers int64,
) (Summary, error) {
	summary := Summary{RunID: uuid.NewString()}
	ctx, sessionSpan := p.Tracer.Start(ctx, "parse.session", trace.WithAttributes(
		attribute.String("run_id", summary.RunID),
		attribute.String("download_dir", dir),
		attribute.String("output_jsonl", outputJSONL),
		attribute.String("output_csv", outputCSV),
		attribute.Int64("max_workers", maxWorkers),
	))
	defer sessionSpan.End()

	startTime := time.Now()
	p.Logger.Infow("Starting parsing session",
		"run_id", summary.RunID,
		"download_dir", dir,
		"output_jsonl", outputJSONL,
		"output_csv", outputCSV)

	ctxFind, findSpan := p.Tracer.Start(ctx, "parse.find_pages")
	pages, err := FindPages(ctxFind, dir)
	findSpan.End()
	if err != nil {
		sessionSpan.RecordError(err)
		return summary, fmt.Errorf("failed to walk directory: %w", err)
	}
	summary.Pages = len(pages)
	p.pagesTotal.Add(ctx, int64(len(pages)))
	p.Logger.Infow("Found result pages", "count", len(pages))

	sink, err := openSink(outputJSONL, outputCSV)
	if err != nil {
		sessionSpan.RecordError(err)
		return summary, err
	}
	defer sink.close()

	p.progress = progressbar.NewOptions(len(pages),
		progressbar.OptionSetWriter(p.out),
		progressbar.OptionSetWidth(60),
		progressbar.OptionSetDescription("[0 processed] Parsing result pages..."),
		progressbar.OptionShowCount(),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionThrottle(50*time.Millisecond),
		progressbar.OptionSetRenderBlankState(true),
	)

	sem := semaphore.NewWeighted(max(maxWorkers, 1))
	var wg sync.WaitGroup
	errChan := make(chan error, 1)
	var parsed, rejected atomic.Int64
	markdown := p.Cfg.Parse.MarkdownAbstracts

	for _, path := range pages {
		if err := sem.Acquire(ctx, 1); err != nil {
			p.Logger.Warnw("Parsing cancelled", "run_id", summary.RunID)
			break
		}
		// A worker reports its failure before releasing its slot.
		if len(errChan) > 0 {
			sem.Release(1)
			p.Logger.Warnw("Parsing stopped after failure", "run_id", summary.RunID)
			break
		}
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			defer sem.Release(1)
			defer func() { p.updateProgress(parsed.Load() + rejected.Load()) }()

			ctxPage, pageSpan := p.Tracer.Start(ctx, "parse.page", trace.WithAttributes(
				attribute.String("page_path", path),
			))
			defer pageSpan.End()
			pageStart := time.Now()

			res := F.Pipe1(
				p.ParseFile(ctxPage, path)(),
				ET.Chain(func(rec models.GoogleRawPatent) ET.Either[error, models.GoogleRawPatent] {
					return ET.TryCatchError(rec, sink.write(rec, markdown))
				}),
			)
			status := ET.Fold(
				func(err error) string {
					pageSpan.RecordError(err)
					if errors.Is(err, patent.ErrContent) {
						rejected.Add(1)
						p.pagesFailed.Add(ctxPage, 1)
						p.Logger.Warnw("Rejected result page", "path", path, "err", err)
						return "rejected"
					}
					select {
					case errChan <- fmt.Errorf("failed to process %s: %w", path, err):
					default:
					}
					return "failed"
				},
				func(rec models.GoogleRawPatent) string {
					parsed.Add(1)
					p.pagesSuccess.Add(ctxPage, 1)
					pageSpan.SetAttributes(attribute.String("publication_number", rec.DocumentNumber.Compact()))
					return "success"
				},
			)(res)
			p.pageDuration.Record(ctxPage, time.Since(pageStart).Milliseconds(),
				metric.WithAttributes(attribute.String("status", status)))
		}(path)
	}
	wg.Wait()
	close(errChan)

	summary.Parsed = int(parsed.Load())
	summary.Rejected = int(rejected.Load())
	// Records already written are kept even when the run fails.
	flushErr := sink.flush()
	if err, ok := <-errChan; ok {
		sessionSpan.RecordError(err)
		return summary, err
	}
	if ctx.Err() != nil {
		return summary, ctx.Err()
	}
	if flushErr != nil {
		sessionSpan.RecordError(flushErr)
		return summary, fmt.Errorf("flush outputs: %w", flushErr)
	}

	status := "success"
	if len(pages) == 0 {
		status = "empty"
	}
	p.sessionDuration.Record(ctx, time.Since(startTime).Milliseconds(),
		metric.WithAttributes(attribute.String("status", status)))
	p.Logger.Infow("Parsing completed",
		"run_id", summary.RunID,
		"parsed", summary.Parsed,
		"rejected", summary.Rejected)
	if p.progress != nil {
		p.progress.Describe("Parsing complete")
		_ = p.progress.Finish()
		p.progress = nil
	}
	return summary, nil
}

func (p *Parser) updateProgress(done int64) {
	if p.progress != nil {
		p.progress.Describe(fmt.Sprintf("[%d processed] Parsing result pages...", done))
		_ = p.progress.Add(1)
	}
}

// sink serializes writes from the page workers to both outputs.
type sink struct {
	mu    sync.Mutex
	files []*os.File
	jsonl *bufio.Writer
	csv   *csv.Writer
}

func openSink(outputJSONL, outputCSV string) (*sink, error) {
	s := &sink{}
	if outputJSONL != "" {
		f, err := create(outputJSONL)
		if err != nil {
			return nil, fmt.Errorf("failed to create JSONL: %w", err)
		}
		s.files = append(s.files, f)
		s.jsonl = bufio.NewWriter(f)
	}
	if outputCSV != "" {
		f, err := create(outputCSV)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("failed to create CSV: %w", err)
		}
		s.files = append(s.files, f)
		s.csv = csv.NewWriter(f)
		if err := s.csv.Write(csvHeader); err != nil {
			s.close()
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
	}
	return s, nil
}

func create(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.Create(path)
}

func (s *sink) write(rec models.GoogleRawPatent, markdown bool) error {
	var line []byte
	if s.jsonl != nil {
		var err error
		if line, err = jsonLine(rec); err != nil {
			return err
		}
	}
	row := csvRow(rec, markdown)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.jsonl != nil {
		if _, err := s.jsonl.Write(line); err != nil {
			return err
		}
	}
	if s.csv != nil {
		return s.csv.Write(row)
	}
	return nil
}

func (s *sink) flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.jsonl != nil {
		if err := s.jsonl.Flush(); err != nil {
			return err
		}
	}
	if s.csv != nil {
		s.csv.Flush()
		return s.csv.Error()
	}
	return nil
}

func (s *sink) close() {
	for _, f := range s.files {
		_ = f.Close()
	}
}
