package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"

	lpdf "github.com/ledongthuc/pdf"
	"golang.org/x/sync/semaphore"

	"github.com/kirillkom/ai-processing-pipeline/internal/core/domain"
	"github.com/kirillkom/ai-processing-pipeline/internal/core/ports"
	"github.com/kirillkom/ai-processing-pipeline/internal/infrastructure/textbudget"
)

// TextReader returns the plain text and page count of a PDF document.
type TextReader func(data []byte) (text string, pages int, err error)

type Options struct {
	MaxTokens      int
	MaxConcurrency int
	Logger         *slog.Logger
	ReadText       TextReader
}

// Extractor pulls text out of a PDF, bounds it to the model budget and asks
// for a summary. Parsing is CPU bound and limited by a semaphore so a large
// batch cannot starve the process.
type Extractor struct {
	summarizer ports.TextSummarizer
	budget     *textbudget.Budget
	sem        *semaphore.Weighted
	readText   TextReader
	logger     *slog.Logger
}

func NewExtractor(summarizer ports.TextSummarizer, opts Options) *Extractor {
	concurrency := opts.MaxConcurrency
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}
	readText := opts.ReadText
	if readText == nil {
		readText = ReadText
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		summarizer: summarizer,
		budget:     textbudget.New(opts.MaxTokens),
		sem:        semaphore.NewWeighted(int64(concurrency)),
		readText:   readText,
		logger:     logger,
	}
}

func (e *Extractor) Extract(ctx context.Context, job domain.Job, payload []byte) (domain.Extraction, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return domain.Extraction{}, fmt.Errorf("wait for pdf parser slot: %w", err)
	}
	text, pages, err := e.readText(payload)
	e.sem.Release(1)
	if err != nil {
		return domain.Extraction{}, domain.WrapError(domain.ErrPermanent, "extract pdf text", err)
	}
	if strings.TrimSpace(text) == "" {
		return domain.Extraction{}, domain.WrapError(domain.ErrPermanent, "extract pdf text", errors.New("document has no extractable text"))
	}

	bounded, truncated := e.budget.Truncate(text)
	if truncated {
		e.logger.Info("pdf.text_truncated",
			"job_id", job.ID,
			"original_tokens", textbudget.EstimateTokens(text),
			"max_tokens", e.budget.MaxTokens,
		)
	}

	summary, err := e.summarizer.Summarize(ctx, bounded)
	if err != nil {
		return domain.Extraction{}, fmt.Errorf("summarize pdf: %w", err)
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return domain.Extraction{}, errors.New("summarize pdf: empty model response")
	}

	return domain.Extraction{
		Response:    summary,
		Summary:     summary,
		ContentText: bounded,
		PageCount:   pages,
	}, nil
}

// ReadText extracts plain text page by page. The parser panics on some
// malformed inputs; panics are returned as errors.
func ReadText(data []byte) (text string, pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parser panic: %v", r)
		}
	}()

	if len(data) < 4 || !bytes.HasPrefix(data, []byte("%PDF")) {
		return "", 0, fmt.Errorf("not a PDF file: invalid header (got: %q)", data[:min(10, len(data))])
	}

	r, err := lpdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, fmt.Errorf("failed to parse pdf: %w", err)
	}

	var sb strings.Builder
	pages = r.NumPage()
	for i := 1; i <= pages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", pages, fmt.Errorf("read page %d: %w", i, err)
		}
		sb.WriteString(pageText)
		sb.WriteString("\n")
	}
	return sb.String(), pages, nil
}
