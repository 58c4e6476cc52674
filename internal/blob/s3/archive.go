package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/alanyoungcy/weatherbot/internal/domain"
	"github.com/alanyoungcy/weatherbot/internal/strategy"
)

// multipartThreshold is the payload size above which uploads go through the
// multipart manager.
const multipartThreshold = 8 * 1024 * 1024

// BacktestArchive writes backtest output under <prefix>/<run id>/.
type BacktestArchive struct {
	writer domain.BlobWriter
	prefix string
}

// NewBacktestArchive returns an archive rooted at prefix.
func NewBacktestArchive(w domain.BlobWriter, prefix string) *BacktestArchive {
	if prefix == "" {
		prefix = "backtest"
	}
	return &BacktestArchive{writer: w, prefix: prefix}
}

// ResultsPath is the JSONL object holding one city's replayed snapshots.
func (a *BacktestArchive) ResultsPath(runID, city string) string {
	return path.Join(a.prefix, runID, city+".jsonl")
}

// SummaryPath is the JSON object holding one city's summary.
func (a *BacktestArchive) SummaryPath(runID, city string) string {
	return path.Join(a.prefix, runID, city+"_summary.json")
}

// CandidatePath is the JSON object holding the recalibrated table.
func (a *BacktestArchive) CandidatePath(runID string) string {
	return path.Join(a.prefix, runID, "confidence_candidate.json")
}

// ArchiveResults uploads results as JSON lines and returns the object path.
func (a *BacktestArchive) ArchiveResults(ctx context.Context, runID, city string, results []domain.BacktestResult) (string, error) {
	data, err := marshalJSONL(results)
	if err != nil {
		return "", fmt.Errorf("s3blob: marshal %s results: %w", city, err)
	}
	p := a.ResultsPath(runID, city)
	if len(data) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, p, bytes.NewReader(data), minPartSize)
	} else {
		err = a.writer.Put(ctx, p, bytes.NewReader(data), "application/x-ndjson")
	}
	if err != nil {
		return "", err
	}
	return p, nil
}

// ArchiveSummary uploads one city's summary document.
func (a *BacktestArchive) ArchiveSummary(ctx context.Context, summary domain.BacktestSummary) (string, error) {
	p := a.SummaryPath(summary.RunID, summary.City)
	if err := a.putJSON(ctx, p, summary); err != nil {
		return "", err
	}
	return p, nil
}

// PublishCandidate uploads a candidate confidence table. It is never written
// to the live key; promoting it is an operator decision.
func (a *BacktestArchive) PublishCandidate(ctx context.Context, runID string, table strategy.ConfidenceTable) (string, error) {
	if err := table.Validate(); err != nil {
		return "", err
	}
	p := a.CandidatePath(runID)
	if err := a.putJSON(ctx, p, table); err != nil {
		return "", err
	}
	return p, nil
}

func (a *BacktestArchive) putJSON(ctx context.Context, p string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("s3blob: marshal %s: %w", p, err)
	}
	return a.writer.Put(ctx, p, bytes.NewReader(data), "application/json")
}

// marshalJSONL encodes items one JSON document per line.
func marshalJSONL[T any](items []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range items {
		if err := enc.Encode(items[i]); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
