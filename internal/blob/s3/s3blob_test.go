package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/weatherbot/internal/domain"
	"github.com/alanyoungcy/weatherbot/internal/strategy"
)

// memBlobs is an in-memory bucket.
type memBlobs struct {
	mu        sync.Mutex
	objects   map[string][]byte
	types     map[string]string
	modified  map[string]time.Time
	multipart int
}

func newMemBlobs() *memBlobs {
	return &memBlobs{objects: map[string][]byte{}, types: map[string]string{}, modified: map[string]time.Time{}}
}

func (m *memBlobs) Put(_ context.Context, p string, data io.Reader, contentType string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[p] = b
	m.types[p] = contentType
	return nil
}

func (m *memBlobs) PutMultipart(ctx context.Context, p string, data io.Reader, _ int64) error {
	m.mu.Lock()
	m.multipart++
	m.mu.Unlock()
	return m.Put(ctx, p, data, "")
}

func (m *memBlobs) Get(_ context.Context, p string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[p]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memBlobs) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.BlobInfo
	for p, b := range m.objects {
		if strings.HasPrefix(p, prefix) {
			out = append(out, domain.BlobInfo{Path: p, Size: int64(len(b)), LastModified: m.modified[p]})
		}
	}
	return out, nil
}

func TestArchiveResultsWritesJSONLines(t *testing.T) {
	blobs := newMemBlobs()
	a := NewBacktestArchive(blobs, "")
	day := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	results := []domain.BacktestResult{
		{RunID: "backtest-1", City: "london", TargetDate: day, LeadDays: 1, ActualBucket: "16°C", ConsensusBucket: "16°C", ConsensusCount: 3, ConsensusCorrect: true},
		{RunID: "backtest-1", City: "london", TargetDate: day.AddDate(0, 0, 1), LeadDays: 1, ActualBucket: "15°C", ConsensusBucket: "16°C", ConsensusCount: 2},
	}
	p, err := a.ArchiveResults(context.Background(), "backtest-1", "london", results)
	require.NoError(t, err)
	assert.Equal(t, "backtest/backtest-1/london.jsonl", p)
	assert.Equal(t, "application/x-ndjson", blobs.types[p])
	assert.Zero(t, blobs.multipart)

	sc := bufio.NewScanner(bytes.NewReader(blobs.objects[p]))
	var lines []domain.BacktestResult
	for sc.Scan() {
		var r domain.BacktestResult
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r))
		lines = append(lines, r)
	}
	require.Len(t, lines, 2)
	assert.True(t, lines[0].ConsensusCorrect)
	assert.Equal(t, "15°C", lines[1].ActualBucket)
}

func TestPublishCandidateRejectsInvalidTable(t *testing.T) {
	blobs := newMemBlobs()
	a := NewBacktestArchive(blobs, "runs")

	_, err := a.PublishCandidate(context.Background(), "r1", strategy.ConfidenceTable{MaxAgreement: 3})
	require.Error(t, err)
	assert.Empty(t, blobs.objects)

	p, err := a.PublishCandidate(context.Background(), "r1", strategy.DefaultConfidenceTable())
	require.NoError(t, err)
	assert.Equal(t, "runs/r1/confidence_candidate.json", p)
}

func TestLoadConfidenceTableRoundTrip(t *testing.T) {
	blobs := newMemBlobs()
	a := NewBacktestArchive(blobs, "backtest")
	want := strategy.DefaultConfidenceTable()
	p, err := a.PublishCandidate(context.Background(), "r2", want)
	require.NoError(t, err)

	got, err := LoadConfidenceTable(context.Background(), blobs, p)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, 0.91, got.Lookup("london", 0, 3))
}

func TestLoadConfidenceTableErrors(t *testing.T) {
	blobs := newMemBlobs()
	ctx := context.Background()

	_, err := LoadConfidenceTable(ctx, blobs, "confidence/latest.json")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, blobs.Put(ctx, "bad.json", strings.NewReader("{"), "application/json"))
	_, err = LoadConfidenceTable(ctx, blobs, "bad.json")
	assert.ErrorContains(t, err, "decode bad.json")

	require.NoError(t, blobs.Put(ctx, "range.json",
		strings.NewReader(`{"version":"v","max_lead":0,"max_agreement":1,"cities":{"london":[[1.4]]}}`), "application/json"))
	_, err = LoadConfidenceTable(ctx, blobs, "range.json")
	assert.ErrorContains(t, err, "outside [0,1]")
}

func TestLoadConfidenceTableNewestUnderPrefix(t *testing.T) {
	blobs := newMemBlobs()
	ctx := context.Background()
	put := func(p, version string, at time.Time) {
		body := `{"version":"` + version + `","max_lead":0,"max_agreement":1,"cities":{"london":[[0.7]]}}`
		require.NoError(t, blobs.Put(ctx, p, strings.NewReader(body), "application/json"))
		blobs.modified[p] = at
	}
	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	put("confidence/2026-09.json", "v-sep", base)
	put("confidence/2026-10.json", "v-oct", base.Add(24*time.Hour))
	require.NoError(t, blobs.Put(ctx, "confidence/notes.txt", strings.NewReader("x"), "text/plain"))
	blobs.modified["confidence/notes.txt"] = base.Add(48 * time.Hour)

	got, err := LoadConfidenceTable(ctx, blobs, "confidence/")
	require.NoError(t, err)
	assert.Equal(t, "v-oct", got.Version)

	_, err = LoadConfidenceTable(ctx, blobs, "empty/")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://s3.example.com", normaliseEndpoint("s3.example.com", true))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("minio:9000", false))
	assert.Equal(t, "http://already", normaliseEndpoint("http://already", true))
}
