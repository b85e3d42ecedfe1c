package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossbot/internal/domain"
)

type fakeWriter struct {
	puts       map[string][]byte
	multiparts map[string][]byte
	lastType   string
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{
		puts:       make(map[string][]byte),
		multiparts: make(map[string][]byte),
	}
}

func (w *fakeWriter) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.puts[path] = buf
	w.lastType = contentType
	return nil
}

func (w *fakeWriter) PutMultipart(_ context.Context, path string, data io.Reader, _ int64) error {
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.multiparts[path] = buf
	return nil
}

// fakeStat reports sizes from the paired writer, with an optional override
// to simulate a provider storing the wrong byte count.
type fakeStat struct {
	writer   *fakeWriter
	override int64
}

func (s *fakeStat) Size(_ context.Context, path string) (int64, error) {
	if s.override != 0 {
		return s.override, nil
	}
	if buf, ok := s.writer.puts[path]; ok {
		return int64(len(buf)), nil
	}
	if buf, ok := s.writer.multiparts[path]; ok {
		return int64(len(buf)), nil
	}
	return 0, domain.ErrNotFound
}

type fakeOppStore struct {
	recs []domain.OpportunityRecord
}

func (s *fakeOppStore) ListBefore(context.Context, time.Time) ([]domain.OpportunityRecord, error) {
	return s.recs, nil
}

type fakeSettlementStore struct {
	positions []domain.Position
}

func (s *fakeSettlementStore) ListBefore(context.Context, time.Time) ([]domain.Position, error) {
	return s.positions, nil
}

type fakeAudit struct {
	events  []string
	details []map[string]any
}

func (a *fakeAudit) Log(_ context.Context, event string, detail map[string]any) error {
	a.events = append(a.events, event)
	a.details = append(a.details, detail)
	return nil
}

func (a *fakeAudit) List(context.Context, int) ([]domain.AuditEntry, error) {
	return nil, nil
}

func newTestArchiver(writer *fakeWriter, opps *fakeOppStore, settles *fakeSettlementStore, audit *fakeAudit) *ArchiveImpl {
	return NewArchiver(writer, &fakeStat{writer: writer}, opps, settles, audit)
}

func TestArchiveOpportunitiesUploadsJSONL(t *testing.T) {
	writer := newFakeWriter()
	audit := &fakeAudit{}
	opps := &fakeOppStore{recs: []domain.OpportunityRecord{
		{ID: "opp-1", Strategy: domain.StrategyYesNo, NetProfit: 0.03},
		{ID: "opp-2", Strategy: domain.StrategyNoYes, NetProfit: 0.01},
	}}

	arch := newTestArchiver(writer, opps, &fakeSettlementStore{}, audit)

	before := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	count, err := arch.ArchiveOpportunities(context.Background(), before)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	buf, ok := writer.puts["archive/opportunities/2025-02.jsonl"]
	require.True(t, ok, "expected upload at the monthly path, got %v", writer.puts)
	assert.Equal(t, "application/x-ndjson", writer.lastType)

	// Every line must decode back to a record.
	var ids []string
	scanner := bufio.NewScanner(bytes.NewReader(buf))
	for scanner.Scan() {
		var rec domain.OpportunityRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		ids = append(ids, rec.ID)
	}
	assert.Equal(t, []string{"opp-1", "opp-2"}, ids)

	require.Equal(t, []string{"archive.opportunities"}, audit.events)
	assert.Equal(t, int64(2), audit.details[0]["count"])
	assert.Equal(t, "archive/opportunities/2025-02.jsonl", audit.details[0]["path"])
}

func TestArchiveOpportunitiesNothingToArchive(t *testing.T) {
	writer := newFakeWriter()
	audit := &fakeAudit{}

	arch := newTestArchiver(writer, &fakeOppStore{}, &fakeSettlementStore{}, audit)

	count, err := arch.ArchiveOpportunities(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, writer.puts)
	assert.Empty(t, audit.events)
}

func TestArchiveSettlementsUploadsJSONL(t *testing.T) {
	writer := newFakeWriter()
	audit := &fakeAudit{}
	settledAt := time.Date(2025, 1, 12, 9, 0, 0, 0, time.UTC)
	profit := 42.5
	settles := &fakeSettlementStore{positions: []domain.Position{
		{
			ID:        "pos-1",
			Venue:     domain.VenueKalshi,
			EventID:   "FED-25DEC",
			Outcome:   domain.OutcomeYes,
			Status:    domain.PositionWon,
			SettledAt: &settledAt,
			Profit:    &profit,
		},
	}}

	arch := newTestArchiver(writer, &fakeOppStore{}, settles, audit)

	before := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	count, err := arch.ArchiveSettlements(context.Background(), before)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	buf, ok := writer.puts["archive/settlements/2025-03.jsonl"]
	require.True(t, ok)

	var pos domain.Position
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf), &pos))
	assert.Equal(t, "pos-1", pos.ID)
	require.NotNil(t, pos.Profit)
	assert.Equal(t, 42.5, *pos.Profit)

	assert.Equal(t, []string{"archive.settlements"}, audit.events)
}

func TestUploadSwitchesToMultipartForLargePayloads(t *testing.T) {
	writer := newFakeWriter()
	arch := newTestArchiver(writer, &fakeOppStore{}, &fakeSettlementStore{}, &fakeAudit{})

	big := bytes.Repeat([]byte("x"), int(multipartThreshold))
	require.NoError(t, arch.upload(context.Background(), "archive/opportunities/2025-01.jsonl", big))

	assert.Empty(t, writer.puts)
	assert.Len(t, writer.multiparts["archive/opportunities/2025-01.jsonl"], int(multipartThreshold))
}

func TestUploadFailsOnSizeMismatch(t *testing.T) {
	writer := newFakeWriter()
	arch := NewArchiver(writer, &fakeStat{writer: writer, override: 3}, &fakeOppStore{}, &fakeSettlementStore{}, &fakeAudit{})

	err := arch.upload(context.Background(), "archive/opportunities/2025-01.jsonl", []byte("payload"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stored 3 bytes, expected 7")
}

func TestArchivePathPartitionsByMonth(t *testing.T) {
	before := time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC)
	assert.Equal(t, "archive/opportunities/2024-12.jsonl", archivePath("opportunities", before))
}
