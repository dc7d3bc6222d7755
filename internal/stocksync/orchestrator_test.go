package stocksync

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/olegsm/retaildesk/pkg/models"
)

type fakeQueryStore struct {
	records []models.QueryRecord
	err     error

	calls     int
	lastSince time.Time
}

func (f *fakeQueryStore) FetchStockTaggedSince(_ context.Context, since time.Time) ([]models.QueryRecord, error) {
	f.calls++
	f.lastSince = since
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

type fakeForecastStore struct {
	err error

	batches    [][]UpsertOp
	keyColumns []string
}

func (f *fakeForecastStore) UpsertBatch(_ context.Context, keyColumn string, ops []UpsertOp) error {
	f.keyColumns = append(f.keyColumns, keyColumn)
	f.batches = append(f.batches, ops)
	if f.err != nil {
		return f.err
	}
	return nil
}

type fakeSink struct {
	err error

	calls   int
	batches [][]models.Alert
	refs    []time.Time
}

func (f *fakeSink) Notify(_ context.Context, alerts []models.Alert, referenceTime time.Time) error {
	f.calls++
	f.batches = append(f.batches, alerts)
	f.refs = append(f.refs, referenceTime)
	return f.err
}

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// taggedQuery builds a stock-tagged record the way the product write path does
func taggedQuery(symbol string, sentiment *float64, volume *float64, createdAt time.Time) models.QueryRecord {
	return models.QueryRecord{
		Question:    fmt.Sprintf("what is happening with %s", symbol),
		Tags:        []string{models.StockTag},
		StockSymbol: strPtr(symbol),
		Sentiment:   sentiment,
		Volume:      volume,
		CreatedAt:   createdAt,
	}
}

func TestRun_EmptyWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	queries := &fakeQueryStore{}
	forecasts := &fakeForecastStore{}
	sink := &fakeSink{}

	orch := NewOrchestrator(queries, forecasts, Options{Now: fixedNow(now), Sink: sink})

	result, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.ProcessedSymbols) != 0 || len(result.Alerts) != 0 {
		t.Errorf("expected empty result, got %+v", result)
	}
	if !result.Cutoff.Equal(now.Add(-30 * time.Minute)) {
		t.Errorf("cutoff = %v, want %v", result.Cutoff, now.Add(-30*time.Minute))
	}
	if len(forecasts.batches) != 0 {
		t.Errorf("expected no upsert batch on empty window, got %d", len(forecasts.batches))
	}
	if sink.calls != 0 {
		t.Errorf("sink called %d times on empty window, want 0", sink.calls)
	}
}

func TestRun_CutoffHonorsLookback(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	queries := &fakeQueryStore{}

	orch := NewOrchestrator(queries, &fakeForecastStore{}, Options{
		LookbackMinutes: 90,
		Now:             fixedNow(now),
	})

	if _, err := orch.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := now.Add(-90 * time.Minute)
	if !queries.lastSince.Equal(want) {
		t.Errorf("fetch cutoff = %v, want %v", queries.lastSince, want)
	}
}

func TestRun_AggregatesAndPersists(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seen := now.Add(-10 * time.Minute)

	// 25 AAPL queries with sentiment alternating 0.8 and 0.2, 5 TSLA
	// queries with no signals beyond the symbol.
	var records []models.QueryRecord
	for i := 0; i < 25; i++ {
		sentiment := 0.8
		if i%2 == 1 {
			sentiment = 0.2
		}
		records = append(records, taggedQuery("AAPL", &sentiment, f64Ptr(100), seen))
	}
	for i := 0; i < 5; i++ {
		records = append(records, taggedQuery("TSLA", nil, nil, seen))
	}

	queries := &fakeQueryStore{records: records}
	forecasts := &fakeForecastStore{}
	sink := &fakeSink{}

	orch := NewOrchestrator(queries, forecasts, Options{
		LookbackMinutes: 30,
		AlertThreshold:  25,
		Now:             fixedNow(now),
		Sink:            sink,
	})

	result, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(result.ProcessedSymbols, []string{"AAPL", "TSLA"}) {
		t.Errorf("processed symbols = %v, want [AAPL TSLA]", result.ProcessedSymbols)
	}
	if result.FetchedCount != 30 {
		t.Errorf("fetched count = %d, want 30", result.FetchedCount)
	}

	if len(forecasts.batches) != 1 {
		t.Fatalf("expected exactly one upsert batch, got %d", len(forecasts.batches))
	}
	if forecasts.keyColumns[0] != "symbol" {
		t.Errorf("upsert key column = %q, want symbol", forecasts.keyColumns[0])
	}

	batch := forecasts.batches[0]
	if len(batch) != 2 {
		t.Fatalf("expected 2 upserts, got %d", len(batch))
	}

	aapl := batch[0]
	if aapl.Symbol != "AAPL" {
		t.Fatalf("first upsert symbol = %q, want AAPL", aapl.Symbol)
	}
	if aapl.Update.QueryCount != 25 {
		t.Errorf("AAPL query count = %d, want 25", aapl.Update.QueryCount)
	}
	// 13 samples at 0.8 and 12 at 0.2
	wantAvg := (13*0.8 + 12*0.2) / 25
	if aapl.Update.AverageSentiment == nil || math.Abs(*aapl.Update.AverageSentiment-wantAvg) > 1e-9 {
		t.Errorf("AAPL average sentiment = %v, want %v", aapl.Update.AverageSentiment, wantAvg)
	}
	if aapl.Update.CumulativeVolume == nil || *aapl.Update.CumulativeVolume != 2500 {
		t.Errorf("AAPL cumulative volume = %v, want 2500", aapl.Update.CumulativeVolume)
	}
	if !aapl.Update.LastSyncedAt.Equal(now) {
		t.Errorf("AAPL last synced at = %v, want %v", aapl.Update.LastSyncedAt, now)
	}
	if aapl.Update.LastSignalAt == nil || !aapl.Update.LastSignalAt.Equal(seen) {
		t.Errorf("AAPL last signal at = %v, want %v", aapl.Update.LastSignalAt, seen)
	}

	tsla := batch[1]
	if tsla.Update.QueryCount != 5 {
		t.Errorf("TSLA query count = %d, want 5", tsla.Update.QueryCount)
	}
	if tsla.Update.AverageSentiment != nil {
		t.Errorf("TSLA average sentiment = %v, want nil", *tsla.Update.AverageSentiment)
	}
	if tsla.Update.CumulativeVolume != nil {
		t.Errorf("TSLA cumulative volume = %v, want nil", *tsla.Update.CumulativeVolume)
	}

	// AAPL hit the threshold exactly, TSLA stayed below it.
	if len(result.Alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(result.Alerts))
	}
	alert := result.Alerts[0]
	if alert.Symbol != "AAPL" || alert.Level != models.AlertLevelWarning {
		t.Errorf("alert = %+v, want AAPL warning", alert)
	}
	if alert.QueryCount != 25 {
		t.Errorf("alert query count = %d, want 25", alert.QueryCount)
	}

	if sink.calls != 1 {
		t.Fatalf("sink called %d times, want 1", sink.calls)
	}
	if !reflect.DeepEqual(sink.batches[0], result.Alerts) {
		t.Errorf("sink batch = %+v, want %+v", sink.batches[0], result.Alerts)
	}
	if !sink.refs[0].Equal(now) {
		t.Errorf("sink reference time = %v, want %v", sink.refs[0], now)
	}
}

func TestRun_AlertThresholds(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seen := now.Add(-time.Minute)

	tests := []struct {
		name      string
		count     int
		threshold int
		wantLevel models.AlertLevel
		wantAlert bool
	}{
		{"below threshold", 2, 3, "", false},
		{"at threshold", 3, 3, models.AlertLevelWarning, true},
		{"between thresholds", 5, 3, models.AlertLevelWarning, true},
		{"at double threshold", 6, 3, models.AlertLevelCritical, true},
		{"disabled by negative threshold", 10, -1, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var records []models.QueryRecord
			for i := 0; i < tt.count; i++ {
				records = append(records, taggedQuery("AAPL", nil, nil, seen))
			}

			forecasts := &fakeForecastStore{}
			orch := NewOrchestrator(&fakeQueryStore{records: records}, forecasts, Options{
				AlertThreshold: tt.threshold,
				Now:            fixedNow(now),
			})

			result, err := orch.Run(context.Background())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if !tt.wantAlert {
				if len(result.Alerts) != 0 {
					t.Fatalf("expected no alerts, got %+v", result.Alerts)
				}
				return
			}

			if len(result.Alerts) != 1 {
				t.Fatalf("expected 1 alert, got %d", len(result.Alerts))
			}
			if result.Alerts[0].Level != tt.wantLevel {
				t.Errorf("alert level = %s, want %s", result.Alerts[0].Level, tt.wantLevel)
			}
		})
	}
}

func TestRun_Idempotent(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	records := []models.QueryRecord{
		taggedQuery("AAPL", f64Ptr(0.5), f64Ptr(100), now.Add(-time.Minute)),
		taggedQuery("TSLA", nil, nil, now.Add(-2*time.Minute)),
	}

	forecasts := &fakeForecastStore{}
	orch := NewOrchestrator(&fakeQueryStore{records: records}, forecasts, Options{Now: fixedNow(now)})

	first, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("results differ across identical runs:\n%+v\n%+v", first, second)
	}
	if len(forecasts.batches) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(forecasts.batches))
	}
	if !reflect.DeepEqual(forecasts.batches[0], forecasts.batches[1]) {
		t.Errorf("upsert payloads differ across identical runs")
	}
}

func TestRun_FetchError(t *testing.T) {
	cause := errors.New("connection refused")
	orch := NewOrchestrator(&fakeQueryStore{err: cause}, &fakeForecastStore{}, Options{})

	_, err := orch.Run(context.Background())
	if err == nil {
		t.Fatal("expected an error")
	}

	var unavailable *StoreUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("error type = %T, want *StoreUnavailableError", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("error does not wrap the fetch cause")
	}
}

func TestRun_UpsertError(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cause := errors.New("deadlock detected")

	queries := &fakeQueryStore{records: []models.QueryRecord{
		taggedQuery("AAPL", nil, nil, now.Add(-time.Minute)),
	}}
	sink := &fakeSink{}

	orch := NewOrchestrator(queries, &fakeForecastStore{err: cause}, Options{
		AlertThreshold: 1,
		Now:            fixedNow(now),
		Sink:           sink,
	})

	_, err := orch.Run(context.Background())
	if err == nil {
		t.Fatal("expected an error")
	}

	var persistence *PersistenceError
	if !errors.As(err, &persistence) {
		t.Fatalf("error type = %T, want *PersistenceError", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("error does not wrap the upsert cause")
	}
	if sink.calls != 0 {
		t.Errorf("sink called after failed persistence, want no alerts")
	}
}

func TestRun_SinkFailureTolerated(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	queries := &fakeQueryStore{records: []models.QueryRecord{
		taggedQuery("AAPL", nil, nil, now.Add(-time.Minute)),
	}}
	sink := &fakeSink{err: errors.New("telegram timeout")}

	orch := NewOrchestrator(queries, &fakeForecastStore{}, Options{
		AlertThreshold: 1,
		Now:            fixedNow(now),
		Sink:           sink,
	})

	result, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("sink failure must not fail the run: %v", err)
	}
	if sink.calls != 1 {
		t.Errorf("sink called %d times, want 1", sink.calls)
	}
	if len(result.Alerts) != 1 {
		t.Errorf("alerts = %+v, want 1 alert", result.Alerts)
	}
}

func TestRun_CustomIdentifierField(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	queries := &fakeQueryStore{records: []models.QueryRecord{
		taggedQuery("AAPL", nil, nil, now.Add(-time.Minute)),
	}}
	forecasts := &fakeForecastStore{}

	orch := NewOrchestrator(queries, forecasts, Options{
		IdentifierField: "ticker",
		Now:             fixedNow(now),
	})

	if _, err := orch.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if forecasts.keyColumns[0] != "ticker" {
		t.Errorf("upsert key column = %q, want ticker", forecasts.keyColumns[0])
	}
}

func TestRun_ZeroVolumePersistsNull(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	queries := &fakeQueryStore{records: []models.QueryRecord{
		taggedQuery("AAPL", nil, f64Ptr(40), now.Add(-time.Minute)),
		taggedQuery("AAPL", nil, f64Ptr(-40), now.Add(-time.Minute)),
	}}
	forecasts := &fakeForecastStore{}

	orch := NewOrchestrator(queries, forecasts, Options{Now: fixedNow(now)})
	if _, err := orch.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	update := forecasts.batches[0][0].Update
	if update.CumulativeVolume != nil {
		t.Errorf("cumulative volume = %v, want nil when the sum is zero", *update.CumulativeVolume)
	}
}

func TestFanoutSink_IsolatesFailures(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	failing := &fakeSink{err: errors.New("down")}
	healthy := &fakeSink{}

	sink := FanoutSink{failing, healthy}
	alerts := []models.Alert{{Symbol: "AAPL", QueryCount: 30, Level: models.AlertLevelWarning}}

	err := sink.Notify(context.Background(), alerts, now)
	if err == nil {
		t.Fatal("expected joined error from failing sink")
	}
	if healthy.calls != 1 {
		t.Errorf("healthy sink called %d times, want 1", healthy.calls)
	}
	if !reflect.DeepEqual(healthy.batches[0], alerts) {
		t.Errorf("healthy sink batch = %+v, want %+v", healthy.batches[0], alerts)
	}
}
