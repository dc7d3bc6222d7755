package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/olegsm/retaildesk/pkg/models"
)

type fakeWriter struct {
	err     error
	inserts []*models.QueryRecord
}

func (f *fakeWriter) Insert(_ context.Context, rec *models.QueryRecord) error {
	if f.err != nil {
		return f.err
	}
	f.inserts = append(f.inserts, rec)
	return nil
}

type fakeTrigger struct {
	kicks int
}

func (f *fakeTrigger) Kick() { f.kicks++ }

type fakeInvalidator struct {
	users []string
}

func (f *fakeInvalidator) Invalidate(_ context.Context, userID string) {
	f.users = append(f.users, userID)
}

func TestRecordQuery_StockTagKicksSync(t *testing.T) {
	tests := []struct {
		name      string
		tags      []string
		wantKicks int
	}{
		{"stock tagged", []string{"stock"}, 1},
		{"stock among others", []string{"billing", "stock"}, 1},
		{"no stock tag", []string{"billing"}, 0},
		{"no tags", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writer := &fakeWriter{}
			trigger := &fakeTrigger{}
			svc := NewService(writer, trigger, nil)

			rec := &models.QueryRecord{
				UserID:   "user-1",
				Question: "what about my shares",
				Tags:     tt.tags,
			}
			if err := svc.RecordQuery(context.Background(), rec); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if len(writer.inserts) != 1 {
				t.Fatalf("expected 1 insert, got %d", len(writer.inserts))
			}
			if trigger.kicks != tt.wantKicks {
				t.Errorf("kicks = %d, want %d", trigger.kicks, tt.wantKicks)
			}
		})
	}
}

func TestRecordQuery_InsertErrorPropagates(t *testing.T) {
	cause := errors.New("insert failed")
	writer := &fakeWriter{err: cause}
	trigger := &fakeTrigger{}
	invalidator := &fakeInvalidator{}
	svc := NewService(writer, trigger, invalidator)

	rec := &models.QueryRecord{UserID: "user-1", Tags: []string{"stock"}}
	err := svc.RecordQuery(context.Background(), rec)
	if err == nil {
		t.Fatal("expected an error")
	}
	if !errors.Is(err, cause) {
		t.Errorf("error does not wrap the insert cause")
	}
	if trigger.kicks != 0 {
		t.Errorf("sync kicked despite failed insert")
	}
	if len(invalidator.users) != 0 {
		t.Errorf("cache invalidated despite failed insert")
	}
}

func TestRecordQuery_InvalidatesUserCache(t *testing.T) {
	writer := &fakeWriter{}
	invalidator := &fakeInvalidator{}
	svc := NewService(writer, nil, invalidator)

	rec := &models.QueryRecord{UserID: "user-7", Question: "order status"}
	if err := svc.RecordQuery(context.Background(), rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(invalidator.users) != 1 || invalidator.users[0] != "user-7" {
		t.Errorf("invalidated users = %v, want [user-7]", invalidator.users)
	}
}
