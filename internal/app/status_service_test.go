package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dokzlo13/relayctl/internal/config"
	"github.com/dokzlo13/relayctl/internal/controller"
	"github.com/dokzlo13/relayctl/internal/fade"
	"github.com/dokzlo13/relayctl/internal/ledger"
	"github.com/dokzlo13/relayctl/internal/property"
)

type fakeState struct {
	snap controller.Snapshot
	err  error
}

func (f *fakeState) Snapshot(ctx context.Context) (controller.Snapshot, error) {
	return f.snap, f.err
}

type fakeJournal struct {
	entries   []*ledger.Entry
	lastLimit int
}

func (f *fakeJournal) Recent(limit int) ([]*ledger.Entry, error) {
	f.lastLimit = limit
	return f.entries, nil
}

func newSnapshot(connected bool) controller.Snapshot {
	snap := controller.Snapshot{
		Version:   7,
		Connected: connected,
		Mode:      controller.Scrolling,
		Active:    property.Temperature,
		Fade:      fade.Visible,
		Opacity:   1,
	}
	d := property.StandardDefaults()
	for _, id := range property.All {
		snap.Records[id] = property.Record{Value: d.Values[id], Default: d.Values[id], Enabled: true}
	}
	snap.Records[property.Temperature].Value = 5300
	snap.Records[property.Temperature].Pending = true
	return snap
}

func serve(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestStatusReadiness(t *testing.T) {
	tests := []struct {
		name  string
		state *fakeState
		want  int
	}{
		{"connected", &fakeState{snap: newSnapshot(true)}, http.StatusOK},
		{"disconnected", &fakeState{snap: newSnapshot(false)}, http.StatusServiceUnavailable},
		{"controller closed", &fakeState{err: controller.ErrClosed}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewStatusService(config.Default(), tt.state, nil).Handler()
			if rec := serve(t, h, "/ready"); rec.Code != tt.want {
				t.Errorf("/ready = %d, want %d", rec.Code, tt.want)
			}
			if rec := serve(t, h, "/health"); rec.Code != http.StatusOK {
				t.Errorf("/health = %d, want 200", rec.Code)
			}
		})
	}
}

func TestStatusState(t *testing.T) {
	h := NewStatusService(config.Default(), &fakeState{snap: newSnapshot(true)}, nil).Handler()

	rec := serve(t, h, "/state")
	if rec.Code != http.StatusOK {
		t.Fatalf("/state = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var view stateView
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.Version != 7 || view.Mode != "scrolling" || view.Active != "temperature" || !view.Connected {
		t.Errorf("view = %+v", view)
	}
	temp := view.Properties["temperature"]
	if temp.Value != 5300 || temp.Text != "5300 K" || !temp.Pending || temp.Default != 6500 {
		t.Errorf("temperature = %+v", temp)
	}
	if len(view.Properties) != property.Count {
		t.Errorf("%d properties, want %d", len(view.Properties), property.Count)
	}
}

func TestStatusStateError(t *testing.T) {
	h := NewStatusService(config.Default(), &fakeState{err: errors.New("boom")}, nil).Handler()
	if rec := serve(t, h, "/state"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("/state = %d, want 503", rec.Code)
	}
}

func TestStatusJournal(t *testing.T) {
	journal := &fakeJournal{entries: []*ledger.Entry{{
		ID:        "a",
		EventType: ledger.EventWriteConfirmed,
		Timestamp: time.Unix(100, 0),
		Property:  "gamma",
		Value:     1.2,
		Attempt:   1,
	}}}
	h := NewStatusService(config.Default(), &fakeState{}, journal).Handler()

	tests := []struct {
		path      string
		wantCode  int
		wantLimit int
	}{
		{"/journal", http.StatusOK, 100},
		{"/journal?limit=5", http.StatusOK, 5},
		{"/journal?limit=x", http.StatusBadRequest, 0},
		{"/journal?limit=-1", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		journal.lastLimit = 0
		rec := serve(t, h, tt.path)
		if rec.Code != tt.wantCode {
			t.Errorf("%s = %d, want %d", tt.path, rec.Code, tt.wantCode)
		}
		if journal.lastLimit != tt.wantLimit {
			t.Errorf("%s used limit %d, want %d", tt.path, journal.lastLimit, tt.wantLimit)
		}
	}

	var entries []ledger.Entry
	if err := json.NewDecoder(serve(t, h, "/journal").Body).Decode(&entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Property != "gamma" || entries[0].EventType != ledger.EventWriteConfirmed {
		t.Errorf("entries = %+v", entries)
	}
}

func TestStatusJournalDisabled(t *testing.T) {
	h := NewStatusService(config.Default(), &fakeState{}, nil).Handler()
	if rec := serve(t, h, "/journal"); rec.Code != http.StatusNotFound {
		t.Errorf("/journal = %d, want 404", rec.Code)
	}
}
