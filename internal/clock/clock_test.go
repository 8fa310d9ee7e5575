package clock

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSyncedMeasuresOffset(t *testing.T) {
	ahead := time.Hour
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Date", time.Now().Add(ahead).UTC().Format(http.TimeFormat))
	}))
	defer srv.Close()

	c := NewSynced(srv.URL)
	if err := c.Sync(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}
	diff := c.Offset() - ahead
	if diff < -2*time.Second || diff > 2*time.Second {
		t.Fatalf("offset = %v, want about %v", c.Offset(), ahead)
	}
	if got := c.Now().Sub(time.Now()); got < ahead-2*time.Second {
		t.Fatalf("Now is only %v ahead", got)
	}
}

func TestSyncedKeepsLocalClockOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header()["Date"] = []string{"not a date"}
	}))
	defer srv.Close()

	c := NewSynced(srv.URL)
	if err := c.Sync(context.Background()); err == nil {
		t.Fatal("expected parse error")
	}
	if c.Offset() != 0 {
		t.Fatalf("offset = %v, want 0", c.Offset())
	}
}

func TestSyncedWithoutReferenceIsLocal(t *testing.T) {
	c := NewSynced("")
	if err := c.Sync(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if c.Offset() != 0 {
		t.Fatalf("offset = %v, want 0", c.Offset())
	}
}

func TestFakeAdvance(t *testing.T) {
	start := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	f := NewFake(start)
	f.Advance(90 * time.Second)
	if got := f.Now(); !got.Equal(start.Add(90 * time.Second)) {
		t.Fatalf("now = %v", got)
	}
}
