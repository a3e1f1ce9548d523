package metrics

import (
	"context"
	"errors"
	"testing"
)

func TestIndexObserverOnSearch(t *testing.T) {
	c := NewCollector(nil)
	o := NewIndexObserver(IndexObserverConfig{Collector: c})

	ctx, done := o.OnSearch(context.Background(), "alice", 5)
	if ctx == nil {
		t.Fatal("expected non-nil context")
	}
	done(3, nil)

	snap := c.Snapshot()
	if snap.SearchesTotal != 1 {
		t.Errorf("expected 1 search, got %d", snap.SearchesTotal)
	}
	if snap.SearchLatency.Count != 1 {
		t.Errorf("expected 1 search latency sample, got %d", snap.SearchLatency.Count)
	}
}

func TestIndexObserverOnSearchError(t *testing.T) {
	c := NewCollector(nil)
	o := NewIndexObserver(IndexObserverConfig{Collector: c})

	_, done := o.OnSearch(context.Background(), "alice", 5)
	done(0, errors.New("boom"))

	snap := c.Snapshot()
	if snap.SearchesTotal != 1 {
		t.Errorf("expected search latency recorded even on error, got %d", snap.SearchesTotal)
	}
}

func TestIndexObserverOnRateLimited(t *testing.T) {
	c := NewCollector(nil)
	o := NewIndexObserver(IndexObserverConfig{Collector: c})

	o.OnRateLimited("alice")

	snap := c.Snapshot()
	if snap.SearchRateLimited != 1 {
		t.Errorf("expected 1 rate limited search, got %d", snap.SearchRateLimited)
	}
}

func TestIndexObserverTrapdoorLifecycle(t *testing.T) {
	c := NewCollector(nil)
	o := NewIndexObserver(IndexObserverConfig{Collector: c})

	o.OnTrapdoorIssued("td-1", "alice")
	o.OnTrapdoorRevoked("td-1")

	snap := c.Snapshot()
	if snap.TrapdoorsIssued != 1 {
		t.Errorf("expected 1 trapdoor issued, got %d", snap.TrapdoorsIssued)
	}
	if snap.TrapdoorsRevoked != 1 {
		t.Errorf("expected 1 trapdoor revoked, got %d", snap.TrapdoorsRevoked)
	}
}

func TestIndexObserverOnIndexFileAndEpoch(t *testing.T) {
	c := NewCollector(nil)
	o := NewIndexObserver(IndexObserverConfig{Collector: c})

	// These are logging-only hooks; they must not panic and must not
	// mutate collector counters.
	o.OnIndexFile("file-1")
	o.OnEpochAdvanced(1)

	snap := c.Snapshot()
	if snap.SearchesTotal != 0 {
		t.Errorf("expected no searches recorded, got %d", snap.SearchesTotal)
	}
}
