package metrics

import (
	"testing"
	"time"
)

func TestNewCollector(t *testing.T) {
	labels := Labels{"instance": "test"}
	c := NewCollector(labels)

	if c == nil {
		t.Fatal("expected non-nil collector")
	}

	snap := c.Snapshot()
	if snap.Labels["instance"] != "test" {
		t.Errorf("expected label instance=test, got %v", snap.Labels)
	}
}

func TestCollectorLifecycleMetrics(t *testing.T) {
	c := NewCollector(nil)

	c.FileCreated()
	c.FileCreated()
	c.FileCreateFailed()
	c.FileDecrypted()
	c.FileDecryptFailed()
	c.FileDownloaded()

	snap := c.Snapshot()
	if snap.FilesCreated != 2 {
		t.Errorf("expected 2 files created, got %d", snap.FilesCreated)
	}
	if snap.CreateFailed != 1 {
		t.Errorf("expected 1 create failure, got %d", snap.CreateFailed)
	}
	if snap.FilesDecrypted != 1 {
		t.Errorf("expected 1 file decrypted, got %d", snap.FilesDecrypted)
	}
	if snap.DecryptFailed != 1 {
		t.Errorf("expected 1 decrypt failure, got %d", snap.DecryptFailed)
	}
	if snap.FilesDownloaded != 1 {
		t.Errorf("expected 1 file downloaded, got %d", snap.FilesDownloaded)
	}
}

func TestCollectorTrafficMetrics(t *testing.T) {
	c := NewCollector(nil)

	c.RecordBytesIn(1000)
	c.RecordBytesIn(500)
	c.RecordBytesOut(2000)

	snap := c.Snapshot()
	if snap.BytesIn != 1500 {
		t.Errorf("expected 1500 bytes in, got %d", snap.BytesIn)
	}
	if snap.BytesOut != 2000 {
		t.Errorf("expected 2000 bytes out, got %d", snap.BytesOut)
	}
}

func TestCollectorSecurityMetrics(t *testing.T) {
	c := NewCollector(nil)

	c.RecordIntegrityFailure()
	c.RecordAuthFailure()
	c.RecordAccessDenial()

	snap := c.Snapshot()
	if snap.IntegrityFailures != 1 {
		t.Errorf("expected 1 integrity failure, got %d", snap.IntegrityFailures)
	}
	if snap.AuthFailures != 1 {
		t.Errorf("expected 1 auth failure, got %d", snap.AuthFailures)
	}
	if snap.AccessDenials != 1 {
		t.Errorf("expected 1 access denial, got %d", snap.AccessDenials)
	}
}

func TestCollectorIndexMetrics(t *testing.T) {
	c := NewCollector(nil)

	c.RecordSearch(5 * time.Microsecond)
	c.RecordSearchRateLimited()
	c.SetIndexSize(42)
	c.RecordTrapdoorIssued()
	c.RecordTrapdoorRevoked()

	snap := c.Snapshot()
	if snap.SearchesTotal != 1 {
		t.Errorf("expected 1 search, got %d", snap.SearchesTotal)
	}
	if snap.SearchRateLimited != 1 {
		t.Errorf("expected 1 rate-limited search, got %d", snap.SearchRateLimited)
	}
	if snap.IndexSize != 42 {
		t.Errorf("expected index size 42, got %d", snap.IndexSize)
	}
	if snap.TrapdoorsIssued != 1 {
		t.Errorf("expected 1 trapdoor issued, got %d", snap.TrapdoorsIssued)
	}
	if snap.TrapdoorsRevoked != 1 {
		t.Errorf("expected 1 trapdoor revoked, got %d", snap.TrapdoorsRevoked)
	}
}

func TestCollectorErrorMetrics(t *testing.T) {
	c := NewCollector(nil)

	c.RecordStorageError()
	c.RecordProtocolError()

	snap := c.Snapshot()
	if snap.StorageErrors != 1 {
		t.Errorf("expected 1 storage error, got %d", snap.StorageErrors)
	}
	if snap.ProtocolErrors != 1 {
		t.Errorf("expected 1 protocol error, got %d", snap.ProtocolErrors)
	}
}

func TestCollectorLatencyMetrics(t *testing.T) {
	c := NewCollector(nil)

	c.RecordCreateLatency(100 * time.Millisecond)
	c.RecordCreateLatency(200 * time.Millisecond)
	c.RecordDecryptLatency(10 * time.Microsecond)
	c.RecordSearch(15 * time.Microsecond)

	snap := c.Snapshot()
	if snap.CreateLatency.Count != 2 {
		t.Errorf("expected 2 create latency observations, got %d", snap.CreateLatency.Count)
	}
	if snap.CreateLatency.Mean != 150 {
		t.Errorf("expected mean create latency 150ms, got %.2f", snap.CreateLatency.Mean)
	}
	if snap.DecryptLatency.Count != 1 {
		t.Errorf("expected 1 decrypt latency observation, got %d", snap.DecryptLatency.Count)
	}
	if snap.SearchLatency.Count != 1 {
		t.Errorf("expected 1 search latency observation, got %d", snap.SearchLatency.Count)
	}
}

func TestCollectorReset(t *testing.T) {
	c := NewCollector(nil)

	c.FileCreated()
	c.RecordBytesIn(1000)
	c.RecordIntegrityFailure()

	snap := c.Snapshot()
	if snap.FilesCreated != 1 || snap.BytesIn != 1000 {
		t.Fatal("metrics not recorded")
	}

	c.Reset()

	snap = c.Snapshot()
	if snap.FilesCreated != 0 {
		t.Errorf("expected 0 files created after reset, got %d", snap.FilesCreated)
	}
	if snap.BytesIn != 0 {
		t.Errorf("expected 0 bytes in after reset, got %d", snap.BytesIn)
	}
	if snap.IntegrityFailures != 0 {
		t.Errorf("expected 0 integrity failures after reset, got %d", snap.IntegrityFailures)
	}
}

func TestCollectorUptime(t *testing.T) {
	c := NewCollector(nil)
	time.Sleep(10 * time.Millisecond)

	snap := c.Snapshot()
	if snap.Uptime < 10*time.Millisecond {
		t.Errorf("expected uptime >= 10ms, got %v", snap.Uptime)
	}
}

func TestGlobalCollector(t *testing.T) {
	// Get global collector
	g := Global()
	if g == nil {
		t.Fatal("expected non-nil global collector")
	}

	// Should return same instance
	g2 := Global()
	if g != g2 {
		t.Error("expected same global collector instance")
	}

	// Set custom global
	custom := NewCollector(Labels{"custom": "true"})
	SetGlobal(custom)

	// Note: SetGlobal assigns directly and the sync.Once has already run,
	// so Global() now returns custom. This test just verifies the setter
	// doesn't panic
}

func TestCollectorConcurrency(t *testing.T) {
	c := NewCollector(nil)

	// Run concurrent operations
	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				c.FileCreated()
				c.RecordBytesIn(uint64(j))
				c.RecordCreateLatency(time.Duration(j) * time.Millisecond)
			}
			done <- true
		}()
	}

	// Wait for all goroutines
	for i := 0; i < 10; i++ {
		<-done
	}

	snap := c.Snapshot()
	if snap.FilesCreated != 1000 {
		t.Errorf("expected 1000 files created, got %d", snap.FilesCreated)
	}
}
