package metrics

import (
	"testing"
	"time"
)

func TestDisabledCollectorIsInert(t *testing.T) {
	c, err := NewCollector(nil)
	if err != nil {
		t.Fatalf("NewCollector(nil) failed: %v", err)
	}
	if c.Enabled() {
		t.Error("nil config produced an enabled collector")
	}

	// No-op recording must not panic, including on a nil collector.
	c.RecordOperation("emulated", "report-zones", time.Millisecond)
	c.RecordTransfer("emulated", "read", 4096)
	c.RecordError("emulated", "write", "IO_ERROR")

	var nilC *Collector
	nilC.RecordOperation("emulated", "flush", 0)
	if nilC.Enabled() {
		t.Error("nil collector reports enabled")
	}
	if err := nilC.Stop(); err != nil {
		t.Errorf("Stop on nil collector: %v", err)
	}
}

func TestCollectorRecords(t *testing.T) {
	c, err := NewCollector(&Config{Enabled: true})
	if err != nil {
		t.Fatalf("NewCollector failed: %v", err)
	}
	c.RecordOperation("emulated", "report-zones", 2*time.Millisecond)
	c.RecordOperation("emulated", "report-zones", time.Millisecond)
	c.RecordTransfer("emulated", "write", 8192)
	c.RecordError("scsi", "finish", "DEVICE_ERROR")

	families, err := c.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	found := map[string]bool{}
	for _, f := range families {
		found[f.GetName()] = true
		if f.GetName() == "zbc_operations_total" {
			if len(f.GetMetric()) != 1 {
				t.Fatalf("expected one label set, got %d", len(f.GetMetric()))
			}
			if got := f.GetMetric()[0].GetCounter().GetValue(); got != 2 {
				t.Errorf("operation count = %v, want 2", got)
			}
		}
	}
	for _, name := range []string{
		"zbc_operations_total",
		"zbc_operation_duration_seconds",
		"zbc_transfer_bytes_total",
		"zbc_errors_total",
	} {
		if !found[name] {
			t.Errorf("metric family %s not collected", name)
		}
	}
}

func TestCollectorDefaults(t *testing.T) {
	c, err := NewCollector(&Config{Enabled: true})
	if err != nil {
		t.Fatalf("NewCollector failed: %v", err)
	}
	if c.config.Path != "/metrics" {
		t.Errorf("default path = %q, want /metrics", c.config.Path)
	}
	if c.config.Namespace != "zbc" {
		t.Errorf("default namespace = %q, want zbc", c.config.Namespace)
	}
}
