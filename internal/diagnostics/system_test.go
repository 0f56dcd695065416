package diagnostics

import "testing"

func TestCollect(t *testing.T) {
	c := NewCollector()

	first := c.Collect()
	if first.CPUThreads <= 0 {
		t.Errorf("CPUThreads = %d, want > 0", first.CPUThreads)
	}
	if first.MemTotalMB <= 0 {
		t.Errorf("MemTotalMB = %f, want > 0", first.MemTotalMB)
	}
	// CPU percent needs two samples.
	if first.CPUPercent != 0 {
		t.Errorf("first CPUPercent = %f, want 0", first.CPUPercent)
	}

	second := c.Collect()
	if second.CPUPercent < 0 || second.CPUPercent > 100 {
		t.Errorf("CPUPercent = %f, want within [0,100]", second.CPUPercent)
	}
}

func TestDefaultParallelism(t *testing.T) {
	n := DefaultParallelism()
	if n < 2 || n > 16 {
		t.Errorf("DefaultParallelism() = %d, want within [2,16]", n)
	}
}
