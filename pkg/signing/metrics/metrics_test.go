package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveCommandIncrementsCounter(t *testing.T) {
	before := testutil.ToFloat64(CommandsTotal.WithLabelValues("TestCommand", "ok"))
	ObserveCommand("TestCommand", "ok")
	after := testutil.ToFloat64(CommandsTotal.WithLabelValues("TestCommand", "ok"))
	if after != before+1 {
		t.Fatalf("expected counter to increment by 1, got %v -> %v", before, after)
	}
}
