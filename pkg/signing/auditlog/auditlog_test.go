package auditlog

import (
	"context"
	"testing"

	"github.com/rusty-safe/signing-orchestrator/pkg/signing/domain"
)

func TestNewSinkWithEmptyURLIsNoOp(t *testing.T) {
	s, err := NewSink(context.Background(), "")
	if err != nil {
		t.Fatalf("NewSink with empty URL: %v", err)
	}
	if s.db != nil {
		t.Fatalf("expected no-op sink to have a nil db")
	}
}

func TestNoOpSinkRecordIsHarmless(t *testing.T) {
	s, err := NewSink(context.Background(), "")
	if err != nil {
		t.Fatalf("NewSink: %v", err)
	}
	record := domain.TransitionLogRecord{
		EventSeq:    1,
		CommandID:   "cmd-1",
		FlowID:      "flow-1",
		StateBefore: "Draft",
		StateAfter:  "Signing",
	}
	if err := s.Record(context.Background(), record); err != nil {
		t.Fatalf("Record on no-op sink: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close on no-op sink: %v", err)
	}
}
