package models

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestNewPrintRequestDefaults(t *testing.T) {
	clientID := uuid.New()
	req := NewPrintRequest(clientID, LabelTypeAsset, "zebra-01", 2)

	if req.Status != PrintRequestStatusPending {
		t.Errorf("expected status pending, got %s", req.Status)
	}
	if req.JobID == uuid.Nil {
		t.Error("expected job id to be assigned")
	}
	if req.PrintClientID == nil || *req.PrintClientID != clientID {
		t.Error("expected print client id to be set")
	}
	if req.Quantity != 2 {
		t.Errorf("expected quantity 2, got %d", req.Quantity)
	}
	if req.SentAt != nil || req.AckedAt != nil || req.CompletedAt != nil {
		t.Error("expected no lifecycle timestamps on a new request")
	}
}

func TestTransitionMatrix(t *testing.T) {
	tests := []struct {
		name    string
		from    PrintRequestStatus
		to      PrintRequestStatus
		allowed bool
	}{
		{"pending to sent", PrintRequestStatusPending, PrintRequestStatusSent, true},
		{"pending to failed", PrintRequestStatusPending, PrintRequestStatusFailed, true},
		{"pending to acked", PrintRequestStatusPending, PrintRequestStatusAcked, false},
		{"pending to completed", PrintRequestStatusPending, PrintRequestStatusCompleted, false},
		{"sent to acked", PrintRequestStatusSent, PrintRequestStatusAcked, true},
		{"sent to failed", PrintRequestStatusSent, PrintRequestStatusFailed, true},
		{"sent to completed", PrintRequestStatusSent, PrintRequestStatusCompleted, false},
		{"sent to pending", PrintRequestStatusSent, PrintRequestStatusPending, false},
		{"acked to completed", PrintRequestStatusAcked, PrintRequestStatusCompleted, true},
		{"acked to failed", PrintRequestStatusAcked, PrintRequestStatusFailed, true},
		{"acked to sent", PrintRequestStatusAcked, PrintRequestStatusSent, false},
		{"completed is terminal", PrintRequestStatusCompleted, PrintRequestStatusFailed, false},
		{"failed is terminal", PrintRequestStatusFailed, PrintRequestStatusSent, false},
		{"failed stays failed", PrintRequestStatusFailed, PrintRequestStatusFailed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := NewPrintRequest(uuid.New(), LabelTypeAsset, "p1", 1)
			req.Status = tt.from

			err := req.TransitionTo(tt.to, "")
			if tt.allowed && err != nil {
				t.Fatalf("expected transition %s -> %s to be allowed, got %v", tt.from, tt.to, err)
			}
			if !tt.allowed {
				if err == nil {
					t.Fatalf("expected transition %s -> %s to be rejected", tt.from, tt.to)
				}
				var te *TransitionError
				if !errors.As(err, &te) {
					t.Fatalf("expected TransitionError, got %T", err)
				}
				if te.From != tt.from || te.To != tt.to {
					t.Errorf("error names wrong statuses: %v", te)
				}
				if req.Status != tt.from {
					t.Errorf("rejected transition mutated status to %s", req.Status)
				}
			}
		})
	}
}

func TestTransitionStampsTimestamps(t *testing.T) {
	req := NewPrintRequest(uuid.New(), LabelTypeAsset, "p1", 1)

	if err := req.TransitionTo(PrintRequestStatusSent, ""); err != nil {
		t.Fatalf("to sent: %v", err)
	}
	if req.SentAt == nil {
		t.Fatal("expected sent_at to be stamped")
	}

	if err := req.TransitionTo(PrintRequestStatusAcked, ""); err != nil {
		t.Fatalf("to acked: %v", err)
	}
	if req.AckedAt == nil {
		t.Fatal("expected acked_at to be stamped")
	}

	if err := req.TransitionTo(PrintRequestStatusCompleted, ""); err != nil {
		t.Fatalf("to completed: %v", err)
	}
	if req.CompletedAt == nil {
		t.Fatal("expected completed_at to be stamped")
	}
	if !req.IsTerminal() {
		t.Error("completed request should be terminal")
	}
}

func TestFailedTransitionRecordsError(t *testing.T) {
	req := NewPrintRequest(uuid.New(), LabelTypeAsset, "p1", 1)

	if err := req.TransitionTo(PrintRequestStatusFailed, "Client disconnected"); err != nil {
		t.Fatalf("to failed: %v", err)
	}
	if req.ErrorMessage != "Client disconnected" {
		t.Errorf("expected error message to be recorded, got %q", req.ErrorMessage)
	}
	if req.CompletedAt == nil {
		t.Error("failed transition should stamp completed_at")
	}
	if !req.IsTerminal() {
		t.Error("failed request should be terminal")
	}
}

func TestFailedWithoutMessageKeepsExisting(t *testing.T) {
	req := NewPrintRequest(uuid.New(), LabelTypeAsset, "p1", 1)
	req.ErrorMessage = "earlier failure detail"
	req.Status = PrintRequestStatusSent

	if err := req.TransitionTo(PrintRequestStatusFailed, ""); err != nil {
		t.Fatalf("to failed: %v", err)
	}
	if req.ErrorMessage != "earlier failure detail" {
		t.Errorf("empty message should not clear error_message, got %q", req.ErrorMessage)
	}
}
