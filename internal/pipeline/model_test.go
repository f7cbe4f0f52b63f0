package pipeline

import (
	"testing"
	"time"
)

func TestNextStage(t *testing.T) {
	cases := []struct {
		from string
		want string
		ok   bool
	}{
		{StageLead, StageInspection, true},
		{StageInspection, StageOffer, true},
		{StageOffer, StageAllocation, true},
		{StageAllocation, StagePaid, true},
		{StagePaid, "", false},
		{StageRejected, "", false},
		{StageRevoked, "", false},
		{"bogus", "", false},
	}
	for _, tc := range cases {
		got, ok := NextStage(tc.from)
		if got != tc.want || ok != tc.ok {
			t.Errorf("NextStage(%q) = %q, %v; want %q, %v", tc.from, got, ok, tc.want, tc.ok)
		}
	}
}

func TestIsTerminalStage(t *testing.T) {
	for _, stage := range []string{StagePaid, StageRejected, StageRevoked} {
		if !IsTerminalStage(stage) {
			t.Errorf("expected %q to be terminal", stage)
		}
	}
	for _, stage := range []string{StageLead, StageInspection, StageOffer, StageAllocation} {
		if IsTerminalStage(stage) {
			t.Errorf("expected %q to be non-terminal", stage)
		}
	}
}

func TestDeriveProgress(t *testing.T) {
	const initial, sale = 500_000, 2_000_000

	cases := []struct {
		paid int64
		want string
	}{
		{0, ProgressPending},
		{1, ProgressInitial},
		{499_999, ProgressInitial},
		{500_000, ProgressPartial},
		{1_999_999, ProgressPartial},
		{2_000_000, ProgressComplete},
		{3_000_000, ProgressComplete},
	}
	for _, tc := range cases {
		if got := DeriveProgress(tc.paid, initial, sale); got != tc.want {
			t.Errorf("DeriveProgress(%d) = %q, want %q", tc.paid, got, tc.want)
		}
	}
}

func TestDeriveProgressZeroThresholds(t *testing.T) {
	// Missing monetary terms should never report complete.
	if got := DeriveProgress(100, 0, 0); got != ProgressInitial {
		t.Errorf("DeriveProgress with zero thresholds = %q, want %q", got, ProgressInitial)
	}
}

func TestProgressAtLeast(t *testing.T) {
	if !ProgressAtLeast(ProgressPartial, ProgressInitial) {
		t.Error("partial should be at least initial")
	}
	if ProgressAtLeast(ProgressInitial, ProgressComplete) {
		t.Error("initial should not be at least complete")
	}
	if !ProgressAtLeast(ProgressComplete, ProgressComplete) {
		t.Error("complete should be at least complete")
	}
}

func TestOfferLapsed(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	var nilOffer *Offer
	if nilOffer.Lapsed(now) {
		t.Error("nil offer should not be lapsed")
	}
	if (&Offer{Status: OfferPending}).Lapsed(now) {
		t.Error("offer without expiry should not be lapsed")
	}
	if !(&Offer{Status: OfferPending, ExpiryDate: &past}).Lapsed(now) {
		t.Error("pending offer past expiry should be lapsed")
	}
	if (&Offer{Status: OfferPending, ExpiryDate: &future}).Lapsed(now) {
		t.Error("pending offer before expiry should not be lapsed")
	}
	if (&Offer{Status: OfferAccepted, ExpiryDate: &past}).Lapsed(now) {
		t.Error("resolved offer should never be lapsed")
	}
}

func TestEntryMatchesQuery(t *testing.T) {
	entry := Entry{
		ClientName:   "Adaeze Okafor",
		PlotNumber:   "B-14",
		MarketerName: "Chidi Eze",
	}
	cases := []struct {
		query string
		want  bool
	}{
		{"", true},
		{"  ", true},
		{"adaeze", true},
		{"OKAFOR", true},
		{"b-14", true},
		{"chidi", true},
		{"nonexistent", false},
	}
	for _, tc := range cases {
		if got := entry.MatchesQuery(tc.query); got != tc.want {
			t.Errorf("MatchesQuery(%q) = %v, want %v", tc.query, got, tc.want)
		}
	}
}
