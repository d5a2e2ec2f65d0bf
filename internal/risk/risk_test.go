package risk

import "testing"

func TestAllowLoan(t *testing.T) {
	limits := Limits{MaxLoanAmount: 50}
	if !limits.AllowLoan(50) {
		t.Fatalf("expected loan at limit to pass")
	}
	if limits.AllowLoan(51) {
		t.Fatalf("expected loan above limit to fail")
	}
	if !(Limits{}).AllowLoan(1 << 62) {
		t.Fatalf("expected zero limit to allow any loan")
	}
}

func TestCheck(t *testing.T) {
	limits := Limits{MaxLoanAmount: 1000, MaxActions: 2}
	if err := limits.Check(1000, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := limits.Check(10, 3); err == nil {
		t.Fatalf("expected too many actions to fail")
	}
	if err := limits.Check(1001, 1); err == nil {
		t.Fatalf("expected oversized loan to fail")
	}
}
