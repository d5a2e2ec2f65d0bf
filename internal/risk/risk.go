package risk

import "fmt"

// Limits caps what a single trade request may do. Zero disables a limit.
type Limits struct {
	MaxLoanAmount uint64 `yaml:"max_loan_amount"`
	MaxActions    int    `yaml:"max_actions"`
}

func (l Limits) AllowLoan(amount uint64) bool {
	return l.MaxLoanAmount == 0 || amount <= l.MaxLoanAmount
}

func (l Limits) AllowActions(n int) bool {
	return l.MaxActions <= 0 || n <= l.MaxActions
}

// Check returns a description of the first limit the request breaks.
func (l Limits) Check(loanAmount uint64, actions int) error {
	if !l.AllowLoan(loanAmount) {
		return fmt.Errorf("loan amount %d exceeds limit %d", loanAmount, l.MaxLoanAmount)
	}
	if !l.AllowActions(actions) {
		return fmt.Errorf("%d actions exceed limit %d", actions, l.MaxActions)
	}
	return nil
}
