// Package importer holds the in-memory records produced by parsing a
// statement file, plus the matching and classification passes run over
// them before the caller commits accepted transactions to the ledger.
package importer

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ofx2ledger/ofx2ledger/ledger"
)

// State is the reconciliation state of an imported transaction relative to
// the ledger.
type State int

const (
	// StateNew is the default assigned at parse time.
	StateNew State = iota
	// StateEqual marks a probable duplicate of an existing ledger
	// transaction, set by the matcher.
	StateEqual
	// StateNotEqual is a manual override of a previously equal item; the
	// matcher never sets it.
	StateNotEqual
	// StateIgnore is a user or filter override, never set by the matcher.
	StateIgnore
)

func (s State) String() string {
	switch s {
	case StateEqual:
		return "EQUAL"
	case StateNotEqual:
		return "NOT_EQUAL"
	case StateIgnore:
		return "IGNORE"
	}
	return "NEW"
}

// Kind classifies an investment statement line. Cash movements, including
// every line of a bank or credit-card statement, use KindCash.
type Kind int

const (
	KindCash Kind = iota
	KindBuy
	KindSell
	KindDividend
	KindReinvest
)

func (k Kind) String() string {
	switch k {
	case KindBuy:
		return "BUY"
	case KindSell:
		return "SELL"
	case KindDividend:
		return "DIVIDEND"
	case KindReinvest:
		return "REINVEST"
	}
	return "CASH"
}

// Transaction is one statement line. Instances live only for the duration
// of an import session; accepted ones are translated into ledger entries
// by the caller and the rest are discarded.
type Transaction struct {
	// ID is generated at parse time and is stable for the session. It is
	// never taken from the file.
	ID string

	// FITID is the bank-assigned transaction id used for de-duplication.
	// Nil means the file never offered one, which callers may present
	// differently from an empty id.
	FITID *string

	// Amount is signed: deposits positive, withdrawals negative.
	Amount      decimal.Decimal
	DatePosted  time.Time
	DateUser    *time.Time // user-initiated date, optional
	Payee       string
	Memo        string
	CheckNumber string
	State       State

	// Account is the suggested or user-chosen destination account.
	Account *ledger.Account

	// Kind and the fields below are set only for investment statements.
	Kind            Kind
	TypeDescription string // raw TRNTYPE value or investment element name
	SecurityID      string
	SecurityIDType  string
	Units           decimal.Decimal
	UnitPrice       decimal.Decimal
	Commission      decimal.Decimal
	Fees            decimal.Decimal
	IncomeType      string
	TaxExempt       bool
	SubAccount      string

	// AccountTo is the counter account number carried by transfer
	// aggregates (BANKACCTTO and friends).
	AccountTo string

	Currency string
	SIC      string
	RefNum   string
	PayeeID  string
}

// NewTransaction returns a Transaction with a fresh session id and the
// default NEW state.
func NewTransaction() *Transaction {
	return &Transaction{ID: uuid.NewString(), State: StateNew}
}

// IsInvestment reports whether the line carries investment fields.
func (t *Transaction) IsInvestment() bool {
	return t.SecurityID != ""
}

// ExternalID returns the FITID or the empty string; matching logic treats
// "no id" and "empty id" identically.
func (t *Transaction) ExternalID() string {
	if t.FITID == nil {
		return ""
	}
	return *t.FITID
}

func (t *Transaction) String() string {
	return fmt.Sprintf("%s %s %s %s [%s]",
		t.DatePosted.Format("2006-01-02"), t.Amount.StringFixed(2), t.Payee, t.Memo, t.State)
}

// Security is one entry of a statement's security list. Investment
// transactions reference securities by external id, not by pointer, so
// resolution against the ledger's commodity table stays a separate step.
type Security struct {
	ID        string // external identifier, typically CUSIP or ISIN
	IDType    string
	Ticker    string
	Name      string
	UnitPrice decimal.Decimal
	AsOf      time.Time
	Currency  string

	// Resolved is filled by ResolveSecurities when a ledger commodity
	// matches.
	Resolved *ledger.Security
}

// ResolveSecurities links parsed securities to the ledger's commodity
// table, matching on external id first and falling back to the ticker.
func ResolveSecurities(securities []*Security, led ledger.Reader) {
	for _, s := range securities {
		for _, node := range led.Securities() {
			if s.ID != "" && node.ISIN == s.ID {
				s.Resolved = node
				break
			}
			if s.Ticker != "" && node.Ticker == s.Ticker {
				s.Resolved = node
				break
			}
		}
	}
}

// ResolveAccount finds the ledger account a statement belongs to by its
// external account number.
func ResolveAccount(accountNumber string, led ledger.Reader) (*ledger.Account, bool) {
	return led.AccountByNumber(accountNumber)
}
