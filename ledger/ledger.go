// Package ledger defines the boundary to the persistent accounting engine.
// The import/export subsystem only ever reads the ledger through Reader and
// appends accepted transactions through Writer; it never mutates existing
// entries.
package ledger

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// AccountType mirrors the account categories the OFX exporter and parser
// must discriminate between.
type AccountType int

const (
	Bank AccountType = iota
	Checking
	Savings
	Cash
	Asset
	Credit
	Liability
	Investment
	Mutual
	Income
	Expense
)

func (t AccountType) String() string {
	switch t {
	case Bank:
		return "BANK"
	case Checking:
		return "CHECKING"
	case Savings:
		return "SAVINGS"
	case Cash:
		return "CASH"
	case Asset:
		return "ASSET"
	case Credit:
		return "CREDIT"
	case Liability:
		return "LIABILITY"
	case Investment:
		return "INVEST"
	case Mutual:
		return "MUTUAL"
	case Income:
		return "INCOME"
	case Expense:
		return "EXPENSE"
	}
	return "UNKNOWN"
}

// IsInvestment reports whether accounts of this type hold securities.
func (t AccountType) IsInvestment() bool {
	return t == Investment || t == Mutual
}

// Account is one node of the chart of accounts.
type Account struct {
	ID       string
	Name     string
	Number   string // external account number, as known to the bank
	BankID   string // routing number for deposit accounts
	Type     AccountType
	Currency string
}

// Security is one entry of the ledger's commodity table.
type Security struct {
	ID        string
	Ticker    string
	Name      string
	ISIN      string // external identifier (CUSIP/ISIN), may be empty
	Price     decimal.Decimal
	PriceDate time.Time
}

// TransactionType distinguishes investment postings from plain cash
// movements. Cash double entries use Entry pairs and leave this at Entry.
type TransactionType int

const (
	EntryType TransactionType = iota
	BuyShare
	SellShare
	Dividend
	ReinvestDividend
)

// Entry is a single leg of a double-entry transaction. Amounts are signed
// from the perspective of the entry's account.
type Entry struct {
	Account *Account
	Amount  decimal.Decimal
}

// Transaction is one committed ledger transaction.
type Transaction struct {
	ID      string
	Date    time.Time
	Payee   string
	Memo    string
	Number  string // check number
	FITID   string // bank transaction id recorded at import time, may be empty
	Entries []Entry

	// investment transaction detail, zero valued for cash movements
	Type       TransactionType
	Security   *Security
	Units      decimal.Decimal
	Price      decimal.Decimal
	Commission decimal.Decimal
}

// Amount returns the transaction's signed contribution to the account, or
// zero when the account does not participate.
func (t *Transaction) Amount(a *Account) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range t.Entries {
		if e.Account == a {
			sum = sum.Add(e.Amount)
		}
	}
	return sum
}

// CounterAccount returns the other side of a two-legged transaction
// relative to the given account, or nil if there is none.
func (t *Transaction) CounterAccount(a *Account) *Account {
	for _, e := range t.Entries {
		if e.Account != a {
			return e.Account
		}
	}
	return nil
}

// Reader is the read access the import subsystem requires. Implementations
// must present a stable snapshot for the duration of one import session.
type Reader interface {
	Accounts() []*Account
	AccountByID(id string) (*Account, bool)
	AccountByNumber(number string) (*Account, bool)

	// Transactions returns the account's transactions ordered by date.
	// Zero start/end times leave the respective bound open. Both bounds
	// are inclusive.
	Transactions(a *Account, start, end time.Time) []*Transaction

	Securities() []*Security
}

// Writer is the narrow write access used after an import session is
// accepted by the caller.
type Writer interface {
	AddTransaction(t *Transaction) error
}

// Balance sums the account's entries up to and including asOf.
func Balance(r Reader, a *Account, asOf time.Time) decimal.Decimal {
	sum := decimal.Zero
	for _, t := range r.Transactions(a, time.Time{}, asOf) {
		sum = sum.Add(t.Amount(a))
	}
	return sum
}

// NewDoubleEntry builds a transaction moving amount from one account to
// another. A positive amount credits to and debits from.
func NewDoubleEntry(from, to *Account, amount decimal.Decimal, date time.Time, payee, memo, number string) *Transaction {
	return &Transaction{
		ID:     uuid.NewString(),
		Date:   date,
		Payee:  payee,
		Memo:   memo,
		Number: number,
		Entries: []Entry{
			{Account: to, Amount: amount},
			{Account: from, Amount: amount.Neg()},
		},
	}
}

// NewSingleEntry builds a transaction touching only one account, used when
// the counter account is unknown.
func NewSingleEntry(a *Account, amount decimal.Decimal, date time.Time, payee, memo, number string) *Transaction {
	return &Transaction{
		ID:      uuid.NewString(),
		Date:    date,
		Payee:   payee,
		Memo:    memo,
		Number:  number,
		Entries: []Entry{{Account: a, Amount: amount}},
	}
}

// Memory is an in-memory Reader/Writer. The CLI builds one from an existing
// journal; tests construct them directly.
type Memory struct {
	accounts     []*Account
	accountsByID map[string]*Account
	transactions []*Transaction
	securities   []*Security
}

func NewMemory() *Memory {
	return &Memory{accountsByID: make(map[string]*Account)}
}

// AddAccount registers an account, assigning an id when absent.
func (m *Memory) AddAccount(a *Account) *Account {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	m.accounts = append(m.accounts, a)
	m.accountsByID[a.ID] = a
	return a
}

// AccountByName finds an account by its full name.
func (m *Memory) AccountByName(name string) (*Account, bool) {
	for _, a := range m.accounts {
		if a.Name == name {
			return a, true
		}
	}
	return nil, false
}

func (m *Memory) AddSecurity(s *Security) *Security {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	m.securities = append(m.securities, s)
	return s
}

func (m *Memory) Accounts() []*Account {
	return m.accounts
}

func (m *Memory) AccountByID(id string) (*Account, bool) {
	a, ok := m.accountsByID[id]
	return a, ok
}

func (m *Memory) AccountByNumber(number string) (*Account, bool) {
	if number == "" {
		return nil, false
	}
	for _, a := range m.accounts {
		if a.Number == number {
			return a, true
		}
	}
	return nil, false
}

func (m *Memory) Securities() []*Security {
	return m.securities
}

func (m *Memory) Transactions(a *Account, start, end time.Time) []*Transaction {
	var out []*Transaction
	for _, t := range m.transactions {
		if !t.Amount(a).IsZero() || participates(t, a) {
			if !start.IsZero() && t.Date.Before(start) {
				continue
			}
			if !end.IsZero() && t.Date.After(end) {
				continue
			}
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func participates(t *Transaction, a *Account) bool {
	for _, e := range t.Entries {
		if e.Account == a {
			return true
		}
	}
	return false
}

func (m *Memory) AddTransaction(t *Transaction) error {
	if t == nil || len(t.Entries) == 0 {
		return errors.New("ledger: transaction has no entries")
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	m.transactions = append(m.transactions, t)
	return nil
}
