package importer

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ofx2ledger/ofx2ledger/ledger"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func matcherLedger(t *testing.T) (*ledger.Memory, *ledger.Account) {
	t.Helper()
	led := ledger.NewMemory()
	base := led.AddAccount(&ledger.Account{Name: "Assets:Checking", Type: ledger.Checking})
	groceries := led.AddAccount(&ledger.Account{Name: "Expenses:Groceries", Type: ledger.Expense})

	old := ledger.NewDoubleEntry(groceries, base, decimal.RequireFromString("-130.00"),
		day(2026, 2, 5), "Mueller & Sons", "", "")
	require.NoError(t, led.AddTransaction(old))
	return led, base
}

func imported(amount string, posted time.Time) *Transaction {
	t := NewTransaction()
	t.Amount = decimal.RequireFromString(amount)
	t.DatePosted = posted
	return t
}

func TestMatchPostedDateWindowInclusive(t *testing.T) {
	led, base := matcherLedger(t)

	within := imported("-130.00", day(2026, 2, 8))  // 3 days away
	outside := imported("-130.00", day(2026, 2, 9)) // 4 days away

	Match([]*Transaction{within, outside}, base, led)

	assert.Equal(t, StateEqual, within.State)
	assert.Equal(t, StateNew, outside.State)
}

func TestMatchUserDateTakesPrecedence(t *testing.T) {
	led, base := matcherLedger(t)

	// user date 1 day from the ledger date: a match even though posted
	// is far away
	tn := imported("-130.00", day(2026, 2, 20))
	user := day(2026, 2, 6)
	tn.DateUser = &user

	// user date 2 days away: no match, the wider posted window is not
	// consulted once a user date exists
	miss := imported("-130.00", day(2026, 2, 5))
	missUser := day(2026, 2, 7)
	miss.DateUser = &missUser

	Match([]*Transaction{tn, miss}, base, led)

	assert.Equal(t, StateEqual, tn.State)
	assert.Equal(t, StateNew, miss.State)
}

func TestMatchFallsBackToCheckNumber(t *testing.T) {
	led := ledger.NewMemory()
	base := led.AddAccount(&ledger.Account{Name: "Assets:Checking", Type: ledger.Checking})
	rent := led.AddAccount(&ledger.Account{Name: "Expenses:Rent", Type: ledger.Expense})
	require.NoError(t, led.AddTransaction(
		ledger.NewDoubleEntry(rent, base, decimal.RequireFromString("-900.00"),
			day(2026, 1, 3), "Landlord", "", "1042")))

	tn := imported("-900.00", day(2026, 2, 27)) // far outside any date window
	tn.CheckNumber = "1042"

	Match([]*Transaction{tn}, base, led)
	assert.Equal(t, StateEqual, tn.State)
}

func TestMatchFallsBackToExternalID(t *testing.T) {
	led := ledger.NewMemory()
	base := led.AddAccount(&ledger.Account{Name: "Assets:Checking", Type: ledger.Checking})
	fees := led.AddAccount(&ledger.Account{Name: "Expenses:Fees", Type: ledger.Expense})
	old := ledger.NewDoubleEntry(fees, base, decimal.RequireFromString("-4.90"),
		day(2026, 1, 3), "Bank fee", "", "")
	old.FITID = "FEE-2026-01"
	require.NoError(t, led.AddTransaction(old))

	tn := imported("-4.90", day(2026, 2, 27))
	id := "FEE-2026-01"
	tn.FITID = &id

	Match([]*Transaction{tn}, base, led)
	assert.Equal(t, StateEqual, tn.State)
}

func TestMatchEmptyExternalIDNeverMatches(t *testing.T) {
	led := ledger.NewMemory()
	base := led.AddAccount(&ledger.Account{Name: "Assets:Checking", Type: ledger.Checking})
	fees := led.AddAccount(&ledger.Account{Name: "Expenses:Fees", Type: ledger.Expense})
	require.NoError(t, led.AddTransaction(
		ledger.NewDoubleEntry(fees, base, decimal.RequireFromString("-4.90"),
			day(2026, 1, 3), "Bank fee", "", "")))

	// both ids empty: "no id" and "empty id" are treated identically
	tn := imported("-4.90", day(2026, 2, 27))
	empty := ""
	tn.FITID = &empty

	Match([]*Transaction{tn}, base, led)
	assert.Equal(t, StateNew, tn.State)
}

func TestMatchRequiresExactAmount(t *testing.T) {
	led, base := matcherLedger(t)

	tn := imported("-130.01", day(2026, 2, 5))
	Match([]*Transaction{tn}, base, led)
	assert.Equal(t, StateNew, tn.State)
}

func TestMatchNeverDowngrades(t *testing.T) {
	led, base := matcherLedger(t)

	ignored := imported("-130.00", day(2026, 2, 5))
	ignored.State = StateIgnore
	overridden := imported("-130.00", day(2026, 2, 5))
	overridden.State = StateNotEqual

	Match([]*Transaction{ignored, overridden}, base, led)

	assert.Equal(t, StateIgnore, ignored.State)
	assert.Equal(t, StateNotEqual, overridden.State)
}

func TestMatchSameLedgerTransactionCanMatchTwice(t *testing.T) {
	led, base := matcherLedger(t)

	a := imported("-130.00", day(2026, 2, 5))
	b := imported("-130.00", day(2026, 2, 6))

	Match([]*Transaction{a, b}, base, led)

	// greedy matching, no bipartite assignment
	assert.Equal(t, StateEqual, a.State)
	assert.Equal(t, StateEqual, b.State)
}
