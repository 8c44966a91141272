package importer

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ofx2ledger/ofx2ledger/ledger"
)

func TestDecisionStoreRoundTrip(t *testing.T) {
	led := ledger.NewMemory()
	groceries := led.AddAccount(&ledger.Account{Name: "Expenses:Groceries", Type: ledger.Expense})

	store, err := OpenDecisionStore(filepath.Join(t.TempDir(), "decisions.db"))
	require.NoError(t, err)
	defer store.Close()

	tn := imported("-54.10", day(2026, 1, 2))
	tn.Payee = "WHOLE FOODS MARKET 001"
	tn.Account = groceries
	tn.State = StateIgnore
	require.NoError(t, store.Save(tn))

	// a re-parse of the same file produces a fresh session id but the
	// same statement fields
	again := imported("-54.10", day(2026, 1, 2))
	again.Payee = "WHOLE FOODS MARKET 001"
	require.NotEqual(t, tn.ID, again.ID)

	assert.True(t, store.Restore(again, led))
	assert.Equal(t, StateIgnore, again.State)
	assert.Equal(t, groceries, again.Account)
}

func TestDecisionStoreMissReturnsFalse(t *testing.T) {
	led := ledger.NewMemory()
	store, err := OpenDecisionStore(filepath.Join(t.TempDir(), "decisions.db"))
	require.NoError(t, err)
	defer store.Close()

	tn := imported("-1.00", day(2026, 1, 2))
	tn.Payee = "NEVER SEEN"

	assert.False(t, store.Restore(tn, led))
	assert.Equal(t, StateNew, tn.State)
}

func TestKeyDependsOnStatementFields(t *testing.T) {
	a := imported("-54.10", day(2026, 1, 2))
	a.Payee = "SHOP"

	b := imported("-54.10", day(2026, 1, 2))
	b.Payee = "SHOP"
	assert.Equal(t, Key(a), Key(b))

	c := imported("-54.11", day(2026, 1, 2))
	c.Payee = "SHOP"
	assert.NotEqual(t, Key(a), Key(c))

	d := imported("-54.10", day(2026, 1, 3))
	d.Payee = "SHOP"
	assert.NotEqual(t, Key(a), Key(d))
}

func TestTransactionStringIncludesState(t *testing.T) {
	tn := imported("-5.00", day(2026, 1, 2))
	tn.Payee = "SHOP"
	tn.State = StateEqual
	s := tn.String()
	assert.Contains(t, s, "EQUAL")
	assert.Contains(t, s, "-5.00")
}
