package importer

import (
	"log"
	"time"

	"github.com/ofx2ledger/ofx2ledger/ledger"
)

// Date windows accepted when an amount matches. A settlement can post a
// few days after the user acted, so the posted-date window is wider than
// the user-date window.
const (
	userDateWindow   = 1
	postedDateWindow = 3
)

// Match assigns each transaction a reconciliation state against the
// account's existing ledger history. Only the NEW->EQUAL promotion happens
// here; NOT_EQUAL and IGNORE are caller overrides and are left alone. The
// scan is greedy: several statement lines may match the same ledger
// transaction, which is acceptable for statements imported once.
func Match(txns []*Transaction, base *ledger.Account, led ledger.Reader) {
	if base == nil || led == nil {
		return
	}
	history := led.Transactions(base, time.Time{}, time.Time{})

	for _, t := range txns {
		if t == nil {
			continue
		}
		if t.State != StateNew {
			continue
		}
		func() {
			defer func() {
				// a bad record must not sink the batch; it simply
				// stays NEW
				if r := recover(); r != nil {
					log.Printf("importer: match failed for %s: %v", t.ID, r)
				}
			}()
			if matchesHistory(t, base, history) {
				t.State = StateEqual
			}
		}()
	}
}

func matchesHistory(t *Transaction, base *ledger.Account, history []*ledger.Transaction) bool {
	for _, old := range history {
		// candidates must agree on the exact decimal amount
		if !old.Amount(base).Equal(t.Amount) {
			continue
		}
		if t.DateUser != nil {
			if withinDays(old.Date, *t.DateUser, userDateWindow) {
				return true
			}
		} else if withinDays(old.Date, t.DatePosted, postedDateWindow) {
			return true
		}
		if t.CheckNumber != "" && t.CheckNumber == old.Number {
			return true
		}
		if id := t.ExternalID(); id != "" && id == old.FITID {
			return true
		}
	}
	return false
}

// withinDays reports whether two timestamps fall at most n calendar days
// apart, bounds inclusive.
func withinDays(a, b time.Time, n int) bool {
	ad := a.Truncate(24 * time.Hour)
	bd := b.Truncate(24 * time.Hour)
	diff := ad.Sub(bd)
	if diff < 0 {
		diff = -diff
	}
	return diff <= time.Duration(n)*24*time.Hour
}
