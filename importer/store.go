package importer

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"fmt"

	"github.com/boltdb/bolt"
	"github.com/pkg/errors"

	"github.com/ofx2ledger/ofx2ledger/ledger"
)

var decisionBucket = []byte("decisions")

// decision is what survives a crash: enough to restore the user's choice
// for a statement line when the same file is imported again.
type decision struct {
	AccountID string
	State     State
}

// DecisionStore persists per-line review decisions in a bolt file so an
// interrupted session can resume where it left off. Lines are keyed by a
// hash of their stable statement fields, not by the session id, which
// changes on every parse.
type DecisionStore struct {
	db *bolt.DB
}

// OpenDecisionStore opens or creates the bolt file at path.
func OpenDecisionStore(path string) (*DecisionStore, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "importer: unable to open boltdb at %v", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(decisionBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "importer: unable to create decision bucket")
	}
	return &DecisionStore{db: db}, nil
}

func (s *DecisionStore) Close() error {
	return s.db.Close()
}

// Key hashes the fields of a line that are stable across re-parses of the
// same statement file.
func Key(t *Transaction) []byte {
	hash := sha256.New()
	fmt.Fprintf(hash, "%s\t%s\t%s\t%s",
		t.DatePosted.Format("2006/01/02"), t.Payee, t.Memo, t.Amount.StringFixed(2))
	return hash.Sum(nil)
}

// Save records the line's current account choice and state.
func (s *DecisionStore) Save(t *Transaction) error {
	d := decision{State: t.State}
	if t.Account != nil {
		d.AccountID = t.Account.ID
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		var val bytes.Buffer
		if err := gob.NewEncoder(&val).Encode(d); err != nil {
			return errors.Wrapf(err, "importer: unable to encode decision for %v", t.ID)
		}
		return tx.Bucket(decisionBucket).Put(Key(t), val.Bytes())
	})
}

// Restore looks up an earlier decision for the line and reports whether
// one was found. A stale account id restores only the state.
func (s *DecisionStore) Restore(t *Transaction, led ledger.Reader) bool {
	var found bool
	s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(decisionBucket).Get(Key(t))
		if v == nil {
			return nil
		}
		var d decision
		if err := gob.NewDecoder(bytes.NewBuffer(v)).Decode(&d); err != nil {
			return nil
		}
		t.State = d.State
		if d.AccountID != "" {
			if a, ok := led.AccountByID(d.AccountID); ok {
				t.Account = a
			}
		}
		found = true
		return nil
	})
	return found
}
