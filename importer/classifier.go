package importer

import (
	"log"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/jbrukh/bayesian"
	"github.com/pkg/errors"
	mathex "github.com/pkg/math"
	"github.com/shopspring/decimal"

	"github.com/ofx2ledger/ofx2ledger/ledger"
)

// Classifier suggests a destination account for a statement line based on
// the base account's own history: every account the base account has ever
// shared a transaction with becomes a class, trained on that transaction's
// payee and memo text. The model lives for one import session and is
// rebuilt from the ledger each time.
type Classifier struct {
	base    *ledger.Account
	classes []bayesian.Class
	byClass map[bayesian.Class]*ledger.Account
	cl      *bayesian.Classifier
}

// NewClassifier trains a model for the base account. It fails when the
// history names fewer than two counter accounts, since a single class
// cannot discriminate anything.
func NewClassifier(base *ledger.Account, led ledger.Reader) (*Classifier, error) {
	if base == nil {
		return nil, errors.New("importer: classifier needs a base account")
	}
	history := led.Transactions(base, time.Time{}, time.Time{})

	byClass := make(map[bayesian.Class]*ledger.Account)
	for _, t := range history {
		counter := t.CounterAccount(base)
		if counter == nil || counter == base {
			continue
		}
		byClass[bayesian.Class(counter.Name)] = counter
	}
	if len(byClass) < 2 {
		return nil, errors.Errorf("importer: account %q has history with %d other accounts, need at least 2 to classify",
			base.Name, len(byClass))
	}

	// class order is the tie-breaker, keep it deterministic
	classes := make([]bayesian.Class, 0, len(byClass))
	for class := range byClass {
		classes = append(classes, class)
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i] < classes[j] })

	c := &Classifier{
		base:    base,
		classes: classes,
		byClass: byClass,
		cl:      bayesian.NewClassifier(classes...),
	}
	for _, t := range history {
		counter := t.CounterAccount(base)
		if counter == nil || counter == base {
			continue
		}
		c.cl.Learn(terms(t.Payee, t.Memo, t.Amount(base)), bayesian.Class(counter.Name))
	}
	return c, nil
}

// Suggest returns the most probable destination account for the line.
// Ties resolve to the first class in training order, which is the
// alphabetically first account name.
func (c *Classifier) Suggest(t *Transaction) *ledger.Account {
	scores, _, _ := c.cl.LogScores(terms(t.Payee, t.Memo, t.Amount))
	best := 0
	for pos, score := range scores {
		if score > scores[best] {
			best = pos
		}
	}
	return c.byClass[c.classes[best]]
}

// Rank returns up to ten plausible destination accounts, best first,
// cutting off once consecutive scores drift apart by more than one
// standard deviation.
func (c *Classifier) Rank(t *Transaction) []*ledger.Account {
	scores, _, _ := c.cl.LogScores(terms(t.Payee, t.Memo, t.Amount))

	pairs := make([]scored, 0, len(scores))
	for pos, score := range scores {
		pairs = append(pairs, scored{score, pos})
	}

	var mean, stddev float64
	for _, p := range pairs {
		mean += p.score
	}
	mean /= float64(len(pairs))
	for _, p := range pairs {
		stddev += math.Pow(p.score-mean, 2)
	}
	stddev = math.Sqrt(stddev / float64(len(pairs)-1))

	sort.Sort(byScore(pairs))
	result := make([]*ledger.Account, 0, 5)
	last := pairs[0].score
	for i := 0; i < mathex.Min(10, len(pairs)); i++ {
		p := pairs[i]
		if math.Abs(p.score-last) > stddev {
			break
		}
		result = append(result, c.byClass[c.classes[p.pos]])
		last = p.score
	}
	return result
}

// Apply fills in the suggested account for every line that has none yet.
// One bad line never sinks the batch; it simply keeps no suggestion.
func (c *Classifier) Apply(txns []*Transaction) {
	for _, t := range txns {
		if t == nil || t.Account != nil || t.State == StateIgnore {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("importer: classification failed for %s: %v", t.ID, r)
				}
			}()
			t.Account = c.Suggest(t)
		}()
	}
}

type scored struct {
	score float64
	pos   int
}

type byScore []scored

func (b byScore) Len() int           { return len(b) }
func (b byScore) Less(i, j int) bool { return b[i].score > b[j].score }
func (b byScore) Swap(i, j int)      { b[i], b[j] = b[j], b[i] }

var trimWhitespace = regexp.MustCompile(`^[\s]+|[\s]+$`)
var dedupWhitespace = regexp.MustCompile(`[\s]+`)

func normalizeWhitespace(s string) string {
	s = trimWhitespace.ReplaceAllString(s, "")
	s = dedupWhitespace.ReplaceAllString(s, " ")
	return s
}

func terms(payee, memo string, amount decimal.Decimal) []string {
	desc := normalizeWhitespace(strings.ToUpper(payee + " " + memo))
	terms := strings.Split(desc, " ")
	terms = append(terms, "Desc: "+desc)

	var kind string
	if amount.Sign() >= 0 {
		kind = "credit"
	} else {
		kind = "debit"
	}
	terms = append(terms, "Kind: "+kind)
	return terms
}
