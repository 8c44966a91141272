// Command ofx2ledger imports OFX bank, credit-card and investment
// statements into a ledger journal, and exports journal slices back to
// OFX v1 for other tools to consume.
//
// The import flow parses the statement, marks probable duplicates against
// the existing journal, suggests a destination account for each line from
// the journal's own history, and walks the user through a single-key
// review. Accepted lines are appended to the output journal.
package main

import (
	"bytes"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/c-bata/go-prompt"
	"github.com/eiannone/keyboard"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	yaml "gopkg.in/yaml.v2"

	"github.com/ofx2ledger/ofx2ledger/importer"
	"github.com/ofx2ledger/ofx2ledger/ledger"
	"github.com/ofx2ledger/ofx2ledger/ofx"
)

var (
	debug      = flag.Bool("debug", false, "Additional debug information if set.")
	journal    = flag.String("j", "", "Existing journal to learn from.")
	output     = flag.String("o", "out.ldg", "Journal file to write to (or .ofx file with -export).")
	ofxFile    = flag.String("ofx", "", "OFX statement file to import.")
	configFile = flag.String("c", "ofx2ledger.yaml", "Config file with account mappings and filters.")
	account    = flag.String("account", "", "Ledger account to reconcile against; overrides statement account lookup.")
	doExport   = flag.Bool("export", false, "Export the account's journal transactions as OFX instead of importing.")
	fromDate   = flag.String("from", "", "Export range start (2006/01/02).")
	toDate     = flag.String("to", "", "Export range end (2006/01/02).")
	autoAll    = flag.Bool("yes", false, "Accept every suggestion without review.")

	stamp      = "2006/01/02"
	descLength = 40
	catLength  = 20

	cfg config
)

type accountConfig struct {
	Name     string `yaml:"name"`
	Number   string `yaml:"number"`
	BankID   string `yaml:"bankid"`
	Type     string `yaml:"type"`
	Currency string `yaml:"currency"`
}

type filterConfig struct {
	Description string `yaml:"description"`
	Pattern     string `yaml:"pattern"`
	Replace     string `yaml:"replace"`
}

type config struct {
	Rename   map[string]string `yaml:"Rename"`
	Accounts []accountConfig   `yaml:"Accounts"`
	Filters  []filterConfig    `yaml:"Filters"`
}

func checkf(err error, format string, args ...interface{}) {
	if err != nil {
		log.Printf(format, args...)
		log.Println()
		log.Fatalf("%+v", errors.WithStack(err))
	}
}

func assertf(ok bool, format string, args ...interface{}) {
	if !ok {
		log.Printf(format, args...)
		log.Println()
		log.Fatalf("%+v", errors.Errorf("Should be true, but is false"))
	}
}

var errc = color.New(color.BgRed, color.FgWhite).PrintfFunc()

func oerr(msg string) {
	errc("\tERROR: " + msg + " ")
	fmt.Println()
	fmt.Println("Flags available:")
	flag.PrintDefaults()
	fmt.Println()
}

func main() {
	flag.Parse()

	if len(*journal) == 0 {
		oerr("Please specify the input ledger journal file")
		return
	}

	if f, err := os.Open(*configFile); err == nil {
		err = yaml.NewDecoder(f).Decode(&cfg)
		f.Close()
		checkf(err, "Cannot decode config file %v", *configFile)
	}

	led := ingestJournal(*journal)

	if *doExport {
		runExport(led)
		return
	}

	if len(*ofxFile) == 0 {
		oerr("Please specify the OFX statement file to import")
		return
	}
	runImport(led)
}

func accountType(name string) ledger.AccountType {
	switch strings.ToLower(name) {
	case "checking":
		return ledger.Checking
	case "savings":
		return ledger.Savings
	case "cash":
		return ledger.Cash
	case "asset":
		return ledger.Asset
	case "credit":
		return ledger.Credit
	case "liability":
		return ledger.Liability
	case "investment":
		return ledger.Investment
	case "mutual":
		return ledger.Mutual
	case "income":
		return ledger.Income
	case "bank":
		return ledger.Bank
	default:
		return ledger.Expense
	}
}

// ingestJournal shells out to ledger(1) for the heavy lifting of journal
// syntax and reads back one CSV row per posting. Rows sharing a date and
// payee are folded into one double-entry transaction.
func ingestJournal(journalFile string) *ledger.Memory {
	out, err := exec.Command("ledger", "-f", journalFile, "csv").Output()
	checkf(err, "Unable to convert journal to csv. Possibly an issue with your ledger installation.")

	led := ledger.NewMemory()
	for _, ac := range cfg.Accounts {
		led.AddAccount(&ledger.Account{
			Name:     ac.Name,
			Number:   ac.Number,
			BankID:   ac.BankID,
			Type:     accountType(ac.Type),
			Currency: ac.Currency,
		})
	}

	accountFor := func(name string) *ledger.Account {
		if renamed, has := cfg.Rename[name]; has {
			name = renamed
		}
		if a, ok := led.AccountByName(name); ok {
			return a
		}
		return led.AddAccount(&ledger.Account{Name: name, Type: guessType(name)})
	}

	r := csv.NewReader(bytes.NewReader(out))
	r.FieldsPerRecord = -1

	var cur *ledger.Transaction
	flush := func() {
		if cur != nil && len(cur.Entries) > 0 {
			checkf(led.AddTransaction(cur), "Unable to record journal transaction %v", cur.Payee)
		}
		cur = nil
	}

	for {
		cols, err := r.Read()
		if err == io.EOF {
			break
		}
		checkf(err, "Unable to read a csv line.")
		if len(cols) < 6 {
			continue
		}

		date, err := time.Parse(stamp, cols[0])
		checkf(err, "Unable to parse time: %v", cols[0])
		payee := strings.Trim(cols[2], " \n\t")
		amount, err := decimal.NewFromString(strings.Replace(cols[5], ",", "", -1))
		checkf(err, "Unable to parse amount: %v", cols[5])

		if cur == nil || !cur.Date.Equal(date) || cur.Payee != payee {
			flush()
			cur = &ledger.Transaction{Date: date, Payee: payee}
		}
		cur.Entries = append(cur.Entries, ledger.Entry{
			Account: accountFor(cols[3]),
			Amount:  amount,
		})
	}
	flush()
	return led
}

func guessType(name string) ledger.AccountType {
	top := strings.ToLower(strings.SplitN(name, ":", 2)[0])
	switch top {
	case "assets":
		return ledger.Asset
	case "liabilities":
		return ledger.Liability
	case "income":
		return ledger.Income
	default:
		return ledger.Expense
	}
}

func baseAccount(led *ledger.Memory, number string) *ledger.Account {
	if *account != "" {
		a, ok := led.AccountByName(*account)
		assertf(ok, "Account %q not found in journal", *account)
		return a
	}
	a, ok := importer.ResolveAccount(number, led)
	assertf(ok, "No configured account matches statement account number %q; use -account", number)
	return a
}

func runExport(led *ledger.Memory) {
	base := baseAccount(led, "")

	start, err := time.Parse(stamp, *fromDate)
	checkf(err, "Unable to parse -from date: %v", *fromDate)
	end, err := time.Parse(stamp, *toDate)
	checkf(err, "Unable to parse -to date: %v", *toDate)

	e := &ofx.Exporter{Ledger: led, Account: base, Start: start, End: end}
	checkf(e.ExportFile(*output), "Export to %v failed", *output)
	fmt.Printf("Exported %q (%s .. %s) to %s\n", base.Name, *fromDate, *toDate,
		strings.TrimSuffix(*output, path.Ext(*output))+".ofx")
}

func runImport(led *ledger.Memory) {
	data, err := os.ReadFile(*ofxFile)
	checkf(err, "Unable to read file: %v", *ofxFile)

	stmt, err := ofx.Parse(data)
	checkf(err, "Unable to parse statement: %v", *ofxFile)
	if stmt.Status.Code != 0 {
		msg := ""
		if stmt.Status.Message != nil {
			msg = *stmt.Status.Message
		}
		assertf(false, "Server reported error %d (%s): %s", stmt.Status.Code, stmt.Status.Severity, msg)
	}

	base := baseAccount(led, stmt.AccountID)
	txns := stmt.Transactions

	importer.ApplyFilters(txns, buildFilters())
	importer.ResolveSecurities(stmt.Securities, led)
	importer.Match(txns, base, led)
	if *debug {
		var equal int
		for _, t := range txns {
			if t.State == importer.StateEqual {
				equal++
			}
		}
		log.Printf("%d of %d transactions already present in the journal", equal, len(txns))
	}

	cl, err := importer.NewClassifier(base, led)
	if err != nil {
		log.Printf("classification disabled: %v", err)
	} else {
		cl.Apply(txns)
	}

	store, err := importer.OpenDecisionStore(path.Join(os.TempDir(), "ofx2ledger-decisions"))
	checkf(err, "Unable to open decision store")
	defer store.Close()
	for _, t := range txns {
		store.Restore(t, led)
	}

	printStatement(stmt, base, txns)

	of, err := os.OpenFile(*output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	checkf(err, "Unable to open output file: %v", *output)
	defer of.Close()

	review(txns, base, led, cl, store)

	var written int
	for _, t := range txns {
		if t.State != importer.StateNew || t.Account == nil {
			continue
		}
		_, err := of.WriteString(ledgerFormat(t, base))
		checkf(err, "Unable to write to output file: %v", *output)
		written++
	}
	fmt.Printf("\nWrote %d transactions to %s\n", written, *output)
}

func buildFilters() []importer.Filter {
	var filters []importer.Filter
	for _, fc := range cfg.Filters {
		re, err := regexp.Compile(fc.Pattern)
		checkf(err, "Bad filter pattern %q", fc.Pattern)
		replace := fc.Replace
		filters = append(filters, importer.Filter{
			Description: fc.Description,
			Fn:          func(s string) string { return re.ReplaceAllString(s, replace) },
		})
	}
	return filters
}

func printStatement(stmt *ofx.Statement, base *ledger.Account, txns []*importer.Transaction) {
	fmt.Printf("Statement for %s (%s), %d transactions", base.Name, stmt.Category, len(txns))
	if stmt.LedgerBalance != nil {
		fmt.Printf(", reported balance %s", stmt.LedgerBalance.StringFixed(2))
	}
	fmt.Println()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Date", "Payee", "Amount", "State", "Suggested"})
	for _, t := range txns {
		suggested := ""
		if t.Account != nil {
			suggested = t.Account.Name
		}
		table.Append([]string{
			t.DatePosted.Format(stamp),
			clip(t.Payee, descLength),
			t.Amount.StringFixed(2),
			t.State.String(),
			clip(suggested, catLength),
		})
	}
	table.Render()
}

func clip(s string, max int) string {
	r := []rune(s)
	if len(r) > max {
		return string(r[:max])
	}
	return s
}

func printSummary(t *importer.Transaction, idx, total int) {
	switch t.State {
	case importer.StateEqual:
		color.New(color.BgGreen, color.FgBlack).Printf(" = ")
	case importer.StateIgnore:
		color.New(color.BgHiYellow, color.FgBlack).Printf(" - ")
	default:
		color.New(color.BgRed, color.FgWhite).Printf(" N ")
	}
	color.New(color.BgBlue, color.FgWhite).Printf(" [%3d of %3d] ", idx+1, total)
	color.New(color.BgYellow, color.FgBlack).Printf(" %10s ", t.DatePosted.Format(stamp))
	color.New(color.BgWhite, color.FgBlack).Printf(" %-40s", clip(t.Payee, descLength))
	if t.Account != nil {
		color.New(color.BgHiYellow, color.FgBlack).Printf(" %-20s ", clip(t.Account.Name, catLength))
	}
	color.New(color.BgRed, color.FgWhite).Printf(" %9s %3s ", t.Amount.StringFixed(2), t.Currency)
	fmt.Println()
}

// review walks the user over every line still marked NEW. Enter accepts
// the suggestion, e edits the destination with completion, s skips the
// line, b goes back, q stops the review.
func review(txns []*importer.Transaction, base *ledger.Account, led *ledger.Memory,
	cl *importer.Classifier, store *importer.DecisionStore) {

	if *autoAll {
		for _, t := range txns {
			if t.State == importer.StateNew && t.Account != nil {
				checkf(store.Save(t), "Unable to persist decision")
			}
		}
		return
	}

	fmt.Printf("\nReview %d transactions (Y/a/q)? ", len(txns))
	ch, _, _ := keyboard.GetSingleKey()
	fmt.Println()
	if ch == 'q' {
		return
	}
	if ch == 'a' {
		for _, t := range txns {
			if t.State == importer.StateNew && t.Account != nil {
				checkf(store.Save(t), "Unable to persist decision")
			}
		}
		return
	}

	for i := 0; i < len(txns) && i >= 0; {
		t := txns[i]
		if t.State != importer.StateNew {
			i++
			continue
		}
		printSummary(t, i, len(txns))
		if cl != nil && t.Account == nil {
			if hits := cl.Rank(t); len(hits) > 0 {
				t.Account = hits[0]
			}
		}

		fmt.Printf("  [Enter]=accept  e=edit account  s=skip  b=back  q=quit > ")
		ch, key, _ := keyboard.GetSingleKey()
		fmt.Println()

		switch {
		case ch == 0 && key == keyboard.KeyEnter && t.Account != nil:
			checkf(store.Save(t), "Unable to persist decision")
			i++
		case ch == 'e':
			name := prompt.Input("account> ", accountCompleter(led, base))
			if a, ok := led.AccountByName(name); ok {
				t.Account = a
			} else if name != "" {
				t.Account = led.AddAccount(&ledger.Account{Name: name, Type: guessType(name)})
			}
			checkf(store.Save(t), "Unable to persist decision")
			i++
		case ch == 's':
			t.State = importer.StateIgnore
			checkf(store.Save(t), "Unable to persist decision")
			i++
		case ch == 'b':
			i--
		case ch == 'q':
			return
		}
	}
}

func accountCompleter(led *ledger.Memory, base *ledger.Account) prompt.Completer {
	var suggestions []prompt.Suggest
	for _, a := range led.Accounts() {
		if a == base {
			continue
		}
		suggestions = append(suggestions, prompt.Suggest{Text: a.Name})
	}
	sort.Slice(suggestions, func(i, j int) bool { return suggestions[i].Text < suggestions[j].Text })
	return func(d prompt.Document) []prompt.Suggest {
		return prompt.FilterContains(suggestions, d.GetWordBeforeCursor(), true)
	}
}

// ledgerFormat renders one accepted statement line as a journal entry.
// Deposits flow from the destination account into the base account.
func ledgerFormat(t *importer.Transaction, base *ledger.Account) string {
	var b bytes.Buffer
	fmt.Fprintf(&b, "%s %s\n", t.DatePosted.Format(stamp), t.Payee)
	if t.Memo != "" {
		fmt.Fprintf(&b, "\t; %s\n", t.Memo)
	}
	if id := t.ExternalID(); id != "" {
		fmt.Fprintf(&b, "\t; fitid: %s\n", id)
	}
	if t.Amount.Sign() >= 0 {
		fmt.Fprintf(&b, "\t%-40s\t%s\n", base.Name, t.Amount.StringFixed(2))
		fmt.Fprintf(&b, "\t%s\n\n", t.Account.Name)
	} else {
		fmt.Fprintf(&b, "\t%-40s\t%s\n", t.Account.Name, t.Amount.Abs().StringFixed(2))
		fmt.Fprintf(&b, "\t%s\n\n", base.Name)
	}
	return b.String()
}
