package ofx

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding/charmap"

	"github.com/ofx2ledger/ofx2ledger/ledger"
)

// The SGML dialect is written deliberately: old importers that choke on
// XML statements accept it, and everything written here round-trips
// through Parse.
var v1Header = []string{
	"OFXHEADER:100",
	"DATA:OFXSGML",
	"VERSION:102",
	"SECURITY:NONE",
	"ENCODING:USASCII",
	"CHARSET:1252",
	"COMPRESSION:NONE",
	"OLDFILEUID:NONE",
	"NEWFILEUID:NONE",
}

// Exporter serializes one account's ledger transactions within an
// inclusive date range as an OFX v1 statement.
type Exporter struct {
	Ledger  ledger.Reader
	Account *ledger.Account
	Start   time.Time
	End     time.Time

	// Now stamps the server date and the ledger balance as-of date;
	// defaults to time.Now.
	Now func() time.Time
}

// ExportFile writes the statement to the given path, forcing a .ofx
// extension and windows-1252 encoding. A failed export removes the
// partial file before returning the error.
func (e *Exporter) ExportFile(path string) error {
	ext := filepath.Ext(path)
	path = strings.TrimSuffix(path, ext) + ".ofx"

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "ofx: cannot create %s", path)
	}

	if err := e.Write(f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}

	if err := f.Close(); err != nil {
		os.Remove(path)
		return errors.Wrapf(err, "ofx: cannot write %s", path)
	}
	return nil
}

// Write emits the statement to an arbitrary sink, windows-1252 encoded.
func (e *Exporter) Write(out io.Writer) error {
	if e.Ledger == nil || e.Account == nil {
		return errors.New("ofx: exporter needs a ledger and an account")
	}

	now := time.Now()
	if e.Now != nil {
		now = e.Now()
	}

	w := &indentWriter{w: bufio.NewWriter(charmap.Windows1252.NewEncoder().Writer(out))}

	for _, line := range v1Header {
		w.line(line)
	}
	w.line("")

	category := CategoryOf(e.Account.Type)
	set := aggregates[category]

	w.open(tagOFX)

	// sign-on response
	w.open(tagSignonMsgSet)
	w.open(tagSonrs)
	w.open(tagStatus)
	w.field(tagCode, "0")
	w.field(tagSeverity, "INFO")
	w.close(tagStatus)
	w.field(tagDtServer, encodeDate(now))
	w.field(tagLanguage, "ENG")
	w.close(tagSonrs)
	w.close(tagSignonMsgSet)

	w.open(set.MessageSet)
	w.open(set.Response)
	w.field(tagTrnUID, "1")
	w.open(tagStatus)
	w.field(tagCode, "0")
	w.field(tagSeverity, "INFO")
	w.close(tagStatus)

	w.open(set.Statement)
	w.field(tagCurDef, currencyOf(e.Account))

	// account identification
	w.open(set.AccountFrom)
	if category == CategoryInvestment {
		// a broker id is required here, but the ledger does not track
		// one; emit the placeholder
		w.field(tagBrokerID, "")
	} else {
		w.field(tagBankID, e.Account.BankID)
	}
	w.field(tagAcctID, e.Account.Number)
	if category != CategoryInvestment {
		w.field(tagAcctType, acctTypeValue(e.Account.Type))
	}
	w.close(set.AccountFrom)

	w.open(set.TransactionList)
	w.field(tagDtStart, encodeDate(e.Start))
	w.field(tagDtEnd, encodeDate(e.End))

	for _, t := range e.Ledger.Transactions(e.Account, e.Start, e.End) {
		if category == CategoryInvestment {
			e.writeInvestmentTransaction(w, t)
		} else {
			e.writeBankTransaction(w, t)
		}
	}

	w.close(set.TransactionList)

	// ledger balance is reported as of now, not as of the range end
	w.open(tagLedgerBal)
	w.field(tagBalAmt, ledger.Balance(e.Ledger, e.Account, now).String())
	w.field(tagDtAsOf, encodeDate(now))
	w.close(tagLedgerBal)

	w.close(set.Statement)
	w.close(set.Response)
	w.close(set.MessageSet)
	w.close(tagOFX)

	if w.err != nil {
		return errors.Wrap(w.err, "ofx: export failed")
	}
	return errors.Wrap(w.w.Flush(), "ofx: export failed")
}

func (e *Exporter) writeBankTransaction(w *indentWriter, t *ledger.Transaction) {
	amount := t.Amount(e.Account)

	w.open(tagStmtTrn)
	if amount.Sign() > 0 {
		w.field(tagTrnType, valueCredit)
	} else {
		w.field(tagTrnType, valueDebit)
	}
	w.field(tagDtPosted, encodeDate(t.Date))
	w.field(tagTrnAmt, amount.String())
	w.field(tagRefNum, t.ID)
	w.field(tagName, escapeText(t.Payee))
	w.field(tagMemo, escapeText(t.Memo))
	if e.Account.Type == ledger.Checking && t.Number != "" {
		w.field(tagCheckNum, t.Number)
	}
	e.writeFitID(w, t)
	if counter := t.CounterAccount(e.Account); counter != nil && counter.Number != "" {
		w.open(tagBankAcctTo)
		w.field(tagBankID, counter.BankID)
		w.field(tagAcctID, counter.Number)
		w.field(tagAcctType, acctTypeValue(counter.Type))
		w.close(tagBankAcctTo)
	}
	w.close(tagStmtTrn)
}

func (e *Exporter) writeInvestmentTransaction(w *indentWriter, t *ledger.Transaction) {
	switch t.Type {
	case ledger.BuyShare:
		e.writeTrade(w, t, tagBuyStock, tagInvBuy, tagBuyType, "BUY")
	case ledger.SellShare:
		e.writeTrade(w, t, tagSellStock, tagInvSell, tagSellType, "SELL")
	case ledger.Dividend:
		e.writeDividend(w, t)
	case ledger.ReinvestDividend:
		// two aggregates, one FITID: income into cash, then the
		// purchase out of cash
		e.writeDividend(w, t)
		e.writeReinvest(w, t)
	default:
		w.open(tagInvBankTran)
		e.writeBankTransaction(w, t)
		w.field(tagSubAcctFund, valueCash)
		w.close(tagInvBankTran)
	}
}

func (e *Exporter) writeTrade(w *indentWriter, t *ledger.Transaction, outer, inner, typeTag, typeValue string) {
	w.open(outer)
	w.open(inner)

	w.open(tagInvTran)
	e.writeFitID(w, t)
	w.field(tagDtTrade, encodeDate(t.Date))
	w.field(tagDtSettle, encodeDate(t.Date))
	w.close(tagInvTran)

	e.writeSecID(w, t.Security)

	w.field(tagUnits, t.Units.String())
	w.field(tagUnitPrice, t.Price.String())
	w.field(tagCommission, t.Commission.String())
	w.field(tagTotal, t.Amount(e.Account).String())
	w.field(tagSubAcctSec, valueCash)
	w.field(tagSubAcctFund, valueCash)

	w.close(inner)
	w.field(typeTag, typeValue)
	w.close(outer)
}

func (e *Exporter) writeDividend(w *indentWriter, t *ledger.Transaction) {
	w.open(tagIncome)

	w.open(tagInvTran)
	e.writeFitID(w, t)
	w.field(tagDtTrade, encodeDate(t.Date))
	w.field(tagDtSettle, encodeDate(t.Date))
	w.field(tagMemo, "Dividend: "+tickerOf(t.Security))
	w.close(tagInvTran)

	e.writeSecID(w, t.Security)

	w.field(tagIncomeType, "DIV")
	w.field(tagTotal, t.Amount(e.Account).Abs().String())
	w.field(tagSubAcctSec, valueCash)
	w.field(tagSubAcctFund, valueCash)
	w.close(tagIncome)
}

func (e *Exporter) writeReinvest(w *indentWriter, t *ledger.Transaction) {
	w.open(tagReinvest)

	w.open(tagInvTran)
	e.writeFitID(w, t)
	w.field(tagDtTrade, encodeDate(t.Date))
	w.field(tagDtSettle, encodeDate(t.Date))
	w.field(tagMemo, "Distribution reinvestment: "+tickerOf(t.Security))
	w.close(tagInvTran)

	e.writeSecID(w, t.Security)

	w.field(tagIncomeType, "DIV")
	w.field(tagTotal, t.Amount(e.Account).Abs().Neg().String())
	w.field(tagSubAcctSec, valueCash)
	w.field(tagUnits, t.Units.String())
	w.field(tagUnitPrice, t.Price.String())
	w.field(tagCommission, t.Commission.String())
	w.close(tagReinvest)
}

// writeFitID prefers the id recorded at a previous import so re-imported
// statements de-duplicate; the internal id is stable enough otherwise.
func (e *Exporter) writeFitID(w *indentWriter, t *ledger.Transaction) {
	if t.FITID != "" {
		w.field(tagFitID, t.FITID)
	} else {
		w.field(tagFitID, t.ID)
	}
}

func (e *Exporter) writeSecID(w *indentWriter, s *ledger.Security) {
	w.open(tagSecID)
	if s != nil && s.ISIN != "" {
		w.field(tagUniqueID, s.ISIN)
	} else {
		w.field(tagUniqueID, tickerOf(s))
	}
	w.field(tagUniqueIDType, "CUSIP")
	w.close(tagSecID)
}

func tickerOf(s *ledger.Security) string {
	if s == nil {
		return ""
	}
	return s.Ticker
}

func currencyOf(a *ledger.Account) string {
	if a.Currency == "" {
		return "USD"
	}
	return a.Currency
}

func encodeDate(t time.Time) string {
	return t.Format("20060102150405")
}

// indentWriter prints one element per line with two spaces per nesting
// level, the layout importers expect from v1 files. The first error is
// retained and later writes become no-ops.
type indentWriter struct {
	w     *bufio.Writer
	level int
	err   error
}

func (iw *indentWriter) line(s string) {
	if iw.err != nil {
		return
	}
	for i := 0; i < iw.level; i++ {
		if _, iw.err = iw.w.WriteString("  "); iw.err != nil {
			return
		}
	}
	if _, iw.err = iw.w.WriteString(s); iw.err == nil {
		iw.err = iw.w.WriteByte('\n')
	}
}

func (iw *indentWriter) open(tag string) {
	iw.line("<" + tag + ">")
	iw.level++
}

func (iw *indentWriter) close(tag string) {
	iw.level--
	iw.line("</" + tag + ">")
}

// field writes a leaf element in the unclosed v1 style.
func (iw *indentWriter) field(tag, value string) {
	iw.line("<" + tag + ">" + value)
}
