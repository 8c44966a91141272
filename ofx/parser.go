package ofx

import (
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	xml "github.com/aclindsa/xml"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/ofx2ledger/ofx2ledger/importer"
	"github.com/ofx2ledger/ofx2ledger/ledger"
)

// Status is the code/severity/message triple servers attach to responses.
// Code 0 is success; Message stays nil when the aggregate omits it.
type Status struct {
	Code     int
	Severity string
	Message  *string
}

func defaultStatus() Status {
	return Status{Code: 0, Severity: "INFO"}
}

// Statement is the parse result for one OFX response file.
type Statement struct {
	Signon Status
	Status Status

	// Language defaults to ENG unless the sign-on response declares one.
	Language string
	Currency string

	BankID      string
	BranchID    string
	AccountID   string
	AccountType string

	DateStart time.Time
	DateEnd   time.Time

	LedgerBalance     *decimal.Decimal
	LedgerBalanceDate time.Time
	AvailBalance      *decimal.Decimal
	AvailBalanceDate  time.Time

	Category     AccountCategory
	Transactions []*importer.Transaction
	Securities   []*importer.Security
}

// IsInvestmentAccount reports whether the statement came from the
// investment message set. Banking and credit-card statements are treated
// identically by all downstream consumers.
func (s *Statement) IsInvestmentAccount() bool {
	return s.Category == CategoryInvestment
}

// ResolveAccount finds the ledger account the statement belongs to.
func (s *Statement) ResolveAccount(led ledger.Reader) (*ledger.Account, bool) {
	return led.AccountByNumber(s.AccountID)
}

// Parse consumes a complete statement file of either dialect and builds
// the statement model. It is a pure function: no state survives between
// calls.
func Parse(data []byte) (*Statement, error) {
	switch DetectFileType(data) {
	case TypeV1:
		text, err := decodeText(data, V1Encoding(data))
		if err != nil {
			return nil, err
		}
		return parseXML(NormalizeSGML(text))
	case TypeV2:
		return parseXML(string(data))
	}
	return nil, errors.New("ofx: unrecognized file, expected an OFXHEADER block or an XML declaration")
}

func parseXML(text string) (*Statement, error) {
	st := &Statement{
		Signon:   defaultStatus(),
		Status:   defaultStatus(),
		Language: "ENG",
	}

	p := &parser{d: xml.NewDecoder(strings.NewReader(text)), st: st}
	if err := p.readOfx(); err != nil {
		return nil, err
	}

	foldReinvestedDividends(st)
	return st, nil
}

type parser struct {
	d  *xml.Decoder
	st *Statement
}

func (p *parser) readOfx() error {
	sawRoot := false

	for {
		tok, err := p.d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrapf(err, "ofx: malformed document at offset %d", p.d.InputOffset())
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		name := start.Name.Local
		if name == tagOFX {
			sawRoot = true
			continue
		}

		if category, ok := categoryForMessageSet(name); ok {
			p.st.Category = category
			if err := p.parseStatement(name, category); err != nil {
				return err
			}
			continue
		}

		switch name {
		case tagSignonMsgSet:
			if err := p.parseSignon(name); err != nil {
				return err
			}
		case tagSecListMsgSet:
			if err := p.parseSecurityListSet(name); err != nil {
				return err
			}
		default:
			log.Printf("ofx: unknown message set %s", name)
			if err := p.skip(name); err != nil {
				return err
			}
		}
	}

	if !sawRoot {
		return errors.New("ofx: no OFX root aggregate")
	}
	return nil
}

// parseSignon handles SIGNONMSGSRSV1.
func (p *parser) parseSignon(outer string) error {
	return p.walk(outer, func(name string) error {
		switch name {
		case tagLanguage:
			text, err := p.text(name)
			if err != nil {
				return err
			}
			p.st.Language = text
		case tagStatus:
			return p.parseStatus(name, &p.st.Signon)
		}
		// FI, ORG, DTSERVER and friends are absorbed by the walk
		return nil
	})
}

// parseStatement handles one of the three statement message sets. Wrapper
// aggregates (the transaction response and statement response) carry no
// data of their own and are absorbed, matching the drop-through style of
// the aggregate hierarchy.
func (p *parser) parseStatement(outer string, category AccountCategory) error {
	set := aggregates[category]

	return p.walk(outer, func(name string) error {
		switch name {
		case tagStatus:
			return p.parseStatus(name, &p.st.Status)
		case tagCurDef:
			text, err := p.text(name)
			if err != nil {
				return err
			}
			p.st.Currency = text
		case set.AccountFrom:
			info, err := p.parseAccountInfo(name)
			if err != nil {
				return err
			}
			p.st.BankID = info.bankID
			p.st.BranchID = info.branchID
			p.st.AccountID = info.accountID
			p.st.AccountType = info.accountType
		case set.TransactionList:
			if category == CategoryInvestment {
				return p.parseInvestmentTransactionList(name)
			}
			return p.parseBankTransactionList(name)
		case tagLedgerBal:
			return p.parseBalance(name, &p.st.LedgerBalance, &p.st.LedgerBalanceDate)
		case tagAvailBal:
			return p.parseBalance(name, &p.st.AvailBalance, &p.st.AvailBalanceDate)
		case tagInvPosList, tagInvBal, tagInvOOList, tagInv401k, tagInv401kBal:
			// position and 401k detail is not imported
			return p.skip(name)
		}
		return nil
	})
}

func (p *parser) parseBankTransactionList(outer string) error {
	return p.walk(outer, func(name string) error {
		switch name {
		case tagDtStart:
			return p.date(name, &p.st.DateStart)
		case tagDtEnd:
			return p.date(name, &p.st.DateEnd)
		case tagStmtTrn:
			tran, err := p.parseBankTransaction(name)
			if err != nil {
				return err
			}
			p.st.Transactions = append(p.st.Transactions, tran)
		default:
			log.Printf("ofx: unknown %s element %s", outer, name)
			return p.skip(name)
		}
		return nil
	})
}

func (p *parser) parseInvestmentTransactionList(outer string) error {
	return p.walk(outer, func(name string) error {
		switch name {
		case tagDtStart:
			return p.date(name, &p.st.DateStart)
		case tagDtEnd:
			return p.date(name, &p.st.DateEnd)
		case tagBuyStock, tagBuyMF, tagBuyOther, tagSellStock, tagSellMF, tagSellOther, tagIncome, tagReinvest:
			tran, err := p.parseInvestmentTransaction(name)
			if err != nil {
				return err
			}
			p.st.Transactions = append(p.st.Transactions, tran)
		case tagInvBankTran:
			// cash movement inside an investment statement, carries no
			// investment fields
			tran, err := p.parseBankTransaction(name)
			if err != nil {
				return err
			}
			p.st.Transactions = append(p.st.Transactions, tran)
		default:
			// unrecognized subtype: keep the money visible as a generic
			// cash movement rather than dropping the line
			log.Printf("ofx: unknown investment transaction %s, importing as cash", name)
			tran, err := p.parseBankTransaction(name)
			if err != nil {
				return err
			}
			tran.TypeDescription = name
			p.st.Transactions = append(p.st.Transactions, tran)
		}
		return nil
	})
}

// parseBankTransaction handles a STMTTRN aggregate (or an INVBANKTRAN
// wrapper, whose inner STMTTRN is absorbed).
func (p *parser) parseBankTransaction(outer string) (*importer.Transaction, error) {
	tran := importer.NewTransaction()

	err := p.walk(outer, func(name string) error {
		switch name {
		case tagTrnType:
			return p.str(name, &tran.TypeDescription)
		case tagDtPosted:
			return p.date(name, &tran.DatePosted)
		case tagDtUser:
			var d time.Time
			if err := p.date(name, &d); err != nil {
				return err
			}
			if !d.IsZero() {
				tran.DateUser = &d
			}
		case tagTrnAmt:
			return p.amount(name, &tran.Amount)
		case tagFitID:
			text, err := p.text(name)
			if err != nil {
				return err
			}
			tran.FITID = &text
		case tagCheckNum:
			return p.str(name, &tran.CheckNumber)
		case tagName, tagPayee:
			text, err := p.text(name)
			if err != nil {
				return err
			}
			tran.Payee = collapseWhitespace(text)
		case tagMemo:
			text, err := p.text(name)
			if err != nil {
				return err
			}
			tran.Memo = collapseWhitespace(text)
		case tagSIC:
			return p.str(name, &tran.SIC)
		case tagRefNum:
			return p.str(name, &tran.RefNum)
		case tagPayeeID:
			return p.str(name, &tran.PayeeID)
		case tagCurrency, tagOrigCur:
			return p.parseCurrency(name, &tran.Currency)
		case tagSubAcctFund:
			return p.str(name, &tran.SubAccount)
		case tagBankAcctTo, tagCCAcctTo, tagInvAcctTo:
			info, err := p.parseAccountInfo(name)
			if err != nil {
				return err
			}
			tran.AccountTo = info.accountID
		case tagCategory: // nonstandard, seen from at least one large bank
			return p.skip(name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tran, nil
}

// parseInvestmentTransaction handles the four recognized investment
// aggregate shapes.
func (p *parser) parseInvestmentTransaction(outer string) (*importer.Transaction, error) {
	tran := importer.NewTransaction()
	tran.TypeDescription = outer

	switch outer {
	case tagBuyStock, tagBuyMF, tagBuyOther:
		tran.Kind = importer.KindBuy
	case tagSellStock, tagSellMF, tagSellOther:
		tran.Kind = importer.KindSell
	case tagIncome:
		tran.Kind = importer.KindDividend
	case tagReinvest:
		tran.Kind = importer.KindReinvest
	}

	err := p.walk(outer, func(name string) error {
		switch name {
		case tagDtSettle:
			return p.date(name, &tran.DatePosted)
		case tagDtTrade:
			var d time.Time
			if err := p.date(name, &d); err != nil {
				return err
			}
			if !d.IsZero() {
				tran.DateUser = &d
			}
		case tagTotal:
			return p.amount(name, &tran.Amount)
		case tagFitID:
			text, err := p.text(name)
			if err != nil {
				return err
			}
			tran.FITID = &text
		case tagUniqueID:
			return p.str(name, &tran.SecurityID)
		case tagUniqueIDType:
			return p.str(name, &tran.SecurityIDType)
		case tagUnits:
			return p.amount(name, &tran.Units)
		case tagUnitPrice:
			return p.amount(name, &tran.UnitPrice)
		case tagCommission:
			return p.amount(name, &tran.Commission)
		case tagFees:
			return p.amount(name, &tran.Fees)
		case tagIncomeType:
			return p.str(name, &tran.IncomeType)
		case tagSubAcctSec, tagSubAcctFrom, tagSubAcctTo, tagSubAcctFund:
			return p.str(name, &tran.SubAccount)
		case tagCheckNum:
			return p.str(name, &tran.CheckNumber)
		case tagName, tagPayee:
			text, err := p.text(name)
			if err != nil {
				return err
			}
			tran.Payee = collapseWhitespace(text)
		case tagMemo:
			text, err := p.text(name)
			if err != nil {
				return err
			}
			tran.Memo = collapseWhitespace(text)
		case tagTaxExempt:
			text, err := p.text(name)
			if err != nil {
				return err
			}
			tran.TaxExempt = strings.HasPrefix(text, "T")
		case tagOrigCur:
			return p.parseCurrency(name, &tran.Currency)
		case tagCurrency:
			return p.skip(name)
		}
		// INVTRAN, INVBUY, INVSELL, SECID, BUYTYPE and 401k detail are
		// absorbed by the walk
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tran, nil
}

type accountInfo struct {
	bankID      string
	branchID    string
	accountID   string
	accountType string
}

func (p *parser) parseAccountInfo(outer string) (accountInfo, error) {
	var info accountInfo

	err := p.walk(outer, func(name string) error {
		switch name {
		case tagBankID, tagBrokerID:
			return p.str(name, &info.bankID)
		case tagBranchID:
			return p.str(name, &info.branchID)
		case tagAcctID:
			return p.str(name, &info.accountID)
		case tagAcctType:
			return p.str(name, &info.accountType)
		default:
			log.Printf("ofx: unknown %s element %s", outer, name)
			return p.skip(name)
		}
	})
	return info, err
}

func (p *parser) parseSecurityListSet(outer string) error {
	return p.walk(outer, func(name string) error {
		if name == tagSecList {
			return p.parseSecurityList(name)
		}
		log.Printf("ofx: unknown %s element %s", outer, name)
		return p.skip(name)
	})
}

func (p *parser) parseSecurityList(outer string) error {
	return p.walk(outer, func(name string) error {
		if name == tagSecInfo {
			return p.parseSecurity(name)
		}
		// STOCKINFO, MFINFO, OPTINFO wrappers are absorbed
		return nil
	})
}

func (p *parser) parseSecurity(outer string) error {
	sec := &importer.Security{}

	err := p.walk(outer, func(name string) error {
		switch name {
		case tagUniqueID:
			return p.str(name, &sec.ID)
		case tagUniqueIDType:
			return p.str(name, &sec.IDType)
		case tagSecName:
			return p.str(name, &sec.Name)
		case tagTicker:
			return p.str(name, &sec.Ticker)
		case tagUnitPrice:
			return p.amount(name, &sec.UnitPrice)
		case tagDtAsOf:
			return p.date(name, &sec.AsOf)
		case tagCurSym:
			return p.str(name, &sec.Currency)
		}
		return nil
	})
	if err != nil {
		return err
	}

	p.st.Securities = append(p.st.Securities, sec)
	return nil
}

func (p *parser) parseStatus(outer string, status *Status) error {
	return p.walk(outer, func(name string) error {
		switch name {
		case tagCode:
			text, err := p.text(name)
			if err != nil {
				return err
			}
			code, err := strconv.Atoi(strings.TrimSpace(text))
			if err != nil {
				log.Printf("ofx: bad status code %q", text)
				return nil
			}
			status.Code = code
		case tagSeverity:
			return p.str(name, &status.Severity)
		case tagMessage:
			text, err := p.text(name)
			if err != nil {
				return err
			}
			status.Message = &text
		default:
			log.Printf("ofx: unknown STATUS element %s", name)
			return p.skip(name)
		}
		return nil
	})
}

func (p *parser) parseBalance(outer string, amount **decimal.Decimal, asOf *time.Time) error {
	return p.walk(outer, func(name string) error {
		switch name {
		case tagBalAmt:
			var d decimal.Decimal
			if err := p.amount(name, &d); err != nil {
				return err
			}
			*amount = &d
		case tagDtAsOf:
			return p.date(name, asOf)
		default:
			log.Printf("ofx: unknown %s element %s", outer, name)
			return p.skip(name)
		}
		return nil
	})
}

// parseCurrency accepts either a bare currency code or the CURRENCY
// aggregate carrying a CURSYM child.
func (p *parser) parseCurrency(outer string, out *string) error {
	var direct string

	err := p.walkText(outer, &direct, func(name string) error {
		if name == tagCurSym {
			return p.str(name, out)
		}
		return p.skip(name)
	})
	if err != nil {
		return err
	}

	if *out == "" {
		*out = strings.TrimSpace(direct)
	}
	return nil
}

// walk iterates the children of the aggregate named outer, invoking fn for
// every start element. Elements fn does not consume are absorbed: their
// own children are delivered to fn, matching the drop-through parsing
// style of the hierarchy.
func (p *parser) walk(outer string, fn func(name string) error) error {
	var discard string
	return p.walkText(outer, &discard, fn)
}

func (p *parser) walkText(outer string, text *string, fn func(name string) error) error {
	for {
		tok, err := p.d.Token()
		if err != nil {
			return errors.Wrapf(err, "ofx: malformed %s aggregate at offset %d", outer, p.d.InputOffset())
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if err := fn(t.Name.Local); err != nil {
				return err
			}
		case xml.CharData:
			*text += string(t)
		case xml.EndElement:
			if t.Name.Local == outer {
				return nil
			}
		}
	}
}

// skip consumes the element and everything below it.
func (p *parser) skip(outer string) error {
	depth := 1
	for depth > 0 {
		tok, err := p.d.Token()
		if err != nil {
			return errors.Wrapf(err, "ofx: malformed %s aggregate at offset %d", outer, p.d.InputOffset())
		}
		switch tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		}
	}
	return nil
}

// text reads the element's character data up to its end tag.
func (p *parser) text(name string) (string, error) {
	var out string
	err := p.walkText(name, &out, func(child string) error {
		return p.skip(child)
	})
	return strings.TrimSpace(out), err
}

func (p *parser) str(name string, out *string) error {
	text, err := p.text(name)
	if err != nil {
		return err
	}
	*out = text
	return nil
}

func (p *parser) date(name string, out *time.Time) error {
	text, err := p.text(name)
	if err != nil {
		return err
	}
	*out = parseDate(text)
	return nil
}

func (p *parser) amount(name string, out *decimal.Decimal) error {
	text, err := p.text(name)
	if err != nil {
		return err
	}
	*out = parseAmount(text)
	return nil
}

// parseDate reads the YYYYMMDDHHMMSS.XXX [gmt offset:tz name] form. Time
// of day and zone are ignored.
func parseDate(text string) time.Time {
	text = strings.TrimSpace(text)
	if len(text) < 8 {
		return time.Time{}
	}

	year, err1 := strconv.Atoi(text[0:4])
	month, err2 := strconv.Atoi(text[4:6])
	day, err3 := strconv.Atoi(text[6:8])
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}
	}

	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

// parseAmount reads a decimal value. Some banks pad with spaces and some
// nonconforming files use a comma as the fractional separator; both are
// accepted. An unparseable amount becomes zero rather than failing the
// whole import.
func parseAmount(text string) decimal.Decimal {
	text = strings.TrimSpace(text)
	if text == "" {
		return decimal.Zero
	}

	if d, err := decimal.NewFromString(text); err == nil {
		return d
	}

	if strings.Contains(text, ",") {
		// treat the comma as the decimal separator, periods as grouping
		fixed := strings.ReplaceAll(text, ".", "")
		fixed = strings.Replace(fixed, ",", ".", 1)
		if d, err := decimal.NewFromString(fixed); err == nil {
			return d
		}
	}

	log.Printf("ofx: cannot parse amount %q", text)
	return decimal.Zero
}

var whitespaceCollapser = strings.NewReplacer("\t", " ", "\r", " ", "\n", " ")

// collapseWhitespace trims payee and memo text and squeezes interior runs
// of whitespace to single spaces.
func collapseWhitespace(s string) string {
	s = whitespaceCollapser.Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// foldReinvestedDividends strips income transactions that merely mirror a
// reinvestment in the same statement: a reinvested dividend is modeled as
// one imported event carrying both the income and the purchase effect, so
// the separate INCOME aggregate some servers emit would double count.
func foldReinvestedDividends(st *Statement) {
	var reinvestments []*importer.Transaction
	for _, t := range st.Transactions {
		if t.Kind == importer.KindReinvest {
			reinvestments = append(reinvestments, t)
		}
	}

	for _, reinvest := range reinvestments {
		for i, other := range st.Transactions {
			if other == reinvest || other.Kind != importer.KindDividend {
				continue
			}
			if other.SecurityID == reinvest.SecurityID && other.Amount.Equal(reinvest.Amount.Abs()) {
				st.Transactions = append(st.Transactions[:i], st.Transactions[i+1:]...)
				reinvest.Amount = reinvest.Amount.Abs()
				break
			}
		}
	}
}
