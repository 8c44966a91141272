// Package ofx reads and writes Open Financial Exchange statement files.
// Version 1 (SGML) input is normalized to well-formed XML before parsing;
// output is always written as version 1 SGML for importer compatibility.
package ofx

import "github.com/ofx2ledger/ofx2ledger/ledger"

// OFX aggregate and element names.
const (
	tagOFX = "OFX"

	// sign-on
	tagSignonMsgSet = "SIGNONMSGSRSV1"
	tagSonrs        = "SONRS"
	tagStatus       = "STATUS"
	tagCode         = "CODE"
	tagSeverity     = "SEVERITY"
	tagMessage      = "MESSAGE"
	tagDtServer     = "DTSERVER"
	tagLanguage     = "LANGUAGE"
	tagFI           = "FI"
	tagFID          = "FID"
	tagOrg          = "ORG"

	// message sets and statement responses
	tagBankMsgSet       = "BANKMSGSRSV1"
	tagCreditCardMsgSet = "CREDITCARDMSGSRSV1"
	tagInvstMsgSet      = "INVSTMTMSGSRSV1"
	tagSecListMsgSet    = "SECLISTMSGSRSV1"
	tagStmtTrnRs        = "STMTTRNRS"
	tagCCStmtTrnRs      = "CCSTMTTRNRS"
	tagInvStmtTrnRs     = "INVSTMTTRNRS"
	tagStmtRs           = "STMTRS"
	tagCCStmtRs         = "CCSTMTRS"
	tagInvStmtRs        = "INVSTMTRS"
	tagTrnUID           = "TRNUID"
	tagCurDef           = "CURDEF"
	tagDtAsOf           = "DTASOF"

	// account identification
	tagBankAcctFrom = "BANKACCTFROM"
	tagCCAcctFrom   = "CCACCTFROM"
	tagInvAcctFrom  = "INVACCTFROM"
	tagBankAcctTo   = "BANKACCTTO"
	tagCCAcctTo     = "CCACCTTO"
	tagInvAcctTo    = "INVACCTTO"
	tagBankID       = "BANKID"
	tagBrokerID     = "BROKERID"
	tagBranchID     = "BRANCHID"
	tagAcctID       = "ACCTID"
	tagAcctType     = "ACCTTYPE"

	// transaction lists
	tagBankTranList = "BANKTRANLIST"
	tagInvTranList  = "INVTRANLIST"
	tagDtStart      = "DTSTART"
	tagDtEnd        = "DTEND"

	// bank transactions
	tagStmtTrn     = "STMTTRN"
	tagTrnType     = "TRNTYPE"
	tagDtPosted    = "DTPOSTED"
	tagDtUser      = "DTUSER"
	tagTrnAmt      = "TRNAMT"
	tagFitID       = "FITID"
	tagCheckNum    = "CHECKNUM"
	tagName        = "NAME"
	tagPayee       = "PAYEE"
	tagPayeeID     = "PAYEEID"
	tagMemo        = "MEMO"
	tagSIC         = "SIC"
	tagRefNum      = "REFNUM"
	tagCategory    = "CATEGORY"
	tagCurrency    = "CURRENCY"
	tagOrigCur     = "ORIGCURRENCY"
	tagInvBankTran = "INVBANKTRAN"

	// balances
	tagLedgerBal = "LEDGERBAL"
	tagAvailBal  = "AVAILBAL"
	tagBalAmt    = "BALAMT"

	// investment statement aggregates consumed without mapping
	tagInvPosList = "INVPOSLIST"
	tagInvBal     = "INVBAL"
	tagInvOOList  = "INVOOLIST"
	tagInv401k    = "INV401K"
	tagInv401kBal = "INV401KBAL"

	// investment transactions
	tagBuyStock    = "BUYSTOCK"
	tagBuyMF       = "BUYMF"
	tagBuyOther    = "BUYOTHER"
	tagSellStock   = "SELLSTOCK"
	tagSellMF      = "SELLMF"
	tagSellOther   = "SELLOTHER"
	tagIncome      = "INCOME"
	tagReinvest    = "REINVEST"
	tagInvBuy      = "INVBUY"
	tagInvSell     = "INVSELL"
	tagInvTran     = "INVTRAN"
	tagBuyType     = "BUYTYPE"
	tagSellType    = "SELLTYPE"
	tagDtTrade     = "DTTRADE"
	tagDtSettle    = "DTSETTLE"
	tagUnits       = "UNITS"
	tagUnitPrice   = "UNITPRICE"
	tagCommission  = "COMMISSION"
	tagFees        = "FEES"
	tagTotal       = "TOTAL"
	tagIncomeType  = "INCOMETYPE"
	tagTaxExempt   = "TAXEXEMPT"
	tagSubAcctSec  = "SUBACCTSEC"
	tagSubAcctFrom = "SUBACCTFROM"
	tagSubAcctTo   = "SUBACCTTO"
	tagSubAcctFund = "SUBACCTFUND"
	tagSecID       = "SECID"

	// security list
	tagSecList      = "SECLIST"
	tagSecInfo      = "SECINFO"
	tagStockInfo    = "STOCKINFO"
	tagMFInfo       = "MFINFO"
	tagOptInfo      = "OPTINFO"
	tagUniqueID     = "UNIQUEID"
	tagUniqueIDType = "UNIQUEIDTYPE"
	tagSecName      = "SECNAME"
	tagTicker       = "TICKER"
	tagCurSym       = "CURSYM"
	tagCurRate      = "CURRATE"

	// account type values
	typeChecking   = "CHECKING"
	typeSavings    = "SAVINGS"
	typeMoneyMrkt  = "MONEYMRKT"
	typeCreditLine = "CREDITLINE"
	valueCredit    = "CREDIT"
	valueDebit     = "DEBIT"
	valueCash      = "CASH"
)

// AccountCategory discriminates the three statement shapes OFX defines.
// Banking and credit-card statements are treated identically downstream;
// the category matters only for aggregate selection.
type AccountCategory int

const (
	CategoryBank AccountCategory = iota
	CategoryCreditCard
	CategoryInvestment
)

func (c AccountCategory) String() string {
	switch c {
	case CategoryCreditCard:
		return "creditcard"
	case CategoryInvestment:
		return "investment"
	}
	return "bank"
}

// aggregateSet names every aggregate that varies with the account category.
// The parser and the exporter consult the same table so the two stay
// symmetric.
type aggregateSet struct {
	MessageSet      string
	Response        string
	Statement       string
	AccountFrom     string
	AccountTo       string
	TransactionList string
}

var aggregates = map[AccountCategory]aggregateSet{
	CategoryBank: {
		MessageSet:      tagBankMsgSet,
		Response:        tagStmtTrnRs,
		Statement:       tagStmtRs,
		AccountFrom:     tagBankAcctFrom,
		AccountTo:       tagBankAcctTo,
		TransactionList: tagBankTranList,
	},
	CategoryCreditCard: {
		MessageSet:      tagCreditCardMsgSet,
		Response:        tagCCStmtTrnRs,
		Statement:       tagCCStmtRs,
		AccountFrom:     tagCCAcctFrom,
		AccountTo:       tagCCAcctTo,
		TransactionList: tagBankTranList,
	},
	CategoryInvestment: {
		MessageSet:      tagInvstMsgSet,
		Response:        tagInvStmtTrnRs,
		Statement:       tagInvStmtRs,
		AccountFrom:     tagInvAcctFrom,
		AccountTo:       tagInvAcctTo,
		TransactionList: tagInvTranList,
	},
}

// categoryForMessageSet is the reverse direction of the aggregates table.
func categoryForMessageSet(tag string) (AccountCategory, bool) {
	for category, set := range aggregates {
		if set.MessageSet == tag {
			return category, true
		}
	}
	return 0, false
}

// CategoryOf maps a ledger account type onto the statement shape used when
// exporting it.
func CategoryOf(t ledger.AccountType) AccountCategory {
	switch t {
	case ledger.Credit, ledger.Liability:
		return CategoryCreditCard
	case ledger.Investment, ledger.Mutual:
		return CategoryInvestment
	default:
		return CategoryBank
	}
}

// acctTypeValue is the ACCTTYPE element emitted for deposit accounts.
func acctTypeValue(t ledger.AccountType) string {
	switch t {
	case ledger.Checking:
		return typeChecking
	case ledger.Credit, ledger.Liability:
		return typeCreditLine
	case ledger.Investment, ledger.Mutual:
		return typeMoneyMrkt
	default:
		return typeSavings
	}
}
