package enums

// LedgerEntryType distinguishes the two sides of a double-entry pair.
type LedgerEntryType string

const (
	LedgerEntryTypeDebit  LedgerEntryType = "Debit"
	LedgerEntryTypeCredit LedgerEntryType = "Credit"
)

func (t LedgerEntryType) IsValid() bool {
	return t == LedgerEntryTypeDebit || t == LedgerEntryTypeCredit
}

// LedgerOperation names the posting that produced a pair of entries.
type LedgerOperation string

const (
	LedgerOperationPost     LedgerOperation = "Post"
	LedgerOperationReversal LedgerOperation = "Reversal"
)

func (o LedgerOperation) IsValid() bool {
	return o == LedgerOperationPost || o == LedgerOperationReversal
}

// Ledger account names used by payment postings.
const (
	AccountCustomerCash       = "CustomerCashAccount"
	AccountMerchantSettlement = "MerchantSettlementAccount"
)
