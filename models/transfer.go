package models

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type TransactionRef struct {
	Id            string          `json:"id"`
	TransactionId string          `json:"transaction_id"`
	AccountId     string          `json:"account_id"`
	Type          TransactionType `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
}

func refOf(t *Transaction) TransactionRef {
	return TransactionRef{
		Id:            t.ID,
		TransactionId: t.TransactionId,
		AccountId:     t.AccountId,
		Type:          t.Type,
		Amount:        t.Amount,
	}
}

// Transfer is the logical view of two tagged legs. Legs[0] is the expense on
// the source account and Legs[1] the income on the destination.
type Transfer struct {
	Kind         TransferKind      `json:"kind"`
	TransferId   string            `json:"transfer_id"`
	Legs         [2]TransactionRef `json:"legs"`
	FromAmount   decimal.Decimal   `json:"from_amount"`
	ToAmount     decimal.Decimal   `json:"to_amount"`
	ExchangeRate decimal.Decimal   `json:"exchange_rate"`
	FromCurrency string            `json:"from_currency"`
	ToCurrency   string            `json:"to_currency"`
	Date         time.Time         `json:"date"`
	Note         string            `json:"note"`
}

func (t Transfer) FromAccountId() string { return t.Legs[0].AccountId }
func (t Transfer) ToAccountId() string   { return t.Legs[1].AccountId }

// NewTransfer builds the view from an expense and an income leg. The kind is
// derived from the currencies of the two accounts.
func NewTransfer(transferId string, expense, income *Transaction, from, to *Account) Transfer {
	kind := TransferKindInBetween
	if from.Currency != to.Currency {
		kind = TransferKindCurrency
	}
	rate := decimal.Zero
	if expense.Amount.IsPositive() {
		rate = income.Amount.Div(expense.Amount)
	}
	return Transfer{
		Kind:         kind,
		TransferId:   transferId,
		Legs:         [2]TransactionRef{refOf(expense), refOf(income)},
		FromAmount:   expense.Amount,
		ToAmount:     income.Amount,
		ExchangeRate: rate,
		FromCurrency: from.Currency,
		ToCurrency:   to.Currency,
		Date:         expense.Date,
		Note:         expense.Description,
	}
}

// GroupTransfers regroups the transactions tagged [marker, groupId] into
// logical transfers. A group is well formed only with exactly one expense and
// one income leg on known accounts; every other group is returned as a
// violation and left out of the result.
func GroupTransfers(marker string, transactions []*Transaction, accounts map[string]*Account) ([]Transfer, []*InvariantViolation) {
	groups := make(map[string][]*Transaction)
	var order []string
	for _, t := range SortTransactions(transactions) {
		m, id, ok := t.GroupKey()
		if !ok || m != marker {
			continue
		}
		if _, seen := groups[id]; !seen {
			order = append(order, id)
		}
		groups[id] = append(groups[id], t)
	}

	transfers := make([]Transfer, 0, len(order))
	var violations []*InvariantViolation
	for _, id := range order {
		legs := groups[id]
		if len(legs) != 2 {
			violations = append(violations, &InvariantViolation{
				Check:    CheckTransferGroup,
				EntityId: id,
				Details:  fmt.Sprintf("expected 2 legs, found %d", len(legs)),
			})
			continue
		}
		var expense, income *Transaction
		for _, leg := range legs {
			switch leg.Type {
			case TransactionTypeExpense:
				expense = leg
			case TransactionTypeIncome:
				income = leg
			}
		}
		if expense == nil || income == nil {
			violations = append(violations, &InvariantViolation{
				Check:    CheckTransferGroup,
				EntityId: id,
				Details:  fmt.Sprintf("legs must be one expense and one income, found %s and %s", legs[0].Type, legs[1].Type),
			})
			continue
		}
		from, to := accounts[expense.AccountId], accounts[income.AccountId]
		if from == nil || to == nil {
			violations = append(violations, &InvariantViolation{
				Check:    CheckTransferGroup,
				EntityId: id,
				Details:  "leg references an unknown account",
			})
			continue
		}
		if !expense.Date.Equal(income.Date) {
			violations = append(violations, &InvariantViolation{
				Check:    CheckTransferGroup,
				EntityId: id,
				Details:  "legs carry different dates",
			})
			continue
		}
		transfers = append(transfers, NewTransfer(id, expense, income, from, to))
	}

	// newest first, the way a transfer history is displayed
	sort.SliceStable(transfers, func(i, j int) bool {
		return transfers[i].Date.After(transfers[j].Date)
	})
	return transfers, violations
}

// AccountIndex maps accounts by id.
func AccountIndex(accounts []*Account) map[string]*Account {
	index := make(map[string]*Account, len(accounts))
	for _, a := range accounts {
		index[a.ID] = a
	}
	return index
}
