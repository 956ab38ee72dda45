package api

import (
	"bytes"
	"encoding/json"

	"github.com/mmdatafocus/ledger_backend/utils"
	"github.com/shopspring/decimal"
)

// typedAmount accepts a JSON number or a user-typed string such as
// "USD 1,234.50" for fields a person enters by hand.
type typedAmount struct {
	decimal.Decimal
}

func (a *typedAmount) UnmarshalJSON(raw []byte) error {
	if bytes.Equal(raw, []byte("null")) {
		a.Decimal = decimal.Zero
		return nil
	}
	s := string(raw)
	if len(raw) > 0 && raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
	}
	d, err := utils.ParseAmount(s)
	if err != nil {
		return err
	}
	a.Decimal = d
	return nil
}
