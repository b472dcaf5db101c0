package integration

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

func monetary(qty, unitCost decimal.Decimal) decimal.Decimal {
	return shared.Round2(qty.Mul(unitCost))
}

// sourceID derives a stable reference id so redelivered events collide.
func sourceID(kind string, id int64) uuid.UUID {
	return uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("%s:%d", kind, id)))
}

func partyRef(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}
