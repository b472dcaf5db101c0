package mappings

import "time"

// Modules that post through integration hooks.
const (
	ModuleSales    = "SALES"
	ModulePurchase = "PURCHASE"
	ModuleCash     = "CASH"
	ModulePayroll  = "PAYROLL"
)

// AccountMapping links integration keys to ledger accounts.
type AccountMapping struct {
	Module    string    `json:"module"`
	Key       string    `json:"key"`
	AccountID int64     `json:"account_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
