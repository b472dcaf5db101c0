package integration

import (
	"time"

	"github.com/shopspring/decimal"
)

// SalesLine carries the cost side of an invoiced item.
type SalesLine struct {
	Qty       decimal.Decimal `json:"qty"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	StockType string          `json:"stock_type,omitempty"`
}

// SalesInvoicePostedEvent is raised when a customer invoice is finalised.
type SalesInvoicePostedEvent struct {
	ID         int64           `json:"id"`
	Number     string          `json:"number"`
	CustomerID int64           `json:"customer_id"`
	PostedAt   time.Time       `json:"posted_at"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	Tax        decimal.Decimal `json:"tax"`
	Lines      []SalesLine     `json:"lines,omitempty"`
	PostedBy   int64           `json:"posted_by"`
}

// PurchaseBillPostedEvent is raised when a supplier bill is approved.
type PurchaseBillPostedEvent struct {
	ID         int64           `json:"id"`
	Number     string          `json:"number"`
	SupplierID int64           `json:"supplier_id"`
	PostedAt   time.Time       `json:"posted_at"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	Tax        decimal.Decimal `json:"tax"`
	// Stocked bills debit inventory instead of expense.
	Stocked   bool   `json:"stocked"`
	StockType string `json:"stock_type,omitempty"`
	PostedBy  int64  `json:"posted_by"`
}

// PaymentReceivedEvent is raised when a customer pays.
type PaymentReceivedEvent struct {
	ID         int64           `json:"id"`
	Number     string          `json:"number"`
	CustomerID int64           `json:"customer_id"`
	ReceivedAt time.Time       `json:"received_at"`
	Amount     decimal.Decimal `json:"amount"`
	PostedBy   int64           `json:"posted_by"`
}

// PaymentMadeEvent is raised when a supplier is paid.
type PaymentMadeEvent struct {
	ID         int64           `json:"id"`
	Number     string          `json:"number"`
	SupplierID int64           `json:"supplier_id"`
	PaidAt     time.Time       `json:"paid_at"`
	Amount     decimal.Decimal `json:"amount"`
	PostedBy   int64           `json:"posted_by"`
}

// PayrollPostedEvent is raised when a payroll run is approved.
type PayrollPostedEvent struct {
	ID          int64           `json:"id"`
	Period      string          `json:"period"`
	PostedAt    time.Time       `json:"posted_at"`
	Gross       decimal.Decimal `json:"gross"`
	Withholding decimal.Decimal `json:"withholding"`
	PostedBy    int64           `json:"posted_by"`
}
