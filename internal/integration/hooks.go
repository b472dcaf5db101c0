package integration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Ledger exposes journal operations required by integrations.
type Ledger interface {
	CreateEntry(ctx context.Context, in journals.CreateEntryInput) (journals.JournalEntry, error)
	PostEntry(ctx context.Context, id, postedBy int64) (journals.JournalEntry, error)
	ListEntries(ctx context.Context, filter journals.ListFilter) ([]journals.JournalEntry, error)
}

// AccountMappingRepository provides mapping lookups.
type AccountMappingRepository interface {
	Get(ctx context.Context, module, key string) (mappings.AccountMapping, error)
}

// Hooks wires domain events from operational modules into the general ledger.
type Hooks struct {
	ledger      Ledger
	mappingRepo AccountMappingRepository
	logger      *slog.Logger
}

// NewHooks constructs integration hooks.
func NewHooks(ledger Ledger, mappingRepo AccountMappingRepository, logger *slog.Logger) *Hooks {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hooks{ledger: ledger, mappingRepo: mappingRepo, logger: logger}
}

func (h *Hooks) resolveAccount(ctx context.Context, module, key string) (int64, error) {
	mapping, err := h.mappingRepo.Get(ctx, module, key)
	if err != nil {
		return 0, err
	}
	return mapping.AccountID, nil
}

// post creates and posts the entry. A redelivered event finds the entry it
// created before; a draft left behind by an interrupted run is posted.
func (h *Hooks) post(ctx context.Context, in journals.CreateEntryInput) error {
	if in.ReferenceID == nil || *in.ReferenceID == uuid.Nil {
		return fmt.Errorf("%w: integration source id required", shared.ErrValidation)
	}
	entry, err := h.ledger.CreateEntry(ctx, in)
	if err != nil {
		if !errors.Is(err, shared.ErrSourceAlreadyLinked) {
			return err
		}
		existing, lerr := h.ledger.ListEntries(ctx, journals.ListFilter{
			ReferenceType: in.ReferenceType,
			ReferenceID:   in.ReferenceID,
			Limit:         10,
		})
		if lerr != nil {
			return lerr
		}
		for _, e := range existing {
			if e.IsReversal {
				continue
			}
			if e.Posted {
				h.logger.Info("integration event already posted",
					slog.String("reference_type", in.ReferenceType),
					slog.String("number", e.Number))
				return nil
			}
			entry = e
			break
		}
		if entry.ID == 0 {
			return err
		}
	}
	_, err = h.ledger.PostEntry(ctx, entry.ID, in.CreatedBy)
	if errors.Is(err, shared.ErrAlreadyPosted) {
		return nil
	}
	return err
}

// HandleSalesInvoicePosted books receivable, revenue and tax, plus cost of
// goods sold for stocked lines.
func (h *Hooks) HandleSalesInvoicePosted(ctx context.Context, evt SalesInvoicePostedEvent) error {
	if h == nil || h.ledger == nil || h.mappingRepo == nil {
		return nil
	}
	if evt.PostedAt.IsZero() {
		return fmt.Errorf("%w: invoice post date required", shared.ErrValidation)
	}
	subtotal := shared.Round2(evt.Subtotal)
	tax := shared.Round2(evt.Tax)
	total := subtotal.Add(tax)
	if !total.IsPositive() {
		return nil
	}
	arAccount, err := h.resolveAccount(ctx, mappings.ModuleSales, "sales.ar")
	if err != nil {
		return err
	}
	revenueAccount, err := h.resolveAccount(ctx, mappings.ModuleSales, "sales.revenue")
	if err != nil {
		return err
	}
	lines := []journals.LineInput{
		{AccountID: arAccount, Debit: total, PartyID: partyRef(evt.CustomerID)},
		{AccountID: revenueAccount, Credit: subtotal},
	}
	if tax.IsPositive() {
		taxAccount, err := h.resolveAccount(ctx, mappings.ModuleSales, "sales.tax_payable")
		if err != nil {
			return err
		}
		lines = append(lines, journals.LineInput{AccountID: taxAccount, Credit: tax})
	}
	costs := map[string]decimal.Decimal{}
	var stockTypes []string
	for _, line := range evt.Lines {
		cost := monetary(line.Qty, line.UnitCost)
		if !cost.IsPositive() {
			continue
		}
		if _, ok := costs[line.StockType]; !ok {
			stockTypes = append(stockTypes, line.StockType)
		}
		costs[line.StockType] = costs[line.StockType].Add(cost)
	}
	if len(stockTypes) > 0 {
		cogsAccount, err := h.resolveAccount(ctx, mappings.ModuleSales, "sales.cogs")
		if err != nil {
			return err
		}
		inventoryAccount, err := h.resolveAccount(ctx, mappings.ModuleSales, "sales.inventory")
		if err != nil {
			return err
		}
		for _, stockType := range stockTypes {
			cost := costs[stockType]
			lines = append(lines,
				journals.LineInput{AccountID: cogsAccount, Debit: cost, StockType: stockType},
				journals.LineInput{AccountID: inventoryAccount, Credit: cost, StockType: stockType},
			)
		}
	}
	ref := sourceID("SALES_INVOICE", evt.ID)
	return h.post(ctx, journals.CreateEntryInput{
		Date:          evt.PostedAt,
		Type:          journals.EntryTypeSales,
		ReferenceType: "SALES_INVOICE",
		ReferenceID:   &ref,
		ReferenceNo:   evt.Number,
		Description:   fmt.Sprintf("Sales Invoice %s", evt.Number),
		CreatedBy:     evt.PostedBy,
		Lines:         lines,
	})
}

// HandlePurchaseBillPosted books inventory or expense, input tax and payable.
func (h *Hooks) HandlePurchaseBillPosted(ctx context.Context, evt PurchaseBillPostedEvent) error {
	if h == nil || h.ledger == nil || h.mappingRepo == nil {
		return nil
	}
	if evt.PostedAt.IsZero() {
		return fmt.Errorf("%w: bill post date required", shared.ErrValidation)
	}
	subtotal := shared.Round2(evt.Subtotal)
	tax := shared.Round2(evt.Tax)
	total := subtotal.Add(tax)
	if !total.IsPositive() {
		return nil
	}
	debitKey := "purchase.expense"
	stockType := ""
	if evt.Stocked {
		debitKey = "purchase.inventory"
		stockType = evt.StockType
	}
	debitAccount, err := h.resolveAccount(ctx, mappings.ModulePurchase, debitKey)
	if err != nil {
		return err
	}
	apAccount, err := h.resolveAccount(ctx, mappings.ModulePurchase, "purchase.ap")
	if err != nil {
		return err
	}
	lines := []journals.LineInput{
		{AccountID: debitAccount, Debit: subtotal, StockType: stockType},
	}
	if tax.IsPositive() {
		taxAccount, err := h.resolveAccount(ctx, mappings.ModulePurchase, "purchase.tax_input")
		if err != nil {
			return err
		}
		lines = append(lines, journals.LineInput{AccountID: taxAccount, Debit: tax})
	}
	lines = append(lines, journals.LineInput{AccountID: apAccount, Credit: total, PartyID: partyRef(evt.SupplierID)})
	ref := sourceID("PURCHASE_BILL", evt.ID)
	return h.post(ctx, journals.CreateEntryInput{
		Date:          evt.PostedAt,
		Type:          journals.EntryTypePurchase,
		ReferenceType: "PURCHASE_BILL",
		ReferenceID:   &ref,
		ReferenceNo:   evt.Number,
		Description:   fmt.Sprintf("Purchase Bill %s", evt.Number),
		CreatedBy:     evt.PostedBy,
		Lines:         lines,
	})
}

// HandlePaymentReceived books cash against the customer receivable.
func (h *Hooks) HandlePaymentReceived(ctx context.Context, evt PaymentReceivedEvent) error {
	if h == nil || h.ledger == nil || h.mappingRepo == nil {
		return nil
	}
	if evt.ReceivedAt.IsZero() {
		return fmt.Errorf("%w: receipt date required", shared.ErrValidation)
	}
	amount := shared.Round2(evt.Amount)
	if !amount.IsPositive() {
		return nil
	}
	cashAccount, err := h.resolveAccount(ctx, mappings.ModuleCash, "cash.bank")
	if err != nil {
		return err
	}
	arAccount, err := h.resolveAccount(ctx, mappings.ModuleCash, "cash.ar")
	if err != nil {
		return err
	}
	ref := sourceID("PAYMENT_RECEIVED", evt.ID)
	return h.post(ctx, journals.CreateEntryInput{
		Date:          evt.ReceivedAt,
		Type:          journals.EntryTypeReceipt,
		ReferenceType: "PAYMENT_RECEIVED",
		ReferenceID:   &ref,
		ReferenceNo:   evt.Number,
		Description:   fmt.Sprintf("Customer Receipt %s", evt.Number),
		CreatedBy:     evt.PostedBy,
		Lines: []journals.LineInput{
			{AccountID: cashAccount, Debit: amount},
			{AccountID: arAccount, Credit: amount, PartyID: partyRef(evt.CustomerID)},
		},
	})
}

// HandlePaymentMade books the supplier payable against cash.
func (h *Hooks) HandlePaymentMade(ctx context.Context, evt PaymentMadeEvent) error {
	if h == nil || h.ledger == nil || h.mappingRepo == nil {
		return nil
	}
	if evt.PaidAt.IsZero() {
		return fmt.Errorf("%w: payment date required", shared.ErrValidation)
	}
	amount := shared.Round2(evt.Amount)
	if !amount.IsPositive() {
		return nil
	}
	apAccount, err := h.resolveAccount(ctx, mappings.ModuleCash, "cash.ap")
	if err != nil {
		return err
	}
	cashAccount, err := h.resolveAccount(ctx, mappings.ModuleCash, "cash.bank")
	if err != nil {
		return err
	}
	ref := sourceID("PAYMENT_MADE", evt.ID)
	return h.post(ctx, journals.CreateEntryInput{
		Date:          evt.PaidAt,
		Type:          journals.EntryTypePayment,
		ReferenceType: "PAYMENT_MADE",
		ReferenceID:   &ref,
		ReferenceNo:   evt.Number,
		Description:   fmt.Sprintf("Supplier Payment %s", evt.Number),
		CreatedBy:     evt.PostedBy,
		Lines: []journals.LineInput{
			{AccountID: apAccount, Debit: amount, PartyID: partyRef(evt.SupplierID)},
			{AccountID: cashAccount, Credit: amount},
		},
	})
}

// HandlePayrollPosted books gross salary expense against net pay and
// withheld tax.
func (h *Hooks) HandlePayrollPosted(ctx context.Context, evt PayrollPostedEvent) error {
	if h == nil || h.ledger == nil || h.mappingRepo == nil {
		return nil
	}
	if evt.PostedAt.IsZero() {
		return fmt.Errorf("%w: payroll post date required", shared.ErrValidation)
	}
	gross := shared.Round2(evt.Gross)
	withholding := shared.Round2(evt.Withholding)
	if !gross.IsPositive() {
		return nil
	}
	if withholding.IsNegative() || withholding.GreaterThan(gross) {
		return fmt.Errorf("%w: withholding %s outside gross %s", shared.ErrValidation, withholding.StringFixed(2), gross.StringFixed(2))
	}
	expenseAccount, err := h.resolveAccount(ctx, mappings.ModulePayroll, "payroll.expense")
	if err != nil {
		return err
	}
	payableAccount, err := h.resolveAccount(ctx, mappings.ModulePayroll, "payroll.payable")
	if err != nil {
		return err
	}
	lines := []journals.LineInput{{AccountID: expenseAccount, Debit: gross}}
	if net := gross.Sub(withholding); net.IsPositive() {
		lines = append(lines, journals.LineInput{AccountID: payableAccount, Credit: net})
	}
	if withholding.IsPositive() {
		taxAccount, err := h.resolveAccount(ctx, mappings.ModulePayroll, "payroll.tax_withheld")
		if err != nil {
			return err
		}
		lines = append(lines, journals.LineInput{AccountID: taxAccount, Credit: withholding})
	}
	ref := sourceID("PAYROLL_RUN", evt.ID)
	return h.post(ctx, journals.CreateEntryInput{
		Date:          evt.PostedAt,
		Type:          journals.EntryTypePayroll,
		ReferenceType: "PAYROLL_RUN",
		ReferenceID:   &ref,
		ReferenceNo:   evt.Period,
		Description:   fmt.Sprintf("Payroll %s", evt.Period),
		CreatedBy:     evt.PostedBy,
		Lines:         lines,
	})
}
