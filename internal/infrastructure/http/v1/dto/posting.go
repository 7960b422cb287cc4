package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"costledger/internal/core/apperror"
	"costledger/internal/core/id"
	"costledger/internal/core/types"
	"costledger/internal/domain/posting"
	"costledger/internal/domain/registers/costlayer"
)

// SalePostingRequest posts revenue and FIFO cost of an invoice.
type SalePostingRequest struct {
	AccountOverrides AccountOverrides `json:"accountOverrides"`
}

// BillPostingRequest posts a supplier bill and receives its stock lines.
type BillPostingRequest struct {
	AccountOverrides AccountOverrides `json:"accountOverrides"`
}

// WriteOffPostingRequest posts a write-off. Empty account ids are resolved
// from the chart of accounts.
type WriteOffPostingRequest struct {
	ExpenseAccountID   string `json:"expenseAccountId"`
	InventoryAccountID string `json:"inventoryAccountId"`
}

// PartnerTransferRequest moves an invoice's goods into partner custody.
type PartnerTransferRequest struct {
	PartnerID string `json:"partnerId" binding:"required"`
}

// PartnerClearingRequest confirms payment for goods held by a partner.
// Either PaidRatio or Quantities is given.
type PartnerClearingRequest struct {
	PaidRatio        string            `json:"paidRatio"`
	Quantities       map[string]string `json:"quantities"`
	PaymentID        string            `json:"paymentId"`
	Date             *time.Time        `json:"date"`
	AccountOverrides AccountOverrides  `json:"accountOverrides"`
}

// ToDomain builds the engine request.
func (r PartnerClearingRequest) ToDomain(companyID, invoiceID id.ID) (posting.ClearRequest, error) {
	req := posting.ClearRequest{CompanyID: companyID, InvoiceID: invoiceID}

	if (r.PaidRatio == "") == (len(r.Quantities) == 0) {
		return req, apperror.NewValidation("exactly one of paidRatio and quantities is required")
	}
	if r.PaidRatio != "" {
		ratio, err := decimal.NewFromString(r.PaidRatio)
		if err != nil {
			return req, apperror.NewValidation("invalid paid ratio").WithDetail("value", r.PaidRatio)
		}
		req.PaidRatio = ratio
	}
	if len(r.Quantities) > 0 {
		req.Quantities = make(map[id.ID]types.Quantity, len(r.Quantities))
		for rawProduct, rawQty := range r.Quantities {
			productID, err := ParseID("quantities", rawProduct)
			if err != nil {
				return req, err
			}
			qty, err := types.ParseQuantity(rawQty)
			if err != nil {
				return req, apperror.NewValidation("invalid quantity").
					WithDetail("product_id", rawProduct).
					WithDetail("value", rawQty)
			}
			req.Quantities[productID] = qty
		}
	}

	paymentID, err := ParseOptionalID("paymentId", r.PaymentID)
	if err != nil {
		return req, err
	}
	req.PaymentID = paymentID
	if r.Date != nil {
		req.Date = r.Date.UTC()
	}
	req.Overrides, err = r.AccountOverrides.ToDomain()
	return req, err
}

// PartnerReturnRequest brings goods back from a partner.
type PartnerReturnRequest struct {
	ProductID string         `json:"productId" binding:"required"`
	Quantity  types.Quantity `json:"quantity"`
}

// ReconciliationRequest posts balancing adjustments. With EntryID only that
// entry is corrected, otherwise every drifted entry of the company.
type ReconciliationRequest struct {
	RoundingAccountID string `json:"roundingAccountId"`
	EntryID           string `json:"entryId"`
}

// ValuationQuery narrows the inventory valuation.
type ValuationQuery struct {
	ProductIDs []string `form:"productId"`
}

// ValuationResponse is the remaining FIFO value per product and location.
type ValuationResponse struct {
	Items []costlayer.ValuationRow `json:"items"`
	Total types.Money              `json:"total"`
}

// NewValuationResponse sums the rows.
func NewValuationResponse(rows []costlayer.ValuationRow) ValuationResponse {
	if rows == nil {
		rows = []costlayer.ValuationRow{}
	}
	values := make([]types.Money, 0, len(rows))
	for _, r := range rows {
		values = append(values, r.Value)
	}
	return ValuationResponse{Items: rows, Total: types.Sum(values...)}
}
