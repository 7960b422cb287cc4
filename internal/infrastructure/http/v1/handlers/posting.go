package handlers

import (
	"github.com/gin-gonic/gin"

	"costledger/internal/core/apperror"
	"costledger/internal/core/id"
	"costledger/internal/domain/posting"
	"costledger/internal/domain/registers/costlayer"
	"costledger/internal/infrastructure/http/v1/dto"
)

// PostingHandler exposes the posting triggers to business-event handlers.
type PostingHandler struct {
	*BaseHandler
	engine *posting.Engine
	layers *costlayer.Service
}

// NewPostingHandler creates a posting handler.
func NewPostingHandler(base *BaseHandler, engine *posting.Engine, layers *costlayer.Service) *PostingHandler {
	return &PostingHandler{BaseHandler: base, engine: engine, layers: layers}
}

// RegisterRoutes registers the posting endpoints on a company-scoped group.
func (h *PostingHandler) RegisterRoutes(rg *gin.RouterGroup) {
	invoices := rg.Group("/invoices/:invoiceId")
	{
		invoices.POST("/sale-posting", h.PostSale)
		invoices.DELETE("/sale-posting", h.ReverseSale)
		invoices.POST("/partner-transfer", h.TransferToPartner)
		invoices.POST("/partner-clearing", h.ClearPartnerBalance)
		invoices.POST("/partner-returns", h.ReturnFromPartner)
	}
	rg.POST("/write-offs/:writeOffId/posting", h.PostWriteOff)
	rg.POST("/bills/:billId/posting", h.PostBill)
	rg.POST("/ledger/reconciliation", h.Reconcile)
	rg.GET("/inventory/valuation", h.Valuation)
}

// PostSale handles POST /invoices/:invoiceId/sale-posting.
func (h *PostingHandler) PostSale(c *gin.Context) {
	invoiceID, ok := h.PathID(c, "invoiceId")
	if !ok {
		return
	}
	var req dto.SalePostingRequest
	if !h.BindJSON(c, &req) {
		return
	}
	overrides, err := req.AccountOverrides.ToDomain()
	if err != nil {
		h.HandleError(c, err)
		return
	}

	res, err := h.engine.PostSaleAndCOGS(c.Request.Context(), h.CompanyID(c), invoiceID, overrides)
	h.respond(c, res, err)
}

// ReverseSale handles DELETE /invoices/:invoiceId/sale-posting?reason=...
func (h *PostingHandler) ReverseSale(c *gin.Context) {
	invoiceID, ok := h.PathID(c, "invoiceId")
	if !ok {
		return
	}
	reason := c.Query("reason")
	if reason == "" {
		h.HandleError(c, apperror.NewValidation("reason is required").WithDetail("param", "reason"))
		return
	}

	res, err := h.engine.ReverseSale(c.Request.Context(), h.CompanyID(c), invoiceID, reason)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.OK(c, res)
}

// PostWriteOff handles POST /write-offs/:writeOffId/posting.
func (h *PostingHandler) PostWriteOff(c *gin.Context) {
	writeOffID, ok := h.PathID(c, "writeOffId")
	if !ok {
		return
	}
	var req dto.WriteOffPostingRequest
	if !h.BindJSON(c, &req) {
		return
	}
	expenseID, err := dto.ParseOptionalID("expenseAccountId", req.ExpenseAccountID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	inventoryID, err := dto.ParseOptionalID("inventoryAccountId", req.InventoryAccountID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	res, err := h.engine.PostWriteOff(c.Request.Context(), h.CompanyID(c), writeOffID, expenseID, inventoryID)
	h.respond(c, res, err)
}

// PostBill handles POST /bills/:billId/posting.
func (h *PostingHandler) PostBill(c *gin.Context) {
	billID, ok := h.PathID(c, "billId")
	if !ok {
		return
	}
	var req dto.BillPostingRequest
	if !h.BindJSON(c, &req) {
		return
	}
	overrides, err := req.AccountOverrides.ToDomain()
	if err != nil {
		h.HandleError(c, err)
		return
	}

	res, err := h.engine.PostBillReceipt(c.Request.Context(), h.CompanyID(c), billID, overrides)
	h.respond(c, res, err)
}

// TransferToPartner handles POST /invoices/:invoiceId/partner-transfer.
func (h *PostingHandler) TransferToPartner(c *gin.Context) {
	invoiceID, ok := h.PathID(c, "invoiceId")
	if !ok {
		return
	}
	var req dto.PartnerTransferRequest
	if !h.BindJSON(c, &req) {
		return
	}
	partnerID, err := dto.ParseID("partnerId", req.PartnerID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	res, err := h.engine.TransferToPartner(c.Request.Context(), h.CompanyID(c), invoiceID, partnerID)
	h.respond(c, res, err)
}

// ClearPartnerBalance handles POST /invoices/:invoiceId/partner-clearing.
func (h *PostingHandler) ClearPartnerBalance(c *gin.Context) {
	invoiceID, ok := h.PathID(c, "invoiceId")
	if !ok {
		return
	}
	var req dto.PartnerClearingRequest
	if !h.BindJSON(c, &req) {
		return
	}
	clearReq, err := req.ToDomain(h.CompanyID(c), invoiceID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	res, err := h.engine.ClearPartnerBalance(c.Request.Context(), clearReq)
	h.respond(c, res, err)
}

// ReturnFromPartner handles POST /invoices/:invoiceId/partner-returns.
func (h *PostingHandler) ReturnFromPartner(c *gin.Context) {
	invoiceID, ok := h.PathID(c, "invoiceId")
	if !ok {
		return
	}
	var req dto.PartnerReturnRequest
	if !h.BindJSON(c, &req) {
		return
	}
	productID, err := dto.ParseID("productId", req.ProductID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	res, err := h.engine.ReturnFromPartner(c.Request.Context(), h.CompanyID(c), invoiceID, productID, req.Quantity)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.OK(c, res)
}

// Reconcile handles POST /ledger/reconciliation.
func (h *PostingHandler) Reconcile(c *gin.Context) {
	var req dto.ReconciliationRequest
	if !h.BindJSON(c, &req) {
		return
	}
	roundingID, err := dto.ParseOptionalID("roundingAccountId", req.RoundingAccountID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	entryID, err := dto.ParseOptionalID("entryId", req.EntryID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	ctx := c.Request.Context()
	var res *posting.Result
	if id.IsNil(entryID) {
		res, err = h.engine.ReconcileLedger(ctx, h.CompanyID(c), roundingID)
	} else {
		res, err = h.engine.PostBalancingAdjustment(ctx, h.CompanyID(c), entryID, roundingID)
	}
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.OK(c, res)
}

// Valuation handles GET /inventory/valuation?productId=...
func (h *PostingHandler) Valuation(c *gin.Context) {
	var q dto.ValuationQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter := costlayer.ValuationFilter{CompanyID: h.CompanyID(c)}
	for _, raw := range q.ProductIDs {
		productID, err := dto.ParseID("productId", raw)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		filter.ProductIDs = append(filter.ProductIDs, productID)
	}

	rows, err := h.layers.Valuation(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.OK(c, dto.NewValuationResponse(rows))
}

// respond answers 201 for a new posting and 200 when the event was
// already posted.
func (h *PostingHandler) respond(c *gin.Context, res *posting.Result, err error) {
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if res.AlreadyPosted {
		h.OK(c, res)
		return
	}
	h.Created(c, res)
}
