package posting

import (
	"costledger/internal/core/id"
	"costledger/internal/core/types"
	"costledger/internal/domain/consignment"
	"costledger/internal/domain/ledger"
)

// Result is what a trigger hands back to the business-event handler.
type Result struct {
	Success       bool     `json:"success"`
	AlreadyPosted bool     `json:"alreadyPosted,omitempty"`
	EntryIDs      []id.ID  `json:"entryIds,omitempty"`
	EntryNumbers  []string `json:"entryNumbers,omitempty"`

	// COGSTotal is the cost recognized by this call, rounded to the
	// reporting minor unit.
	COGSTotal types.Money `json:"cogsTotal"`
	Costs     []CostLine  `json:"costs,omitempty"`

	// ClearingID keys the ledger entries of a partner clearing.
	ClearingID id.ID                     `json:"clearingId,omitempty"`
	Records    []consignment.Record      `json:"records,omitempty"`
	Cleared    []consignment.ClearResult `json:"cleared,omitempty"`
	Returned   *consignment.ReturnResult `json:"returned,omitempty"`
	Clipped    []Clip                    `json:"clipped,omitempty"`
}

// CostLine is the FIFO cost of one document line.
type CostLine struct {
	ProductID id.ID          `json:"productId"`
	Quantity  types.Quantity `json:"quantity"`
	Cost      types.Money    `json:"cost"`
	Layers    int            `json:"layers"`
}

// Clip reports a partner quantity that was cut to what was available.
type Clip struct {
	ProductID id.ID          `json:"productId"`
	Requested types.Quantity `json:"requested"`
	Applied   types.Quantity `json:"applied"`
	Clipped   types.Quantity `json:"clipped"`
}

func newResult() *Result {
	return &Result{COGSTotal: types.Zero()}
}

func (r *Result) addEntry(e *ledger.Entry) {
	r.EntryIDs = append(r.EntryIDs, e.ID)
	r.EntryNumbers = append(r.EntryNumbers, e.Number)
}
