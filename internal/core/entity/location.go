package entity

import (
	"fmt"

	"costledger/internal/core/id"
)

// Location scopes inventory inside a company. Every part is optional:
// a nil part means "not tracked at that level" and only matches nil.
type Location struct {
	BranchID     id.ID `db:"branch_id" json:"branchId,omitempty"`
	WarehouseID  id.ID `db:"warehouse_id" json:"warehouseId,omitempty"`
	CostCenterID id.ID `db:"cost_center_id" json:"costCenterId,omitempty"`
}

// Equal reports whether both locations address the same scope.
func (l Location) Equal(o Location) bool {
	return l.BranchID == o.BranchID && l.WarehouseID == o.WarehouseID && l.CostCenterID == o.CostCenterID
}

// IsZero reports whether no part of the location is set.
func (l Location) IsZero() bool {
	return id.IsNil(l.BranchID) && id.IsNil(l.WarehouseID) && id.IsNil(l.CostCenterID)
}

// Key is a stable textual form used for lock keys and map indexes.
func (l Location) Key() string {
	return fmt.Sprintf("%s/%s/%s", l.BranchID, l.WarehouseID, l.CostCenterID)
}
