package models

import "fmt"

// VehicleStatus is the lifecycle tag of an inventory vehicle.
type VehicleStatus string

const (
	VehicleAvailable VehicleStatus = "available"
	VehiclePending   VehicleStatus = "pending"
	VehicleReserved  VehicleStatus = "reserved"
	VehicleSold      VehicleStatus = "sold"
)

func (s VehicleStatus) Valid() bool {
	switch s {
	case VehicleAvailable, VehiclePending, VehicleReserved, VehicleSold:
		return true
	}
	return false
}

// DealStatus is the workflow state of a deal. The repository only rejects
// unknown values; the ordering of transitions is enforced by the UI workflow
// layered above.
type DealStatus string

const (
	DealDraft     DealStatus = "draft"
	DealPending   DealStatus = "pending"
	DealApproved  DealStatus = "approved"
	DealCompleted DealStatus = "completed"
	DealCancelled DealStatus = "cancelled"
)

func (s DealStatus) Valid() bool {
	switch s {
	case DealDraft, DealPending, DealApproved, DealCompleted, DealCancelled:
		return true
	}
	return false
}

// DealType classifies how a deal is financed.
type DealType string

const (
	DealCash    DealType = "cash"
	DealFinance DealType = "finance"
	DealLease   DealType = "lease"
	DealTrade   DealType = "trade"
)

func (t DealType) Valid() bool {
	switch t {
	case DealCash, DealFinance, DealLease, DealTrade:
		return true
	}
	return false
}

func invalidField(field, value string) error {
	return fmt.Errorf("%w: unknown %s %q", ErrValidation, field, value)
}
