package models

import (
	"encoding/json"
	"fmt"
)

// Deal ties a client to a vehicle. ClientID and VehicleID are weak
// references: relation plus lookup only, the deal does not own either record.
type Deal struct {
	SyncMeta

	Type           DealType        `json:"type"`
	ClientID       string          `json:"client_id"`
	VehicleID      string          `json:"vehicle_id"`
	Status         DealStatus      `json:"status"`
	TotalAmount    float64         `json:"total_amount"`
	SaleDate       *int64          `json:"sale_date,omitempty"`
	SaleAmount     *float64        `json:"sale_amount,omitempty"`
	SalesTax       *float64        `json:"sales_tax,omitempty"`
	DocFee         *float64        `json:"doc_fee,omitempty"`
	TradeInValue   *float64        `json:"trade_in_value,omitempty"`
	DownPayment    *float64        `json:"down_payment,omitempty"`
	FinancedAmount *float64        `json:"financed_amount,omitempty"`
	DocumentIDs    []string        `json:"document_ids,omitempty"`
	CobuyerData    json.RawMessage `json:"cobuyer_data,omitempty"`
}

func (d *Deal) Validate() error {
	if d.ClientID == "" || d.VehicleID == "" {
		return fmt.Errorf("%w: deal requires client and vehicle references", ErrValidation)
	}
	if !d.Type.Valid() {
		return invalidField("deal type", string(d.Type))
	}
	if !d.Status.Valid() {
		return invalidField("deal status", string(d.Status))
	}
	return nil
}

// DealUpdate is a partial update; nil fields are left unchanged. The client
// and vehicle references are fixed at creation and cannot be updated.
type DealUpdate struct {
	Type           *DealType
	Status         *DealStatus
	TotalAmount    *float64
	SaleDate       *int64
	SaleAmount     *float64
	SalesTax       *float64
	DocFee         *float64
	TradeInValue   *float64
	DownPayment    *float64
	FinancedAmount *float64
	DocumentIDs    *[]string
	CobuyerData    json.RawMessage
}

// Apply merges the non-nil fields into d.
func (u DealUpdate) Apply(d *Deal) {
	if u.Type != nil {
		d.Type = *u.Type
	}
	if u.Status != nil {
		d.Status = *u.Status
	}
	if u.TotalAmount != nil {
		d.TotalAmount = *u.TotalAmount
	}
	if u.SaleDate != nil {
		d.SaleDate = u.SaleDate
	}
	if u.SaleAmount != nil {
		d.SaleAmount = u.SaleAmount
	}
	if u.SalesTax != nil {
		d.SalesTax = u.SalesTax
	}
	if u.DocFee != nil {
		d.DocFee = u.DocFee
	}
	if u.TradeInValue != nil {
		d.TradeInValue = u.TradeInValue
	}
	if u.DownPayment != nil {
		d.DownPayment = u.DownPayment
	}
	if u.FinancedAmount != nil {
		d.FinancedAmount = u.FinancedAmount
	}
	if u.DocumentIDs != nil {
		d.DocumentIDs = *u.DocumentIDs
	}
	if u.CobuyerData != nil {
		d.CobuyerData = u.CobuyerData
	}
}

// DealStats is the aggregation returned by the deals repository for the
// dashboard: counts and amounts grouped by status.
type DealStats struct {
	Total         int                `json:"total"`
	ByStatus      map[DealStatus]int `json:"by_status"`
	TotalAmount   float64            `json:"total_amount"`
	AverageAmount float64            `json:"average_amount"`
}
