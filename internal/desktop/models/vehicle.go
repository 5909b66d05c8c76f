package models

import "fmt"

// Vehicle is an inventory record. VIN uniqueness is checked at create time
// but is ultimately the remote system's responsibility.
type Vehicle struct {
	SyncMeta

	VIN          string        `json:"vin"`
	StockNumber  string        `json:"stock_number,omitempty"`
	Year         int           `json:"year"`
	Make         string        `json:"make"`
	Model        string        `json:"model"`
	Trim         string        `json:"trim,omitempty"`
	Body         string        `json:"body,omitempty"`
	Doors        int           `json:"doors,omitempty"`
	Transmission string        `json:"transmission,omitempty"`
	Engine       string        `json:"engine,omitempty"`
	Cylinders    int           `json:"cylinders,omitempty"`
	TitleNumber  string        `json:"title_number,omitempty"`
	Mileage      int           `json:"mileage"`
	Color        string        `json:"color,omitempty"`
	Price        float64       `json:"price"`
	Cost         *float64      `json:"cost,omitempty"`
	Status       VehicleStatus `json:"status"`
	Description  string        `json:"description,omitempty"`
	Images       []string      `json:"images,omitempty"`
}

func (v *Vehicle) Validate() error {
	if v.VIN == "" {
		return fmt.Errorf("%w: vehicle requires a VIN", ErrValidation)
	}
	if v.Make == "" || v.Model == "" {
		return fmt.Errorf("%w: vehicle requires make and model", ErrValidation)
	}
	if !v.Status.Valid() {
		return invalidField("vehicle status", string(v.Status))
	}
	return nil
}

// VehicleUpdate is a partial update; nil fields are left unchanged.
type VehicleUpdate struct {
	VIN          *string
	StockNumber  *string
	Year         *int
	Make         *string
	Model        *string
	Trim         *string
	Body         *string
	Doors        *int
	Transmission *string
	Engine       *string
	Cylinders    *int
	TitleNumber  *string
	Mileage      *int
	Color        *string
	Price        *float64
	Cost         *float64
	Status       *VehicleStatus
	Description  *string
	Images       *[]string
}

// Apply merges the non-nil fields into v.
func (u VehicleUpdate) Apply(v *Vehicle) {
	if u.VIN != nil {
		v.VIN = *u.VIN
	}
	if u.StockNumber != nil {
		v.StockNumber = *u.StockNumber
	}
	if u.Year != nil {
		v.Year = *u.Year
	}
	if u.Make != nil {
		v.Make = *u.Make
	}
	if u.Model != nil {
		v.Model = *u.Model
	}
	if u.Trim != nil {
		v.Trim = *u.Trim
	}
	if u.Body != nil {
		v.Body = *u.Body
	}
	if u.Doors != nil {
		v.Doors = *u.Doors
	}
	if u.Transmission != nil {
		v.Transmission = *u.Transmission
	}
	if u.Engine != nil {
		v.Engine = *u.Engine
	}
	if u.Cylinders != nil {
		v.Cylinders = *u.Cylinders
	}
	if u.TitleNumber != nil {
		v.TitleNumber = *u.TitleNumber
	}
	if u.Mileage != nil {
		v.Mileage = *u.Mileage
	}
	if u.Color != nil {
		v.Color = *u.Color
	}
	if u.Price != nil {
		v.Price = *u.Price
	}
	if u.Cost != nil {
		v.Cost = u.Cost
	}
	if u.Status != nil {
		v.Status = *u.Status
	}
	if u.Description != nil {
		v.Description = *u.Description
	}
	if u.Images != nil {
		v.Images = *u.Images
	}
}
