package models

import "fmt"

// Client is a dealership customer record.
type Client struct {
	SyncMeta

	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Email          string `json:"email,omitempty"`
	Phone          string `json:"phone,omitempty"`
	Address        string `json:"address,omitempty"`
	City           string `json:"city,omitempty"`
	State          string `json:"state,omitempty"`
	ZipCode        string `json:"zip_code,omitempty"`
	DriversLicense string `json:"drivers_license,omitempty"`
}

func (c *Client) Validate() error {
	if c.FirstName == "" || c.LastName == "" {
		return fmt.Errorf("%w: client requires first and last name", ErrValidation)
	}
	return nil
}

// ClientUpdate is a partial update; nil fields are left unchanged.
// The identity and sync metadata cannot be changed through an update.
type ClientUpdate struct {
	FirstName      *string
	LastName       *string
	Email          *string
	Phone          *string
	Address        *string
	City           *string
	State          *string
	ZipCode        *string
	DriversLicense *string
}

// Apply merges the non-nil fields into c.
func (u ClientUpdate) Apply(c *Client) {
	if u.FirstName != nil {
		c.FirstName = *u.FirstName
	}
	if u.LastName != nil {
		c.LastName = *u.LastName
	}
	if u.Email != nil {
		c.Email = *u.Email
	}
	if u.Phone != nil {
		c.Phone = *u.Phone
	}
	if u.Address != nil {
		c.Address = *u.Address
	}
	if u.City != nil {
		c.City = *u.City
	}
	if u.State != nil {
		c.State = *u.State
	}
	if u.ZipCode != nil {
		c.ZipCode = *u.ZipCode
	}
	if u.DriversLicense != nil {
		c.DriversLicense = *u.DriversLicense
	}
}
