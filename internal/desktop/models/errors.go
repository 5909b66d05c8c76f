package models

import "errors"

var (
	// ErrNotFound is returned when a record does not exist locally.
	ErrNotFound = errors.New("not found")

	// ErrValidation is returned for invalid field values or unknown enum
	// members, before anything is written.
	ErrValidation = errors.New("validation error")

	// ErrConsistency is returned when an operation would leave a dangling
	// foreign-key reference, e.g. deleting a client that deals still point at.
	ErrConsistency = errors.New("consistency error")

	// ErrDuplicateVIN is returned when creating a vehicle whose VIN is
	// already present.
	ErrDuplicateVIN = errors.New("vehicle with this VIN already exists")
)
