package models

import "fmt"

// Document is a generated or scanned file attached to a deal. The payload is
// either inline (Body, encrypted at rest) or a pointer to a file on disk
// (FilePath); both may be present while an upload is in flight.
type Document struct {
	SyncMeta

	DealID       string `json:"deal_id"`
	Type         string `json:"type"`
	Filename     string `json:"filename"`
	FilePath     string `json:"file_path,omitempty"`
	FileSize     *int64 `json:"file_size,omitempty"`
	FileChecksum string `json:"file_checksum,omitempty"`
	Body         []byte `json:"body,omitempty"`
}

func (d *Document) Validate() error {
	if d.DealID == "" {
		return fmt.Errorf("%w: document requires a deal reference", ErrValidation)
	}
	if d.Filename == "" {
		return fmt.Errorf("%w: document requires a filename", ErrValidation)
	}
	return nil
}

// DocumentUpdate is a partial update; nil fields are left unchanged.
// The owning deal reference is fixed at creation.
type DocumentUpdate struct {
	Type         *string
	Filename     *string
	FilePath     *string
	FileSize     *int64
	FileChecksum *string
	Body         []byte
}

// Apply merges the non-nil fields into d.
func (u DocumentUpdate) Apply(d *Document) {
	if u.Type != nil {
		d.Type = *u.Type
	}
	if u.Filename != nil {
		d.Filename = *u.Filename
	}
	if u.FilePath != nil {
		d.FilePath = *u.FilePath
	}
	if u.FileSize != nil {
		d.FileSize = u.FileSize
	}
	if u.FileChecksum != nil {
		d.FileChecksum = *u.FileChecksum
	}
	if u.Body != nil {
		d.Body = u.Body
	}
}
