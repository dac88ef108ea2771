package model

import (
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the ISO-8601 layout used for client-generated created_at values.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// FormState holds the five fields of the product submission form
type FormState struct {
	ProductName string `json:"productName" form:"productName"`
	Description string `json:"description" form:"description"`
	WebsiteURL  string `json:"websiteUrl" form:"websiteUrl"`
	Tags        string `json:"tags" form:"tags"`
	Email       string `json:"email" form:"email"`
}

// Complete reports whether every required field is non-empty. Tags are optional.
func (f FormState) Complete() bool {
	return f.ProductName != "" && f.Description != "" && f.WebsiteURL != "" && f.Email != ""
}

// SubmissionRecord is the row inserted into the products collection.
// The Tags column keeps its capitalised external name.
type SubmissionRecord struct {
	Name        string `json:"name" db:"name"`
	Description string `json:"description" db:"description"`
	Website     string `json:"website" db:"website"`
	Tags        string `json:"Tags" db:"Tags"`
	Email       string `json:"email" db:"email"`
	CreatedAt   string `json:"created_at" db:"created_at"`
}

// NewSubmissionRecord projects a form onto the stored field names
func NewSubmissionRecord(form FormState, createdAt time.Time) *SubmissionRecord {
	return &SubmissionRecord{
		Name:        form.ProductName,
		Description: form.Description,
		Website:     form.WebsiteURL,
		Tags:        form.Tags,
		Email:       form.Email,
		CreatedAt:   createdAt.UTC().Format(TimestampLayout),
	}
}

// storedTimestampLayouts are the created_at shapes a store may return.
// timestamptz columns come back with an offset, timestamp columns without one.
var storedTimestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z07",
	"2006-01-02 15:04:05.999999999",
}

// ParseStoredTimestamp parses a created_at value read back from the store.
// Values without an offset are taken as UTC.
func ParseStoredTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range storedTimestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", value)
}

// Product is a products row as read back from the store.
// ID is kept as text so integer and uuid keys both fit.
type Product struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	Website     string    `json:"website" db:"website"`
	Tags        string    `json:"Tags" db:"Tags"`
	Email       string    `json:"email" db:"email"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
