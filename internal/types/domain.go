package types

import "time"

// SendStatus is the enumerated delivery state stored in a row's status column.
type SendStatus string

const (
	// SendStatusNone is an empty status column: the row has never been picked up.
	SendStatusNone     SendStatus = ""
	SendStatusSending  SendStatus = "Sending…"
	SendStatusSent     SendStatus = "Sent"
	SendStatusFailed   SendStatus = "Failed"
	SendStatusRetrying SendStatus = "Error — Retrying"
)

// Row-level status texts written to the validation column.
const (
	ValidationPassed      = "Passed"
	ValidationNoEmail     = "No email address"
	ValidationNoTemplate  = "No template linked"
	ValidationTemplateErr = "Template error: "
	ValidationSendErr     = "Send error: "
)

// IsEligible reports whether a row with this status may be picked up by a
// pass, provided its send flag is set. Only never-processed rows and rows set
// back to the retry sentinel qualify.
func (s SendStatus) IsEligible() bool {
	return s == SendStatusNone || s == SendStatusRetrying
}

// Row is one recipient in the record store. Rows are created and edited by
// people; the pipeline only patches their status columns.
type Row struct {
	ID               string
	Name             string
	Email            string
	TemplateID       string
	SendFlag         bool
	ValidationStatus string
	SendStatus       SendStatus
	SentAt           *time.Time
}

// RowUpdate is a partial patch of a row. Nil fields are left untouched in the
// record store.
type RowUpdate struct {
	ValidationStatus *string
	SendStatus       *SendStatus
	SentAt           *time.Time
	SendFlag         *bool
}

// IsEmpty reports whether the update would not change anything.
func (u RowUpdate) IsEmpty() bool {
	return u.ValidationStatus == nil && u.SendStatus == nil && u.SentAt == nil && u.SendFlag == nil
}

// Ptr returns a pointer to v. It keeps RowUpdate literals short.
func Ptr[T any](v T) *T {
	return &v
}
