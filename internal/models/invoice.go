package models

import "time"

// InvoiceStatus represents the status of an invoice.
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "draft"
	InvoiceStatusFinal     InvoiceStatus = "final"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// Invoice is the sample guarded record served by the CLI and used in tests.
// Ownership comes from the embedded Base.
type Invoice struct {
	Base
	Number     string        `gorm:"size:50;index" json:"number"`
	ClientName string        `gorm:"size:255;not null" json:"client_name"`
	IssueDate  time.Time     `json:"issue_date"`
	Status     InvoiceStatus `gorm:"size:20;not null" json:"status"`
	AmountHT   float64       `json:"amount_ht"`
	VATRate    float64       `json:"vat_rate"`
}

// IsDraft returns true if the invoice is in draft status.
func (i Invoice) IsDraft() bool {
	return i.Status == InvoiceStatusDraft || i.Status == ""
}

// IsFinal returns true if the invoice has been finalized.
func (i Invoice) IsFinal() bool {
	return i.Status == InvoiceStatusFinal || i.Status == InvoiceStatusPaid
}
