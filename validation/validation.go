package validation

import (
	"net/mail"
	"sort"
	"strings"

	"github.com/diewo77/go-crudgate/auth"
	"github.com/diewo77/go-crudgate/internal/models"
)

type Violations map[string]string

func (v Violations) Empty() bool { return len(v) == 0 }

// Error lists the violations as field=reason pairs in field order.
func (v Violations) Error() string {
	fields := make([]string, 0, len(v))
	for f := range v {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f + "=" + v[f]
	}
	return "invalid: " + strings.Join(parts, ", ")
}

// Err returns v as an error, or nil when there is nothing to report.
func (v Violations) Err() error {
	if v.Empty() {
		return nil
	}
	return v
}

// Basic validators
func Required(field, value string, v Violations) {
	if strings.TrimSpace(value) == "" {
		v[field] = "required"
	}
}

func Email(field, value string, v Violations) {
	if value == "" {
		return
	}
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value {
		v[field] = "invalid_email"
	}
}

func PositiveFloat(field string, val float64, v Violations) {
	if val <= 0 {
		v[field] = "must_be_positive"
	}
}

func RangeFloat(field string, val, minVal, maxVal float64, v Violations) {
	if val < minVal || val > maxVal {
		v[field] = "out_of_range"
	}
}

// UserInfo checks the identity fields every record operation needs.
func UserInfo(info auth.UserInfo) Violations {
	v := Violations{}
	Required("userId", info.UserID, v)
	Required("token", info.Token, v)
	Required("loginName", info.LoginName, v)
	Email("email", info.Email, v)
	return v
}

// Invoice validates the sample invoice record before it is saved.
func Invoice(inv models.Invoice) Violations {
	v := Violations{}
	Required("client_name", inv.ClientName, v)
	PositiveFloat("amount_ht", inv.AmountHT, v)
	RangeFloat("vat_rate", inv.VATRate, 0, 1, v)
	switch inv.Status {
	case "", models.InvoiceStatusDraft, models.InvoiceStatusFinal, models.InvoiceStatusPaid, models.InvoiceStatusCancelled:
	default:
		v["status"] = "unknown_status"
	}
	return v
}

// InvoiceChange validates an edit of current. A final invoice keeps its
// billed fields, and an issued invoice cannot go back to draft.
func InvoiceChange(current models.Invoice) func(models.Invoice) Violations {
	return func(next models.Invoice) Violations {
		v := Invoice(next)
		if current.IsFinal() {
			if next.Number != current.Number {
				v["number"] = "locked"
			}
			if next.ClientName != current.ClientName {
				v["client_name"] = "locked"
			}
			if next.AmountHT != current.AmountHT {
				v["amount_ht"] = "locked"
			}
			if next.VATRate != current.VATRate {
				v["vat_rate"] = "locked"
			}
		}
		if !current.IsDraft() && next.IsDraft() {
			v["status"] = "cannot_reopen"
		}
		return v
	}
}
