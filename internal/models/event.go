package models

import (
	"strings"
	"time"

	"github.com/uptrace/bun"
)

// ProvisionDetails holds the custom provision categories of an event,
// e.g. {"items": ["Desayuno", "Almuerzo"]}.
type ProvisionDetails struct {
	Items []string `json:"items"`
}

type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID                  string           `bun:"id,pk" json:"id"`
	Title               string           `bun:"title,notnull" json:"title"`
	Description         string           `bun:"description" json:"description"`
	Venue               string           `bun:"venue" json:"venue"`
	StartsAt            time.Time        `bun:"starts_at,notnull" json:"starts_at"`
	EndsAt              *time.Time       `bun:"ends_at" json:"ends_at,omitempty"`
	RequiresProvision   bool             `bun:"requires_provision,notnull" json:"requires_provision"`
	ProvisionQuota      int              `bun:"provision_quota,notnull" json:"provision_quota"`
	ProvisionDetails    ProvisionDetails `bun:"provision_details,type:jsonb" json:"provision_details"`
	CertificateTemplate string           `bun:"certificate_template,nullzero" json:"certificate_template,omitempty"`
	CreatedBy           string           `bun:"created_by,nullzero" json:"created_by,omitempty"`
	CreatedAt           time.Time        `bun:"created_at,notnull" json:"created_at"`
}

// VoucherCategories lists the categories every registrant of the event gets a
// voucher for. Entry always comes first. A non-empty custom item list wins over
// the RequiresProvision flag.
func (e *Event) VoucherCategories() []string {
	categories := []string{CategoryEntry}
	seen := map[string]bool{CategoryEntry: true}

	if len(e.ProvisionDetails.Items) == 0 {
		if e.RequiresProvision {
			categories = append(categories, CategoryDefaultProvision)
		}
		return categories
	}

	for _, item := range e.ProvisionDetails.Items {
		item = strings.TrimSpace(item)
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		categories = append(categories, item)
	}
	return categories
}
