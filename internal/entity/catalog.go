package entity

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Free enrollment tracks never carry a price.
const (
	ModeAudit = "audit"
	ModeHonor = "honor"
)

// CourseMode mirrors a row of the LMS course_modes_coursemode table.
type CourseMode struct {
	bun.BaseModel `bun:"table:course_modes_coursemode,alias:cm"`

	ID                 int64           `bun:"id,pk,autoincrement"`
	CourseID           string          `bun:"course_id,notnull"`
	ModeSlug           string          `bun:"mode_slug,notnull"`
	ModeDisplayName    string          `bun:"mode_display_name"`
	MinPrice           decimal.Decimal `bun:"min_price,type:decimal(12,2),notnull"`
	Currency           string          `bun:"currency"`
	SuggestedPrices    string          `bun:"suggested_prices"`
	ExpirationDatetime *time.Time      `bun:"expiration_datetime"`
	ExpirationDate     *time.Time      `bun:"expiration_date,type:date"`
	SKU                *string         `bun:"sku"`
	AndroidSKU         *string         `bun:"android_sku"`
	IOSSKU             *string         `bun:"ios_sku"`
	BulkSKU            *string         `bun:"bulk_sku"`
}

// ExpiresAt returns the expiration instant, falling back to the legacy date column.
func (m *CourseMode) ExpiresAt() *time.Time {
	if m.ExpirationDatetime != nil {
		return m.ExpirationDatetime
	}
	return m.ExpirationDate
}

// Expired reports whether the mode expired at or before now.
func (m *CourseMode) Expired(now time.Time) bool {
	exp := m.ExpiresAt()
	return exp != nil && !exp.After(now)
}

// Free reports whether the slug is one of the free-access tracks.
func (m *CourseMode) Free() bool {
	return m.ModeSlug == ModeAudit || m.ModeSlug == ModeHonor
}

// PreferredSKU resolves the SKU in precedence order: sku, android_sku, ios_sku, bulk_sku.
func (m *CourseMode) PreferredSKU() string {
	for _, candidate := range []*string{m.SKU, m.AndroidSKU, m.IOSSKU, m.BulkSKU} {
		if candidate != nil && strings.TrimSpace(*candidate) != "" {
			return *candidate
		}
	}
	return ""
}

// DisplayName falls back to the slug when the LMS has no display name.
func (m *CourseMode) DisplayName() string {
	if strings.TrimSpace(m.ModeDisplayName) != "" {
		return m.ModeDisplayName
	}
	return m.ModeSlug
}

// SuggestedPriceList splits the comma separated column, coercing each entry.
func (m *CourseMode) SuggestedPriceList() []float64 {
	out := []float64{}
	for _, part := range strings.Split(m.SuggestedPrices, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, CoercePrice(part))
	}
	return out
}

// CoercePrice turns a display price into a float; unparseable input is 0.
func CoercePrice(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0
	}
	return v
}

// CourseOverview mirrors the LMS course_overviews_courseoverview table.
type CourseOverview struct {
	bun.BaseModel `bun:"table:course_overviews_courseoverview,alias:co"`

	ID              string     `bun:"id,pk"`
	DisplayName     *string    `bun:"display_name"`
	Start           *time.Time `bun:"start"`
	End             *time.Time `bun:"end"`
	EnrollmentStart *time.Time `bun:"enrollment_start"`
	EnrollmentEnd   *time.Time `bun:"enrollment_end"`
	InviteOnly      bool       `bun:"invite_only,notnull"`
}
