package dto

// CoursePricing is the staff pricing report for one course.
// Missing metadata is rendered as null.
type CoursePricing struct {
	CourseID        string      `json:"course_id"`
	CourseName      *string     `json:"course_name"`
	CourseStart     *string     `json:"course_start"`
	CourseEnd       *string     `json:"course_end"`
	EnrollmentStart *string     `json:"enrollment_start"`
	EnrollmentEnd   *string     `json:"enrollment_end"`
	InviteOnly      *bool       `json:"invite_only"`
	Modes           []ModePrice `json:"modes"`
}

// ModePrice is one payable enrollment mode. Prices are display floats.
type ModePrice struct {
	Slug               string    `json:"slug"`
	Name               string    `json:"name"`
	Currency           *string   `json:"currency"`
	MinPrice           float64   `json:"min_price"`
	SuggestedPrices    []float64 `json:"suggested_prices"`
	SKU                *string   `json:"sku"`
	ExpirationDatetime *string   `json:"expiration_datetime"`
	IsExpired          bool      `json:"is_expired"`
}
