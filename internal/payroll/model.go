// Package payroll holds the payroll data model and CSV ingestion rules.
// Keep this package free of transport (HTTP) and rendering concerns.
package payroll

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// EmployeePayroll is one validated payroll CSV row.
type EmployeePayroll struct {
	FullName             string  `json:"full_name"`
	Email                string  `json:"email"`
	Position             string  `json:"position"`
	HealthDiscountAmount float64 `json:"health_discount_amount"`
	SocialDiscountAmount float64 `json:"social_discount_amount"`
	TaxesDiscountAmount  float64 `json:"taxes_discount_amount"`
	OtherDiscountAmount  float64 `json:"other_discount_amount"`
	GrossSalary          float64 `json:"gross_salary"`
	GrossPayment         float64 `json:"gross_payment"`
	NetPayment           float64 `json:"net_payment"`
	Period               string  `json:"period"`
}

var emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Validate checks the row against the ingestion rules. Amounts must be
// non-negative and the period must be an ISO date.
func (e EmployeePayroll) Validate() error {
	if strings.TrimSpace(e.FullName) == "" {
		return fmt.Errorf("full_name is required")
	}
	if !emailRe.MatchString(e.Email) {
		return fmt.Errorf("invalid email address: %q", e.Email)
	}
	if strings.TrimSpace(e.Position) == "" {
		return fmt.Errorf("position is required")
	}
	amounts := map[string]float64{
		"health_discount_amount": e.HealthDiscountAmount,
		"social_discount_amount": e.SocialDiscountAmount,
		"taxes_discount_amount":  e.TaxesDiscountAmount,
		"other_discount_amount":  e.OtherDiscountAmount,
		"gross_salary":           e.GrossSalary,
		"gross_payment":          e.GrossPayment,
		"net_payment":            e.NetPayment,
	}
	for name, v := range amounts {
		if v < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if _, err := time.Parse("2006-01-02", e.Period); err != nil {
		return fmt.Errorf("period must be YYYY-MM-DD, got %q", e.Period)
	}
	return nil
}

// TotalDeductions sums all deduction amounts on the row.
func (e EmployeePayroll) TotalDeductions() float64 {
	return e.HealthDiscountAmount + e.SocialDiscountAmount + e.TaxesDiscountAmount + e.OtherDiscountAmount
}
