package payroll

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// RowError describes a single rejected CSV row. Row numbers are 1-based
// and count data rows, not the header.
type RowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
	Type  string `json:"type"`
}

var requiredColumns = []string{
	"full_name",
	"email",
	"position",
	"health_discount_amount",
	"social_discount_amount",
	"taxes_discount_amount",
	"other_discount_amount",
	"gross_salary",
	"gross_payment",
	"net_payment",
	"period",
}

// ParsedRow pairs a validated employee with its 1-based CSV row number so
// downstream errors can point back at the upload.
type ParsedRow struct {
	Row      int
	Employee EmployeePayroll
}

// ParseCSV reads payroll rows from r. Column order is free and unknown
// columns are ignored. A malformed header or a missing required column
// fails the whole upload; bad data rows are collected as RowErrors and
// parsing continues.
func ParseCSV(r io.Reader) ([]ParsedRow, []RowError, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("cannot read CSV header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			return nil, nil, fmt.Errorf("missing required column %q", name)
		}
	}

	var employees []ParsedRow
	var rowErrs []RowError

	for row := 1; ; row++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			rowErrs = append(rowErrs, RowError{Row: row, Error: err.Error(), Type: "validation"})
			continue
		}

		emp, err := rowToEmployee(record, cols)
		if err == nil {
			err = emp.Validate()
		}
		if err != nil {
			rowErrs = append(rowErrs, RowError{Row: row, Error: err.Error(), Type: "validation"})
			continue
		}
		employees = append(employees, ParsedRow{Row: row, Employee: emp})
	}

	return employees, rowErrs, nil
}

func rowToEmployee(record []string, cols map[string]int) (EmployeePayroll, error) {
	field := func(name string) string {
		idx := cols[name]
		if idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}
	amount := func(name string) (float64, error) {
		raw := field(name)
		if raw == "" {
			return 0, fmt.Errorf("%s is required", name)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, fmt.Errorf("%s is not a number: %q", name, raw)
		}
		return v, nil
	}

	emp := EmployeePayroll{
		FullName: field("full_name"),
		Email:    field("email"),
		Position: field("position"),
		Period:   field("period"),
	}

	var err error
	if emp.HealthDiscountAmount, err = amount("health_discount_amount"); err != nil {
		return emp, err
	}
	if emp.SocialDiscountAmount, err = amount("social_discount_amount"); err != nil {
		return emp, err
	}
	if emp.TaxesDiscountAmount, err = amount("taxes_discount_amount"); err != nil {
		return emp, err
	}
	if emp.OtherDiscountAmount, err = amount("other_discount_amount"); err != nil {
		return emp, err
	}
	if emp.GrossSalary, err = amount("gross_salary"); err != nil {
		return emp, err
	}
	if emp.GrossPayment, err = amount("gross_payment"); err != nil {
		return emp, err
	}
	if emp.NetPayment, err = amount("net_payment"); err != nil {
		return emp, err
	}
	return emp, nil
}
