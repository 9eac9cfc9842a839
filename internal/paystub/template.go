// Package paystub renders payroll rows into the paystub document layout.
package paystub

import (
	"bytes"
	"embed"
	"encoding/base64"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"paystubs/internal/payroll"
)

//go:embed templates/*.html
var templateFS embed.FS

var tmpl = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Labels holds the localized section headings of a paystub.
type Labels struct {
	Title      string
	Employee   string
	Earnings   string
	Deductions string
	Summary    string
	Period     string
}

var labelSets = map[string]Labels{
	"en": {
		Title:      "PAYSTUB",
		Employee:   "Employee Information",
		Earnings:   "Earnings",
		Deductions: "Deductions",
		Summary:    "Payment Summary",
		Period:     "Pay Period",
	},
	"do": {
		Title:      "COMPROBANTE DE PAGO",
		Employee:   "Información del Empleado",
		Earnings:   "Ingresos",
		Deductions: "Deducciones",
		Summary:    "Resumen de Pago",
		Period:     "Período de Pago",
	},
}

// SupportedCountry reports whether a localization exists for the code.
func SupportedCountry(country string) bool {
	_, ok := labelSets[country]
	return ok
}

type templateData struct {
	Lang        string
	Labels      Labels
	Employee    payroll.EmployeePayroll
	LogoURI     template.URL
	GeneratedAt string
}

// BuildHTML renders the paystub HTML for one employee. The company logo is
// inlined as a data URI; a missing logo is silently omitted.
func BuildHTML(emp payroll.EmployeePayroll, company, country, logoDir string) (string, error) {
	labels, ok := labelSets[country]
	if !ok {
		return "", fmt.Errorf("unsupported country %q", country)
	}

	data := templateData{
		Lang:        country,
		Labels:      labels,
		Employee:    emp,
		LogoURI:     template.URL(logoDataURI(logoDir, company)),
		GeneratedAt: time.Now().Format("2006-01-02 15:04"),
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "paystub.html", data); err != nil {
		return "", fmt.Errorf("render paystub template: %w", err)
	}
	return buf.String(), nil
}

// logoDataURI loads <company>.png from logoDir, falling back to
// default.png. Returns "" when no logo is available.
func logoDataURI(logoDir, company string) string {
	for _, name := range []string{company + ".png", "default.png"} {
		raw, err := os.ReadFile(filepath.Join(logoDir, name))
		if err != nil {
			continue
		}
		return "data:image/png;base64," + base64.StdEncoding.EncodeToString(raw)
	}
	return ""
}

// FileName builds the canonical paystub file name for an employee,
// matching the pattern paystub_<name>_<period>.pdf. Spaces become
// underscores; accented letters are kept, anything else unsafe for a
// file name or URL path is dropped.
func FileName(emp payroll.EmployeePayroll) string {
	var name strings.Builder
	for _, r := range strings.TrimSpace(emp.FullName) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			name.WriteRune(r)
		case r == ' ':
			name.WriteRune('_')
		case r == '_' || r == '-':
			name.WriteRune(r)
		}
	}
	return fmt.Sprintf("paystub_%s_%s.pdf", name.String(), emp.Period)
}
