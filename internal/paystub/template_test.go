package paystub

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"paystubs/internal/payroll"
)

func testEmployee() payroll.EmployeePayroll {
	return payroll.EmployeePayroll{
		FullName:             "John Doe",
		Email:                "john@example.com",
		Position:             "Developer",
		HealthDiscountAmount: 50,
		SocialDiscountAmount: 100,
		TaxesDiscountAmount:  75,
		OtherDiscountAmount:  25,
		GrossSalary:          3000,
		GrossPayment:         2800,
		NetPayment:           2600,
		Period:               "2023-12-15",
	}
}

func TestBuildHTML_English(t *testing.T) {
	html, err := BuildHTML(testEmployee(), "acme", "en", t.TempDir())
	assert.NoError(t, err)
	assert.Contains(t, html, "PAYSTUB")
	assert.Contains(t, html, "Pay Period")
	assert.Contains(t, html, "John Doe")
	assert.Contains(t, html, "$2600.00")
	assert.Contains(t, html, "-$75.00")
	assert.NotContains(t, html, "data:image/png")
}

func TestBuildHTML_DominicanSpanish(t *testing.T) {
	html, err := BuildHTML(testEmployee(), "acme", "do", t.TempDir())
	assert.NoError(t, err)
	assert.Contains(t, html, "COMPROBANTE DE PAGO")
	assert.Contains(t, html, "Período de Pago")
	assert.Contains(t, html, "Deducciones")
}

func TestBuildHTML_UnsupportedCountry(t *testing.T) {
	_, err := BuildHTML(testEmployee(), "acme", "fr", t.TempDir())
	assert.Error(t, err)
}

func TestBuildHTML_CompanyLogoInlined(t *testing.T) {
	dir := t.TempDir()
	logo := []byte{0x89, 'P', 'N', 'G'}
	assert.NoError(t, os.WriteFile(filepath.Join(dir, "acme.png"), logo, 0o644))

	html, err := BuildHTML(testEmployee(), "acme", "en", dir)
	assert.NoError(t, err)
	assert.Contains(t, html, "data:image/png;base64,")
}

func TestBuildHTML_LogoFallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, os.WriteFile(filepath.Join(dir, "default.png"), []byte("png"), 0o644))

	html, err := BuildHTML(testEmployee(), "unknown-co", "en", dir)
	assert.NoError(t, err)
	assert.Contains(t, html, "data:image/png;base64,")
}

func TestSupportedCountry(t *testing.T) {
	assert.True(t, SupportedCountry("do"))
	assert.True(t, SupportedCountry("en"))
	assert.False(t, SupportedCountry("us"))
	assert.False(t, SupportedCountry(""))
}

func TestFileName(t *testing.T) {
	emp := testEmployee()
	assert.Equal(t, "paystub_John_Doe_2023-12-15.pdf", FileName(emp))

	emp.FullName = "  Ana María Pérez "
	emp.Period = "2024-01-31"
	assert.Equal(t, "paystub_Ana_María_Pérez_2024-01-31.pdf", FileName(emp))

	emp.FullName = "Seán O'Brien / Jr."
	assert.Equal(t, "paystub_Seán_OBrien__Jr_2024-01-31.pdf", FileName(emp))

	emp.FullName = "../../etc/passwd"
	assert.Equal(t, "paystub_etcpasswd_2024-01-31.pdf", FileName(emp))
}
