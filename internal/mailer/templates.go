package mailer

import "fmt"

// PaystubTemplate returns the localized subject and body for a paystub
// notification. Unknown languages fall back to English.
func PaystubTemplate(employeeName, lang string) (subject, body string) {
	switch lang {
	case "do":
		subject = "Su Comprobante de Pago Está Listo"
		body = fmt.Sprintf(
			"Estimado/a %s,\n\n"+
				"Adjunto encontrará su comprobante de pago de este período.\n"+
				"Por favor contacte a RRHH si tiene alguna pregunta.\n\n"+
				"Saludos cordiales,\nDepartamento de Nómina",
			employeeName,
		)
	default:
		subject = "Your Paystub is Ready"
		body = fmt.Sprintf(
			"Dear %s,\n\n"+
				"Your paystub for this period is attached.\n"+
				"Please contact HR if you have any questions.\n\n"+
				"Best regards,\nPayroll Team",
			employeeName,
		)
	}
	return subject, body
}
