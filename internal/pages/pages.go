// File: internal/pages/pages.go
// Package pages describes the MediFlow web surface the harness drives: the
// routes it visits and the locators it relies on. The application owns the
// markup, so everything here is a contract the harness consumes.
package pages

import "strings"

// Routes.
const (
	LoginPath  = "/login"
	LogoutPath = "/logout"

	AdminDashboardPath     = "/admin/dashboard"
	TherapistDashboardPath = "/terapeuta/dashboard"
	SecretaryDashboardPath = "/secretaria/dashboard"
	AdminAgendaPath        = "/admin/agenda"
	AdminUsersPath         = "/admin/users"
	AdminNewUserPath       = "/admin/users/new"
	AdminPatientsPath      = "/admin/patients"
	AdminNewPatientPath    = "/admin/patients/new"
	AdminMonitoringPath    = "/admin/monitoring"
	AdminAuditLogsPath     = "/admin/audit-logs"
	PatientProfilePrefix   = "/admin/patients/profile/"
	PatientEditPrefix      = "/admin/patients/edit/"
	PortalLoginPrefix      = "/portal/login/"
	PortalConsentPath      = "/portal/consent"
	PortalSuccessPath      = "/portal/success"
)

// PortalLoginPath is the consent link handed to a patient.
func PortalLoginPath(token string) string {
	return PortalLoginPrefix + token
}

// Login form.
const (
	EmailField    = "//*[@id='email']"
	PasswordField = "//*[@id='password']"
	LoginSubmit   = "//button[@type='submit']"
	LogoutLink    = "//a[contains(@href,'/logout')]"
)

// Generic controls.
const (
	SubmitButton = "//*[contains(concat(' ', normalize-space(@class), ' '), ' btn-submit ')]"
	SearchBox    = "//*[@id='search-box']"
)

// New user form.
const (
	UserNameField     = "//*[@id='name']"
	UserEmailField    = "//*[@id='email']"
	UserPasswordField = "//*[@id='password']"
	UserTypeSelect    = "//*[@id='user_type']"
)

// New patient form.
const (
	PatientNameField = "//*[@id='client_name']"
	PatientSubmit    = "//div[@class='form-actions']/button[@type='submit']"
)

// PatientField locates a patient form input or textarea by its name attribute.
func PatientField(name string) string {
	return "//*[@name=" + Literal(name) + "]"
}

// Radio locates a radio input by name and value.
func Radio(name, value string) string {
	return "//input[@name=" + Literal(name) + "][@value=" + Literal(value) + "]"
}

// Consent portal.
const (
	ConsentNameField       = "//*[@id='consent_name_inline']"
	ConsentNationalIDField = "//*[@id='consent_cpf_rg_inline']"
	HowFoundField          = "how_found"
)

// Patient profile and appointments.
const (
	DoctorSelect         = "//*[@id='doctor_id']"
	AppointmentDate      = "//*[@id='appointment_date']"
	AppointmentStartTime = "//*[@id='start_time']"
	AppointmentPrice     = "//*[@id='price']"
	AppointmentNotes     = "//*[@id='notes']"
	AppointmentSubmit    = "//fieldset[legend[text()='Agendar Nova Consulta']]//button[@type='submit']"
	AppointmentsLegend   = "//legend[text()='Consultas Agendadas']"
)

// AI summary.
const (
	AISummaryButton    = "//*[@id='btn-ai-summary']"
	AISummaryContainer = "//*[@id='ai-summary-container']"
)

// Link texts used inside record rows.
const (
	RemoveLinkText     = "Remover"
	ProfileLinkText    = "Ver Perfil e Agenda"
	EditRecordLinkText = "Editar Dados / Ver Prontuário"
	MarkPaidLinkText   = "Marcar como Pago"
	ConsentLinkButton  = "Ver Link"
	ConsentGivenStatus = "Fornecido"
	PaidStatus         = "pago"
	PaidMarker         = "✅"
	PendingStatus      = "pendente"
)

// RowByCellText locates the table row containing a cell whose text is exactly text.
func RowByCellText(text string) string {
	return "//td[text()=" + Literal(text) + "]/parent::tr"
}

// RowByCellContaining locates the table row containing a cell whose text includes text.
func RowByCellContaining(text string) string {
	return "//td[contains(text()," + Literal(text) + ")]/parent::tr"
}

// StatusCell is the consent status column of a patient row.
func StatusCell(row string) string { return row + "/td[5]" }

// PaymentCell is the payment column of an appointment row.
func PaymentCell(row string) string { return row + "/td[4]" }

// LinkIn locates a link with the given text inside scope.
func LinkIn(scope, text string) string {
	return scope + "//a[normalize-space(.)=" + Literal(text) + "]"
}

// Link locates a link with the given text anywhere on the page.
func Link(text string) string {
	return "//a[normalize-space(.)=" + Literal(text) + "]"
}

// ButtonIn locates a button with the given text inside scope.
func ButtonIn(scope, text string) string {
	return scope + "//button[text()=" + Literal(text) + "]"
}

// Literal quotes s as an XPath 1.0 string literal. XPath has no escape
// sequences, so a value containing both quote kinds is built with concat().
func Literal(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, 2*len(parts)-1)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		if p != "" {
			quoted = append(quoted, "'"+p+"'")
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}
