// File: internal/scenario/journey.go
package scenario

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/mediflow-e2e/internal/browser"
	"github.com/xkilldash9x/mediflow-e2e/internal/handoff"
	"github.com/xkilldash9x/mediflow-e2e/internal/pages"
)

// NavigationCheck is one administrative section visited by the smoke test.
type NavigationCheck struct {
	Path       string
	Checkpoint string
}

// AdminSections are visited in order after login.
var AdminSections = []NavigationCheck{
	{pages.AdminAgendaPath, "agenda"},
	{pages.AdminUsersPath, "gerenciar_usuarios"},
	{pages.AdminPatientsPath, "gerenciar_pacientes"},
	{pages.AdminMonitoringPath, "monitoramento"},
	{pages.AdminAuditLogsPath, "logs_auditoria"},
}

// AcceptanceJourney is the complete administrator journey, from login to
// logout, including the patient consent handoff.
func AcceptanceJourney() []Step {
	return []Step{
		{Name: "admin login", Target: AdminAuthenticated, Run: adminLogin},
		{Name: "navigation smoke test", Target: NavigationVerified, Run: navigationSmokeTest},
		{Name: "create user", Target: UserCreated, Run: createUser},
		{Name: "delete user", Target: UserDeleted, Run: deleteUser},
		{Name: "create patient", Target: PatientCreated, Run: createPatient},
		{Name: "extract consent token", Target: TokenExtracted, Run: extractToken},
		{Name: "patient consent", Target: PatientConsented, Run: patientConsent},
		{Name: "verify consent status", Target: ConsentStatusVerified, Run: verifyConsentStatus},
		{Name: "schedule appointment", Target: AppointmentScheduled, Run: scheduleAppointment},
		{Name: "mark payment", Target: PaymentMarked, Run: markPayment},
		{Name: "generate AI summary", Target: AISummaryGenerated, Run: generateAISummary},
		{Name: "remove patient", Target: PatientDeleted, Run: removePatient},
		{Name: "logout", Target: LoggedOut, Run: logout},
	}
}

// adminPage activates the administrator's tab.
func adminPage(ctx context.Context, rc *RunContext) (browser.Page, *browser.Waiter, error) {
	page, err := rc.Admin.Page(ctx)
	if err != nil {
		return nil, nil, err
	}
	return page, rc.Admin.Waits(), nil
}

// typeAll types each value into its locator, in order.
func typeAll(ctx context.Context, page browser.Page, fields ...FormValue) error {
	for _, f := range fields {
		if err := page.Type(ctx, f.Name, f.Value); err != nil {
			return fmt.Errorf("failed to type into %s: %w", f.Name, err)
		}
	}
	return nil
}

func adminLogin(ctx context.Context, rc *RunContext) error {
	if err := rc.Admin.Login(ctx); err != nil {
		return err
	}
	rc.Admin.Screenshot(ctx, "dashboard_inicial")
	return nil
}

func navigationSmokeTest(ctx context.Context, rc *RunContext) error {
	for _, s := range AdminSections {
		if err := rc.Admin.NavigateAndConfirm(ctx, s.Path, s.Path); err != nil {
			return err
		}
		rc.Admin.Screenshot(ctx, s.Checkpoint)
	}
	rc.Logger.Info("All administrative sections reachable.", zap.Int("sections", len(AdminSections)))
	return nil
}

func createUser(ctx context.Context, rc *RunContext) error {
	u := rc.Fixtures.User
	rc.Logger.Info("Adding user.", zap.String("name", u.Name), zap.String("email", u.Email))
	if err := rc.Admin.NavigateAndConfirm(ctx, pages.AdminNewUserPath, pages.AdminNewUserPath); err != nil {
		return err
	}
	page, w, err := adminPage(ctx, rc)
	if err != nil {
		return err
	}
	if err := w.Present(ctx, page, pages.UserNameField); err != nil {
		return err
	}
	err = typeAll(ctx, page,
		FormValue{pages.UserNameField, u.Name},
		FormValue{pages.UserEmailField, u.Email},
		FormValue{pages.UserPasswordField, u.Password},
	)
	if err != nil {
		return err
	}
	if err := page.SelectByText(ctx, pages.UserTypeSelect, u.Role); err != nil {
		return fmt.Errorf("failed to select role %q: %w", u.Role, err)
	}
	rc.Admin.Screenshot(ctx, "formulario_novo_usuario")
	if err := page.Click(ctx, pages.SubmitButton); err != nil {
		return fmt.Errorf("failed to submit user form: %w", err)
	}

	if err := w.Present(ctx, page, rc.Fixtures.UserRow()); err != nil {
		return err
	}
	rc.Admin.Screenshot(ctx, "lista_com_novo_usuario")
	return nil
}

// removeRow deletes the record shown in row through its confirmable
// "Remover" link and waits until the row is gone.
func removeRow(ctx context.Context, rc *RunContext, row string) error {
	page, w, err := adminPage(ctx, rc)
	if err != nil {
		return err
	}
	marker, err := w.Track(ctx, page, row)
	if err != nil {
		return err
	}
	// The confirm() dialog blocks the click that opens it.
	if err := page.ClickDeferred(ctx, pages.LinkIn(row, pages.RemoveLinkText)); err != nil {
		return fmt.Errorf("failed to click remove: %w", err)
	}
	if err := w.AlertPresent(ctx, page); err != nil {
		return err
	}
	if err := page.AcceptDialog(ctx); err != nil {
		return fmt.Errorf("failed to accept removal: %w", err)
	}
	return w.Stale(ctx, page, marker)
}

func deleteUser(ctx context.Context, rc *RunContext) error {
	rc.Logger.Info("Removing user.", zap.String("name", rc.Fixtures.User.Name))
	if err := removeRow(ctx, rc, rc.Fixtures.UserRow()); err != nil {
		return err
	}
	rc.Admin.Screenshot(ctx, "lista_apos_remocao_usuario")
	return nil
}

func createPatient(ctx context.Context, rc *RunContext) error {
	p := rc.Fixtures.Patient
	rc.Logger.Info("Adding patient.", zap.String("name", p.Name))
	if err := rc.Admin.NavigateAndConfirm(ctx, pages.AdminNewPatientPath, pages.AdminNewPatientPath); err != nil {
		return err
	}
	page, w, err := adminPage(ctx, rc)
	if err != nil {
		return err
	}
	if err := w.Present(ctx, page, pages.PatientNameField); err != nil {
		return err
	}
	if err := page.Type(ctx, pages.PatientNameField, p.Name); err != nil {
		return fmt.Errorf("failed to type patient name: %w", err)
	}
	for _, f := range p.Fields {
		if err := page.Type(ctx, pages.PatientField(f.Name), f.Value); err != nil {
			return fmt.Errorf("failed to fill %s: %w", f.Name, err)
		}
	}
	for _, l := range p.Levels {
		if err := page.Click(ctx, pages.Radio(l.Name, l.Value)); err != nil {
			return fmt.Errorf("failed to choose %s=%s: %w", l.Name, l.Value, err)
		}
	}
	rc.Admin.Screenshot(ctx, "formulario_novo_paciente_preenchido")
	if err := page.Click(ctx, pages.PatientSubmit); err != nil {
		return fmt.Errorf("failed to submit patient form: %w", err)
	}

	// The form itself lives under the list path, so wait until we left it.
	return w.Until(ctx, "redirected to the patient list", func(ctx context.Context) (bool, error) {
		loc, err := page.Location(ctx)
		if err != nil {
			return false, err
		}
		return strings.Contains(loc, pages.AdminPatientsPath) && !strings.Contains(loc, pages.AdminNewPatientPath), nil
	})
}

func extractToken(ctx context.Context, rc *RunContext) error {
	token, err := rc.Handoff.ExtractToken(ctx, rc.Fixtures.Patient.Name)
	if err != nil {
		return err
	}
	rc.Token = token
	rc.Report.Handoff = &handoff.Result{Token: token, ConsentURL: rc.Handoff.ConsentURL(token)}
	return nil
}

func patientConsent(ctx context.Context, rc *RunContext) error {
	return rc.Handoff.SubmitConsent(ctx, rc.Token, rc.Fixtures.Consent)
}

func verifyConsentStatus(ctx context.Context, rc *RunContext) error {
	name := rc.Fixtures.Patient.Name
	status, err := rc.Handoff.VerifyStatus(ctx, name)
	if err != nil {
		return err
	}
	if rc.Report.Handoff == nil {
		rc.Report.Handoff = &handoff.Result{Token: rc.Token}
	}
	rc.Report.Handoff.Status = status

	replay, err := rc.Handoff.VerifyReplay(ctx, rc.Token, name)
	rc.Report.Handoff.Replay = replay
	return err
}

func scheduleAppointment(ctx context.Context, rc *RunContext) error {
	a := rc.Fixtures.Appointment
	page, w, err := adminPage(ctx, rc)
	if err != nil {
		return err
	}

	row := rc.Fixtures.PatientRow()
	if err := w.Present(ctx, page, row); err != nil {
		return err
	}
	if err := page.Click(ctx, pages.LinkIn(row, pages.ProfileLinkText)); err != nil {
		return fmt.Errorf("failed to open patient profile: %w", err)
	}
	if err := rc.Admin.AwaitLocation(ctx, pages.PatientProfilePrefix); err != nil {
		return err
	}
	rc.Admin.Screenshot(ctx, "perfil_paciente_para_agendamento")

	rc.Logger.Info("Scheduling appointment.", zap.String("therapist", a.Therapist), zap.String("when", a.Display()))
	if err := page.SelectByText(ctx, pages.DoctorSelect, a.Therapist); err != nil {
		return fmt.Errorf("failed to select therapist %q: %w", a.Therapist, err)
	}
	err = typeAll(ctx, page,
		FormValue{pages.AppointmentDate, a.DateKeys()},
		FormValue{pages.AppointmentStartTime, a.TimeKeys()},
		FormValue{pages.AppointmentPrice, a.Price},
		FormValue{pages.AppointmentNotes, a.Notes},
	)
	if err != nil {
		return err
	}
	rc.Admin.Screenshot(ctx, "formulario_agendamento_preenchido")

	if err := w.Clickable(ctx, page, pages.AppointmentSubmit); err != nil {
		return err
	}
	if err := page.Click(ctx, pages.AppointmentSubmit); err != nil {
		return fmt.Errorf("failed to submit appointment: %w", err)
	}
	if err := w.Present(ctx, page, pages.AppointmentsLegend); err != nil {
		return err
	}
	if _, err := w.TextContains(ctx, page, rc.Fixtures.AppointmentRow(), a.Therapist, a.Price, pages.PendingStatus); err != nil {
		return err
	}
	rc.Admin.Screenshot(ctx, "consulta_agendada_com_sucesso")
	return nil
}

func markPayment(ctx context.Context, rc *RunContext) error {
	page, w, err := adminPage(ctx, rc)
	if err != nil {
		return err
	}
	row := rc.Fixtures.AppointmentRow()
	if err := page.Click(ctx, pages.LinkIn(row, pages.MarkPaidLinkText)); err != nil {
		return fmt.Errorf("failed to mark appointment as paid: %w", err)
	}
	if _, err := w.TextContains(ctx, page, pages.PaymentCell(row), pages.PaidMarker, pages.PaidStatus); err != nil {
		return err
	}
	rc.Admin.Screenshot(ctx, "consulta_marcada_como_paga")
	return nil
}

// openPatientRecord searches the patient list and opens the record's edit
// page.
func openPatientRecord(ctx context.Context, rc *RunContext) (browser.Page, *browser.Waiter, error) {
	if err := rc.Admin.NavigateAndConfirm(ctx, pages.AdminPatientsPath, pages.AdminPatientsPath); err != nil {
		return nil, nil, err
	}
	if err := rc.Admin.Search(ctx, rc.Fixtures.Patient.Name); err != nil {
		return nil, nil, err
	}
	page, w, err := adminPage(ctx, rc)
	if err != nil {
		return nil, nil, err
	}
	row := rc.Fixtures.PatientRow()
	if err := w.Present(ctx, page, row); err != nil {
		return nil, nil, err
	}
	if err := page.Click(ctx, pages.LinkIn(row, pages.ProfileLinkText)); err != nil {
		return nil, nil, fmt.Errorf("failed to open patient profile: %w", err)
	}
	if err := rc.Admin.AwaitLocation(ctx, pages.PatientProfilePrefix); err != nil {
		return nil, nil, err
	}
	edit := pages.Link(pages.EditRecordLinkText)
	if err := w.Clickable(ctx, page, edit); err != nil {
		return nil, nil, err
	}
	if err := page.Click(ctx, edit); err != nil {
		return nil, nil, fmt.Errorf("failed to open patient record: %w", err)
	}
	if err := rc.Admin.AwaitLocation(ctx, pages.PatientEditPrefix); err != nil {
		return nil, nil, err
	}
	return page, w, nil
}

func generateAISummary(ctx context.Context, rc *RunContext) error {
	sc := rc.Config.Scenario()
	page, w, err := openPatientRecord(ctx, rc)
	if err != nil {
		return err
	}
	if err := w.Clickable(ctx, page, pages.AISummaryButton); err != nil {
		return err
	}
	if err := page.Click(ctx, pages.AISummaryButton); err != nil {
		return fmt.Errorf("failed to request AI summary: %w", err)
	}
	if err := w.Present(ctx, page, pages.AISummaryContainer); err != nil {
		return err
	}

	rc.Logger.Info("Waiting for the AI summary.", zap.Duration("timeout", sc.AITimeout))
	summary, err := w.ContentStabilized(ctx, page, pages.AISummaryContainer, sc.AIPlaceholder, sc.AIMinLength, sc.AITimeout)
	if err != nil {
		return err
	}
	for _, marker := range sc.AIMarkers {
		if !strings.Contains(summary, marker) {
			return fmt.Errorf("AI summary does not mention %q", marker)
		}
	}
	rc.Admin.Screenshot(ctx, "resumo_ia_gerado_pelo_admin")
	rc.Logger.Info("AI summary generated.", zap.String("preview", preview(summary, 100)))
	return nil
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func removePatient(ctx context.Context, rc *RunContext) error {
	name := rc.Fixtures.Patient.Name
	rc.Logger.Info("Removing patient.", zap.String("name", name))
	if err := rc.Admin.NavigateAndConfirm(ctx, pages.AdminPatientsPath, pages.AdminPatientsPath); err != nil {
		return err
	}
	if err := rc.Admin.Search(ctx, name); err != nil {
		return err
	}
	return removeRow(ctx, rc, rc.Fixtures.PatientRow())
}

func logout(ctx context.Context, rc *RunContext) error {
	return rc.Admin.Logout(ctx)
}
