// File: internal/scenario/fixtures.go
package scenario

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/xkilldash9x/mediflow-e2e/internal/config"
	"github.com/xkilldash9x/mediflow-e2e/internal/handoff"
	"github.com/xkilldash9x/mediflow-e2e/internal/pages"
)

const suffixLetters = "abcdefghijklmnopqrstuvwxyz"

// SuffixLength is the number of random letters in fixture names.
const SuffixLength = 6

// RandomSuffix returns n random lowercase letters.
func RandomSuffix(rng *rand.Rand, n int) string {
	var b strings.Builder
	b.Grow(n)
	for range n {
		b.WriteByte(suffixLetters[rng.IntN(len(suffixLetters))])
	}
	return b.String()
}

// UserFixture is the staff account created and removed through the UI.
type UserFixture struct {
	Name     string
	Email    string
	Password string
	Role     string
}

// NewUserFixture derives the user fixture from suffix.
func NewUserFixture(suffix, password, role string) UserFixture {
	return UserFixture{
		Name:     "Teste User " + suffix,
		Email:    fmt.Sprintf("teste.user.%s@email.com", suffix),
		Password: password,
		Role:     role,
	}
}

// FormValue is one named input of a form.
type FormValue struct {
	Name  string
	Value string
}

// PatientFixture is the fully populated patient record.
type PatientFixture struct {
	Name string
	// Fields are typed into inputs located by name, in order.
	Fields []FormValue
	// Levels are the emotional assessment radio choices.
	Levels []FormValue
}

// NewPatientFixture derives the patient fixture from suffix.
func NewPatientFixture(suffix string) PatientFixture {
	return PatientFixture{
		Name: "Paciente Completo " + suffix,
		Fields: []FormValue{
			{"address_street", "Rua dos Testes, 123"},
			{"mobile", "11912345678"},
			{"dob", "1990-10-15"},
			{"email", fmt.Sprintf("paciente.%s@teste.com", suffix)},
			{"profession", "Engenheiro de Testes"},
			{"main_complaint", "Sente uma ansiedade generalizada e constante, com picos de pânico em situações de estresse no trabalho."},
			{"complaint_history", "Os sintomas se intensificaram nos últimos 8 meses, após uma mudança de responsabilidades no emprego."},
			{"signs_symptoms", "Aperto no peito, taquicardia, insônia, irritabilidade, dificuldade de concentração."},
			{"current_treatment", "Nenhum tratamento medicamentoso no momento. Tentou meditação através de aplicativos."},
			{"notes", "Paciente demonstra bom insight sobre os gatilhos de sua ansiedade, mas apresenta dificuldade em estabelecer limites."},
		},
		Levels: []FormValue{
			{"anxiety_level", "8"},
			{"anger_level", "3"},
			{"fear_level", "4"},
			{"sadness_level", "6"},
			{"joy_level", "5"},
			{"energy_level", "7"},
		},
	}
}

// AppointmentFixture is the appointment scheduled from the patient profile.
type AppointmentFixture struct {
	Therapist string
	When      time.Time
	Price     string
	Notes     string
}

// DateKeys is the key sequence that fills a month/day/year date input. A
// segment is typed without its leading zero only when its first digit
// already forces the input to move on, so 2025-09-22 becomes "9222025".
func (a AppointmentFixture) DateKeys() string {
	m, d := int(a.When.Month()), a.When.Day()
	month := fmt.Sprintf("%02d", m)
	if m >= 2 && m <= 9 {
		month = fmt.Sprint(m)
	}
	day := fmt.Sprintf("%02d", d)
	if d >= 4 && d <= 9 {
		day = fmt.Sprint(d)
	}
	return fmt.Sprintf("%s%s%04d", month, day, a.When.Year())
}

// TimeKeys is the value typed into the start time input.
func (a AppointmentFixture) TimeKeys() string { return a.When.Format("15:04") }

// Display is how the appointment list renders the date and time.
func (a AppointmentFixture) Display() string { return a.When.Format("02/01/2006 15:04") }

// Fixtures is the data one run creates through the UI.
type Fixtures struct {
	User        UserFixture
	Patient     PatientFixture
	Appointment AppointmentFixture
	Consent     handoff.ConsentForm
}

// NewFixtures builds the run's fixtures. User and patient get independent
// random suffixes.
func NewFixtures(cfg config.Interface, rng *rand.Rand) (*Fixtures, error) {
	sc := cfg.Scenario()
	when, err := sc.Appointment.When()
	if err != nil {
		return nil, err
	}
	patient := NewPatientFixture(RandomSuffix(rng, SuffixLength))
	return &Fixtures{
		User:    NewUserFixture(RandomSuffix(rng, SuffixLength), cfg.Credentials().NewUserPassword, sc.NewUserRole),
		Patient: patient,
		Appointment: AppointmentFixture{
			Therapist: sc.Appointment.Therapist,
			When:      when,
			Price:     sc.Appointment.Price,
			Notes:     sc.Appointment.Notes,
		},
		Consent: handoff.ConsentForm{
			Name:       patient.Name,
			NationalID: sc.Consent.NationalID,
			HowFound:   sc.Consent.HowFound,
		},
	}, nil
}

// Row locators derived from the fixtures.

func (f *Fixtures) UserRow() string        { return pages.RowByCellText(f.User.Name) }
func (f *Fixtures) PatientRow() string     { return pages.RowByCellText(f.Patient.Name) }
func (f *Fixtures) AppointmentRow() string { return pages.RowByCellContaining(f.Appointment.Display()) }
