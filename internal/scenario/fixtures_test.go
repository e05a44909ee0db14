// File: internal/scenario/fixtures_test.go
package scenario

import (
	"math/rand/v2"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/mediflow-e2e/internal/config"
)

func TestRandomSuffix(t *testing.T) {
	a := RandomSuffix(rand.New(rand.NewPCG(1, 2)), SuffixLength)
	b := RandomSuffix(rand.New(rand.NewPCG(1, 2)), SuffixLength)
	assert.Equal(t, a, b, "same seed, same suffix")
	assert.Regexp(t, regexp.MustCompile(`^[a-z]{6}$`), a)
	assert.Empty(t, RandomSuffix(rand.New(rand.NewPCG(1, 2)), 0))
}

func TestNewUserFixture(t *testing.T) {
	u := NewUserFixture("abcxyz", "senha123", "secretaria")
	assert.Equal(t, "Teste User abcxyz", u.Name)
	assert.Equal(t, "teste.user.abcxyz@email.com", u.Email)
	assert.Equal(t, "secretaria", u.Role)
}

func TestNewFixtures(t *testing.T) {
	cfg := config.NewDefaultConfig()
	f, err := NewFixtures(cfg, rand.New(rand.NewPCG(7, 7)))
	require.NoError(t, err)

	assert.Regexp(t, `^Teste User [a-z]{6}$`, f.User.Name)
	assert.Regexp(t, `^Paciente Completo [a-z]{6}$`, f.Patient.Name)
	assert.Equal(t, "secretaria", f.User.Role)
	assert.Equal(t, "senha123", f.User.Password)

	assert.Equal(t, "9222025", f.Appointment.DateKeys())
	assert.Equal(t, "13:00", f.Appointment.TimeKeys())
	assert.Equal(t, "22/09/2025 13:00", f.Appointment.Display())
	assert.Equal(t, "200.00", f.Appointment.Price)
	assert.Equal(t, "Dr. Exemplo", f.Appointment.Therapist)

	assert.Equal(t, "34657488082", f.Consent.NationalID)
	assert.Equal(t, "Google", f.Consent.HowFound)
	assert.Equal(t, f.Patient.Name, f.Consent.Name)

	assert.Equal(t, "//td[text()='"+f.Patient.Name+"']/parent::tr", f.PatientRow())
	assert.Equal(t, "//td[contains(text(),'22/09/2025 13:00')]/parent::tr", f.AppointmentRow())
	assert.Len(t, f.Patient.Levels, 6)
}

func TestNewFixtures_InvalidDate(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.ScenarioCfg.Appointment.Date = "22/09/2025"
	_, err := NewFixtures(cfg, rand.New(rand.NewPCG(1, 1)))
	assert.Error(t, err)
}

func TestAppointmentDateKeys(t *testing.T) {
	tests := []struct {
		date string
		want string
	}{
		{"2025-09-22", "9222025"},
		{"2025-01-05", "0152025"},
		{"2025-10-03", "10032025"},
		{"2025-12-31", "12312025"},
		{"2026-02-01", "2012026"},
	}
	for _, tt := range tests {
		t.Run(tt.date, func(t *testing.T) {
			when, err := time.Parse("2006-01-02", tt.date)
			require.NoError(t, err)
			assert.Equal(t, tt.want, AppointmentFixture{When: when}.DateKeys())
		})
	}
}
