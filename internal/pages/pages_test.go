package pages

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLiteral(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Paciente Completo abcdef", "'Paciente Completo abcdef'"},
		{"single quote", "D'Ávila", `"D'Ávila"`},
		{"double quote", `Dr. "House"`, `'Dr. "House"'`},
		{"both quotes", `O'Neil "Jr"`, `concat('O', "'", 'Neil "Jr"')`},
		{"leading single quote", `'a"`, `concat("'", 'a"')`},
		{"empty", "", "''"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Literal(tt.in))
		})
	}
}

func TestRowLocators(t *testing.T) {
	row := RowByCellText("Teste User abc")
	assert.Equal(t, "//td[text()='Teste User abc']/parent::tr", row)
	assert.Equal(t, row+"/td[5]", StatusCell(row))
	assert.Equal(t, row+"/td[4]", PaymentCell(row))
	assert.Equal(t, row+"//a[normalize-space(.)='Remover']", LinkIn(row, RemoveLinkText))
	assert.Equal(t, row+"//button[text()='Ver Link']", ButtonIn(row, ConsentLinkButton))

	assert.Equal(t, "//td[contains(text(),'22/09/2025 13:00')]/parent::tr", RowByCellContaining("22/09/2025 13:00"))
}

func TestFormLocators(t *testing.T) {
	assert.Equal(t, "//input[@name='how_found'][@value='Google']", Radio(HowFoundField, "Google"))
	assert.Equal(t, "//*[@name='address_street']", PatientField("address_street"))
	assert.Equal(t, "/portal/login/tok-123", PortalLoginPath("tok-123"))
}
