// internal/browser/waits_test.go
package browser_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/mediflow-e2e/internal/browser"
	"github.com/xkilldash9x/mediflow-e2e/internal/mocks"
	"github.com/xkilldash9x/mediflow-e2e/internal/wait"
)

func fastWaiter() *browser.Waiter {
	return browser.NewWaiter(300*time.Millisecond, 5*time.Millisecond)
}

func TestWaiter_URLContains(t *testing.T) {
	t.Run("returns the matching URL", func(t *testing.T) {
		page := new(mocks.MockPage)
		page.On("Location", mock.Anything).Return("http://127.0.0.1:8080/login", nil).Twice()
		page.On("Location", mock.Anything).Return("http://127.0.0.1:8080/admin/dashboard", nil)

		loc, err := fastWaiter().URLContains(context.Background(), page, "/admin/dashboard")
		require.NoError(t, err)
		assert.Equal(t, "http://127.0.0.1:8080/admin/dashboard", loc)
	})

	t.Run("times out naming the fragment", func(t *testing.T) {
		page := new(mocks.MockPage)
		page.On("Location", mock.Anything).Return("http://127.0.0.1:8080/login", nil)

		_, err := fastWaiter().URLContains(context.Background(), page, "/portal/success")
		require.Error(t, err)
		assert.ErrorIs(t, err, wait.ErrTimeout)
		assert.Contains(t, err.Error(), `URL contains "/portal/success"`)
	})
}

func TestWaiter_PresentAndClickable(t *testing.T) {
	page := new(mocks.MockPage)
	page.On("Exists", mock.Anything, "//x").Return(false, nil).Once()
	page.On("Exists", mock.Anything, "//x").Return(true, nil)
	page.On("Clickable", mock.Anything, "//x").Return(false, fmt.Errorf("detached")).Once()
	page.On("Clickable", mock.Anything, "//x").Return(true, nil)

	w := fastWaiter()
	require.NoError(t, w.Present(context.Background(), page, "//x"))
	require.NoError(t, w.Clickable(context.Background(), page, "//x"))
	page.AssertExpectations(t)
}

func TestWaiter_AlertPresent(t *testing.T) {
	page := new(mocks.MockPage)
	page.On("DialogOpen").Return(false).Once()
	page.On("DialogOpen").Return(true)

	require.NoError(t, fastWaiter().AlertPresent(context.Background(), page))
}

func TestWaiter_TrackAndStale(t *testing.T) {
	page := new(mocks.MockPage)
	row := "//td[text()='Teste User abcxyz']/parent::tr"
	var marker string

	page.On("Exists", mock.Anything, row).Return(true, nil)
	page.On("Mark", mock.Anything, row, mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) { marker = args.String(2) }).
		Return(nil)

	w := fastWaiter()
	got, err := w.Track(context.Background(), page, row)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, marker, got)

	page.On("MarkerPresent", mock.Anything, got).Return(true, nil).Twice()
	page.On("MarkerPresent", mock.Anything, got).Return(false, nil)
	require.NoError(t, w.Stale(context.Background(), page, got))
}

func TestWaiter_StaleTimesOut(t *testing.T) {
	page := new(mocks.MockPage)
	page.On("MarkerPresent", mock.Anything, "m-1").Return(true, nil)

	err := fastWaiter().Stale(context.Background(), page, "m-1")
	assert.ErrorIs(t, err, wait.ErrTimeout)
}

func TestWaiter_TextContains(t *testing.T) {
	page := new(mocks.MockPage)
	cell := "//td[5]"
	page.On("Text", mock.Anything, cell).Return("", fmt.Errorf("%s: %w", cell, browser.ErrElementNotFound)).Once()
	page.On("Text", mock.Anything, cell).Return("Pendente", nil).Once()
	page.On("Text", mock.Anything, cell).Return("Fornecido em 01/10/2025", nil)

	text, err := fastWaiter().TextContains(context.Background(), page, cell, "Fornecido")
	require.NoError(t, err)
	assert.Equal(t, "Fornecido em 01/10/2025", text)
}

func TestWaiter_ContentStabilized(t *testing.T) {
	container := "//*[@id='ai-summary-container']"

	t.Run("returns once placeholder is gone and text is long enough", func(t *testing.T) {
		page := new(mocks.MockPage)
		page.On("Text", mock.Anything, container).Return("Gerando resumo, por favor aguarde...", nil).Twice()
		page.On("Text", mock.Anything, container).Return("Curto", nil).Once()
		page.On("Text", mock.Anything, container).Return("Temas Recorrentes: ansiedade. Evolução: positiva.", nil)

		// The default bound is deliberately too short; the per-call timeout governs.
		w := browser.NewWaiter(time.Millisecond, 5*time.Millisecond)
		text, err := w.ContentStabilized(context.Background(), page, container, "aguarde", 20, time.Second)
		require.NoError(t, err)
		assert.Contains(t, text, "Temas Recorrentes")
	})

	t.Run("times out when the region never updates", func(t *testing.T) {
		page := new(mocks.MockPage)
		page.On("Text", mock.Anything, container).Return("Por favor, aguarde enquanto a IA analisa o prontuário.", nil)

		start := time.Now()
		_, err := fastWaiter().ContentStabilized(context.Background(), page, container, "aguarde", 20, 100*time.Millisecond)
		require.Error(t, err)
		assert.ErrorIs(t, err, wait.ErrTimeout)
		assert.Less(t, time.Since(start), time.Second)
		assert.True(t, strings.Contains(err.Error(), "aguarde"))
	})
}

func TestStabilized(t *testing.T) {
	assert.False(t, browser.Stabilized("Por favor, aguarde...", "aguarde", 5))
	assert.True(t, browser.Stabilized("Temas: ansiedade. Evolução: Aguarde reavaliação em 30 dias.", "aguarde", 20),
		"placeholder match is case-sensitive")
	assert.False(t, browser.Stabilized("   exactly twenty chars  ", "", 20))
	assert.False(t, browser.Stabilized("12345678901234567890", "aguarde", 20))
	assert.True(t, browser.Stabilized("123456789012345678901", "aguarde", 20))
	assert.True(t, browser.Stabilized("Evolução é contínua e positiva", "aguarde", 20))
}

func TestWaiter_WithTimeout(t *testing.T) {
	w := fastWaiter()
	longer := w.WithTimeout(time.Minute)
	assert.Equal(t, time.Minute, longer.Timeout())
	assert.Equal(t, 300*time.Millisecond, w.Timeout(), "the receiver keeps its timeout")
}
