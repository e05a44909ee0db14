// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/mediflow-e2e/internal/browser"
	"github.com/xkilldash9x/mediflow-e2e/internal/config"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

var _ config.Interface = (*MockConfig)(nil)

// --- Getters ---

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Database() config.DatabaseConfig {
	args := m.Called()
	return args.Get(0).(config.DatabaseConfig)
}

func (m *MockConfig) Environment() config.EnvironmentConfig {
	args := m.Called()
	return args.Get(0).(config.EnvironmentConfig)
}

func (m *MockConfig) Browser() config.BrowserConfig {
	args := m.Called()
	return args.Get(0).(config.BrowserConfig)
}

func (m *MockConfig) Screenshots() config.ScreenshotConfig {
	args := m.Called()
	return args.Get(0).(config.ScreenshotConfig)
}

func (m *MockConfig) Scenario() config.ScenarioConfig {
	args := m.Called()
	return args.Get(0).(config.ScenarioConfig)
}

func (m *MockConfig) Credentials() config.CredentialsConfig {
	args := m.Called()
	return args.Get(0).(config.CredentialsConfig)
}

// --- Setters ---

func (m *MockConfig) SetBaseURL(u string)          { m.Called(u) }
func (m *MockConfig) SetBrowserHeadless(b bool)    { m.Called(b) }
func (m *MockConfig) SetScreenshotDir(dir string)  { m.Called(dir) }
func (m *MockConfig) SetReportPath(p string)       { m.Called(p) }
func (m *MockConfig) SetAITimeout(d time.Duration) { m.Called(d) }
func (m *MockConfig) SetTokenReplay(p string)      { m.Called(p) }

// -- Browser Mocks --

// MockPage mocks browser.Page.
type MockPage struct {
	mock.Mock
}

var _ browser.Page = (*MockPage)(nil)

func (m *MockPage) ID() browser.TabID {
	args := m.Called()
	return args.Get(0).(browser.TabID)
}

func (m *MockPage) Navigate(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

func (m *MockPage) Reload(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockPage) Location(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockPage) Exists(ctx context.Context, xpath string) (bool, error) {
	args := m.Called(ctx, xpath)
	return args.Bool(0), args.Error(1)
}

func (m *MockPage) Clickable(ctx context.Context, xpath string) (bool, error) {
	args := m.Called(ctx, xpath)
	return args.Bool(0), args.Error(1)
}

func (m *MockPage) Text(ctx context.Context, xpath string) (string, error) {
	args := m.Called(ctx, xpath)
	return args.String(0), args.Error(1)
}

func (m *MockPage) Attribute(ctx context.Context, xpath, name string) (string, error) {
	args := m.Called(ctx, xpath, name)
	return args.String(0), args.Error(1)
}

func (m *MockPage) Click(ctx context.Context, xpath string) error {
	return m.Called(ctx, xpath).Error(0)
}

func (m *MockPage) ClickDeferred(ctx context.Context, xpath string) error {
	return m.Called(ctx, xpath).Error(0)
}

func (m *MockPage) Type(ctx context.Context, xpath, text string) error {
	return m.Called(ctx, xpath, text).Error(0)
}

func (m *MockPage) Clear(ctx context.Context, xpath string) error {
	return m.Called(ctx, xpath).Error(0)
}

func (m *MockPage) SelectByText(ctx context.Context, xpath, text string) error {
	return m.Called(ctx, xpath, text).Error(0)
}

func (m *MockPage) Submit(ctx context.Context, xpath string) error {
	return m.Called(ctx, xpath).Error(0)
}

func (m *MockPage) Mark(ctx context.Context, xpath, marker string) error {
	return m.Called(ctx, xpath, marker).Error(0)
}

func (m *MockPage) MarkerPresent(ctx context.Context, marker string) (bool, error) {
	args := m.Called(ctx, marker)
	return args.Bool(0), args.Error(1)
}

func (m *MockPage) DialogOpen() bool {
	return m.Called().Bool(0)
}

func (m *MockPage) AcceptDialog(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockPage) CaptureScreenshot(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	if b := args.Get(0); b != nil {
		return b.([]byte), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockController mocks browser.Controller.
type MockController struct {
	mock.Mock
}

var _ browser.Controller = (*MockController)(nil)

func (m *MockController) NewTab(ctx context.Context) (browser.TabID, error) {
	args := m.Called(ctx)
	return args.Get(0).(browser.TabID), args.Error(1)
}

func (m *MockController) SwitchTo(ctx context.Context, id browser.TabID) (browser.Page, error) {
	args := m.Called(ctx, id)
	if p := args.Get(0); p != nil {
		return p.(browser.Page), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockController) CloseTab(ctx context.Context, id browser.TabID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockController) Active() browser.TabID {
	return m.Called().Get(0).(browser.TabID)
}

func (m *MockController) Primary() browser.TabID {
	return m.Called().Get(0).(browser.TabID)
}

func (m *MockController) Waits() *browser.Waiter {
	return m.Called().Get(0).(*browser.Waiter)
}

func (m *MockController) Screenshot(ctx context.Context, name string) string {
	return m.Called(ctx, name).String(0)
}
