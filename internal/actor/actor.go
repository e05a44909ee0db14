// File: internal/actor/actor.go
// Package actor models the simulated humans of a scenario. Each Session owns
// exactly one browser tab and drives it on behalf of one identity: a staff
// member with credentials, or a patient holding a single-use consent token.
package actor

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/mediflow-e2e/internal/browser"
	"github.com/xkilldash9x/mediflow-e2e/internal/pages"
	"github.com/xkilldash9x/mediflow-e2e/internal/wait"
)

// Role is the MediFlow user_type of an identity.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleTherapist Role = "terapeuta"
	RoleSecretary Role = "secretaria"
	// RolePatient never authenticates with a password.
	RolePatient Role = "paciente"
)

// LandingPath is where a successful login of role lands.
func LandingPath(r Role) string {
	switch r {
	case RoleAdmin:
		return pages.AdminDashboardPath
	case RoleTherapist:
		return pages.TherapistDashboardPath
	case RoleSecretary:
		return pages.SecretaryDashboardPath
	default:
		return ""
	}
}

// Identity is who an actor is: a credential pair with a role, or an opaque
// consent token.
type Identity struct {
	Email    string
	Password string
	Role     Role
	Token    string
}

// Credentials builds a password identity.
func Credentials(email, password string, role Role) Identity {
	return Identity{Email: email, Password: password, Role: role}
}

// TokenHolder builds the identity of a patient following a consent link.
func TokenHolder(token string) Identity {
	return Identity{Role: RolePatient, Token: token}
}

// IsToken reports whether the identity carries a token instead of credentials.
func (i Identity) IsToken() bool { return i.Token != "" }

// String never includes the password.
func (i Identity) String() string {
	if i.IsToken() {
		return fmt.Sprintf("%s(token)", i.Role)
	}
	return fmt.Sprintf("%s(%s)", i.Role, i.Email)
}

// ErrAuthenticationFailure matches every *AuthenticationError.
var ErrAuthenticationFailure = errors.New("authentication failure")

// AuthenticationError reports a login that never reached the role landing.
type AuthenticationError struct {
	Email    string
	Expected string
	Err      error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("login as %s did not reach %s: %v", e.Email, e.Expected, e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

func (e *AuthenticationError) Is(target error) bool { return target == ErrAuthenticationFailure }

// Session is one actor bound to one tab.
type Session struct {
	browser  browser.Controller
	tab      browser.TabID
	identity Identity
	baseURL  string
	root     *zap.Logger
	logger   *zap.Logger

	location string
}

// NewSession binds identity to an existing tab.
func NewSession(b browser.Controller, tab browser.TabID, identity Identity, baseURL string, logger *zap.Logger) *Session {
	return &Session{
		browser:  b,
		tab:      tab,
		identity: identity,
		baseURL:  baseURL,
		root:     logger,
		logger:   logger.Named("actor").With(zap.Stringer("identity", identity), zap.String("tab", string(tab))),
	}
}

func (s *Session) Tab() browser.TabID  { return s.tab }
func (s *Session) Identity() Identity  { return s.identity }
func (s *Session) Logger() *zap.Logger { return s.logger }

// Location is the URL observed after the last confirmed navigation.
func (s *Session) Location() string { return s.location }

// URL resolves an application path against the base URL.
func (s *Session) URL(path string) string { return s.baseURL + path }

// Waits exposes the browser's default wait bounds.
func (s *Session) Waits() *browser.Waiter { return s.browser.Waits() }

// Page makes the actor's tab active and returns it.
func (s *Session) Page(ctx context.Context) (browser.Page, error) {
	return s.browser.SwitchTo(ctx, s.tab)
}

// Screenshot records a checkpoint of the actor's tab.
func (s *Session) Screenshot(ctx context.Context, name string) string {
	if _, err := s.Page(ctx); err != nil {
		s.logger.Warn("Could not activate tab for screenshot.", zap.String("name", name), zap.Error(err))
	}
	return s.browser.Screenshot(ctx, name)
}

// Login submits the identity's credentials and waits for the role landing.
func (s *Session) Login(ctx context.Context) error {
	if s.identity.IsToken() {
		return errors.New("token sessions cannot log in with credentials")
	}
	landing := LandingPath(s.identity.Role)
	if landing == "" {
		return fmt.Errorf("no landing page known for role %q", s.identity.Role)
	}

	s.logger.Info("Logging in.")
	page, err := s.Page(ctx)
	if err != nil {
		return err
	}
	if err := page.Navigate(ctx, s.URL(pages.LoginPath)); err != nil {
		return fmt.Errorf("failed to open login page: %w", err)
	}
	w := s.Waits()
	if err := w.Present(ctx, page, pages.EmailField); err != nil {
		return err
	}
	if err := page.Type(ctx, pages.EmailField, s.identity.Email); err != nil {
		return fmt.Errorf("failed to type email: %w", err)
	}
	if err := page.Type(ctx, pages.PasswordField, s.identity.Password); err != nil {
		return fmt.Errorf("failed to type password: %w", err)
	}
	if err := page.Click(ctx, pages.LoginSubmit); err != nil {
		return fmt.Errorf("failed to submit login form: %w", err)
	}

	loc, err := w.URLContains(ctx, page, landing)
	if err != nil {
		if errors.Is(err, wait.ErrTimeout) {
			return &AuthenticationError{Email: s.identity.Email, Expected: landing, Err: err}
		}
		return err
	}
	s.location = loc
	s.logger.Info("Logged in.", zap.String("location", loc))
	return nil
}

// Logout clicks the logout control, waits for the login page and records the
// final checkpoint.
func (s *Session) Logout(ctx context.Context) error {
	s.logger.Info("Logging out.")
	page, err := s.Page(ctx)
	if err != nil {
		return err
	}
	w := s.Waits()
	if err := w.Clickable(ctx, page, pages.LogoutLink); err != nil {
		return err
	}
	if err := page.Click(ctx, pages.LogoutLink); err != nil {
		return fmt.Errorf("failed to click logout: %w", err)
	}
	loc, err := w.URLContains(ctx, page, pages.LoginPath)
	if err != nil {
		return err
	}
	s.location = loc
	s.browser.Screenshot(ctx, "logout_final")
	return nil
}

// NavigateAndConfirm opens path and asserts the resulting URL contains
// fragment.
func (s *Session) NavigateAndConfirm(ctx context.Context, path, fragment string) error {
	page, err := s.Page(ctx)
	if err != nil {
		return err
	}
	if err := page.Navigate(ctx, s.URL(path)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", path, err)
	}
	return s.confirm(ctx, page, fragment)
}

// AwaitLocation waits, after an action already issued on the tab, until the
// URL contains fragment.
func (s *Session) AwaitLocation(ctx context.Context, fragment string) error {
	page, err := s.Page(ctx)
	if err != nil {
		return err
	}
	return s.confirm(ctx, page, fragment)
}

func (s *Session) confirm(ctx context.Context, page browser.Page, fragment string) error {
	loc, err := s.Waits().URLContains(ctx, page, fragment)
	if err != nil {
		return err
	}
	s.location = loc
	s.logger.Debug("Location confirmed.", zap.String("location", loc))
	return nil
}

// Search types query into the record list search box, submits it and waits
// for the results page to replace the current one.
func (s *Session) Search(ctx context.Context, query string) error {
	page, err := s.Page(ctx)
	if err != nil {
		return err
	}
	w := s.Waits()
	marker, err := w.Track(ctx, page, pages.SearchBox)
	if err != nil {
		return err
	}
	if err := page.Clear(ctx, pages.SearchBox); err != nil {
		return fmt.Errorf("failed to clear search box: %w", err)
	}
	if err := page.Type(ctx, pages.SearchBox, query); err != nil {
		return fmt.Errorf("failed to type search: %w", err)
	}
	if err := page.Submit(ctx, pages.SearchBox); err != nil {
		return fmt.Errorf("failed to submit search: %w", err)
	}
	if err := w.Stale(ctx, page, marker); err != nil {
		return err
	}
	s.logger.Debug("Record search submitted.", zap.String("query", query))
	return nil
}

// OpenTokenSession opens a new tab on the consent portal for token and
// returns the unauthenticated patient session bound to it.
func (s *Session) OpenTokenSession(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, errors.New("empty consent token")
	}
	tab, err := s.browser.NewTab(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open patient tab: %w", err)
	}
	patient := NewSession(s.browser, tab, TokenHolder(token), s.baseURL, s.root)

	page, err := patient.Page(ctx)
	if err == nil {
		err = page.Navigate(ctx, patient.URL(pages.PortalLoginPath(token)))
	}
	if err != nil {
		if closeErr := s.browser.CloseTab(ctx, tab); closeErr != nil {
			s.logger.Warn("Failed to close patient tab.", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("failed to open consent link: %w", err)
	}
	patient.location = patient.URL(pages.PortalLoginPath(token))
	s.logger.Info("Patient session opened.", zap.String("patient_tab", string(tab)))
	return patient, nil
}

// Close closes the actor's tab.
func (s *Session) Close(ctx context.Context) error {
	return s.browser.CloseTab(ctx, s.tab)
}
