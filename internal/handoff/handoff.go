// File: internal/handoff/handoff.go
// Package handoff moves a consent token from the administrator's tab to a
// patient tab and checks that the patient's action becomes visible to the
// administrator after a refresh.
package handoff

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/mediflow-e2e/internal/actor"
	"github.com/xkilldash9x/mediflow-e2e/internal/browser"
	"github.com/xkilldash9x/mediflow-e2e/internal/config"
	"github.com/xkilldash9x/mediflow-e2e/internal/pages"
)

var consentLinkPattern = regexp.MustCompile(`showConsentLink\('(.+?)'\)`)

// ErrTokenExtraction matches every *ExtractionError.
var ErrTokenExtraction = errors.New("token extraction failure")

// ErrTokenReplayed is returned under the enforce policy when the portal
// accepts a token that was already used.
var ErrTokenReplayed = errors.New("consumed consent token was accepted again")

// ExtractionError means the consent control was found but carried no token.
type ExtractionError struct {
	Attribute string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("no consent token in action attribute %q", e.Attribute)
}

func (e *ExtractionError) Is(target error) bool { return target == ErrTokenExtraction }

// ExtractToken pulls the token out of a showConsentLink('<token>') call.
func ExtractToken(attr string) (string, error) {
	m := consentLinkPattern.FindStringSubmatch(attr)
	if m == nil || strings.TrimSpace(m[1]) == "" {
		return "", &ExtractionError{Attribute: attr}
	}
	return m[1], nil
}

// ConsentForm is what the patient submits on the portal. Name is optional;
// when set it replaces whatever the form was prefilled with.
type ConsentForm struct {
	Name       string
	NationalID string
	HowFound   string
}

// ReplayOutcome classifies a second use of a consumed token.
type ReplayOutcome string

const (
	ReplayRejected ReplayOutcome = "rejected"
	ReplayAccepted ReplayOutcome = "accepted"
	ReplaySkipped  ReplayOutcome = "skipped"
)

// ReplayResult records what the portal did with a replayed token.
type ReplayResult struct {
	Outcome     ReplayOutcome `json:"outcome"`
	Location    string        `json:"location,omitempty"`
	StatusAfter string        `json:"status_after,omitempty"`
}

// Result is the outcome of a complete handoff.
type Result struct {
	Token      string        `json:"token"`
	ConsentURL string        `json:"consent_url"`
	Status     string        `json:"status"`
	Replay     *ReplayResult `json:"replay,omitempty"`
}

// Protocol runs the handoff on behalf of an authenticated administrator.
type Protocol struct {
	admin          *actor.Session
	expectedStatus string
	replayPolicy   string
	logger         *zap.Logger
}

// New creates a Protocol. An empty consent status falls back to "Fornecido".
func New(admin *actor.Session, cfg config.ScenarioConfig, logger *zap.Logger) *Protocol {
	status := cfg.ConsentStatus
	if status == "" {
		status = pages.ConsentGivenStatus
	}
	policy := cfg.TokenReplay
	if policy == "" {
		policy = config.TokenReplayReport
	}
	return &Protocol{admin: admin, expectedStatus: status, replayPolicy: policy, logger: logger.Named("handoff")}
}

// ExpectedStatus is the status text the administrator must observe.
func (p *Protocol) ExpectedStatus() string { return p.expectedStatus }

// ExtractToken searches the administrator's record list for patientName and
// reads the token embedded in the row's consent link control.
func (p *Protocol) ExtractToken(ctx context.Context, patientName string) (string, error) {
	page, err := p.admin.Page(ctx)
	if err != nil {
		return "", err
	}
	if err := p.admin.Search(ctx, patientName); err != nil {
		return "", err
	}

	button := pages.ButtonIn(pages.RowByCellText(patientName), pages.ConsentLinkButton)
	if err := p.admin.Waits().Present(ctx, page, button); err != nil {
		return "", err
	}
	attr, err := page.Attribute(ctx, button, "onclick")
	if err != nil {
		return "", fmt.Errorf("failed to read consent link action: %w", err)
	}
	token, err := ExtractToken(attr)
	if err != nil {
		return "", err
	}
	p.logger.Info("Consent link extracted.", zap.String("consent_url", p.ConsentURL(token)))
	return token, nil
}

// ConsentURL is the link a patient would receive for token.
func (p *Protocol) ConsentURL(token string) string {
	return p.admin.URL(pages.PortalLoginPath(token))
}

// SubmitConsent consumes token in a new patient tab. The patient tab is
// closed and the administrator's tab made active again on every path.
func (p *Protocol) SubmitConsent(ctx context.Context, token string, form ConsentForm) (err error) {
	patient, err := p.admin.OpenTokenSession(ctx, token)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, p.returnToAdmin(ctx, patient)) }()

	page, err := patient.Page(ctx)
	if err != nil {
		return err
	}
	w := patient.Waits()

	p.logger.Info("Patient: accessing the portal with the token.")
	if err := w.Clickable(ctx, page, pages.SubmitButton); err != nil {
		return err
	}
	if err := page.Click(ctx, pages.SubmitButton); err != nil {
		return fmt.Errorf("failed to submit token: %w", err)
	}

	p.logger.Info("Patient: filling in the consent form.")
	if err := w.Present(ctx, page, pages.ConsentNationalIDField); err != nil {
		return err
	}
	if form.Name != "" {
		hasName, err := page.Exists(ctx, pages.ConsentNameField)
		if err != nil && !browser.IsNotFound(err) {
			return fmt.Errorf("failed to look up consent name field: %w", err)
		}
		if hasName {
			if err := page.Clear(ctx, pages.ConsentNameField); err != nil {
				return fmt.Errorf("failed to clear consent name: %w", err)
			}
			if err := page.Type(ctx, pages.ConsentNameField, form.Name); err != nil {
				return fmt.Errorf("failed to type consent name: %w", err)
			}
		}
	}
	if err := page.Type(ctx, pages.ConsentNationalIDField, form.NationalID); err != nil {
		return fmt.Errorf("failed to type national id: %w", err)
	}
	if err := page.Click(ctx, pages.Radio(pages.HowFoundField, form.HowFound)); err != nil {
		return fmt.Errorf("failed to choose %q: %w", form.HowFound, err)
	}
	patient.Screenshot(ctx, "formulario_consentimento")
	if err := page.Click(ctx, pages.SubmitButton); err != nil {
		return fmt.Errorf("failed to submit consent form: %w", err)
	}

	if err := patient.AwaitLocation(ctx, pages.PortalSuccessPath); err != nil {
		return err
	}
	patient.Screenshot(ctx, "pagina_sucesso_consentimento")
	p.logger.Info("Patient: consent submitted.")
	return nil
}

// returnToAdmin closes the patient tab and switches back by handle.
func (p *Protocol) returnToAdmin(ctx context.Context, patient *actor.Session) error {
	var errs []error
	if err := patient.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to close patient tab: %w", err))
	}
	if _, err := p.admin.Page(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to return to administrator tab: %w", err))
	}
	return errors.Join(errs...)
}

// VerifyStatus reloads the administrator's record list and waits until the
// consent status of patientName contains the expected text.
func (p *Protocol) VerifyStatus(ctx context.Context, patientName string) (string, error) {
	return p.checkStatus(ctx, patientName, "status_consentimento_atualizado")
}

func (p *Protocol) checkStatus(ctx context.Context, patientName, checkpoint string) (string, error) {
	page, err := p.admin.Page(ctx)
	if err != nil {
		return "", err
	}
	if err := page.Reload(ctx); err != nil {
		return "", fmt.Errorf("failed to refresh record list: %w", err)
	}
	status, err := p.admin.Waits().TextContains(ctx, page, pages.StatusCell(pages.RowByCellText(patientName)), p.expectedStatus)
	if err != nil {
		return "", err
	}
	p.admin.Screenshot(ctx, checkpoint)
	p.logger.Info("Consent status verified.", zap.String("patient", patientName), zap.String("status", status))
	return status, nil
}

// VerifyReplay opens the already consumed token link again and records
// whether the portal let the patient back into the consent form. The
// administrator's status must still read as expected afterwards. Under the
// enforce policy an accepted replay is an error.
func (p *Protocol) VerifyReplay(ctx context.Context, token, patientName string) (res *ReplayResult, err error) {
	if p.replayPolicy == config.TokenReplaySkip {
		return &ReplayResult{Outcome: ReplaySkipped}, nil
	}

	patient, err := p.admin.OpenTokenSession(ctx, token)
	if err != nil {
		return nil, err
	}
	page, err := patient.Page(ctx)
	if err != nil {
		return nil, errors.Join(err, p.returnToAdmin(ctx, patient))
	}
	res, err = p.replay(ctx, patient.Waits(), page)
	if closeErr := p.returnToAdmin(ctx, patient); closeErr != nil {
		return nil, errors.Join(err, closeErr)
	}
	if err != nil {
		return nil, err
	}

	// The administrator's list was refreshed before the replay; refresh again
	// to see whether the replay changed anything.
	status, err := p.checkStatus(ctx, patientName, "status_apos_reuso_token")
	if err != nil {
		return res, fmt.Errorf("consent status changed after token replay: %w", err)
	}
	res.StatusAfter = status

	switch res.Outcome {
	case ReplayAccepted:
		p.logger.Warn("Consumed consent token was accepted again.", zap.String("location", res.Location))
		if p.replayPolicy == config.TokenReplayEnforce {
			return res, ErrTokenReplayed
		}
	default:
		p.logger.Info("Consumed consent token was rejected.", zap.String("location", res.Location))
	}
	return res, nil
}

// replay submits the token and classifies the page that replaces the token
// form. The submit button is tagged first so the new document can be told
// apart from the old one.
func (p *Protocol) replay(ctx context.Context, w *browser.Waiter, page browser.Page) (*ReplayResult, error) {
	marker, err := w.Track(ctx, page, pages.SubmitButton)
	if err != nil {
		return nil, err
	}
	if err := page.Click(ctx, pages.SubmitButton); err != nil {
		return nil, fmt.Errorf("failed to submit replayed token: %w", err)
	}
	if err := w.Stale(ctx, page, marker); err != nil {
		return nil, err
	}

	loc, err := page.Location(ctx)
	if err != nil {
		return nil, err
	}
	res := &ReplayResult{Outcome: ReplayRejected, Location: loc}
	inForm, err := page.Exists(ctx, pages.ConsentNationalIDField)
	if err != nil && !browser.IsNotFound(err) {
		return nil, err
	}
	if inForm || strings.Contains(loc, pages.PortalConsentPath) {
		res.Outcome = ReplayAccepted
	}
	return res, nil
}
