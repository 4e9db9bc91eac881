package upi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// VerifyResult mirrors the verification service's answer: either the
// address resolved to an account holder, or a reason why not.
type VerifyResult struct {
	Valid   bool   `json:"valid"`
	Name    string `json:"name,omitempty"`
	Message string `json:"message,omitempty"`
}

type Verifier interface {
	Verify(ctx context.Context, vpa string) (VerifyResult, error)
}

type VerifierConfig struct {
	Endpoint   string
	SchemeID   string
	SigningKey string
}

// NewVerifier picks the live verifier when credentials are configured
// and falls back to the syntactic one otherwise, so local deployments
// stay testable without a verification account.
func NewVerifier(cfg VerifierConfig, logger *zap.SugaredLogger) Verifier {
	if cfg.Endpoint == "" || cfg.SigningKey == "" {
		logger.Infow("vpa verification credentials absent, using syntactic fallback")
		return &SyntacticVerifier{}
	}
	return NewHTTPVerifier(cfg)
}

// HTTPVerifier submits the candidate address to the external
// verification endpoint together with a signed short-lived assertion.
type HTTPVerifier struct {
	endpoint   string
	schemeID   string
	signingKey string
	httpClient *http.Client
}

func NewHTTPVerifier(cfg VerifierConfig) *HTTPVerifier {
	return &HTTPVerifier{
		endpoint:   cfg.Endpoint,
		schemeID:   cfg.SchemeID,
		signingKey: cfg.SigningKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// assertion builds the time-bound request token the endpoint requires:
// audience is the configured scheme id, jti makes it single-use.
func (v *HTTPVerifier) assertion() (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"aud": v.schemeID,
		"jti": uuid.NewString(),
		"iat": now.Unix(),
		"exp": now.Add(2 * time.Minute).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(v.signingKey))
}

func (v *HTTPVerifier) Verify(ctx context.Context, vpa string) (VerifyResult, error) {
	assertion, err := v.assertion()
	if err != nil {
		return VerifyResult{}, fmt.Errorf("sign vpa assertion: %w", err)
	}

	payload := map[string]string{
		"vpa":       vpa,
		"assertion": assertion,
	}
	body, _ := json.Marshal(payload)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, bytes.NewBuffer(body))
	if err != nil {
		return VerifyResult{}, fmt.Errorf("vpa verify request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := v.httpClient.Do(httpReq)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("vpa verify request: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	// Upstream failure is never treated as a valid address.
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return VerifyResult{}, fmt.Errorf("vpa verify failed: http=%d body=%s", resp.StatusCode, string(raw))
	}

	var res struct {
		Valid   bool   `json:"valid"`
		Name    string `json:"name"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return VerifyResult{}, fmt.Errorf("vpa verify decode: %w body=%s", err, string(raw))
	}

	if !res.Valid {
		msg := res.Message
		if msg == "" {
			msg = "VPA not found"
		}
		return VerifyResult{Valid: false, Message: msg}, nil
	}
	return VerifyResult{Valid: true, Name: res.Name}, nil
}

// SyntacticVerifier is the no-credentials fallback: it only checks that
// the address looks like handle@provider and returns a placeholder
// name, keeping downstream flows usable in dev.
type SyntacticVerifier struct{}

func (s *SyntacticVerifier) Verify(_ context.Context, vpa string) (VerifyResult, error) {
	if !LooksLikeVPA(vpa) {
		return VerifyResult{Valid: false, Message: "Invalid VPA format"}, nil
	}
	return VerifyResult{Valid: true, Name: "SliceIt User"}, nil
}

// LooksLikeVPA reports whether the address has the handle@provider
// shape. It says nothing about whether the account exists.
func LooksLikeVPA(vpa string) bool {
	parts := strings.Split(strings.TrimSpace(vpa), "@")
	return len(parts) == 2 && parts[0] != "" && parts[1] != ""
}
