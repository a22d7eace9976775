package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/thatlq1812/user-agreement/internal/domain"
)

const completeLoginPath = "/login/complete"

// LoginClient resumes suspended logins on the external SSO service.
type LoginClient struct {
	baseURL string
	http    *http.Client
}

func NewLoginClient(baseURL string, timeout time.Duration) (*LoginClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("sso base url is required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &LoginClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}, nil
}

type completeLoginRequest struct {
	UserID            string            `json:"user_id"`
	Ticket            string            `json:"ticket"`
	Attributes        map[string]string `json:"attributes,omitempty"`
	ServiceParameters map[string]string `json:"service_parameters,omitempty"`
}

// CompleteLogin replays the suspended login so the SSO service issues its ticket.
func (c *LoginClient) CompleteLogin(ctx context.Context, userID string, payload *domain.LoginPayload) error {
	if payload == nil {
		return fmt.Errorf("%w: missing login payload", domain.ErrInvalidInput)
	}

	body, err := json.Marshal(completeLoginRequest{
		UserID:            userID,
		Ticket:            payload.Ticket,
		Attributes:        payload.Attributes,
		ServiceParameters: payload.ServiceParameters,
	})
	if err != nil {
		return fmt.Errorf("failed to encode login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+completeLoginPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach sso service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sso service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

// NoopLogin is used when no SSO service is configured; visits never need it.
type NoopLogin struct{}

func (NoopLogin) CompleteLogin(ctx context.Context, userID string, payload *domain.LoginPayload) error {
	return nil
}
