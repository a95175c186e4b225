// Package profile resolves optional display metadata for accounts.
package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"social-graph-lab/internal/domain"
	"social-graph-lab/internal/observability"
)

// Resolver looks up profile metadata. A nil result with a nil error means the
// account has no profile. Failures wrap domain.ErrMetadataUnavailable.
type Resolver interface {
	Resolve(ctx context.Context, account domain.AccountID) (*domain.ProfileMetadata, error)
}

// DefaultTimeout bounds one profile lookup.
const DefaultTimeout = 5 * time.Second

// HTTPResolver fetches profiles from GET {baseURL}/profiles/{account}.
type HTTPResolver struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// Compile-time interface check.
var _ Resolver = (*HTTPResolver)(nil)

// NewHTTPResolver creates a resolver for baseURL. A nil client uses DefaultTimeout.
func NewHTTPResolver(baseURL string, client *http.Client, logger *zap.Logger) *HTTPResolver {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPResolver{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  logger,
	}
}

// profileDocument is the resolver's wire format.
type profileDocument struct {
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	Image       *string  `json:"image"`
	Background  *string  `json:"background"`
	Tags        []string `json:"tags"`
}

// Resolve fetches the profile for account. 404 means no profile.
func (r *HTTPResolver) Resolve(ctx context.Context, account domain.AccountID) (*domain.ProfileMetadata, error) {
	acct, err := domain.NormalizeAccount(string(account))
	if err != nil {
		return nil, err
	}

	endpoint := r.baseURL + "/profiles/" + url.PathEscape(string(acct))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, r.unavailable(acct, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, r.unavailable(acct, fmt.Errorf("http request: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, r.unavailable(acct, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body)))
	}

	var doc profileDocument
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&doc); err != nil {
		return nil, r.unavailable(acct, fmt.Errorf("decode profile: %w", err))
	}

	return &domain.ProfileMetadata{
		Name:          nonEmpty(doc.Name),
		Description:   nonEmpty(doc.Description),
		AvatarURL:     nonEmpty(doc.Image),
		BackgroundURL: nonEmpty(doc.Background),
		Tags:          doc.Tags,
	}, nil
}

func (r *HTTPResolver) unavailable(acct domain.AccountID, err error) error {
	observability.RecordMetadataUnavailable()
	r.logger.Debug("profile lookup failed", zap.String("account", string(acct)), zap.Error(err))
	return domain.NewOpError("resolveProfile", acct, domain.ErrMetadataUnavailable, err)
}

func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}
