package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/twigapp/twig/internal/core/outline"
)

// HTTPConfig configures an HTTPService.
type HTTPConfig struct {
	BaseURL   string        // e.g. https://sync.example.com
	AuthToken string        // optional bearer token
	BatchSize int           // defaults to MaxBatchSize
	Timeout   time.Duration // per-request; defaults to 15s
}

// HTTPService implements Service over a batched JSON protocol:
//
//	POST {base}/v1/records:save   {"records": [...]}
//	POST {base}/v1/records:delete {"ids": [...]}
//	GET  {base}/v1/changes?token=...
//	GET  {base}/v1/account
//
// Each request carries the configured timeout; timing out surfaces as a
// retryable TransportError, never as a conflict.
type HTTPService struct {
	cfg    HTTPConfig
	client *http.Client
	log    zerolog.Logger
}

// NewHTTPService creates a remote client. The config's zero values are filled
// with defaults.
func NewHTTPService(cfg HTTPConfig, log zerolog.Logger) *HTTPService {
	if cfg.BatchSize <= 0 || cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &HTTPService{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log.With().Str("component", "remote").Logger(),
	}
}

var _ Service = (*HTTPService)(nil)

type wireSaveRequest struct {
	Records []outline.Record `json:"records"`
}

type wireConflict struct {
	Client   outline.Record  `json:"client"`
	Server   outline.Record  `json:"server"`
	Ancestor *outline.Record `json:"ancestor,omitempty"`
}

type wireFailure struct {
	Record outline.Record `json:"record"`
	Error  string         `json:"error"`
}

type wireSaveResponse struct {
	Saved     []outline.Record `json:"saved"`
	Conflicts []wireConflict   `json:"conflicts"`
	Failures  []wireFailure    `json:"failures"`
}

type wireDeleteRequest struct {
	IDs []string `json:"ids"`
}

type wireDeleteResponse struct {
	Deleted []string          `json:"deleted"`
	Failed  map[string]string `json:"failed"`
}

type wireFetchResponse struct {
	Changed []outline.Record `json:"changed"`
	Deleted []string         `json:"deleted"`
	Token   string           `json:"token"`
}

type wireAccountResponse struct {
	Status string `json:"status"`
}

// Save uploads records in batches. Conflicts and per-record failures are
// accumulated across batches; a transport failure aborts remaining batches and
// returns the partial result alongside a TransportError.
func (s *HTTPService) Save(ctx context.Context, records []outline.Record) (SaveResult, error) {
	var result SaveResult
	for start := 0; start < len(records); start += s.cfg.BatchSize {
		end := min(start+s.cfg.BatchSize, len(records))

		var resp wireSaveResponse
		err := s.post(ctx, "/v1/records:save", wireSaveRequest{Records: records[start:end]}, &resp)
		if err != nil {
			return result, err
		}

		result.Saved = append(result.Saved, resp.Saved...)
		for _, c := range resp.Conflicts {
			result.Conflicts = append(result.Conflicts, SaveConflict{
				Client:   c.Client,
				Server:   c.Server,
				Ancestor: c.Ancestor,
			})
		}
		for _, f := range resp.Failures {
			result.Failures = append(result.Failures, SaveFailure{
				Record: f.Record,
				Err:    errors.New(f.Error),
			})
		}
	}

	s.log.Debug().
		Int("saved", len(result.Saved)).
		Int("conflicts", len(result.Conflicts)).
		Int("failures", len(result.Failures)).
		Msg("save complete")
	return result, nil
}

// Delete removes records by id in batches.
func (s *HTTPService) Delete(ctx context.Context, ids []string) (DeleteResult, error) {
	result := DeleteResult{FailedIDs: map[string]error{}}
	for start := 0; start < len(ids); start += s.cfg.BatchSize {
		end := min(start+s.cfg.BatchSize, len(ids))

		var resp wireDeleteResponse
		err := s.post(ctx, "/v1/records:delete", wireDeleteRequest{IDs: ids[start:end]}, &resp)
		if err != nil {
			return result, err
		}

		result.DeletedIDs = append(result.DeletedIDs, resp.Deleted...)
		for id, msg := range resp.Failed {
			result.FailedIDs[id] = errors.New(msg)
		}
	}
	return result, nil
}

// FetchChanges pulls the increment after token, or the full record set when
// token is empty.
func (s *HTTPService) FetchChanges(ctx context.Context, token ChangeToken) (FetchResult, error) {
	endpoint := s.cfg.BaseURL + "/v1/changes"
	if token != "" {
		// The token is opaque server data; escape it.
		endpoint += "?" + url.Values{"token": {string(token)}}.Encode()
	}

	var resp wireFetchResponse
	if err := s.get(ctx, endpoint, &resp); err != nil {
		return FetchResult{}, err
	}

	return FetchResult{
		Changed:    resp.Changed,
		DeletedIDs: resp.Deleted,
		Token:      ChangeToken(resp.Token),
	}, nil
}

// EnsureAccountAccess checks whether the remote account is usable.
func (s *HTTPService) EnsureAccountAccess(ctx context.Context) (AccountStatus, error) {
	var resp wireAccountResponse
	if err := s.get(ctx, s.cfg.BaseURL+"/v1/account", &resp); err != nil {
		return AccountNotDetermined, err
	}

	switch resp.Status {
	case "available":
		return AccountAvailable, nil
	case "restricted":
		return AccountRestricted, nil
	case "no-account":
		return AccountNone, nil
	default:
		return AccountNotDetermined, nil
	}
}

func (s *HTTPService) post(ctx context.Context, path string, body, dest any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	return s.do(req, path, dest)
}

func (s *HTTPService) get(ctx context.Context, endpoint string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return s.do(req, req.URL.Path, dest)
}

func (s *HTTPService) do(req *http.Request, op string, dest any) error {
	if s.cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.AuthToken)
	}
	req.Header.Set("User-Agent", "twig-sync")

	resp, err := s.client.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			s.log.Debug().Err(err).Str("op", op).Msg("close response body")
		}
	}()

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return &AccountError{Status: AccountNone}
	case resp.StatusCode != http.StatusOK:
		return &TransportError{Op: op, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
