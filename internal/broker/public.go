package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/eddiefleurent/condor_bot/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the Public.com user API gateway.
const DefaultBaseURL = "https://api.public.com/userapigateway"

// maxErrorBody caps how much of an error response is kept.
const maxErrorBody = 64 << 10

// RateLimits bounds outbound request rate.
type RateLimits struct {
	RequestsPerSecond float64
	Burst             int
}

// DefaultRateLimits allows 5 requests per second.
var DefaultRateLimits = RateLimits{RequestsPerSecond: 5, Burst: 1}

// PublicAPI is the Public.com implementation of Gateway.
type PublicAPI struct {
	client    *http.Client
	apiKey    string
	baseURL   string
	accountID string
	limiter   *rate.Limiter
	logger    logrus.FieldLogger
}

// Ensure PublicAPI implements Gateway at compile time.
var _ Gateway = (*PublicAPI)(nil)

// NewPublicAPI creates a client against DefaultBaseURL with default limits.
func NewPublicAPI(apiKey, accountID string) *PublicAPI {
	return NewPublicAPIWithBaseURL(apiKey, accountID, "", nil, DefaultRateLimits)
}

// NewPublicAPIWithBaseURL creates a client with an optional base URL, HTTP
// client and rate limits. Zero values fall back to the defaults.
func NewPublicAPIWithBaseURL(apiKey, accountID, baseURL string, client *http.Client, limits RateLimits) *PublicAPI {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if limits.RequestsPerSecond <= 0 {
		limits = DefaultRateLimits
	}
	if limits.Burst <= 0 {
		limits.Burst = 1
	}

	return &PublicAPI{
		client:    client,
		apiKey:    apiKey,
		baseURL:   baseURL,
		accountID: accountID,
		limiter:   rate.NewLimiter(rate.Limit(limits.RequestsPerSecond), limits.Burst),
		logger:    logrus.StandardLogger(),
	}
}

// WithTimeout sets the HTTP client timeout.
func (p *PublicAPI) WithTimeout(timeout time.Duration) *PublicAPI {
	if timeout > 0 {
		p.client.Timeout = timeout
	}
	return p
}

// WithLogger replaces the logger.
func (p *PublicAPI) WithLogger(logger logrus.FieldLogger) *PublicAPI {
	if logger != nil {
		p.logger = logger
	}
	return p
}

// GetQuote returns the latest quote for instrument.
func (p *PublicAPI) GetQuote(ctx context.Context, instrument models.Instrument) (*models.Quote, error) {
	const op = "quotes"
	body := quotesRequest{Instruments: []instrumentPayload{toInstrumentPayload(instrument)}}

	var resp quotesResponse
	if err := p.makeRequestCtx(ctx, op, http.MethodPost, p.endpoint("marketdata", "quotes"), nil, body, &resp); err != nil {
		return nil, err
	}
	for _, q := range resp.Quotes {
		if q.Instrument.Symbol == instrument.Symbol {
			quote := q.model()
			return &quote, nil
		}
	}
	return nil, &GatewayError{Op: op, Err: fmt.Errorf("no quote for %s in response", instrument.Symbol)}
}

// GetOptionChain returns the chain for instrument expiring on expiration
// (YYYY-MM-DD), sorted and validated.
func (p *PublicAPI) GetOptionChain(ctx context.Context, instrument models.Instrument, expiration string) (*models.OptionChain, error) {
	const op = "option-chain"
	if _, err := time.Parse("2006-01-02", expiration); err != nil {
		return nil, fmt.Errorf("invalid expiration %q: %w", expiration, err)
	}
	body := optionChainRequest{Instrument: toInstrumentPayload(instrument), ExpirationDate: expiration}

	var resp optionChainResponse
	if err := p.makeRequestCtx(ctx, op, http.MethodPost, p.endpoint("marketdata", "option-chain"), nil, body, &resp); err != nil {
		return nil, err
	}
	chain, err := resp.model()
	if err != nil {
		return nil, &GatewayError{Op: op, Err: err}
	}
	return chain, nil
}

// GetGreeks returns the greeks for one OSI symbol.
func (p *PublicAPI) GetGreeks(ctx context.Context, osiSymbol string) (*models.Greeks, error) {
	const op = "greeks"
	params := url.Values{}
	params.Set("osiSymbols", osiSymbol)

	var resp greeksResponse
	if err := p.makeRequestCtx(ctx, op, http.MethodGet, p.endpoint("option-details", "greeks"), params, nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Greeks) == 0 {
		return nil, &GatewayError{Op: op, Err: fmt.Errorf("no greeks for %s in response", osiSymbol)}
	}
	g, err := resp.Greeks[0].model()
	if err != nil {
		return nil, &GatewayError{Op: op, Err: err}
	}
	return g, nil
}

// GetPortfolio returns the account's positions, buying power and equity.
func (p *PublicAPI) GetPortfolio(ctx context.Context) (*models.Portfolio, error) {
	const op = "portfolio"
	var resp portfolioResponse
	if err := p.makeRequestCtx(ctx, op, http.MethodGet, p.endpoint("trading", "portfolio/v2"), nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.model(), nil
}

// SubmitPreflight checks a multi-leg order with the broker.
func (p *PublicAPI) SubmitPreflight(ctx context.Context, order PreflightOrder) (*PreflightResponse, error) {
	const op = "preflight"
	if err := order.Validate(); err != nil {
		return nil, fmt.Errorf("preflight order %s: %w", order.OrderID, err)
	}

	var resp preflightResponse
	if err := p.makeRequestCtx(ctx, op, http.MethodPost, p.endpoint("trading", "preflight/multi-leg"), nil,
		toPreflightRequest(order), &resp); err != nil {
		return nil, err
	}
	return &PreflightResponse{
		OrderID:                order.OrderID,
		OrderValue:             float64(resp.OrderValue),
		EstimatedCommission:    float64(resp.EstimatedCommission),
		BuyingPowerRequirement: float64(resp.BuyingPowerRequirement),
	}, nil
}

// endpoint builds {base}/{group}/{account}/{path}.
func (p *PublicAPI) endpoint(group, path string) string {
	return fmt.Sprintf("%s/%s/%s/%s", p.baseURL, group, url.PathEscape(p.accountID), path)
}

// makeRequestCtx sends one JSON request and decodes the response into
// response. Every failure is returned as a *GatewayError.
func (p *PublicAPI) makeRequestCtx(ctx context.Context, op, method, endpoint string,
	params url.Values, body, response any) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return &GatewayError{Op: op, Err: err}
	}

	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var reader io.Reader = http.NoBody
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return &GatewayError{Op: op, Err: fmt.Errorf("encode request: %w", err)}
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return &GatewayError{Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "condor-bot/1.0")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return &GatewayError{Op: op, Err: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			p.logger.WithError(err).Debug("Failed to close response body")
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if err != nil {
			return &GatewayError{Op: op, Status: resp.StatusCode, Body: "failed to read error body"}
		}
		msg := fmt.Sprintf("%s %s (%s) -> %s", method, req.URL.Path, resp.Header.Get("Content-Type"), string(raw))
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			msg += " (retry-after: " + ra + ")"
		}
		return &GatewayError{Op: op, Status: resp.StatusCode, Body: msg}
	}

	if resp.StatusCode == http.StatusNoContent || response == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(response); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("empty response body")
		}
		return &GatewayError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
