package gateway

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/GPTx-global/ondemand/oracle/log"
	"github.com/GPTx-global/ondemand/oracle/types"
)

const (
	apiVersion      = "1.0.0"
	signatureScheme = "Secp256k1"
	hashScheme      = "Sha256"

	// zeroHash is the base58 form of 32 zero bytes.
	zeroHash = "11111111111111111111111111111111"

	DefaultTimeout = 10 * time.Second
)

// FeedEvalResponse is one oracle's evaluation of one feed.
type FeedEvalResponse struct {
	OraclePubkey        string `json:"oracle_pubkey"`
	QueuePubkey         string `json:"queue_pubkey"`
	OracleSigningPubkey string `json:"oracle_signing_pubkey"`
	FeedHash            string `json:"feed_hash"`
	RecentHash          string `json:"recent_hash"`
	FailureError        string `json:"failure_error"`
	SuccessValue        string `json:"success_value"`
	Msg                 string `json:"msg"`
	Signature           string `json:"signature"`
	RecoveryID          int32  `json:"recovery_id"`
	Timestamp           *int64 `json:"timestamp,omitempty"`
}

type FetchSignaturesResponse struct {
	Responses []FeedEvalResponse `json:"responses"`
	Caller    string             `json:"caller"`
	Failures  []string           `json:"failures"`
}

// OracleMultiResponse is one oracle's signed answer for every requested feed.
type OracleMultiResponse struct {
	FeedResponses []FeedEvalResponse `json:"feed_responses"`
	Signature     string             `json:"signature"`
	RecoveryID    int32              `json:"recovery_id"`
	Errors        []*string          `json:"errors"`
}

type FetchSignaturesMultiResponse struct {
	OracleResponses []OracleMultiResponse `json:"oracle_responses"`
	Errors          []*string             `json:"errors"`
}

type FetchSignaturesParams struct {
	RecentHash    string
	EncodedJobs   []string
	NumSignatures uint32
	MaxVariance   uint32
	MinResponses  uint32
	UseTimestamp  bool
}

type FeedRequest struct {
	EncodedJobs  []string
	MaxVariance  uint32
	MinResponses uint32
}

type FetchSignaturesMultiParams struct {
	RecentHash    string
	Feeds         []FeedRequest
	NumSignatures uint32
	UseTimestamp  bool
}

// Client calls one gateway. Oracles sign their answers with their own keys,
// so the gateway's TLS certificate is not verified.
type Client struct {
	url    string
	http   *http.Client
	debug  bool
	logger zerolog.Logger
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		cl.http.Timeout = d
	}
}

// WithDebug dumps every decoded gateway response to the debug log.
func WithDebug(debug bool) Option {
	return func(cl *Client) {
		cl.debug = debug
	}
}

func New(url string, opts ...Option) *Client {
	c := &Client{
		url: strings.TrimRight(url, "/"),
		http: &http.Client{
			Timeout: DefaultTimeout,
			Transport: &http.Transport{
				TLSClientConfig:     &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
				MaxIdleConnsPerHost: 16,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: log.Component("gateway"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) URL() string {
	return c.url
}

func (c *Client) FetchSignatures(ctx context.Context, params FetchSignaturesParams) (*FetchSignaturesResponse, error) {
	body := map[string]any{
		"api_version":      apiVersion,
		"jobs_b64_encoded": nonNil(params.EncodedJobs),
		"recent_chainhash": recentHash(params.RecentHash),
		"signature_scheme": signatureScheme,
		"hash_scheme":      hashScheme,
		"num_oracles":      params.NumSignatures,
		"max_variance":     scaleVariance(params.MaxVariance),
		"min_responses":    params.MinResponses,
		"use_timestamp":    params.UseTimestamp,
	}

	out := new(FetchSignaturesResponse)
	if err := c.post(ctx, "/gateway/api/v1/fetch_signatures", body, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) FetchSignaturesMulti(ctx context.Context, params FetchSignaturesMultiParams) (*FetchSignaturesMultiResponse, error) {
	requests := make([]map[string]any, len(params.Feeds))
	for i, f := range params.Feeds {
		requests[i] = map[string]any{
			"jobs_b64_encoded": nonNil(f.EncodedJobs),
			"max_variance":     scaleVariance(f.MaxVariance),
			"min_responses":    f.MinResponses,
			"use_timestamp":    params.UseTimestamp,
		}
	}
	body := map[string]any{
		"api_version":      apiVersion,
		"num_oracles":      params.NumSignatures,
		"recent_hash":      recentHash(params.RecentHash),
		"signature_scheme": signatureScheme,
		"hash_scheme":      hashScheme,
		"feed_requests":    requests,
	}

	out := new(FetchSignaturesMultiResponse)
	if err := c.post(ctx, "/gateway/api/v1/fetch_signatures_multi", body, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Ping reports whether the gateway answers its test endpoint.
func (c *Client) Ping(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"/gateway/api/v1/test", nil)
	if err != nil {
		return false
	}
	res, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	return err == nil && len(body) > 0
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "failed to marshal gateway request")
	}

	url := c.url + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrapf(err, "failed to create request for %s", url)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrTransport, errors.Wrapf(err, "POST %s", url))
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrTransport, errors.Wrap(err, "failed to read gateway response"))
	}
	if res.StatusCode >= 300 {
		return fmt.Errorf("%w: POST %s: bad status code %d: %s", types.ErrTransport, url, res.StatusCode, strings.TrimSpace(string(raw)))
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return errorsmod.Wrapf(types.ErrDeserialize, "gateway response from %s: %v", url, err)
	}
	if c.debug {
		c.logger.Debug().Str("path", path).Msg(spew.Sdump(out))
	}
	return nil
}

func recentHash(h string) string {
	if h == "" {
		return zeroHash
	}
	return h
}

// scaleVariance converts whole units back to the 1e9 fixed point the
// gateway expects.
func scaleVariance(v uint32) uint64 {
	return uint64(float64(v) * 1e9)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
