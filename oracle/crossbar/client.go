package crossbar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/GPTx-global/ondemand/oracle/types"
)

const DefaultURL = "https://crossbar.switchboard.xyz"

var (
	once       sync.Once
	httpClient *http.Client
)

// registryClient is shared by every Client so connections are reused.
func registryClient() *http.Client {
	once.Do(func() {
		httpClient = &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	})

	return httpClient
}

// Client talks to the job registry.
type Client struct {
	url  string
	http *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the shared HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

func New(url string, opts ...Option) *Client {
	if url == "" {
		url = DefaultURL
	}
	c := &Client{
		url:  strings.TrimRight(url, "/"),
		http: registryClient(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) URL() string {
	return c.url
}

// FetchJobs returns the jobs registered under hash.
func (c *Client) FetchJobs(ctx context.Context, hash types.FeedHash) (*types.JobSpec, error) {
	body, err := c.get(ctx, fmt.Sprintf("%s/fetch/%s", c.url, hash))
	if err != nil {
		return nil, err
	}

	jobs := gjson.GetBytes(body, "jobs")
	if !jobs.IsArray() {
		return nil, errorsmod.Wrapf(types.ErrDeserialize, "registry response for %s has no jobs array", hash)
	}

	spec := &types.JobSpec{FeedHash: hash}
	for _, job := range jobs.Array() {
		if !job.IsObject() {
			return nil, errorsmod.Wrapf(types.ErrDeserialize, "registry job for %s is not an object", hash)
		}
		spec.Jobs = append(spec.Jobs, []byte(job.Raw))
	}
	return spec, nil
}

// SimulatedFeed is the registry's dry run of one feed.
type SimulatedFeed struct {
	Feed     string
	FeedHash string
	Results  []float64
}

// Simulate runs the jobs of each hash on the registry without signing.
func (c *Client) Simulate(ctx context.Context, hashes []types.FeedHash) ([]SimulatedFeed, error) {
	if len(hashes) == 0 {
		return nil, errorsmod.Wrap(types.ErrInvalidRequest, "no feed hashes to simulate")
	}
	parts := make([]string, len(hashes))
	for i, h := range hashes {
		parts[i] = h.String()
	}

	body, err := c.get(ctx, fmt.Sprintf("%s/simulate/%s", c.url, strings.Join(parts, ",")))
	if err != nil {
		return nil, err
	}
	return parseSimulation(body)
}

// SimulateFeeds is Simulate keyed by feed account on the given network.
func (c *Client) SimulateFeeds(ctx context.Context, network string, feeds []solana.PublicKey) ([]SimulatedFeed, error) {
	if len(feeds) == 0 {
		return nil, errorsmod.Wrap(types.ErrInvalidRequest, "no feeds to simulate")
	}
	parts := make([]string, len(feeds))
	for i, f := range feeds {
		parts[i] = f.String()
	}

	body, err := c.get(ctx, fmt.Sprintf("%s/simulate/solana/%s/%s", c.url, network, strings.Join(parts, ",")))
	if err != nil {
		return nil, err
	}
	return parseSimulation(body)
}

// Store pins jobs on the registry and returns the resulting feed hash.
func (c *Client) Store(ctx context.Context, queue solana.PublicKey, jobs []json.RawMessage) (types.FeedHash, error) {
	payload, err := json.Marshal(map[string]any{"queue": queue.String(), "jobs": jobs})
	if err != nil {
		return types.FeedHash{}, errors.Wrap(err, "failed to marshal store request")
	}

	body, err := c.do(ctx, http.MethodPost, c.url+"/store", payload)
	if err != nil {
		return types.FeedHash{}, err
	}

	hash, err := types.FeedHashFromHex(strings.TrimPrefix(gjson.GetBytes(body, "feedHash").String(), "0x"))
	if err != nil {
		return types.FeedHash{}, errorsmod.Wrap(types.ErrDeserialize, err.Error())
	}
	return hash, nil
}

func parseSimulation(body []byte) ([]SimulatedFeed, error) {
	res := gjson.ParseBytes(body)
	if !res.IsArray() {
		return nil, errorsmod.Wrap(types.ErrDeserialize, "simulation response is not an array")
	}

	var out []SimulatedFeed
	for _, item := range res.Array() {
		feed := SimulatedFeed{
			Feed:     item.Get("feed").String(),
			FeedHash: item.Get("feedHash").String(),
		}
		for _, r := range item.Get("results").Array() {
			feed.Results = append(feed.Results, r.Float())
		}
		out = append(out, feed)
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, url, nil)
}

func (c *Client) do(ctx context.Context, method, url string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create request for %s", url)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrTransport, errors.Wrapf(err, "%s %s", method, url))
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrTransport, errors.Wrap(err, "failed to read response body"))
	}

	switch {
	case res.StatusCode == http.StatusNotFound:
		return nil, errorsmod.Wrapf(types.ErrNotFound, "%s %s", method, url)
	case res.StatusCode >= 300:
		return nil, fmt.Errorf("%w: %s %s: bad status code %d: %s", types.ErrTransport, method, url, res.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
