package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"mcuplan/errcode"
	"mcuplan/types"
)

const (
	defaultFetchTimeout = 5 * time.Second
	maxRemoteBody       = 4 << 20
)

// Remote fetches additional MCU specifications from an HTTP endpoint that
// returns a JSON array.
type Remote struct {
	URL     string
	Timeout time.Duration
	Client  *http.Client
	Log     zerolog.Logger
}

// NewRemote builds a Remote; a zero timeout selects the default.
func NewRemote(url string, timeout time.Duration, log zerolog.Logger) *Remote {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &Remote{
		URL:     url,
		Timeout: timeout,
		Client:  &http.Client{},
		Log:     log.With().Str("component", "catalog_remote").Logger(),
	}
}

// Fetch performs one bounded GET.
func (r *Remote) Fetch(ctx context.Context) ([]types.MCU, error) {
	if r.URL == "" {
		return nil, errcode.Wrap(errcode.Unavailable, "fetch", "no catalog url", nil)
	}
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL, nil)
	if err != nil {
		return nil, errcode.Wrap(errcode.InvalidParams, "fetch", r.URL, err)
	}
	req.Header.Set("Accept", "application/json")

	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, errcode.Wrap(errcode.Timeout, "fetch", r.URL, err)
		}
		return nil, errcode.Wrap(errcode.Unavailable, "fetch", r.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errcode.Wrap(errcode.Unavailable, "fetch", fmt.Sprintf("%s: status %d", r.URL, resp.StatusCode), nil)
	}
	var mcus []types.MCU
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxRemoteBody)).Decode(&mcus); err != nil {
		return nil, errcode.Wrap(errcode.InvalidPayload, "fetch", r.URL, err)
	}
	return mcus, nil
}

// Refresh fetches and merges into c and reports what changed. On failure c
// is left untouched and the error is logged and returned.
func (r *Remote) Refresh(ctx context.Context, c *Catalog) (Updated, error) {
	mcus, err := r.Fetch(ctx)
	if err != nil {
		r.Log.Warn().Err(err).Str("url", r.URL).Msg("Remote catalog fetch failed")
		return Updated{}, err
	}
	added, replaced := c.Merge(mcus...)
	r.Log.Info().
		Int("received", len(mcus)).
		Int("added", added).
		Int("replaced", replaced).
		Msg("Remote catalog merged")
	return Updated{Source: "remote", Added: added, Replaced: replaced}, nil
}

// RefreshJob adapts Refresh to the scheduler's job interface.
type RefreshJob struct {
	Remote  *Remote
	Catalog *Catalog
	// After runs when a refresh succeeded (e.g. to announce the change).
	After func(ctx context.Context, u Updated)
}

func (j *RefreshJob) Name() string { return "catalog_refresh" }

func (j *RefreshJob) Run() error {
	ctx := context.Background()
	u, err := j.Remote.Refresh(ctx, j.Catalog)
	if err != nil {
		return err
	}
	if j.After != nil {
		j.After(ctx, u)
	}
	return nil
}
