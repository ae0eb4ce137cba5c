package updater

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/driftdeskio/driftdesk/version"
)

const (
	// DefaultFeedURL is the production release feed.
	DefaultFeedURL = "https://releases.driftdesk.io/desktop/releases.json"

	userAgent       = "DriftDesk updater/%s"
	fetchTimeout    = 10 * time.Second
	maxErrBodyBytes = 500
)

// Fetcher retrieves the raw release manifest from the remote feed and parses
// it into an ordered sequence of release records.
type Fetcher struct {
	feedURL    string
	httpClient *http.Client
}

// NewFetcher creates a Fetcher for the given feed URL, falling back to the
// production feed when empty. The HTTP client carries a bounded timeout so a
// hung fetch cannot stall the polling cadence forever.
func NewFetcher(feedURL string) *Fetcher {
	if feedURL == "" {
		feedURL = DefaultFeedURL
	}
	return &Fetcher{
		feedURL:    feedURL,
		httpClient: &http.Client{Timeout: fetchTimeout},
	}
}

// FetchReleases issues a single retrieval of the feed and returns its records
// sorted by descending semantic version. Pre-releases are dropped unless
// includePreReleases is set. The transform is pure, there are no side effects
// beyond the network call.
func (f *Fetcher) FetchReleases(ctx context.Context, includePreReleases bool) ([]ReleaseRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create feed request: %w", err)
	}
	req.Header.Set("User-Agent", fmt.Sprintf(userAgent, version.DriftdeskVersion()))

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, &FeedUnreachableError{Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBodyBytes))
		return nil, &FeedUnreachableError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var records []ReleaseRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, &FeedMalformedError{Err: err}
	}

	records = parseVersions(records)
	if !includePreReleases {
		records = stableOnly(records)
	}
	sortReleases(records)

	return records, nil
}
