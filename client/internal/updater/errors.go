package updater

import (
	"errors"
	"fmt"
)

// ErrNoSuitableRelease indicates the feed had no release left after channel
// filtering.
var ErrNoSuitableRelease = errors.New("no suitable release in feed")

// FeedUnreachableError indicates the feed transport failed or the feed
// answered with a non-success status. Body carries at most 500 bytes of the
// response for diagnostics.
type FeedUnreachableError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *FeedUnreachableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("update feed unreachable: %v", e.Err)
	}
	return fmt.Sprintf("update feed returned status %d: %s", e.StatusCode, e.Body)
}

func (e *FeedUnreachableError) Unwrap() error {
	return e.Err
}

// FeedMalformedError indicates the feed body could not be parsed into release
// records.
type FeedMalformedError struct {
	Err error
}

func (e *FeedMalformedError) Error() string {
	return fmt.Sprintf("update feed malformed: %v", e.Err)
}

func (e *FeedMalformedError) Unwrap() error {
	return e.Err
}

// DowngradeRejectedError indicates the best candidate is not strictly newer
// than the running version and downgrades are disallowed.
type DowngradeRejectedError struct {
	Candidate string
	Current   string
}

func (e *DowngradeRejectedError) Error() string {
	return fmt.Sprintf("candidate version %s is not newer than running version %s", e.Candidate, e.Current)
}

// UnsupportedPlatformError indicates the host platform has no manifest
// mapping registered.
type UnsupportedPlatformError struct {
	Platform PlatformKey
}

func (e *UnsupportedPlatformError) Error() string {
	return fmt.Sprintf("no update manifest registered for platform %q", e.Platform)
}

// NoMatchingAssetError indicates the release carries no asset named like the
// platform's expected manifest file.
type NoMatchingAssetError struct {
	Platform PlatformKey
	Want     string
	Release  string
}

func (e *NoMatchingAssetError) Error() string {
	return fmt.Sprintf("release %s has no asset %q for platform %q", e.Release, e.Want, e.Platform)
}

// EngineError is an opaque failure surfaced by the download/install engine.
type EngineError struct {
	Message string
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("update engine: %s", e.Message)
}
