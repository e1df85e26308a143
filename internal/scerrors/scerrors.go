// Package scerrors holds the closed set of error kinds the archiver core can
// surface. Components wrap one of these sentinels with fmt.Errorf("...: %w", ...)
// so callers can classify a failure with errors.Is without parsing strings.
package scerrors

import "errors"

var (
	// ErrScrapeFailed means the credential scraper could not locate a usable
	// client_id in any asset script body.
	ErrScrapeFailed = errors.New("scarchive: credential scrape failed")

	// ErrUpstreamFailed means an upstream API operation exhausted its retry
	// budget (3 attempts) without a usable 2xx JSON response.
	ErrUpstreamFailed = errors.New("scarchive: upstream operation failed")

	// ErrAuthRequired means a rendition resolve call returned 401/403. No
	// credential refresh is attempted for it — the rendition is likely
	// premium-gated, not a credential problem.
	ErrAuthRequired = errors.New("scarchive: rendition requires authentication")

	// ErrNotFound means a rendition resolve call returned 404.
	ErrNotFound = errors.New("scarchive: resource not found")

	// ErrSubprocessFailed means the transcoder exited non-zero on both the
	// copy and default-codec attempts.
	ErrSubprocessFailed = errors.New("scarchive: transcoder subprocess failed")

	// ErrTooSmall means a downloaded media file was under the minimum viable
	// size (1024 bytes) and is treated as a failed acquisition.
	ErrTooSmall = errors.New("scarchive: downloaded file too small")

	// ErrWebhookRejected means the destination webhook responded with a
	// non-2xx status; the track must not be linked in the store.
	ErrWebhookRejected = errors.New("scarchive: webhook rejected message")

	// ErrPersistenceFailed means a store save could not complete even after
	// restoring from the backup file.
	ErrPersistenceFailed = errors.New("scarchive: persistence failed")
)
