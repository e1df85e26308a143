// Package soundcloud implements typed operations over the upstream
// platform's JSON API, with bounded retry, auth-aware credential refresh,
// and pagination, as specified in spec.md §4.2.
package soundcloud

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/arung-agamani/scarchive-go/internal/gate"
	"github.com/arung-agamani/scarchive-go/internal/scerrors"
)

const (
	baseURL        = "https://api-v2.soundcloud.com"
	maxAttempts    = 3
	requestTimeout = 30 * time.Second
	followingsPage = 200
)

// CredentialSource is the subset of *credential.Cache the client depends on.
// Narrowed to an interface so tests can seed a value without performing a
// real scrape.
type CredentialSource interface {
	Get() (string, bool)
	Refresh(ctx context.Context) (string, error)
}

// Client is the upstream API client. All operations share the upstream gate
// and the retry/refresh protocol in §4.2.
type Client struct {
	http *resty.Client
	cred CredentialSource
	gate *gate.Gate
}

// New creates a Client. gate is the shared upstream semaphore; cred is the
// process-wide credential cache.
func New(cred CredentialSource, upstreamGate *gate.Gate) *Client {
	httpClient := resty.New().
		SetTimeout(requestTimeout).
		SetBaseURL(baseURL)

	return &Client{
		http: httpClient,
		cred: cred,
		gate: upstreamGate,
	}
}

// doWithRetry runs buildAndSend up to maxAttempts times, injecting a fresh
// query string `client_id` on every attempt. A 401/403 response triggers an
// immediate credential refresh and continues the same retry loop without
// consuming an attempt's worth of progress in a way that prevents retrying;
// it still counts toward the attempt ceiling so a persistently bad
// credential can't loop forever. Non-auth non-2xx responses and network
// errors, and 2xx responses with unparseable JSON, are retryable.
func (c *Client) doWithRetry(ctx context.Context, op string, buildAndSend func(clientID string) (*resty.Response, error)) (*resty.Response, error) {
	var lastErr error

	if err := c.gate.Acquire(ctx); err != nil {
		return nil, err
	}
	defer c.gate.Release()

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(2*attempt) * time.Second
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		clientID, ok := c.cred.Get()
		if !ok {
			if _, err := c.cred.Refresh(ctx); err != nil {
				lastErr = err
				continue
			}
			clientID, _ = c.cred.Get()
		}

		resp, err := buildAndSend(clientID)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", op, err)
			continue
		}

		if resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden {
			slog.Warn("upstream call unauthorized, refreshing credential", "op", op, "status", resp.StatusCode())
			if _, err := c.cred.Refresh(ctx); err != nil {
				lastErr = fmt.Errorf("%s: refresh after %d: %w", op, resp.StatusCode(), err)
			} else {
				lastErr = fmt.Errorf("%s: retrying after credential refresh", op)
			}
			continue
		}

		if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
			lastErr = fmt.Errorf("%s: unexpected status %d", op, resp.StatusCode())
			continue
		}

		if !json.Valid(resp.Body()) {
			lastErr = fmt.Errorf("%s: invalid JSON body", op)
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("%w: %s: %v", scerrors.ErrUpstreamFailed, op, lastErr)
}

func decodeJSON[T any](resp *resty.Response, out *T) error {
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// ResolveURL resolves a canonical platform URL to its generic JSON record.
func (c *Client) ResolveURL(ctx context.Context, u string) (*Resolved, error) {
	resp, err := c.doWithRetry(ctx, "resolve_url", func(clientID string) (*resty.Response, error) {
		return c.http.R().SetContext(ctx).
			SetQueryParams(map[string]string{"url": u, "client_id": clientID}).
			Get("/resolve")
	})
	if err != nil {
		return nil, err
	}

	var out Resolved
	if err := decodeJSON(resp, &out); err != nil {
		return nil, fmt.Errorf("%w: resolve_url: %w", scerrors.ErrUpstreamFailed, err)
	}
	return &out, nil
}

// GetTrack fetches full track detail by id.
func (c *Client) GetTrack(ctx context.Context, id string) (*Track, error) {
	resp, err := c.doWithRetry(ctx, "get_track", func(clientID string) (*resty.Response, error) {
		return c.http.R().SetContext(ctx).
			SetQueryParam("client_id", clientID).
			Get(fmt.Sprintf("/tracks/%s", id))
	})
	if err != nil {
		return nil, err
	}

	var out Track
	if err := decodeJSON(resp, &out); err != nil {
		return nil, fmt.Errorf("%w: get_track: %w", scerrors.ErrUpstreamFailed, err)
	}
	return &out, nil
}

// GetUser fetches an account's generic JSON record (used to bound uploads
// fetches via track_count).
func (c *Client) GetUser(ctx context.Context, id string) (*User, error) {
	resp, err := c.doWithRetry(ctx, "get_user", func(clientID string) (*resty.Response, error) {
		return c.http.R().SetContext(ctx).
			SetQueryParam("client_id", clientID).
			Get(fmt.Sprintf("/users/%s", id))
	})
	if err != nil {
		return nil, err
	}

	var out User
	if err := decodeJSON(resp, &out); err != nil {
		return nil, fmt.Errorf("%w: get_user: %w", scerrors.ErrUpstreamFailed, err)
	}
	return &out, nil
}

// GetUploads fetches an account's uploads, capped at maxCount, de-duplicated
// by id within the response.
func (c *Client) GetUploads(ctx context.Context, id string, maxCount int) ([]Track, error) {
	resp, err := c.doWithRetry(ctx, "get_uploads", func(clientID string) (*resty.Response, error) {
		return c.http.R().SetContext(ctx).
			SetQueryParams(map[string]string{
				"client_id":           clientID,
				"limit":               fmt.Sprintf("%d", maxCount),
				"linked_partitioning": "1",
			}).
			Get(fmt.Sprintf("/users/%s/tracks", id))
	})
	if err != nil {
		return nil, err
	}

	var env collectionEnvelope[Track]
	if err := decodeJSON(resp, &env); err != nil {
		return nil, fmt.Errorf("%w: get_uploads: %w", scerrors.ErrUpstreamFailed, err)
	}
	return dedupeByID(env.Collection), nil
}

// GetLikes fetches an account's likes, capped at maxCount.
func (c *Client) GetLikes(ctx context.Context, id string, maxCount int) ([]Like, error) {
	resp, err := c.doWithRetry(ctx, "get_likes", func(clientID string) (*resty.Response, error) {
		return c.http.R().SetContext(ctx).
			SetQueryParams(map[string]string{
				"client_id":           clientID,
				"limit":               fmt.Sprintf("%d", maxCount),
				"linked_partitioning": "1",
			}).
			Get(fmt.Sprintf("/users/%s/likes", id))
	})
	if err != nil {
		return nil, err
	}

	var env collectionEnvelope[Like]
	if err := decodeJSON(resp, &env); err != nil {
		return nil, fmt.Errorf("%w: get_likes: %w", scerrors.ErrUpstreamFailed, err)
	}
	return env.Collection, nil
}

// GetFollowings fetches the full followings list for an account, paginating
// by offset (advanced by each page's length) until the collection is empty,
// next_href is absent, or maxCount (if positive) is reached. Each page is
// capped at 200.
func (c *Client) GetFollowings(ctx context.Context, id string, maxCount int) ([]User, error) {
	var all []User
	offset := 0

	for {
		limit := followingsPage
		resp, err := c.doWithRetry(ctx, "get_followings", func(clientID string) (*resty.Response, error) {
			return c.http.R().SetContext(ctx).
				SetQueryParams(map[string]string{
					"client_id":           clientID,
					"limit":               fmt.Sprintf("%d", limit),
					"offset":              fmt.Sprintf("%d", offset),
					"linked_partitioning": "1",
				}).
				Get(fmt.Sprintf("/users/%s/followings", id))
		})
		if err != nil {
			return nil, err
		}

		var env collectionEnvelope[User]
		if err := decodeJSON(resp, &env); err != nil {
			return nil, fmt.Errorf("%w: get_followings: %w", scerrors.ErrUpstreamFailed, err)
		}

		if len(env.Collection) == 0 {
			break
		}
		all = append(all, env.Collection...)

		if maxCount > 0 && len(all) >= maxCount {
			all = all[:maxCount]
			break
		}
		if env.NextHref == nil {
			break
		}
		offset += len(env.Collection)
	}

	return all, nil
}

// ResolveRendition resolves a rendition URL (from media.transcodings[]) to a
// direct media URL via a GET with the credential appended. Unlike the other
// operations, a 401/403 here does NOT trigger a global credential refresh:
// rendition URLs are per-track signed links, and an auth failure on one
// almost always means the rendition is premium-gated, not that the shared
// client_id expired. It is surfaced as ErrAuthRequired so the media pipeline
// can skip to the next rendition. A 404 is surfaced as ErrNotFound. Other
// failures still retry up to maxAttempts with the same backoff as §4.2.
func (c *Client) ResolveRendition(ctx context.Context, renditionURL string) (string, error) {
	var lastErr error

	if err := c.gate.Acquire(ctx); err != nil {
		return "", err
	}
	defer c.gate.Release()

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(2*attempt) * time.Second
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		clientID, _ := c.cred.Get()
		resp, err := c.http.R().SetContext(ctx).
			SetQueryParam("client_id", clientID).
			Get(renditionURL)
		if err != nil {
			lastErr = err
			continue
		}

		switch resp.StatusCode() {
		case http.StatusUnauthorized, http.StatusForbidden:
			return "", scerrors.ErrAuthRequired
		case http.StatusNotFound:
			return "", scerrors.ErrNotFound
		}

		if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
			lastErr = fmt.Errorf("resolve_rendition: unexpected status %d", resp.StatusCode())
			continue
		}

		var out renditionURLEnvelope
		if err := decodeJSON(resp, &out); err != nil {
			lastErr = fmt.Errorf("resolve_rendition: %w", err)
			continue
		}
		return out.URL, nil
	}

	return "", fmt.Errorf("%w: resolve_rendition: %v", scerrors.ErrUpstreamFailed, lastErr)
}

func dedupeByID(tracks []Track) []Track {
	seen := make(map[IDString]bool, len(tracks))
	out := make([]Track, 0, len(tracks))
	for _, t := range tracks {
		if seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		out = append(out, t)
	}
	return out
}
