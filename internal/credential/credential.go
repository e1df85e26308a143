// Package credential holds the process-wide anonymous upstream credential.
// The upstream platform issues no accounts to this archiver; instead a
// client_id is scraped from the platform's public home page and rotated
// whenever upstream calls start failing with 401/403.
package credential

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"github.com/go-resty/resty/v2"

	"github.com/arung-agamani/scarchive-go/internal/scerrors"
)

const (
	homePageURL = "https://soundcloud.com"
)

var (
	assetScriptRe = regexp.MustCompile(`<script\s+crossorigin\s+src="(https://a-v2\.sndcdn\.com/assets/[^"]+\.js)"`)
	clientIDRe    = regexp.MustCompile(`client_id:"([^"]+)"`)
)

// Cache holds exactly one optional credential, guarded by a mutex. Refresh
// performs its network work outside the lock and only takes it briefly to
// install the result, so concurrent refreshers never block each other's HTTP
// round trip — last writer wins.
type Cache struct {
	mu    sync.Mutex
	value string

	client *resty.Client
}

// New returns a Cache that scrapes using the given resty client. Passing nil
// creates a fresh client with sane defaults.
func New(client *resty.Client) *Cache {
	if client == nil {
		client = resty.New()
	}
	return &Cache{client: client}
}

// Get returns the current credential and whether one has been installed yet.
func (c *Cache) Get() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, c.value != ""
}

// Refresh scrapes a fresh credential and installs it, returning the new
// value. Refresh is race-tolerant: concurrent callers may each scrape and
// install independently; the last one to take the lock wins, and every
// caller still receives a valid (if possibly stale by the time it's read)
// credential.
func (c *Cache) Refresh(ctx context.Context) (string, error) {
	resp, err := c.client.R().SetContext(ctx).Get(homePageURL)
	if err != nil {
		return "", fmt.Errorf("%w: fetching home page: %w", scerrors.ErrScrapeFailed, err)
	}
	body := resp.String()

	matches := assetScriptRe.FindAllStringSubmatch(body, -1)
	if len(matches) == 0 {
		return "", fmt.Errorf("%w: no asset script tags found on home page", scerrors.ErrScrapeFailed)
	}

	for _, m := range matches {
		assetURL := m[1]
		assetResp, err := c.client.R().SetContext(ctx).Get(assetURL)
		if err != nil {
			continue
		}
		idMatch := clientIDRe.FindStringSubmatch(assetResp.String())
		if idMatch == nil {
			continue
		}

		value := idMatch[1]
		c.mu.Lock()
		c.value = value
		c.mu.Unlock()
		return value, nil
	}

	return "", fmt.Errorf("%w: no asset body contained a client_id", scerrors.ErrScrapeFailed)
}
