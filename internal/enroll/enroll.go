// Package enroll implements auto-enrollment (spec.md §4.8): mirroring a
// source account's followings list into the watched-account store.
package enroll

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/arung-agamani/scarchive-go/internal/soundcloud"
	"github.com/arung-agamani/scarchive-go/internal/store"
)

// Upstream is the subset of soundcloud.Client auto-enrollment needs.
type Upstream interface {
	ResolveURL(ctx context.Context, u string) (*soundcloud.Resolved, error)
	GetFollowings(ctx context.Context, id string, maxCount int) ([]soundcloud.User, error)
}

// Enroller mirrors the configured source's followings into the
// watched-account store.
type Enroller struct {
	upstream     Upstream
	accountStore *store.AccountStore
	source       string
}

func New(upstream Upstream, accountStore *store.AccountStore, source string) *Enroller {
	return &Enroller{upstream: upstream, accountStore: accountStore, source: source}
}

// Run resolves the configured source to an account id if it looks like a
// URL, fetches its entire followings list, and appends any identifiers not
// already watched. Previously-watched accounts the source has since
// unfollowed are never removed.
func (e *Enroller) Run(ctx context.Context) error {
	sourceID, err := e.resolveSourceID(ctx)
	if err != nil {
		return err
	}

	followings, err := e.upstream.GetFollowings(ctx, sourceID, 0)
	if err != nil {
		return err
	}

	var newIDs []string
	names := make(map[string]string, len(followings))
	for _, u := range followings {
		id := u.ID.String()
		if e.accountStore.Contains(id) {
			continue
		}
		newIDs = append(newIDs, id)
		names[id] = u.Username
	}

	if len(newIDs) == 0 {
		return nil
	}

	added := e.accountStore.Add(newIDs...)
	for _, id := range added {
		slog.Info("auto-enroll added account", "account_id", id, "username", names[id])
	}

	return e.accountStore.Save()
}

func (e *Enroller) resolveSourceID(ctx context.Context) (string, error) {
	if !strings.HasPrefix(e.source, "http://") && !strings.HasPrefix(e.source, "https://") {
		return e.source, nil
	}

	resolved, err := e.upstream.ResolveURL(ctx, e.source)
	if err != nil {
		return "", err
	}
	if resolved.Kind != "user" {
		return "", errors.New("enroll: resolved source is not a user")
	}

	var probe struct {
		ID soundcloud.IDString `json:"id"`
	}
	if err := json.Unmarshal(resolved.Raw, &probe); err != nil {
		return "", err
	}
	return probe.ID.String(), nil
}
