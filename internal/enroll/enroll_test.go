package enroll

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/arung-agamani/scarchive-go/internal/soundcloud"
	"github.com/arung-agamani/scarchive-go/internal/store"
)

type fakeUpstream struct {
	resolved   *soundcloud.Resolved
	resolveErr error
	followings []soundcloud.User
}

func (f *fakeUpstream) ResolveURL(ctx context.Context, u string) (*soundcloud.Resolved, error) {
	return f.resolved, f.resolveErr
}

func (f *fakeUpstream) GetFollowings(ctx context.Context, id string, maxCount int) ([]soundcloud.User, error) {
	return f.followings, nil
}

func newTestAccountStore(t *testing.T) *store.AccountStore {
	t.Helper()
	s, err := store.LoadOrCreateAccountStore(filepath.Join(t.TempDir(), "accounts.json"))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestRunAddsNewFollowingsOnly(t *testing.T) {
	accountStore := newTestAccountStore(t)
	accountStore.Add("already-watched")

	up := &fakeUpstream{
		followings: []soundcloud.User{
			{ID: "already-watched", Username: "old"},
			{ID: "fresh-1", Username: "new one"},
			{ID: "fresh-2", Username: "new two"},
		},
	}

	e := New(up, accountStore, "999")
	if err := e.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	ids := accountStore.List()
	if len(ids) != 3 {
		t.Fatalf("expected 3 watched accounts, got %d: %v", len(ids), ids)
	}
	if !accountStore.Contains("fresh-1") || !accountStore.Contains("fresh-2") {
		t.Fatal("expected both new followings to be added")
	}
}

func TestRunNoNewFollowingsIsNoOp(t *testing.T) {
	accountStore := newTestAccountStore(t)
	accountStore.Add("a", "b")

	up := &fakeUpstream{
		followings: []soundcloud.User{
			{ID: "a", Username: "a"},
			{ID: "b", Username: "b"},
		},
	}

	e := New(up, accountStore, "999")
	if err := e.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(accountStore.List()) != 2 {
		t.Fatalf("expected no accounts added, got %v", accountStore.List())
	}
}

func TestResolveSourceIDPassesThroughBareID(t *testing.T) {
	e := &Enroller{source: "12345"}
	id, err := e.resolveSourceID(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if id != "12345" {
		t.Errorf("expected bare id to pass through unchanged, got %q", id)
	}
}

func TestResolveSourceIDResolvesURL(t *testing.T) {
	up := &fakeUpstream{
		resolved: &soundcloud.Resolved{Kind: "user", Raw: []byte(`{"id":"555"}`)},
	}
	e := &Enroller{source: "https://soundcloud.com/someone", upstream: up}

	id, err := e.resolveSourceID(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if id != "555" {
		t.Errorf("expected resolved id 555, got %q", id)
	}
}

func TestResolveSourceIDRejectsNonUserKind(t *testing.T) {
	up := &fakeUpstream{
		resolved: &soundcloud.Resolved{Kind: "playlist", Raw: []byte(`{"id":"555"}`)},
	}
	e := &Enroller{source: "https://soundcloud.com/someone/sets/x", upstream: up}

	if _, err := e.resolveSourceID(context.Background()); err == nil {
		t.Fatal("expected an error for a non-user resolved kind")
	}
}
