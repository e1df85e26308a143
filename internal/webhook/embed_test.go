package webhook

import (
	"strings"
	"testing"

	"github.com/arung-agamani/scarchive-go/internal/soundcloud"
)

func TestFormatDuration(t *testing.T) {
	cases := map[int64]string{
		0:       "0:00",
		1000:    "0:01",
		61000:   "1:01",
		3600000: "60:00",
	}
	for ms, want := range cases {
		if got := formatDuration(ms); got != want {
			t.Errorf("formatDuration(%d) = %q, want %q", ms, got, want)
		}
	}
}

func TestBuildEmbedIncludesFields(t *testing.T) {
	track := &soundcloud.Track{
		Title:        "A Track",
		PermalinkURL: "https://soundcloud.com/a/a-track",
		CreatedAt:    "2026-01-01T00:00:00Z",
		Description:  "hello",
		DurationMS:   65000,
		Genre:        "House",
		TagList:      `house "deep house" techno`,
		Author: soundcloud.Author{
			Username:     "a",
			PermalinkURL: "https://soundcloud.com/a",
			AvatarURL:    "https://i1.sndcdn.com/avatar.jpg",
		},
	}

	e := buildEmbed(track, "https://i1.sndcdn.com/artworks-x-original.jpg")

	if e.Title != "A Track" || e.URL != track.PermalinkURL {
		t.Fatalf("unexpected title/url: %+v", e)
	}
	if e.Thumbnail == nil || e.Thumbnail.URL != "https://i1.sndcdn.com/artworks-x-original.jpg" {
		t.Fatalf("expected thumbnail to be set, got %+v", e.Thumbnail)
	}
	if e.Author == nil || e.Author.Name != "a" {
		t.Fatalf("expected author name 'a', got %+v", e.Author)
	}

	var names []string
	fieldByName := map[string]string{}
	for _, f := range e.Fields {
		names = append(names, f.Name)
		fieldByName[f.Name] = f.Value
	}
	if fieldByName["Duration"] != "1:05" {
		t.Errorf("expected Duration field '1:05', got %q", fieldByName["Duration"])
	}
	if fieldByName["Genre"] != "House" {
		t.Errorf("expected Genre field 'House', got %q", fieldByName["Genre"])
	}
	if !strings.Contains(fieldByName["Tags"], "deep house") {
		t.Errorf("expected Tags field to contain 'deep house', got %q", fieldByName["Tags"])
	}
}

func TestBuildEmbedTruncatesLongDescription(t *testing.T) {
	long := strings.Repeat("a", maxDescription+500)
	track := &soundcloud.Track{Title: "x", Description: long}

	e := buildEmbed(track, "")

	if len(e.Description) != maxDescription+len("…") {
		t.Fatalf("expected truncated description length %d, got %d", maxDescription+len("…"), len(e.Description))
	}
	if !strings.HasSuffix(e.Description, "…") {
		t.Error("expected truncated description to end with ellipsis")
	}
}

func TestBuildEmbedOmitsThumbnailWithoutArtwork(t *testing.T) {
	track := &soundcloud.Track{Title: "x"}
	e := buildEmbed(track, "")
	if e.Thumbnail != nil {
		t.Error("expected no thumbnail when artwork URL is empty")
	}
}
