package soundcloud

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// IDString decodes an id field the upstream API encodes as a bare JSON
// number (the common case) or, occasionally, as a quoted string, and
// stringifies it either way so the rest of the codebase can treat every id
// as a plain string.
type IDString string

func (id *IDString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("id string: %w", err)
		}
		*id = IDString(s)
		return nil
	}
	*id = IDString(data)
	return nil
}

func (id IDString) String() string { return string(id) }

// Author is the nested account record embedded in a Track.
type Author struct {
	ID           IDString `json:"id"`
	Username     string   `json:"username"`
	PermalinkURL string   `json:"permalink_url"`
	AvatarURL    string   `json:"avatar_url"`
}

// Track is the typed projection of an upstream track, retained alongside its
// verbatim JSON document so the media pipeline can read fields the typed
// struct doesn't model (media.transcodings[]) and write the document out as
// metadata (per DESIGN NOTES: "Dynamic upstream JSON"). The webhook embed is
// built from the typed fields only.
type Track struct {
	ID           IDString `json:"id"`
	Title        string   `json:"title"`
	PermalinkURL string   `json:"permalink_url"`
	CreatedAt    string   `json:"created_at"`
	DurationMS   int64    `json:"duration"`
	Author       Author   `json:"user"`
	Description  string   `json:"description,omitempty"`
	Genre        string   `json:"genre,omitempty"`
	TagList      string   `json:"tag_list,omitempty"`

	PlaybackCount int64 `json:"playback_count"`
	LikesCount    int64 `json:"likes_count"`
	RepostsCount  int64 `json:"reposts_count"`
	CommentCount  int64 `json:"comment_count"`

	StreamURL    string `json:"stream_url,omitempty"`
	HLSURL       string `json:"hls_url,omitempty"`
	DownloadURL  string `json:"download_url,omitempty"`
	Downloadable bool   `json:"downloadable"`

	ArtworkURL string `json:"artwork_url,omitempty"`

	// Raw is the verbatim upstream document. It is the authoritative source
	// for anything the typed fields above don't capture, and is re-serialised
	// pretty-printed as the per-track metadata artifact.
	Raw json.RawMessage `json:"-"`
}

// rawTrackEnvelope lets UnmarshalJSON populate both the typed Track and its
// raw document in one decode.
type rawTrackEnvelope Track

// UnmarshalJSON decodes into the typed fields and retains the original bytes
// in Raw.
func (t *Track) UnmarshalJSON(data []byte) error {
	var env rawTrackEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	*t = Track(env)
	t.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// Transcoding is one entry of media.transcodings[] in the raw track JSON.
type Transcoding struct {
	URL      string `json:"url"`
	Preset   string `json:"preset"`
	Duration int64  `json:"duration"`
	Format   struct {
		Protocol string `json:"protocol"`
		MimeType string `json:"mime_type"`
	} `json:"format"`
	Quality string `json:"quality"`
}

// mediaEnvelope unwraps the "media" object of a raw track document.
type mediaEnvelope struct {
	Media struct {
		Transcodings []Transcoding `json:"transcodings"`
	} `json:"media"`
}

// Transcodings extracts media.transcodings[] from the track's raw document.
func (t *Track) Transcodings() ([]Transcoding, error) {
	if len(t.Raw) == 0 {
		return nil, nil
	}
	var env mediaEnvelope
	if err := json.Unmarshal(t.Raw, &env); err != nil {
		return nil, err
	}
	return env.Media.Transcodings, nil
}

// Like pairs a timestamp with its track; only the track is retained
// downstream per spec.md §3.
type Like struct {
	CreatedAt string `json:"created_at"`
	Track     Track  `json:"track"`
}

// User is the generic projection used to bound uploads fetches and to name
// auto-enrollment additions in logs.
type User struct {
	ID           IDString `json:"id"`
	Username     string   `json:"username"`
	PermalinkURL string   `json:"permalink_url"`
	TrackCount   *int64   `json:"track_count,omitempty"`
}

// Resolved is the generic envelope returned by /resolve, carrying a Kind
// discriminator the caller switches on.
type Resolved struct {
	Kind string          `json:"kind"`
	Raw  json.RawMessage `json:"-"`
}

func (r *Resolved) UnmarshalJSON(data []byte) error {
	var probe struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	r.Kind = probe.Kind
	r.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// collectionEnvelope models the paginated {collection:[...], next_href:...}
// shape shared by uploads, likes, and followings responses.
type collectionEnvelope[T any] struct {
	Collection []T     `json:"collection"`
	NextHref   *string `json:"next_href"`
}

// renditionURLEnvelope models the {"url": "..."} response from the
// rendition-resolve endpoint.
type renditionURLEnvelope struct {
	URL string `json:"url"`
}
