// Package webhook builds and sends track-announcement messages to the
// configured destination, matching the embed/attachment contract in
// spec.md §4.5.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/arung-agamani/scarchive-go/internal/media"
	"github.com/arung-agamani/scarchive-go/internal/scerrors"
	"github.com/arung-agamani/scarchive-go/internal/soundcloud"
)

const (
	maxAttachments   = 10
	maxAggregateSize = 8 * 1024 * 1024
	maxDescription   = 2000
	requestTimeout   = 30 * time.Second
)

// Poster sends one announcement per track to the configured endpoint.
type Poster struct {
	http *resty.Client
	url  string
}

func New(url string) *Poster {
	return &Poster{
		http: resty.New().SetTimeout(requestTimeout),
		url:  url,
	}
}

// Announce is the linkage record returned on a successful post, handed back
// to the caller for track-store linkage.
type Announce struct {
	MessageID string
	ChannelID string
}

type embed struct {
	Title       string       `json:"title"`
	URL         string       `json:"url"`
	Timestamp   string       `json:"timestamp,omitempty"`
	Description string       `json:"description,omitempty"`
	Thumbnail   *embedImage  `json:"thumbnail,omitempty"`
	Author      *embedAuthor `json:"author,omitempty"`
	Fields      []embedField `json:"fields,omitempty"`
}

type embedImage struct {
	URL string `json:"url"`
}

type embedAuthor struct {
	Name    string `json:"name"`
	URL     string `json:"url,omitempty"`
	IconURL string `json:"icon_url,omitempty"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type payload struct {
	Embeds []embed `json:"embeds"`
}

type responseEnvelope struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
}

func buildEmbed(track *soundcloud.Track, artworkURL string) embed {
	desc := track.Description
	if len(desc) > maxDescription {
		desc = desc[:maxDescription] + "…"
	}

	e := embed{
		Title:       track.Title,
		URL:         track.PermalinkURL,
		Timestamp:   track.CreatedAt,
		Description: desc,
		Author: &embedAuthor{
			Name:    track.Author.Username,
			URL:     track.Author.PermalinkURL,
			IconURL: track.Author.AvatarURL,
		},
	}
	if artworkURL != "" {
		e.Thumbnail = &embedImage{URL: artworkURL}
	}

	if track.DurationMS > 0 {
		e.Fields = append(e.Fields, embedField{Name: "Duration", Value: formatDuration(track.DurationMS), Inline: true})
	}
	if track.Genre != "" {
		e.Fields = append(e.Fields, embedField{Name: "Genre", Value: track.Genre, Inline: true})
	}
	if tags := parseTags(track.TagList); len(tags) > 0 {
		e.Fields = append(e.Fields, embedField{Name: "Tags", Value: strings.Join(tags, ", "), Inline: true})
	}

	return e
}

func formatDuration(ms int64) string {
	total := ms / 1000
	minutes := total / 60
	seconds := total % 60
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

// selectAttachments ranks files by size ascending and greedily admits until
// either cap is hit, skipping individually oversized files without
// aborting (spec.md §4.5, property 5).
func selectAttachments(files []media.Result) []media.Result {
	type sized struct {
		result media.Result
		size   int64
	}

	sizedFiles := make([]sized, 0, len(files))
	for _, f := range files {
		info, err := os.Stat(f.Path)
		if err != nil {
			continue
		}
		sizedFiles = append(sizedFiles, sized{result: f, size: info.Size()})
	}

	sort.SliceStable(sizedFiles, func(i, j int) bool { return sizedFiles[i].size < sizedFiles[j].size })

	var admitted []media.Result
	var total int64
	for _, sf := range sizedFiles {
		if len(admitted) >= maxAttachments {
			break
		}
		if total+sf.size > maxAggregateSize {
			continue
		}
		admitted = append(admitted, sf.result)
		total += sf.size
	}
	return admitted
}

func mimeForExt(ext string) string {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "mp3":
		return "audio/mpeg"
	case "ogg":
		return "audio/ogg"
	case "opus":
		return "audio/opus"
	case "m4a":
		return "audio/mp4"
	case "json":
		return "application/json"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}

// Post builds the embed for track and sends it, attaching as many of
// out.Media/artwork/metadata files as fit under the destination caps. It
// returns the destination's message linkage on success.
func (p *Poster) Post(ctx context.Context, track *soundcloud.Track, out *media.Output) (*Announce, error) {
	artworkURL := ""
	if track.ArtworkURL != "" {
		artworkURL = media.ArtworkOriginalURL(track.ArtworkURL)
	}
	e := buildEmbed(track, artworkURL)
	body := payload{Embeds: []embed{e}}

	var attachable []media.Result
	attachable = append(attachable, out.Media...)
	if out.ArtworkPath != "" {
		attachable = append(attachable, media.Result{FormatTag: "artwork", Path: out.ArtworkPath})
	}
	if out.MetadataPath != "" {
		attachable = append(attachable, media.Result{FormatTag: "metadata", Path: out.MetadataPath})
	}

	admitted := selectAttachments(attachable)
	if len(admitted) < len(attachable) {
		slog.Warn("attachments dropped by cap", "track_id", track.ID, "dropped", len(attachable)-len(admitted))
	}

	var resp *resty.Response
	var err error
	if len(admitted) == 0 {
		resp, err = p.sendEmbedOnly(ctx, body)
	} else {
		resp, err = p.sendMultipart(ctx, body, admitted)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", scerrors.ErrWebhookRejected, err)
	}

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, fmt.Errorf("%w: status %d: %s", scerrors.ErrWebhookRejected, resp.StatusCode(), resp.String())
	}

	// wait=true (appended in postURL) asks the destination for a parseable
	// body, but an unexpected empty/malformed response is not itself a
	// delivery failure — the message went out, there's just nothing to link.
	var env responseEnvelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		slog.Warn("webhook response body was not parseable, announcing without linkage", "track_id", track.ID, "error", err)
		return nil, nil
	}
	return &Announce{MessageID: env.ID, ChannelID: env.ChannelID}, nil
}

// postURL appends wait=true to the configured destination URL so the caller
// gets back a parseable message body instead of a bare 204 No Content.
func (p *Poster) postURL() string {
	if strings.Contains(p.url, "?") {
		return p.url + "&wait=true"
	}
	return p.url + "?wait=true"
}

func (p *Poster) sendEmbedOnly(ctx context.Context, body payload) (*resty.Response, error) {
	return p.http.R().SetContext(ctx).SetBody(body).Post(p.postURL())
}

func (p *Poster) sendMultipart(ctx context.Context, body payload, files []media.Result) (*resty.Response, error) {
	payloadJSON, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req := p.http.R().SetContext(ctx).SetMultipartField("payload_json", "", "application/json", strings.NewReader(string(payloadJSON)))
	for i, f := range files {
		data, err := os.ReadFile(f.Path)
		if err != nil {
			continue
		}
		req = req.SetMultipartField(
			fmt.Sprintf("file%d", i),
			filepath.Base(f.Path),
			mimeForExt(filepath.Ext(f.Path)),
			strings.NewReader(string(data)),
		)
	}

	return req.Post(p.postURL())
}
