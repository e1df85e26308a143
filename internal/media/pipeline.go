// Package media implements the per-track acquisition pipeline: enumerating
// and priority-sorting renditions, downloading each of them in priority order
// via the transcoder, falling back to hls_url/stream_url/re-encode when nothing
// downloads cleanly, and fetching artwork and a metadata JSON snapshot.
// Grounded on spec.md §4.4.
package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/arung-agamani/scarchive-go/internal/scerrors"
	"github.com/arung-agamani/scarchive-go/internal/soundcloud"
	"github.com/arung-agamani/scarchive-go/internal/transcoder"
)

const minValidBytes = 1024

// Upstream is the subset of soundcloud.Client the pipeline needs; named
// narrowly so tests can fake it.
type Upstream interface {
	ResolveRendition(ctx context.Context, renditionURL string) (string, error)
}

// Result is one downloaded media file, tagged with the rendition it came
// from for webhook field labelling and re-sorting.
type Result struct {
	FormatTag string
	Path      string
}

// Output is everything the webhook poster needs for one track.
type Output struct {
	Media        []Result
	ArtworkPath  string
	MetadataPath string
	WorkDir      string
}

// Pipeline runs the acquisition process for one track at a time; it holds
// no per-call state and is safe to share across goroutines (the caller is
// expected to have already acquired a processing-gate permit).
type Pipeline struct {
	upstream   Upstream
	transcoder *transcoder.Transcoder
	httpClient *http.Client
	stagingDir string
}

func New(upstream Upstream, tc *transcoder.Transcoder, stagingDir string) *Pipeline {
	return &Pipeline{
		upstream:   upstream,
		transcoder: tc,
		httpClient: http.DefaultClient,
		stagingDir: stagingDir,
	}
}

// rendition is one enumerated media.transcodings[] entry.
type rendition struct {
	tag string
	url string
}

var artworkSuffixRe = regexp.MustCompile(`(-large\.jpg|-t500x500\.jpg)$`)

// ArtworkOriginalURL transforms a track's artwork_url to the high-resolution
// "original" variant, per spec.md §4.4 Step 5. Exported so the webhook
// poster can use the same transform for the embed thumbnail without
// re-downloading the file.
func ArtworkOriginalURL(artworkURL string) string {
	return artworkSuffixRe.ReplaceAllString(artworkURL, "-original.jpg")
}

// Run produces the attachment set for one track. The returned work
// directory is the caller's responsibility to remove once the webhook post
// completes (spec.md §4.7 step 6).
func (p *Pipeline) Run(ctx context.Context, track *soundcloud.Track) (*Output, error) {
	workDir, err := p.newWorkDir()
	if err != nil {
		return nil, err
	}

	out := &Output{WorkDir: workDir}
	base := sanitizeTitle(track.Title)

	renditions, err := p.enumerateRenditions(track)
	if err != nil {
		slog.Warn("failed to enumerate renditions", "track_id", track.ID, "error", err)
	}

	var results []Result
	for _, r := range renditions {
		path, ok := p.acquire(ctx, r, workDir, base)
		if ok {
			results = append(results, Result{FormatTag: r.tag, Path: path})
		}
	}

	if len(results) == 0 {
		if res, ok := p.fallback(ctx, track, workDir, base); ok {
			results = append(results, res)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return priority(results[i].FormatTag) < priority(results[j].FormatTag)
	})
	out.Media = results

	if track.ArtworkURL != "" {
		if path, err := p.downloadArtwork(ctx, track.ArtworkURL, workDir, base); err != nil {
			slog.Warn("artwork download failed", "track_id", track.ID, "error", err)
		} else {
			out.ArtworkPath = path
		}
	}

	if metaPath, err := p.writeMetadata(track, workDir, base); err != nil {
		slog.Warn("metadata write failed", "track_id", track.ID, "error", err)
	} else {
		out.MetadataPath = metaPath
	}

	return out, nil
}

func (p *Pipeline) newWorkDir() (string, error) {
	dir := filepath.Join(p.stagingDir, "scarchive_"+uuid.New().String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: creating work dir: %w", scerrors.ErrPersistenceFailed, err)
	}
	return dir, nil
}

// enumerateRenditions collects media.transcodings[] as tag/url pairs,
// skipping the blacklisted hls+audio/mpegurl combination, and priority-sorts
// the result (Step 1 + Step 2).
func (p *Pipeline) enumerateRenditions(track *soundcloud.Track) ([]rendition, error) {
	transcodings, err := track.Transcodings()
	if err != nil {
		return nil, err
	}

	var out []rendition
	for _, t := range transcodings {
		// The preset field (e.g. "mp3_1_0", "opus_0_0") is what actually
		// names the codec for a progressive/standard-quality rendition; the
		// mime-type alone is often the generic "audio/mpeg" regardless of
		// codec, so it's folded into the tag the priority table matches
		// against.
		tag := fmt.Sprintf("%s/%s/%s/%s", t.Format.Protocol, t.Format.MimeType, t.Quality, t.Preset)
		if strings.Contains(t.Format.Protocol, "hls") && strings.Contains(t.Format.MimeType, "audio/mpegurl") {
			continue
		}
		out = append(out, rendition{tag: tag, url: t.URL})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return priority(out[i].tag) < priority(out[j].tag)
	})
	return out, nil
}

// acquire resolves and downloads one rendition (Step 3), returning the local
// path and whether it succeeded.
func (p *Pipeline) acquire(ctx context.Context, r rendition, workDir, base string) (string, bool) {
	directURL, err := p.upstream.ResolveRendition(ctx, r.url)
	if err != nil {
		if errors.Is(err, scerrors.ErrAuthRequired) || errors.Is(err, scerrors.ErrNotFound) {
			slog.Debug("rendition skipped", "tag", r.tag, "reason", err)
		} else {
			slog.Warn("rendition resolve failed", "tag", r.tag, "error", err)
		}
		return "", false
	}

	ext := extensionForTag(r.tag)
	outPath := filepath.Join(workDir, fmt.Sprintf("%s_%s%s", base, sanitizeTag(r.tag), ext))

	path, err := p.downloadWithFallback(ctx, directURL, outPath)
	if err != nil {
		slog.Debug("rendition download failed", "tag", r.tag, "reason", err)
		return "", false
	}
	return path, true
}

// downloadWithFallback runs copy-mode then, on failure, default-codec mode,
// and rejects anything under minValidBytes, distinguishing the two failure
// kinds for the caller's logging.
func (p *Pipeline) downloadWithFallback(ctx context.Context, srcURL, outPath string) (string, error) {
	if err := p.transcoder.Copy(ctx, srcURL, outPath); err != nil {
		if err := p.transcoder.Default(ctx, srcURL, outPath); err != nil {
			return "", scerrors.ErrSubprocessFailed
		}
	}

	if !largeEnough(outPath) {
		os.Remove(outPath)
		return "", scerrors.ErrTooSmall
	}
	return outPath, nil
}

// fallback implements Step 4: hls_url, then stream_url, then a forced
// re-encode, each via the same copy-then-default acquisition, with the
// re-encode result tagged as the fixed transcoded-fallback tag.
func (p *Pipeline) fallback(ctx context.Context, track *soundcloud.Track, workDir, base string) (Result, bool) {
	for _, candidate := range []string{track.HLSURL, track.StreamURL} {
		if candidate == "" {
			continue
		}
		directURL, err := p.upstream.ResolveRendition(ctx, candidate)
		if err != nil {
			continue
		}
		outPath := filepath.Join(workDir, base+extensionForTag(""))
		path, err := p.downloadWithFallback(ctx, directURL, outPath)
		if err != nil {
			slog.Debug("fallback candidate failed", "track_id", track.ID, "reason", err)
			continue
		}
		return Result{FormatTag: "hls", Path: path}, true
	}

	srcURL := track.HLSURL
	if srcURL == "" {
		srcURL = track.StreamURL
	}
	if srcURL == "" {
		return Result{}, false
	}

	outPath := filepath.Join(workDir, base+"_transcoded.mp3")
	if err := p.transcoder.Reencode(ctx, srcURL, outPath); err != nil {
		slog.Debug("forced re-encode failed", "track_id", track.ID, "reason", scerrors.ErrSubprocessFailed)
		return Result{}, false
	}
	if !largeEnough(outPath) {
		os.Remove(outPath)
		slog.Debug("forced re-encode output too small", "track_id", track.ID, "reason", scerrors.ErrTooSmall)
		return Result{}, false
	}
	return Result{FormatTag: transcodedFallbackTag, Path: outPath}, true
}

func largeEnough(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Size() >= minValidBytes
}

// downloadArtwork transforms artworkURL to the "original" high-resolution
// variant and downloads it over plain HTTP (Step 5).
func (p *Pipeline) downloadArtwork(ctx context.Context, artworkURL, workDir, base string) (string, error) {
	originalURL := ArtworkOriginalURL(artworkURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, originalURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("artwork fetch: unexpected status %d", resp.StatusCode)
	}

	path := filepath.Join(workDir, base+"_cover.jpg")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return "", err
	}
	return path, nil
}

// writeMetadata re-serialises the track's verbatim upstream JSON,
// pretty-printed, into the work directory (Step 5).
func (p *Pipeline) writeMetadata(track *soundcloud.Track, workDir, base string) (string, error) {
	var pretty interface{}
	if err := json.Unmarshal(track.Raw, &pretty); err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		return "", err
	}

	path := filepath.Join(workDir, base+"_data.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

var filenameSanitizeRe = regexp.MustCompile(`[\\/:*?"<>|]`)

// sanitizeTitle replaces filesystem-hostile characters and truncates to 100
// characters, per spec.md §4.4 Step 5.
func sanitizeTitle(title string) string {
	safe := filenameSanitizeRe.ReplaceAllString(title, "_")
	if safe == "" {
		safe = "track"
	}
	if len(safe) > 100 {
		safe = safe[:100]
	}
	return safe
}

func sanitizeTag(tag string) string {
	return filenameSanitizeRe.ReplaceAllString(strings.ReplaceAll(tag, "/", "_"), "_")
}
