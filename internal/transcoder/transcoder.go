// Package transcoder wraps the ffmpeg subprocess invocations the media
// pipeline needs: a remux-only copy, a default-codec fallback, and a
// last-resort re-encode, plus a startup probe. Adapted from the teacher's
// ffmpeg encoder, which shelled out to the same binary for streaming and OGG
// conversion.
package transcoder

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/arung-agamani/scarchive-go/internal/scerrors"
)

// Transcoder invokes an ffmpeg-compatible binary as a subprocess.
type Transcoder struct {
	binary     string
	showOutput bool
}

// New creates a Transcoder. binary is typically "ffmpeg"; showOutput mirrors
// stdio through to the parent process for debugging instead of discarding
// it.
func New(binary string, showOutput bool) *Transcoder {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &Transcoder{binary: binary, showOutput: showOutput}
}

// Probe runs a cheap version check at startup. Failure is logged as a
// warning, not fatal — the archiver can still run and simply fail each
// download attempt loudly if the binary is truly missing.
func (t *Transcoder) Probe(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, t.binary, "-version")
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		slog.Warn("Transcoder probe failed; downloads will likely fail", "binary", t.binary, "error", err, "output", out.String())
		return fmt.Errorf("%w: probe: %w", scerrors.ErrSubprocessFailed, err)
	}

	slog.Info("Transcoder probe ok", "binary", t.binary)
	return nil
}

func (t *Transcoder) run(ctx context.Context, op string, args []string) error {
	cmd := exec.CommandContext(ctx, t.binary, args...)

	var stderrBuf bytes.Buffer
	if t.showOutput {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	} else {
		cmd.Stderr = &stderrBuf
	}

	if err := cmd.Run(); err != nil {
		slog.Debug("transcoder subprocess failed", "op", op, "binary", t.binary, "args", args, "stderr", stderrBuf.String(), "error", err)
		return fmt.Errorf("%w: %s: %w", scerrors.ErrSubprocessFailed, op, err)
	}
	return nil
}

// Copy remuxes srcURL into outputPath without re-encoding audio. This is the
// fast path: most renditions are already in a container the downstream
// consumer can use directly.
func (t *Transcoder) Copy(ctx context.Context, srcURL, outputPath string) error {
	return t.run(ctx, "copy", []string{"-i", srcURL, "-c", "copy", "-y", outputPath})
}

// Default lets ffmpeg pick the output codec for the target container. Used
// when Copy fails because the source stream isn't remux-compatible with the
// target extension.
func (t *Transcoder) Default(ctx context.Context, srcURL, outputPath string) error {
	return t.run(ctx, "default", []string{"-i", srcURL, "-y", outputPath})
}

// Reencode forces an MP3 re-encode. This is the last-resort path used when
// no rendition could be acquired as-is (e.g. only an HLS playlist remained).
func (t *Transcoder) Reencode(ctx context.Context, srcURL, outputPath string) error {
	return t.run(ctx, "reencode", []string{
		"-i", srcURL,
		"-c:a", "libmp3lame",
		"-q:a", "2",
		"-y", outputPath,
	})
}
