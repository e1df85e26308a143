package media

import "strings"

// transcodedFallbackTag marks a rendition acquired via Reencode as a last
// resort rather than resolved from media.transcodings[].
const transcodedFallbackTag = "transcoded/mp3"

// priority implements spec.md §4.4 Step 2's table: lower sorts first, ties
// broken by source order (stable sort upstream of this function).
func priority(tag string) int {
	if tag == transcodedFallbackTag {
		return 50
	}

	lower := strings.ToLower(tag)
	hasHQ := strings.Contains(lower, "hq")
	has := func(s string) bool { return strings.Contains(lower, s) }
	// audio/mpeg is the MP3 mime type; audio/mpegurl is an HLS playlist.
	hasMP3 := has("mp3") || (has("audio/mpeg") && !has("mpegurl"))

	switch {
	case hasHQ && has("flac"):
		return 1
	case hasHQ && has("opus"):
		return 2
	case hasHQ && hasMP3:
		return 3
	case hasHQ && (has("aac") || has("mp4")):
		return 4
	case hasHQ:
		return 5
	case has("progressive") && hasMP3:
		return 10
	case has("opus"):
		return 11
	case hasMP3:
		return 12
	case has("aac") || has("mp4"):
		return 13
	case has("hls"):
		return 15
	default:
		return 20
	}
}

// extensionForTag derives the output file extension from a rendition's
// combined tag per spec.md §4.4 Step 3.
func extensionForTag(tag string) string {
	lower := strings.ToLower(tag)
	switch {
	case strings.Contains(lower, "mp3"):
		return ".mp3"
	case strings.Contains(lower, "opus"):
		return ".opus"
	case strings.Contains(lower, "ogg"):
		return ".ogg"
	case strings.Contains(lower, "mp4"), strings.Contains(lower, "aac"), strings.Contains(lower, "hls"):
		return ".m4a"
	case strings.Contains(lower, "wav"):
		return ".wav"
	case strings.Contains(lower, "flac"):
		return ".flac"
	default:
		return ".mp3"
	}
}
