package media

import "testing"

func TestPriorityOrdering(t *testing.T) {
	cases := []struct {
		tag  string
		want int
	}{
		{"hls/audio/flac/hq", 1},
		{"hls/audio/ogg;codecs=\"opus\"/hq", 2},
		{"hls/audio/mp3/hq", 3},
		{"hls/audio/mp4/hq", 4},
		{"hls/audio/wav/hq", 5},
		{"progressive/audio/mpeg/sq", 10},
		{"hls/audio/ogg;codecs=\"opus\"/sq", 11},
		{"progressive/audio/mp3/sq_alt", 10},
		{"hls/audio/mp4/sq", 13},
		{"hls/audio/mpegurl/sq", 15},
		{"weird/audio/thing/sq", 20},
		{transcodedFallbackTag, 50},
	}

	for _, c := range cases {
		if got := priority(c.tag); got != c.want {
			t.Errorf("priority(%q) = %d, want %d", c.tag, got, c.want)
		}
	}
}

func TestPriorityDeterministic(t *testing.T) {
	tags := []string{"hls/audio/mp4/hq", "progressive/audio/mpeg/sq", "hls/audio/flac/hq"}
	first := make([]int, len(tags))
	for i, tag := range tags {
		first[i] = priority(tag)
	}
	for n := 0; n < 5; n++ {
		for i, tag := range tags {
			if priority(tag) != first[i] {
				t.Fatalf("priority(%q) not stable across invocations", tag)
			}
		}
	}
}

func TestExtensionForTag(t *testing.T) {
	cases := map[string]string{
		"progressive/audio/mpeg/sq":           ".mp3",
		"hls/audio/ogg;codecs=\"opus\"/hq":    ".opus",
		"hls/audio/ogg/hq":                    ".ogg",
		"hls/audio/mp4/sq":                    ".m4a",
		"hls/audio/aac/sq":                    ".m4a",
		"hls/audio/mpegurl/sq":                ".m4a",
		"progressive/audio/wav/sq":            ".wav",
		"progressive/audio/flac/sq":           ".flac",
	}
	for tag, want := range cases {
		if got := extensionForTag(tag); got != want {
			t.Errorf("extensionForTag(%q) = %q, want %q", tag, got, want)
		}
	}
}
