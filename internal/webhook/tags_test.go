package webhook

import (
	"reflect"
	"testing"
)

func TestParseTags(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  []string
	}{
		{"simple", `lofi chill beats`, []string{"lofi", "chill", "beats"}},
		{"quoted run", `lofi "chill beats" house`, []string{"lofi", "chill beats", "house"}},
		{"escaped quote", `lofi \"not-a-quote\" house`, []string{"lofi", `"not-a-quote"`, "house"}},
		{"empty tags dropped", `lofi   house`, []string{"lofi", "house"}},
		{"empty input", "", nil},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := parseTags(c.input)
			if !reflect.DeepEqual(got, c.want) {
				t.Errorf("parseTags(%q) = %#v, want %#v", c.input, got, c.want)
			}
		})
	}
}
