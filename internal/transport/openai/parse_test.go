package openai

import "testing"

func TestExtractJSONObject(t *testing.T) {
	cases := map[string]struct {
		in   string
		want string
	}{
		"bare":      {`{"a":1}`, `{"a":1}`},
		"fenced":    {"```json\n{\"a\":1}\n```", `{"a":1}`},
		"with_talk": {`Sure, here you go: {"a":1}. Anything else?`, `{"a":1}`},
		"no_object": {"nothing here", "nothing here"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if got := extractJSONObject(tc.in); got != tc.want {
				t.Errorf("extractJSONObject(%q) = %q, expected %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestExtractJSONArray(t *testing.T) {
	if got := extractJSONArray("scores: [0.1, 0.2] done"); got != "[0.1, 0.2]" {
		t.Errorf("extractJSONArray = %q", got)
	}
	if got := extractJSONArray("no array"); got != "no array" {
		t.Errorf("extractJSONArray = %q", got)
	}
}

func TestParseNumberedLines(t *testing.T) {
	out := "1. first line\n2) second line\n- third line\n* fourth line\n\n\"quoted line\"\n"
	lines := parseNumberedLines(out)
	want := []string{"first line", "second line", "third line", "fourth line", "quoted line"}
	if len(lines) != len(want) {
		t.Fatalf("lines = %v", lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("lines[%d] = %q, expected %q", i, lines[i], want[i])
		}
	}
}
