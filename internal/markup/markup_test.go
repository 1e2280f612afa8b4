package markup

import "testing"

func TestCleanText(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"<p>Stocks rally</p>", "Stocks rally"},
		{"<b>Fed</b> holds &amp; signals cuts", "Fed holds & signals cuts"},
		{"Dow&nbsp;gains 200 points", "Dow gains 200 points"},
		{"Apple&#39;s earnings beat", "Apple's earnings beat"},
		{"&lt;b&gt;escaped&lt;/b&gt; markup", "escaped markup"},
		{"line one<br>line two", "line one line two"},
		{"<script>alert(1)</script>Oil slips", "Oil slips"},
		{"  multiple   spaces  ", "multiple spaces"},
		{"No tags here", "No tags here"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := CleanText(tt.input); got != tt.want {
			t.Errorf("CleanText(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestCleanTextIdempotent(t *testing.T) {
	inputs := []string{
		"<div><p>Nasdaq &amp;amp; S&amp;P</p></div>",
		"Tom & Jerry",
		"&amp;lt;i&amp;gt;nested&amp;lt;/i&amp;gt;",
		"5 < 6 and 7 > 3",
		"AT&T shares",
	}
	for _, in := range inputs {
		once := CleanText(in)
		twice := CleanText(once)
		if once != twice {
			t.Errorf("CleanText not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestFirstImage(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`<p>text</p><img src="https://img.example/a.jpg"><img src="https://img.example/b.jpg">`, "https://img.example/a.jpg"},
		{`<img src="data:image/png;base64,xx"><img data-src="https://cdn.example/lazy.png">`, "https://cdn.example/lazy.png"},
		{`<IMG SRC="//cdn.example/c.gif">`, "//cdn.example/c.gif"},
		{`<img src="/relative.png">`, ""},
		{"no image", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := FirstImage(tt.input); got != tt.want {
			t.Errorf("FirstImage(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
