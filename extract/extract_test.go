package extract

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const talkHTML = `<!DOCTYPE html>
<html>
<head>
<title>The Gift of Grace</title>
<style>.body-block { font-family: serif; }</style>
</head>
<body>
<script>window.pageAnalytics = {};</script>
<header>
<h1>The Gift of Grace</h1>
<p class="author-name">By Elder Dieter F. Uchtdorf</p>
<p class="author-role">Of the Quorum of the Twelve Apostles</p>
</header>
<div class="body-block">
<p>Salvation cannot be bought with the currency of obedience; it is purchased by the blood of the Son of God.</p>
<p>Grace is a gift of God, and our desire to be obedient to each of God's commandments is the way we express our love for Him.</p>
</div>
</body>
</html>`

func writeTalk(t *testing.T, html string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "2015-04-the-gift-of-grace.html")
	if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestTalk(t *testing.T) {
	content, err := Talk(writeTalk(t, talkHTML))
	if err != nil {
		t.Fatalf("Talk: %v", err)
	}

	if content.Speaker != "Dieter F. Uchtdorf" {
		t.Errorf("Speaker = %q, want %q", content.Speaker, "Dieter F. Uchtdorf")
	}
	if !strings.Contains(content.Text, "currency of obedience") {
		t.Errorf("Text missing talk body, got %q", content.Text)
	}
	if strings.Contains(content.Text, "pageAnalytics") {
		t.Error("Text contains script content")
	}
	if strings.Contains(content.Text, "font-family") {
		t.Error("Text contains style content")
	}
}

func TestTalkNoAuthorParagraph(t *testing.T) {
	content, err := Talk(writeTalk(t, `<html><body><p>A short devotional message.</p></body></html>`))
	if err != nil {
		t.Fatalf("Talk: %v", err)
	}
	if content.Speaker != "" {
		t.Errorf("Speaker = %q, want empty", content.Speaker)
	}
	if !strings.Contains(content.Text, "devotional message") {
		t.Errorf("Text = %q, want body text", content.Text)
	}
}

func TestTalkMissingFile(t *testing.T) {
	if _, err := Talk(filepath.Join(t.TempDir(), "missing.html")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestCleanSpeakerName(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"By Elder Jeffrey R. Holland", "Jeffrey R. Holland"},
		{"By Sister Reyna I. Aburto", "Reyna I. Aburto"},
		{"By President Russell M. Nelson", "Russell M. Nelson"},
		{"By Thomas S. Monson", "Thomas S. Monson"},
		{"By Bishop Gérald Caussé", "Bishop Gérald Caussé"},
		{"Â By Elder Neal A. Maxwell", "Neal A. Maxwell"},
		{"ByÂ President Henry B. Eyring", "Henry B. Eyring"},
		{"  Spencer  W.   Kimball  ", "Spencer W. Kimball"},
		{"President Gordon B. Hinckley", "President Gordon B. Hinckley"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := CleanSpeakerName(tt.raw); got != tt.want {
			t.Errorf("CleanSpeakerName(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestNormalizeText(t *testing.T) {
	in := "  The Savior taught:\n\n  Love one another.   As I have loved you.  \n"
	want := "The Savior taught:\nLove one another.\nAs I have loved you."
	if got := normalizeText(in); got != want {
		t.Errorf("normalizeText = %q, want %q", got, want)
	}
}
