package activitypub

import (
	"strings"
	"testing"

	"github.com/atomine-elektrine/elektrine-sub014/domain"
)

func TestNormalizeContentRewritesMentions(t *testing.T) {
	input := `hello <a href='https://remote.example/users/bob'>@bob</a> #test`
	got := NormalizeContent(input)
	want := "hello @bob@remote.example #test"

	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestNormalizeContentMentionShapes(t *testing.T) {
	cases := map[string]string{
		`<a href="https://a.example/@carol">@carol</a>`:              "@carol@a.example",
		`<a class="mention" href="https://a.example/u/dan/">dan</a>`: "@dan@a.example",
		`<a href="https://a.example/users/erin">@erin</a>`:           "@erin@a.example",
	}
	for input, want := range cases {
		if got := NormalizeContent(input); got != want {
			t.Errorf("%s: expected %q, got %q", input, want, got)
		}
	}
}

func TestStripHTMLBlockBoundaries(t *testing.T) {
	input := "<p>first</p><p>second<br>third</p>"
	got := StripHTML(input)
	want := "first second third"

	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestStripHTMLEntities(t *testing.T) {
	got := StripHTML("a &amp; b &lt;c&gt;")
	if got != "a & b <c>" {
		t.Errorf("Entities not decoded: %q", got)
	}
}

func TestExtractHashtags(t *testing.T) {
	tags := []Tag{
		{Type: "Hashtag", Name: "#Golang"},
		{Type: "Mention", Name: "@bob"},
	}
	got := ExtractHashtags(tags, "post about #Fediverse and #golang again")

	want := []string{"golang", "fediverse"}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected %v, got %v", want, got)
		}
	}
}

func TestExtractHashtagsCapped(t *testing.T) {
	text := "#a #b #c #d #e #f #g #h #i #j #k #l"
	if got := ExtractHashtags(nil, text); len(got) != maxHashtags {
		t.Errorf("Expected %d hashtags, got %d", maxHashtags, len(got))
	}
}

func TestDetermineVisibility(t *testing.T) {
	followers := StringList{"https://remote.example/users/alice/followers"}

	cases := []struct {
		name string
		to   StringList
		cc   StringList
		want domain.Visibility
	}{
		{"public in to", StringList{PublicCollection}, followers, domain.VisibilityPublic},
		{"public alias", StringList{"as:Public"}, nil, domain.VisibilityPublic},
		{"public in cc", followers, StringList{PublicCollection}, domain.VisibilityUnlisted},
		{"no public", followers, nil, domain.VisibilityFollowers},
		{"empty", nil, nil, domain.VisibilityFollowers},
	}
	for _, tc := range cases {
		if got := DetermineVisibility(tc.to, tc.cc); got != tc.want {
			t.Errorf("%s: expected %s, got %s", tc.name, tc.want, got)
		}
	}
}

func TestValidateMediaURLAccepts(t *testing.T) {
	valid := []string{
		"https://files.example/media_attachments/1234/photo.jpg",
		"https://cdn.example/system/accounts/avatar",
		"http://media.example/files/clip.webm",
		"https://example.com/uploads/song.mp3",
	}
	for _, raw := range valid {
		if err := ValidateMediaURL(raw); err != nil {
			t.Errorf("%s should be accepted: %v", raw, err)
		}
	}
}

func TestValidateMediaURLRejects(t *testing.T) {
	invalid := []string{
		"ftp://files.example/media/photo.jpg",
		"https://127.0.0.1/media/photo.jpg",
		"https://10.0.0.5/media/photo.jpg",
		"https://192.168.1.1/media/photo.jpg",
		"https://169.254.169.254/media/creds.png",
		"https://[::1]/media/photo.jpg",
		"https://[fd00::1]/media/photo.jpg",
		"https://[::ffff:10.0.0.5]/media/photo.jpg",
		"https://localhost/media/photo.jpg",
		"https://internal.localhost/media/photo.jpg",
		"https://example.com/page.html",
		"https:///media/photo.jpg",
	}
	for _, raw := range invalid {
		if err := ValidateMediaURL(raw); err == nil {
			t.Errorf("%s should be rejected", raw)
		}
	}
}

func TestLocalMentions(t *testing.T) {
	text := "cc @alice@local.example and @bob@remote.example and @alice@local.example"
	got := localMentions(text, "local.example")

	if len(got) != 1 || got[0] != "alice" {
		t.Errorf("Expected [alice], got %v", got)
	}
}

func TestCollapseWhitespace(t *testing.T) {
	if got := collapseWhitespace("  a \n\t b  "); got != "a b" {
		t.Errorf("Expected %q, got %q", "a b", got)
	}
	if got := collapseWhitespace(strings.Repeat(" ", 5)); got != "" {
		t.Errorf("Expected empty, got %q", got)
	}
}
