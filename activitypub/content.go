package activitypub

import (
	"fmt"
	"net/netip"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/atomine-elektrine/elektrine-sub014/domain"
)

const maxHashtags = 10

// mentionAnchorPattern matches the anchor shapes remote servers use for
// mentions: /@user, /users/user and /u/user.
var mentionAnchorPattern = regexp.MustCompile(
	`(?s)<a\s[^>]*href=['"]https?://([^/'"]+)/(?:@|users/|u/)([A-Za-z0-9_.-]+)/?['"][^>]*>.*?</a>`)

var hashtagPattern = regexp.MustCompile(`#([\pL\pN_]+)`)

// NormalizeContent converts federated HTML content to canonical plain
// text: recognized mention anchors become @user@domain tokens first, then
// markup is stripped and whitespace collapsed.
func NormalizeContent(rawHTML string) string {
	return StripHTML(RewriteMentionAnchors(rawHTML))
}

// RewriteMentionAnchors replaces remote-mention anchors with
// @user@domain tokens.
func RewriteMentionAnchors(rawHTML string) string {
	return mentionAnchorPattern.ReplaceAllStringFunc(rawHTML, func(match string) string {
		groups := mentionAnchorPattern.FindStringSubmatch(match)
		if len(groups) != 3 {
			return match
		}
		return fmt.Sprintf("@%s@%s", groups[2], groups[1])
	})
}

// StripHTML reduces markup to text. Block boundaries (br, p, div) become
// whitespace so words don't run together; entities are decoded by the
// tokenizer.
func StripHTML(rawHTML string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(rawHTML))
	var sb strings.Builder
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return collapseWhitespace(sb.String())
		case html.TextToken:
			sb.Write(tokenizer.Text())
		case html.StartTagToken, html.SelfClosingTagToken, html.EndTagToken:
			name, _ := tokenizer.TagName()
			switch string(name) {
			case "br", "p", "div", "li", "blockquote":
				sb.WriteByte(' ')
			}
		}
	}
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ExtractHashtags collects hashtags from explicit tag objects and from
// #word patterns in the text, case-folded, de-duplicated and capped.
func ExtractHashtags(tags []Tag, text string) []string {
	seen := map[string]bool{}
	var out []string

	add := func(name string) {
		name = strings.ToLower(strings.TrimPrefix(name, "#"))
		if name == "" || seen[name] || len(out) >= maxHashtags {
			return
		}
		seen[name] = true
		out = append(out, name)
	}

	for _, tag := range tags {
		if tag.Type == "Hashtag" {
			add(tag.Name)
		}
	}
	for _, match := range hashtagPattern.FindAllStringSubmatch(text, -1) {
		add(match[1])
	}
	return out
}

var mentionTokenPattern = regexp.MustCompile(`@([A-Za-z0-9_.-]+)@([A-Za-z0-9.-]+)`)

// localMentions returns the usernames of @user@domain tokens in text
// whose domain is ours, de-duplicated.
func localMentions(text, localDomain string) []string {
	seen := map[string]bool{}
	var out []string
	for _, match := range mentionTokenPattern.FindAllStringSubmatch(text, -1) {
		if !strings.EqualFold(match[2], localDomain) || seen[match[1]] {
			continue
		}
		seen[match[1]] = true
		out = append(out, match[1])
	}
	return out
}

// DetermineVisibility maps the public collection's position in to/cc onto
// post visibility: in to means public, only in cc means unlisted,
// otherwise followers-only.
func DetermineVisibility(to, cc StringList) domain.Visibility {
	if to.Contains(PublicCollection) {
		return domain.VisibilityPublic
	}
	if cc.Contains(PublicCollection) {
		return domain.VisibilityUnlisted
	}
	return domain.VisibilityFollowers
}

// mediaExtensions and mediaPathMarkers recognize attachments worth
// accepting; everything else is rejected.
var mediaExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
	".avif": true, ".mp4": true, ".webm": true, ".mov": true,
	".mp3": true, ".ogg": true, ".oga": true, ".flac": true, ".wav": true,
}

var mediaPathMarkers = []string{
	"/media/",
	"/media_attachments/",
	"/system/",
	"/files/",
	"/attachments/",
}

// ValidateMediaURL guards against SSRF and abuse: http(s) scheme only, a
// present non-local host, no private/loopback/link-local addresses, and
// the URL must look like media. Any failed clause rejects the URL.
func ValidateMediaURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid media URL: %w", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("media URL scheme %q not allowed", parsed.Scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("media URL has no host")
	}

	lowerHost := strings.ToLower(host)
	if lowerHost == "localhost" || strings.HasSuffix(lowerHost, ".localhost") {
		return fmt.Errorf("media URL host %q not allowed", host)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if isForbiddenAddr(addr) {
			return fmt.Errorf("media URL targets reserved address %s", host)
		}
	}

	lowerPath := strings.ToLower(parsed.Path)
	if ext := pathExtension(lowerPath); mediaExtensions[ext] {
		return nil
	}
	for _, marker := range mediaPathMarkers {
		if strings.Contains(lowerPath, marker) {
			return nil
		}
	}
	return fmt.Errorf("media URL %q does not look like media", raw)
}

// isForbiddenAddr covers loopback, RFC1918 ranges, link-local and IPv6
// ULA (fc00::/7, via IsPrivate) forms, including v4-mapped v6.
func isForbiddenAddr(addr netip.Addr) bool {
	if addr.Is4In6() {
		addr = addr.Unmap()
	}
	return addr.IsLoopback() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsUnspecified() ||
		addr.IsPrivate()
}

func pathExtension(path string) string {
	idx := strings.LastIndexByte(path, '.')
	if idx < 0 {
		return ""
	}
	return path[idx:]
}
