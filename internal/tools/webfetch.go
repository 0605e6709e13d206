package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

const (
	fetchMaxChars     = 4000
	fetchMaxRedirects = 3
	fetchUserAgent    = "Mozilla/5.0 (compatible; IsoCode/1.0)"
)

var (
	reScript  = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	reStyle   = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	reComment = regexp.MustCompile(`(?s)<!--.*?-->`)
	reBreak   = regexp.MustCompile(`(?i)<(?:br|/p|/div|/h[1-6]|/li|/tr)\s*/?>`)
	reTag     = regexp.MustCompile(`<[^>]+>`)
	reMultiSP = regexp.MustCompile(`[ \t]+`)
	reMultiNL = regexp.MustCompile(`\n{3,}`)
)

// WebFetchTool GETs a URL and reduces the body to readable text.
// Localhost targets are allowed: fetching the dev server under work is a
// primary use.
type WebFetchTool struct{}

func (t *WebFetchTool) Name() string { return "web_fetch" }
func (t *WebFetchTool) Description() string {
	return "Fetch a URL over HTTP GET. HTML is reduced to readable text; output is capped."
}
func (t *WebFetchTool) Parameters() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"url":      stringProp("HTTP or HTTPS URL to fetch"),
		"maxChars": numberProp("Maximum characters to return (default 4000)"),
	}, "url")
}

func (t *WebFetchTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	rawURL, _ := args["url"].(string)
	if rawURL == "" {
		return ErrorResult("url is required")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ErrorResult(fmt.Sprintf("invalid URL: %v", err))
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ErrorResult("only http and https URLs are supported")
	}
	maxChars := intArg(args, "maxChars", fetchMaxChars)
	if maxChars < 100 {
		maxChars = 100
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return ErrorResult(fmt.Sprintf("failed to build request: %v", err))
	}
	req.Header.Set("User-Agent", fetchUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8")

	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= fetchMaxRedirects {
				return fmt.Errorf("stopped after %d redirects", fetchMaxRedirects)
			}
			return nil
		},
	}
	resp, err := client.Do(req)
	if err != nil {
		return ErrorResult(fmt.Sprintf("fetch failed: %v", err))
	}
	defer resp.Body.Close()

	// Read extra so HTML markup overhead still yields maxChars of text.
	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(maxChars*4)))
	if err != nil {
		return ErrorResult(fmt.Sprintf("failed to read response: %v", err))
	}

	contentType := resp.Header.Get("Content-Type")
	var text string
	switch {
	case strings.Contains(contentType, "text/html"), strings.Contains(contentType, "application/xhtml"):
		text = htmlToText(string(body))
	case strings.Contains(contentType, "application/json"):
		text = prettyJSON(body)
	default:
		text = string(body)
	}
	if len(text) > maxChars {
		text = text[:maxChars] + "\n... truncated"
	}

	return PayloadResult(map[string]interface{}{
		"url":         resp.Request.URL.String(),
		"status":      resp.StatusCode,
		"contentType": contentType,
		"content":     text,
	})
}

// htmlToText strips markup down to readable text: scripts, styles, and
// comments go first, block-level closers become newlines, then all
// remaining tags drop.
func htmlToText(html string) string {
	s := reScript.ReplaceAllString(html, "")
	s = reStyle.ReplaceAllString(s, "")
	s = reComment.ReplaceAllString(s, "")
	s = reBreak.ReplaceAllString(s, "\n")
	s = reTag.ReplaceAllString(s, "")
	s = decodeEntities(s)
	s = reMultiSP.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	clean := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			clean = append(clean, line)
		}
	}
	return reMultiNL.ReplaceAllString(strings.Join(clean, "\n"), "\n\n")
}

func decodeEntities(s string) string {
	return strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&apos;", "'",
		"&nbsp;", " ",
	).Replace(s)
}

func prettyJSON(body []byte) string {
	var v interface{}
	if err := json.Unmarshal(body, &v); err != nil {
		return string(body)
	}
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return string(body)
	}
	return string(pretty)
}
