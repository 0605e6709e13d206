package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/rushi32/IsoCode/internal/store"
)

// elementWait bounds how long browser_click/browser_type wait for a
// selector to appear.
const elementWait = 10 * time.Second

// Browser owns the single shared headless browser. All sessions drive
// the same page; state persists between tool calls until browser_close.
type Browser struct {
	mu             sync.Mutex
	browser        *rod.Browser
	page           *rod.Page
	lastScreenshot string
}

func NewBrowser() *Browser {
	return &Browser{}
}

// ensurePage launches the browser on first use.
func (b *Browser) ensurePage() (*rod.Page, error) {
	if b.page != nil {
		return b.page, nil
	}
	controlURL, err := launcher.New().Headless(true).Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to browser: %w", err)
	}
	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		browser.Close()
		return nil, fmt.Errorf("open page: %w", err)
	}
	b.browser = browser
	b.page = page
	return page, nil
}

func (b *Browser) pageInfo(page *rod.Page) string {
	info, err := page.Info()
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%q (%s)", info.Title, info.URL)
}

// Close shuts the shared browser down. Safe to call when it never
// started; also used at process shutdown.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser == nil {
		return nil
	}
	err := b.browser.Close()
	b.browser = nil
	b.page = nil
	return err
}

// LastScreenshot returns the path of the most recent screenshot, if any.
func (b *Browser) LastScreenshot() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastScreenshot
}

// BrowserOpenTool starts the shared browser, optionally navigating.
type BrowserOpenTool struct {
	Browser *Browser
}

func (t *BrowserOpenTool) Name() string { return "browser_open" }
func (t *BrowserOpenTool) Description() string {
	return "Start the shared headless browser. Optionally navigate to a URL. The browser persists across calls."
}
func (t *BrowserOpenTool) Parameters() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"url": stringProp("URL to open after launch"),
	})
}

func (t *BrowserOpenTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	t.Browser.mu.Lock()
	defer t.Browser.mu.Unlock()
	page, err := t.Browser.ensurePage()
	if err != nil {
		return ErrorResult(err.Error())
	}
	if url, _ := args["url"].(string); url != "" {
		if err := page.Context(ctx).Navigate(url); err != nil {
			return ErrorResult(fmt.Sprintf("failed to navigate to %s: %v", url, err))
		}
		if err := page.Context(ctx).WaitLoad(); err != nil {
			return ErrorResult(fmt.Sprintf("page did not finish loading: %v", err))
		}
	}
	return NewResult("Browser ready: " + t.Browser.pageInfo(page))
}

// BrowserNavigateTool loads a URL in the shared page.
type BrowserNavigateTool struct {
	Browser *Browser
}

func (t *BrowserNavigateTool) Name() string { return "browser_navigate" }
func (t *BrowserNavigateTool) Description() string {
	return "Navigate the shared browser page to a URL and wait for it to load."
}
func (t *BrowserNavigateTool) Parameters() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"url": stringProp("URL to load"),
	}, "url")
}

func (t *BrowserNavigateTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	url, _ := args["url"].(string)
	if url == "" {
		return ErrorResult("url is required")
	}
	t.Browser.mu.Lock()
	defer t.Browser.mu.Unlock()
	page, err := t.Browser.ensurePage()
	if err != nil {
		return ErrorResult(err.Error())
	}
	if err := page.Context(ctx).Navigate(url); err != nil {
		return ErrorResult(fmt.Sprintf("failed to navigate to %s: %v", url, err))
	}
	if err := page.Context(ctx).WaitLoad(); err != nil {
		return ErrorResult(fmt.Sprintf("page did not finish loading: %v", err))
	}
	return NewResult("Loaded " + t.Browser.pageInfo(page))
}

// BrowserClickTool clicks the first element matching a CSS selector.
type BrowserClickTool struct {
	Browser *Browser
}

func (t *BrowserClickTool) Name() string { return "browser_click" }
func (t *BrowserClickTool) Description() string {
	return "Click the first element matching a CSS selector on the shared browser page."
}
func (t *BrowserClickTool) Parameters() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"selector": stringProp("CSS selector of the element to click"),
	}, "selector")
}

func (t *BrowserClickTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	selector, _ := args["selector"].(string)
	if selector == "" {
		return ErrorResult("selector is required")
	}
	t.Browser.mu.Lock()
	defer t.Browser.mu.Unlock()
	if t.Browser.page == nil {
		return ErrorResult("no browser page open; call browser_open first")
	}
	el, err := t.Browser.page.Context(ctx).Timeout(elementWait).Element(selector)
	if err != nil {
		return ErrorResult(fmt.Sprintf("element %q not found: %v", selector, err))
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return ErrorResult(fmt.Sprintf("failed to click %q: %v", selector, err))
	}
	return NewResult(fmt.Sprintf("Clicked %q on %s", selector, t.Browser.pageInfo(t.Browser.page)))
}

// BrowserTypeTool types text into the first element matching a selector.
type BrowserTypeTool struct {
	Browser *Browser
}

func (t *BrowserTypeTool) Name() string { return "browser_type" }
func (t *BrowserTypeTool) Description() string {
	return "Type text into the first element matching a CSS selector, replacing its current value."
}
func (t *BrowserTypeTool) Parameters() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"selector": stringProp("CSS selector of the input element"),
		"text":     stringProp("Text to type"),
	}, "selector", "text")
}

func (t *BrowserTypeTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	selector, _ := args["selector"].(string)
	text, _ := args["text"].(string)
	if selector == "" {
		return ErrorResult("selector is required")
	}
	t.Browser.mu.Lock()
	defer t.Browser.mu.Unlock()
	if t.Browser.page == nil {
		return ErrorResult("no browser page open; call browser_open first")
	}
	el, err := t.Browser.page.Context(ctx).Timeout(elementWait).Element(selector)
	if err != nil {
		return ErrorResult(fmt.Sprintf("element %q not found: %v", selector, err))
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return ErrorResult(fmt.Sprintf("failed to focus %q: %v", selector, err))
	}
	// Input replaces the selection, so select-all first to overwrite
	// rather than append.
	_ = el.SelectAllText()
	if err := el.Input(text); err != nil {
		return ErrorResult(fmt.Sprintf("failed to type into %q: %v", selector, err))
	}
	return NewResult(fmt.Sprintf("Typed %d chars into %q", len(text), selector))
}

// BrowserScreenshotTool captures the shared page as PNG.
type BrowserScreenshotTool struct {
	Browser *Browser
	Store   *store.Store
}

func (t *BrowserScreenshotTool) Name() string { return "browser_screenshot" }
func (t *BrowserScreenshotTool) Description() string {
	return "Capture a screenshot of the shared browser page. Returns the saved file path; use analyze_image to inspect it."
}
func (t *BrowserScreenshotTool) Parameters() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"fullPage": boolProp("Capture the full scrollable page instead of the viewport"),
	})
}

func (t *BrowserScreenshotTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	t.Browser.mu.Lock()
	defer t.Browser.mu.Unlock()
	if t.Browser.page == nil {
		return ErrorResult("no browser page open; call browser_open first")
	}
	fullPage, _ := args["fullPage"].(bool)
	data, err := t.Browser.page.Context(ctx).Screenshot(fullPage, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return ErrorResult(fmt.Sprintf("screenshot failed: %v", err))
	}
	dir, err := t.Store.ScreenshotsDir()
	if err != nil {
		return ErrorResult(fmt.Sprintf("cannot create screenshots directory: %v", err))
	}
	name := fmt.Sprintf("shot-%d.png", time.Now().UnixMilli())
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return ErrorResult(fmt.Sprintf("failed to save screenshot: %v", err))
	}
	t.Browser.lastScreenshot = path
	return NewResult(fmt.Sprintf("Saved screenshot of %s to %s", t.Browser.pageInfo(t.Browser.page), path))
}

// BrowserCloseTool shuts down the shared browser.
type BrowserCloseTool struct {
	Browser *Browser
}

func (t *BrowserCloseTool) Name() string { return "browser_close" }
func (t *BrowserCloseTool) Description() string {
	return "Close the shared browser and discard its state."
}
func (t *BrowserCloseTool) Parameters() map[string]interface{} {
	return objectSchema(map[string]interface{}{})
}

func (t *BrowserCloseTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	if err := t.Browser.Close(); err != nil {
		msg := err.Error()
		if strings.Contains(msg, "use of closed") {
			return NewResult("Browser closed")
		}
		return ErrorResult(fmt.Sprintf("failed to close browser: %v", err))
	}
	return NewResult("Browser closed")
}
