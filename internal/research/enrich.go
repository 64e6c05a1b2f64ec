package research

import (
	"context"
	"errors"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	readability "github.com/go-shiori/go-readability"
)

// enrichMaxChars bounds how much supplier-page text an offer description keeps.
const enrichMaxChars = 600

// Enricher fills in missing offer descriptions by rendering the supplier's
// detail page headlessly and extracting its readable text. Best-effort:
// failures leave the offer as delivered.
type Enricher struct {
	timeout time.Duration
	logger  *log.Logger
}

// NewEnricher builds an enricher with the given per-page timeout.
func NewEnricher(timeout time.Duration, logger *log.Logger) *Enricher {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[ENRICH] ", log.LstdFlags)
	}
	return &Enricher{timeout: timeout, logger: logger}
}

// Describe fetches the detail page and returns its readable text, truncated.
func (e *Enricher) Describe(ctx context.Context, pageURL string) (string, error) {
	if strings.TrimSpace(pageURL) == "" {
		return "", errors.New("invalid url")
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	html, err := fetchHTML(ctx, pageURL)
	if err != nil {
		return "", err
	}
	article, err := readability.FromReader(strings.NewReader(html), mustParseURL(pageURL))
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(article.TextContent)
	if len(text) > enrichMaxChars {
		text = text[:enrichMaxChars]
	}
	return text, nil
}

func fetchHTML(ctx context.Context, pageURL string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.UserAgent("VoyAIge/1.0 (+contact@example.com)"),
	)
	actx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	bctx, cancelBrowser := chromedp.NewContext(actx)
	defer cancelBrowser()

	var html string
	err := chromedp.Run(bctx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	return html, err
}

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		return &url.URL{}
	}
	return u
}
