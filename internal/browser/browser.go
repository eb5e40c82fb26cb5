package browser

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"formascrape/helpers"
	"formascrape/logger"
	apperr "formascrape/pkg/errors"
	"formascrape/services/cache"
)

// Options configures a browser session.
type Options struct {
	Headless   bool
	SlowMo     time.Duration
	NavTimeout time.Duration

	// Block cache: when BlockKey is set in Cache, navigation short-circuits
	// until the key expires.
	Cache     cache.CacheService
	BlockKey  string
	BlockTime time.Duration
}

// Session owns one headless browser and a page pre-configured with realistic
// headers, a navigation timeout, and a resource-type block rule. One session
// processes one query or one detail item at a time.
type Session struct {
	ctx     context.Context
	cancels []context.CancelFunc
	opts    Options

	mu       sync.Mutex
	captures map[string]*Capture
	pending  map[network.RequestID]string
}

// Capture accumulates intercepted JSON response bodies for one URL fragment.
type Capture struct {
	mu     sync.Mutex
	bodies [][]byte
}

// Drain returns the captured bodies and resets the buffer.
func (c *Capture) Drain() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.bodies
	c.bodies = nil
	return out
}

func (c *Capture) add(body []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bodies = append(c.bodies, body)
}

// stealthScript masks the most common automation tell before any page
// script runs.
const stealthScript = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined});`

// NewSession launches the browser and prepares the page. A launch failure is
// returned as-is and treated as fatal by callers: it indicates an
// environment problem, not a transient network fault.
func NewSession(opts Options) (*Session, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(helpers.RandomUserAgent()),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	ctx, cancelCtx := chromedp.NewContext(allocCtx)

	s := &Session{
		ctx:      ctx,
		cancels:  []context.CancelFunc{cancelCtx, cancelAlloc},
		opts:     opts,
		captures: make(map[string]*Capture),
		pending:  make(map[network.RequestID]string),
	}

	// Randomized viewport so repeated sessions do not share a fingerprint.
	width := int64(1200 + rand.Intn(400))
	height := int64(700 + rand.Intn(300))

	setup := chromedp.Tasks{
		network.Enable(),
		fetch.Enable().WithPatterns([]*fetch.RequestPattern{{URLPattern: "*"}}),
		chromedp.EmulateViewport(width, height),
		network.SetExtraHTTPHeaders(network.Headers{
			"Accept-Language": "fr-FR,fr;q=0.9,en-US;q=0.8,en;q=0.7",
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
			return err
		}),
	}
	if err := chromedp.Run(ctx, setup); err != nil {
		s.Close()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	s.listen()
	return s, nil
}

// listen wires the resource block rule and the JSON response capture.
func (s *Session) listen() {
	c := chromedp.FromContext(s.ctx)
	exec := cdp.WithExecutor(s.ctx, c.Target)

	chromedp.ListenTarget(s.ctx, func(ev interface{}) {
		switch ev := ev.(type) {
		case *fetch.EventRequestPaused:
			go func() {
				switch ev.ResourceType {
				case network.ResourceTypeImage, network.ResourceTypeFont, network.ResourceTypeMedia:
					_ = fetch.FailRequest(ev.RequestID, network.ErrorReasonBlockedByClient).Do(exec)
				default:
					_ = fetch.ContinueRequest(ev.RequestID).Do(exec)
				}
			}()
		case *network.EventResponseReceived:
			s.mu.Lock()
			for fragment := range s.captures {
				if containsFragment(ev.Response.URL, fragment) {
					s.pending[ev.RequestID] = fragment
					break
				}
			}
			s.mu.Unlock()
		case *network.EventLoadingFinished:
			s.mu.Lock()
			fragment, ok := s.pending[ev.RequestID]
			if ok {
				delete(s.pending, ev.RequestID)
			}
			capture := s.captures[fragment]
			s.mu.Unlock()
			if !ok || capture == nil {
				return
			}
			go func() {
				body, err := network.GetResponseBody(ev.RequestID).Do(exec)
				if err != nil {
					logger.Get().Debug().Err(err).Msg("response body unavailable")
					return
				}
				capture.add(body)
			}()
		}
	})
}

func containsFragment(url, fragment string) bool {
	return fragment != "" && strings.Contains(url, fragment)
}

// CaptureJSON registers a URL fragment whose JSON responses should be
// buffered, returning the buffer. Registration survives navigations.
func (s *Session) CaptureJSON(urlFragment string) *Capture {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.captures[urlFragment]; ok {
		return c
	}
	c := &Capture{}
	s.captures[urlFragment] = c
	return c
}

// Navigate loads a URL, waiting for the document to be ready, within the
// configured navigation timeout. It refuses to navigate while the block key
// is set.
func (s *Session) Navigate(url string) error {
	if err := s.checkBlocked(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.opts.NavTimeout)
	defer cancel()

	var title string
	tasks := chromedp.Tasks{
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Title(&title),
	}
	if s.opts.SlowMo > 0 {
		tasks = append(tasks, chromedp.Sleep(s.opts.SlowMo))
	}
	if err := chromedp.Run(ctx, tasks); err != nil {
		return apperr.NewNetwork("navigate", url, err)
	}

	if isBlockPage(title) {
		s.MarkBlocked()
		return apperr.NewRateLimit("navigate", s.opts.BlockTime)
	}
	return nil
}

// blockMarkers are title fragments of the anti-bot interstitials observed in
// front of the site.
var blockMarkers = []string{"captcha", "access denied", "trop de requêtes", "attention required"}

func isBlockPage(title string) bool {
	title = strings.ToLower(title)
	for _, marker := range blockMarkers {
		if strings.Contains(title, marker) {
			return true
		}
	}
	return false
}

// HTML returns the current document markup.
func (s *Session) HTML() (string, error) {
	ctx, cancel := context.WithTimeout(s.ctx, s.opts.NavTimeout)
	defer cancel()

	var html string
	if err := chromedp.Run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", apperr.NewParsing("html", "read document", err)
	}
	return html, nil
}

// Click clicks the first node matching the selector. A missing node is
// reported as an error within the navigation timeout.
func (s *Session) Click(sel string) error {
	ctx, cancel := context.WithTimeout(s.ctx, s.opts.NavTimeout)
	defer cancel()

	if err := chromedp.Run(ctx, chromedp.Click(sel, chromedp.ByQuery)); err != nil {
		return apperr.NewNetwork("click", sel, err)
	}
	return nil
}

// HasNode reports whether the selector matches anything on the page.
func (s *Session) HasNode(sel string) bool {
	n, err := s.CountNodes(sel)
	return err == nil && n > 0
}

// CountNodes returns the number of nodes matching the selector.
func (s *Session) CountNodes(sel string) (int, error) {
	ctx, cancel := context.WithTimeout(s.ctx, s.opts.NavTimeout)
	defer cancel()

	var count int
	expr := fmt.Sprintf(`document.querySelectorAll(%q).length`, sel)
	if err := chromedp.Run(ctx, chromedp.Evaluate(expr, &count)); err != nil {
		return 0, apperr.NewParsing("count", sel, err)
	}
	return count, nil
}

// checkBlocked consults the shared block cache before any navigation.
func (s *Session) checkBlocked() error {
	if s.opts.Cache == nil || s.opts.BlockKey == "" {
		return nil
	}
	if _, err := s.opts.Cache.Get(s.opts.BlockKey); err == nil {
		return apperr.NewRateLimit(s.opts.BlockKey, s.opts.BlockTime)
	}
	return nil
}

// MarkBlocked records anti-bot pushback in the shared block cache so every
// process backs off for the configured block time.
func (s *Session) MarkBlocked() {
	if s.opts.Cache == nil || s.opts.BlockKey == "" {
		return
	}
	value := []byte(fmt.Sprintf("%d", int(s.opts.BlockTime.Seconds())))
	if err := s.opts.Cache.Set(s.opts.BlockKey, value, s.opts.BlockTime); err != nil {
		logger.Get().Warn().Err(err).Msg("failed to set block key")
	}
}

// Context exposes the page context for ad-hoc chromedp tasks.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Close releases the page and the browser. Safe to call more than once.
func (s *Session) Close() {
	for _, cancel := range s.cancels {
		cancel()
	}
}
