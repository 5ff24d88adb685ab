package services

import (
	"context"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"steam-market-scraper/internal/models"
)

const (
	loginURL         = "https://store.steampowered.com/login"
	histogramMarker  = "itemordershistogram"
	listingSeparator = "/listings/"
)

// BrowserSession owns one headless browser for the whole run. The listing
// and item pages are client-side rendered, and item_nameid only ever
// appears in the page's own background traffic, so plain HTTP is not
// enough. The session is used serially by the orchestrator.
type BrowserSession struct {
	allocCtx      context.Context
	browserCtx    context.Context
	cancelAlloc   context.CancelFunc
	cancelBrowser context.CancelFunc

	navTimeout time.Duration
	settleWait time.Duration
}

func NewBrowserSession(ctx context.Context, headless bool) *BrowserSession {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	return &BrowserSession{
		allocCtx:      allocCtx,
		browserCtx:    browserCtx,
		cancelAlloc:   cancelAlloc,
		cancelBrowser: cancelBrowser,
		navTimeout:    45 * time.Second,
		settleWait:    4 * time.Second,
	}
}

func (s *BrowserSession) Close() {
	s.cancelBrowser()
	s.cancelAlloc()
}

// Login signs in to the marketplace so rendered pages carry a session.
// Best-effort: any failure is logged and the run continues anonymously.
func (s *BrowserSession) Login(ctx context.Context, username, password string) {
	if username == "" || password == "" {
		return
	}

	tabCtx, cancel := s.newTab(ctx)
	defer cancel()

	err := chromedp.Run(tabCtx,
		chromedp.Navigate(loginURL),
		chromedp.WaitVisible("#input_username", chromedp.ByID),
		chromedp.SendKeys("#input_username", username, chromedp.ByID),
		chromedp.SendKeys("#input_password", password, chromedp.ByID),
		chromedp.Click("#login_btn_signin > button", chromedp.ByQuery),
		chromedp.Sleep(s.settleWait),
	)
	if err != nil {
		log.Printf("[Browser] login failed, continuing anonymously: %v", err)
	}
}

// DiscoverLinks lists current item links from the rendered listing page, in
// page order. Zero matches is fatal: the selector no longer matches the
// page structure.
func (s *BrowserSession) DiscoverLinks(ctx context.Context, marketURL string) ([]string, error) {
	tabCtx, cancel := s.newTab(ctx)
	defer cancel()

	var links []string
	script := `Array.from(document.querySelectorAll('.market_listing_row_link')).map(a => a.href)`

	err := chromedp.Run(tabCtx,
		chromedp.Navigate(marketURL),
		chromedp.Sleep(s.settleWait),
		chromedp.Evaluate(script, &links),
	)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return nil, &DiscoveryError{URL: marketURL}
	}
	return links, nil
}

// ResolveItemNameID opens the item page with a request observer attached
// and captures item_nameid from the first itemordershistogram request the
// page issues. The observer is detached as soon as navigation settles. An
// item with no active order book never issues the request; that surfaces as
// UnresolvedIdentityError and only disables the histogram source.
func (s *BrowserSession) ResolveItemNameID(ctx context.Context, link string) (string, error) {
	tabCtx, cancel := s.newTab(ctx)
	defer cancel()

	found := make(chan string, 1)
	listenCtx, stopListening := context.WithCancel(tabCtx)

	chromedp.ListenTarget(listenCtx, func(ev interface{}) {
		req, ok := ev.(*network.EventRequestWillBeSent)
		if !ok {
			return
		}
		if id := itemNameIDFromURL(req.Request.URL); id != "" {
			select {
			case found <- id:
			default:
			}
		}
	})

	err := chromedp.Run(tabCtx,
		network.Enable(),
		chromedp.Navigate(link),
		chromedp.Sleep(s.settleWait),
	)
	stopListening()
	if err != nil {
		return "", err
	}

	select {
	case id := <-found:
		return id, nil
	default:
		return "", &UnresolvedIdentityError{Link: link}
	}
}

// ScrapeDetails reads the five fixed detail-page locations. A missing
// selector fails the whole link: the name every table keys on comes from
// here, so there is no partial snapshot without it.
func (s *BrowserSession) ScrapeDetails(ctx context.Context, link string) (*models.ItemDetails, error) {
	tabCtx, cancel := s.newTab(ctx)
	defer cancel()

	script := `(() => {
		const text = (sel) => {
			const n = document.querySelector(sel);
			return n ? n.textContent.trim() : '';
		};
		const promoted = Array.from(
			document.querySelectorAll('.market_commodity_orders_header_promote')
		).map(n => n.textContent.trim());
		return {
			name: text('.market_listing_item_name'),
			game: text('.market_listing_game_name'),
			item_type: text('#largeiteminfo_item_type'),
			items_for_sale: promoted[0] || '',
			sell_price: promoted[1] || '',
			buy_requests: promoted[2] || '',
			buy_price: promoted[3] || ''
		};
	})()`

	var raw map[string]string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(link),
		chromedp.Sleep(s.settleWait),
		chromedp.Evaluate(script, &raw),
	)
	if err != nil {
		return nil, err
	}

	details := &models.ItemDetails{
		Name:         raw["name"],
		Game:         raw["game"],
		ItemType:     raw["item_type"],
		ItemsForSale: raw["items_for_sale"],
		SellPrice:    raw["sell_price"],
		BuyRequests:  raw["buy_requests"],
		BuyPrice:     raw["buy_price"],
	}

	for field, value := range map[string]string{
		"name":           details.Name,
		"game":           details.Game,
		"item_type":      details.ItemType,
		"items_for_sale": details.ItemsForSale,
		"sell_price":     details.SellPrice,
		"buy_requests":   details.BuyRequests,
		"buy_price":      details.BuyPrice,
	} {
		if value == "" {
			return nil, &ParseError{Source: "details", Detail: "selector for " + field + " matched nothing on " + link}
		}
	}
	return details, nil
}

func (s *BrowserSession) newTab(ctx context.Context) (context.Context, context.CancelFunc) {
	tabCtx, cancelTab := chromedp.NewContext(s.browserCtx)
	timeoutCtx, cancelTimeout := context.WithTimeout(tabCtx, s.navTimeout)

	// Propagate the caller's cancellation onto the tab.
	go func() {
		select {
		case <-ctx.Done():
			cancelTab()
		case <-timeoutCtx.Done():
		}
	}()

	return timeoutCtx, func() {
		cancelTimeout()
		cancelTab()
	}
}

// ParseAppID extracts the app identifier from the URL segment following
// /listings/. Pure and deterministic for a fixed link.
func ParseAppID(link string) (string, error) {
	_, rest, ok := strings.Cut(link, listingSeparator)
	if !ok {
		return "", &MalformedLinkError{Link: link}
	}
	appID, _, _ := strings.Cut(rest, "/")
	if appID == "" {
		return "", &MalformedLinkError{Link: link}
	}
	return appID, nil
}

// itemNameIDFromURL pulls item_nameid out of an intercepted histogram
// request URL, or returns "" when the URL is not one.
func itemNameIDFromURL(rawURL string) string {
	if !strings.Contains(rawURL, histogramMarker) {
		return ""
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return parsed.Query().Get("item_nameid")
}
