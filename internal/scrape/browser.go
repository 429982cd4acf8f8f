package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// Browser owns a chromedp exec allocator shared by the per-call tabs. Each
// authenticated operation runs in its own browser context so cookie state
// always comes from the session handle, never from ambient browser state.
type Browser struct {
	allocCtx    context.Context
	cancelAlloc context.CancelFunc
	proxy       *ProxyConfig
}

// ProxyConfig configures an authenticated forward proxy for all traffic of
// a Browser. Username and password answer the proxy's BASIC-auth challenge.
type ProxyConfig struct {
	URL      string
	Username string
	Password string
	ExpectIP string
}

func NewBrowser(parent context.Context, headless bool, proxy *ProxyConfig) *Browser {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", ""),
		chromedp.Flag("disable-dev-shm-usage", ""),
	)
	if proxy != nil {
		opts = append(opts, chromedp.ProxyServer(proxy.URL))
	}
	allocCtx, cancel := chromedp.NewExecAllocator(parent, opts...)
	return &Browser{allocCtx: allocCtx, cancelAlloc: cancel, proxy: proxy}
}

func (b *Browser) Close() {
	b.cancelAlloc()
}

// NewTab creates a fresh browser context. When a proxy with credentials is
// configured, the fetch domain is armed to answer its auth challenges.
func (b *Browser) NewTab(ctx context.Context) (context.Context, context.CancelFunc, error) {
	tabCtx, cancel := chromedp.NewContext(b.allocCtx)
	if b.proxy != nil && b.proxy.Username != "" {
		if err := b.armProxyAuth(tabCtx); err != nil {
			cancel()
			return nil, nil, fmt.Errorf("arming proxy auth: %w", err)
		}
	}
	go func() {
		// Propagate caller cancellation into the tab.
		select {
		case <-ctx.Done():
			cancel()
		case <-tabCtx.Done():
		}
	}()
	return tabCtx, cancel, nil
}

func (b *Browser) armProxyAuth(tabCtx context.Context) error {
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *fetch.EventAuthRequired:
			go func() {
				exec := chromedp.FromContext(tabCtx)
				cdpCtx := cdp.WithExecutor(tabCtx, exec.Target)
				resp := &fetch.AuthChallengeResponse{
					Response: fetch.AuthChallengeResponseResponseProvideCredentials,
					Username: b.proxy.Username,
					Password: b.proxy.Password,
				}
				_ = fetch.ContinueWithAuth(e.RequestID, resp).Do(cdpCtx)
			}()
		case *fetch.EventRequestPaused:
			go func() {
				exec := chromedp.FromContext(tabCtx)
				cdpCtx := cdp.WithExecutor(tabCtx, exec.Target)
				_ = fetch.ContinueRequest(e.RequestID).Do(cdpCtx)
			}()
		}
	})
	return chromedp.Run(tabCtx, fetch.Enable().WithHandleAuthRequests(true))
}

// captureCookies serializes the tab's cookies into an opaque credential
// blob for the session store.
func captureCookies(tabCtx context.Context) ([]byte, error) {
	var cookies []*network.Cookie
	err := chromedp.Run(tabCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("capturing cookies: %w", err)
	}
	return json.Marshal(cookies)
}

// restoreCookies loads a credential blob into the tab before navigation.
func restoreCookies(tabCtx context.Context, blob []byte) error {
	var cookies []*network.Cookie
	if err := json.Unmarshal(blob, &cookies); err != nil {
		return fmt.Errorf("decoding credential blob: %w", err)
	}
	return chromedp.Run(tabCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range cookies {
			param := network.SetCookie(c.Name, c.Value).
				WithDomain(c.Domain).
				WithPath(c.Path).
				WithSecure(c.Secure).
				WithHTTPOnly(c.HTTPOnly)
			if c.Expires > 0 {
				expires := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
				param = param.WithExpires(&expires)
			}
			if err := param.Do(ctx); err != nil {
				return fmt.Errorf("restoring cookie %s: %w", c.Name, err)
			}
		}
		return nil
	}))
}
