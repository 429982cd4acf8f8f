package scrape

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/user/seller-collector/internal/domain"
	"github.com/user/seller-collector/internal/session"
)

// SMSPrompt asks the operator for the verification code sent to their
// phone. The default implementation reads from stdin with a deadline.
type SMSPrompt func(ctx context.Context) (string, error)

// StdinSMSPrompt returns a prompt reading the code from stdin, failing once
// the timeout elapses.
func StdinSMSPrompt(timeout time.Duration) SMSPrompt {
	return func(ctx context.Context) (string, error) {
		fmt.Println("SMS認証コードを入力してください (タイムアウト: " + timeout.String() + ")")
		codeCh := make(chan string, 1)
		errCh := make(chan error, 1)
		go func() {
			reader := bufio.NewReader(os.Stdin)
			line, err := reader.ReadString('\n')
			if err != nil {
				errCh <- err
				return
			}
			codeCh <- strings.TrimSpace(line)
		}()
		select {
		case code := <-codeCh:
			if code == "" {
				return "", errors.New("sms code cannot be empty")
			}
			return code, nil
		case err := <-errCh:
			return "", err
		case <-time.After(timeout):
			return "", errors.New("sms code input timed out")
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// YahooClient automates phone/SMS authentication against Yahoo Auctions
// through an authenticated proxy and fetches seller product pages. It
// implements session.AuthClient for the "yahoo" service and the
// collector.Fetcher capability.
type YahooClient struct {
	browser     *Browser
	loginURL    string
	auctionsURL string
	phoneNumber string
	smsPrompt   SMSPrompt
	logger      *zap.Logger

	proxyVerified bool
}

func NewYahooClient(browser *Browser, loginURL, auctionsURL, phoneNumber string, smsPrompt SMSPrompt, logger *zap.Logger) *YahooClient {
	return &YahooClient{
		browser:     browser,
		loginURL:    loginURL,
		auctionsURL: auctionsURL,
		phoneNumber: phoneNumber,
		smsPrompt:   smsPrompt,
		logger:      logger,
	}
}

// Login verifies the proxy once, then walks the phone + SMS flow. Proxy
// failures surface as *domain.ProxyAuthError and are never retried by the
// session manager.
func (c *YahooClient) Login(ctx context.Context) (*session.LoginResult, error) {
	if err := c.verifyProxy(ctx); err != nil {
		return nil, err
	}

	tabCtx, cancel, err := c.browser.NewTab(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	err = chromedp.Run(tabCtx,
		chromedp.Navigate(c.loginURL),
		chromedp.WaitVisible(`input[name="handle"]`, chromedp.ByQuery),
		chromedp.SendKeys(`input[name="handle"]`, c.phoneNumber, chromedp.ByQuery),
		chromedp.Click(`button[type="submit"]`, chromedp.ByQuery),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("yahoo login flow: %w", err)
	}

	code, err := c.smsPrompt(ctx)
	if err != nil {
		return nil, fmt.Errorf("sms prompt: %w", err)
	}

	err = chromedp.Run(tabCtx,
		chromedp.WaitVisible(`input[name="code"]`, chromedp.ByQuery),
		chromedp.SendKeys(`input[name="code"]`, code, chromedp.ByQuery),
		chromedp.Click(`button[type="submit"]`, chromedp.ByQuery),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Navigate(c.auctionsURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("sms verification: %w", err)
	}

	ok, err := c.loggedIn(tabCtx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New("yahoo login validation failed")
	}

	blob, err := captureCookies(tabCtx)
	if err != nil {
		return nil, err
	}
	return &session.LoginResult{CredentialBlob: blob}, nil
}

// Validate restores cookies and checks the auctions page markers.
func (c *YahooClient) Validate(ctx context.Context, credentialBlob []byte) (bool, error) {
	tabCtx, cancel, err := c.browser.NewTab(ctx)
	if err != nil {
		return false, err
	}
	defer cancel()

	if err := restoreCookies(tabCtx, credentialBlob); err != nil {
		return false, err
	}
	if err := chromedp.Run(tabCtx,
		chromedp.Navigate(c.auctionsURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return false, err
	}
	return c.loggedIn(tabCtx)
}

// Fetch loads a seller page and extracts up to maxItems product titles.
// A page that bounced to the login host signals reactive session expiry.
func (c *YahooClient) Fetch(ctx context.Context, handle *session.Handle, locator string, maxItems int) ([]domain.SubRecord, error) {
	tabCtx, cancel, err := c.browser.NewTab(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	if err := restoreCookies(tabCtx, handle.CredentialBlob); err != nil {
		return nil, err
	}

	var html, currentURL string
	err = chromedp.Run(tabCtx,
		chromedp.Navigate(locator),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&currentURL),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return nil, fmt.Errorf("fetching seller page %s: %w", locator, err)
	}

	if strings.Contains(currentURL, "login.yahoo.co.jp") {
		return nil, domain.ErrUnauthenticated
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	var records []domain.SubRecord
	doc.Find(".Product__title a, .Product__titleLink").EachWithBreak(func(i int, s *goquery.Selection) bool {
		title := strings.TrimSpace(s.Text())
		if title != "" {
			records = append(records, domain.SubRecord{Label: title})
		}
		return len(records) < maxItems
	})

	c.logger.Info("seller page fetched",
		zap.String("locator", locator), zap.Int("products", len(records)))
	return records, nil
}

// verifyProxy checks the proxy connection once per process by asking an IP
// echo service which address the service sees. Any failure here is a
// configuration problem, not a transient fault.
func (c *YahooClient) verifyProxy(ctx context.Context) error {
	if c.browser.proxy == nil || c.proxyVerified {
		return nil
	}

	tabCtx, cancel, err := c.browser.NewTab(ctx)
	if err != nil {
		return &domain.ProxyAuthError{Err: err}
	}
	defer cancel()

	var body string
	err = chromedp.Run(tabCtx,
		chromedp.Navigate("https://inet-ip.info/ip"),
		chromedp.Text("body", &body, chromedp.ByQuery),
	)
	if err != nil {
		return &domain.ProxyAuthError{Err: fmt.Errorf("proxy connection test: %w", err)}
	}

	currentIP := strings.TrimSpace(body)
	if expect := c.browser.proxy.ExpectIP; expect != "" && currentIP != expect {
		return &domain.ProxyAuthError{Err: fmt.Errorf("proxy IP mismatch: expected %s, got %s", expect, currentIP)}
	}

	c.logger.Info("proxy connection verified", zap.String("ip", currentIP))
	c.proxyVerified = true
	return nil
}

func (c *YahooClient) loggedIn(tabCtx context.Context) (bool, error) {
	var html, currentURL string
	if err := chromedp.Run(tabCtx,
		chromedp.Location(&currentURL),
		chromedp.OuterHTML("html", &html),
	); err != nil {
		return false, err
	}
	if strings.Contains(currentURL, "login.yahoo.co.jp") {
		return false, nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false, err
	}
	if doc.Find(`a[href*="logout"]`).Length() > 0 {
		return true, nil
	}
	// On a Yahoo domain without a login form, assume the session holds.
	return doc.Find(`input[name="login"]`).Length() == 0, nil
}
