package scrape

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/user/seller-collector/internal/domain"
	"github.com/user/seller-collector/internal/session"
)

// RaprasClient automates username/password authentication against rapras
// and scrapes the seller aggregation page. It implements session.AuthClient
// for the "rapras" service.
type RaprasClient struct {
	browser  *Browser
	baseURL  string
	username string
	password string
	logger   *zap.Logger
}

func NewRaprasClient(browser *Browser, baseURL, username, password string, logger *zap.Logger) *RaprasClient {
	return &RaprasClient{
		browser:  browser,
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		logger:   logger,
	}
}

// Login fills the credential form and captures the resulting cookies.
// Rapras exposes no expiry metadata, so the record carries none.
func (c *RaprasClient) Login(ctx context.Context) (*session.LoginResult, error) {
	tabCtx, cancel, err := c.browser.NewTab(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	err = chromedp.Run(tabCtx,
		chromedp.Navigate(c.baseURL+"/"),
		chromedp.WaitVisible(`input[name="username"]`, chromedp.ByQuery),
		chromedp.SendKeys(`input[name="username"]`, c.username, chromedp.ByQuery),
		chromedp.SendKeys(`input[name="password"]`, c.password, chromedp.ByQuery),
		chromedp.Click(`button[type="submit"]`, chromedp.ByQuery),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("rapras login flow: %w", err)
	}

	ok, err := c.loggedIn(tabCtx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("rapras rejected credentials")
	}

	blob, err := captureCookies(tabCtx)
	if err != nil {
		return nil, err
	}
	return &session.LoginResult{CredentialBlob: blob}, nil
}

// Validate restores the cookies into a fresh tab and checks the logged-in
// markers without performing any real work.
func (c *RaprasClient) Validate(ctx context.Context, credentialBlob []byte) (bool, error) {
	tabCtx, cancel, err := c.browser.NewTab(ctx)
	if err != nil {
		return false, err
	}
	defer cancel()

	if err := restoreCookies(tabCtx, credentialBlob); err != nil {
		return false, err
	}
	if err := chromedp.Run(tabCtx,
		chromedp.Navigate(c.baseURL+"/"),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return false, err
	}
	return c.loggedIn(tabCtx)
}

func (c *RaprasClient) loggedIn(tabCtx context.Context) (bool, error) {
	var html string
	if err := chromedp.Run(tabCtx, chromedp.OuterHTML("html", &html)); err != nil {
		return false, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false, err
	}
	return doc.Find(`a[href*="logout"]`).Length() > 0, nil
}

// ListSellers scrapes the aggregation page for the date range and returns
// one collection target per seller row. Rows that fail to parse are skipped
// with a warning; threshold admission happens in the orchestrator.
func (c *RaprasClient) ListSellers(ctx context.Context, handle *session.Handle, startDate, endDate string) ([]domain.CollectionTarget, error) {
	tabCtx, cancel, err := c.browser.NewTab(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	if err := restoreCookies(tabCtx, handle.CredentialBlob); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/sum_analyse?target=epsum&updown=down&genre=all&sdate=%s&edate=%s",
		c.baseURL, startDate, endDate)

	var html string
	err = chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		chromedp.WaitVisible("table tbody tr", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return nil, fmt.Errorf("fetching seller listing: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	if doc.Find(`a[href*="logout"]`).Length() == 0 {
		return nil, domain.ErrUnauthenticated
	}

	var targets []domain.CollectionTarget
	doc.Find("table tbody tr").Each(func(i int, row *goquery.Selection) {
		name := strings.TrimSpace(row.Find("td:nth-child(2)").Text())
		link, _ := row.Find("td:nth-child(2) a").Attr("href")
		priceText := strings.TrimSpace(row.Find("td:nth-child(5)").Text())
		if name == "" || link == "" {
			return
		}
		price, err := parsePrice(priceText)
		if err != nil {
			c.logger.Warn("failed to parse seller row",
				zap.Int("row", i), zap.String("price", priceText), zap.Error(err))
			return
		}
		targets = append(targets, domain.CollectionTarget{
			EntityID:   link,
			Name:       name,
			Locator:    link,
			TotalPrice: price,
		})
	})

	c.logger.Info("seller listing collected",
		zap.String("start", startDate), zap.String("end", endDate), zap.Int("sellers", len(targets)))
	return targets, nil
}

// parsePrice converts strings like "150,000円" to 150000.
func parsePrice(text string) (int, error) {
	cleaned := strings.NewReplacer(",", "", "円", "", " ", "").Replace(text)
	return strconv.Atoi(cleaned)
}
