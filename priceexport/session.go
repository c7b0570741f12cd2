package priceexport

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// sessionPage drives a real headless Chrome through rod. One session is one
// page; Close tears down the whole browser.
type sessionPage struct {
	lnch    *launcher.Launcher
	browser *rod.Browser
	page    *rod.Page
}

// NewSessionPage launches a headless Chrome whose downloads land in dir and
// opens a stealth page on it. The Elexys grid is a DevExpress control that
// degrades when it detects automation, hence the stealth page and the
// AutomationControlled flag.
func NewSessionPage(ctx context.Context, dir string) (Page, error) {
	l := launcher.New().
		Headless(true).
		Set("disable-blink-features", "AutomationControlled")

	wsURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chrome: %w", err)
	}

	browser := rod.New().ControlURL(wsURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("connect: %w", err)
	}

	page, err := stealth.Page(browser)
	if err != nil {
		browser.Close()
		l.Cleanup()
		return nil, fmt.Errorf("open page: %w", err)
	}

	err = proto.BrowserSetDownloadBehavior{
		Behavior:         proto.BrowserSetDownloadBehaviorBehaviorAllow,
		BrowserContextID: browser.BrowserContextID,
		DownloadPath:     dir,
	}.Call(browser)
	if err != nil {
		page.Close()
		browser.Close()
		l.Cleanup()
		return nil, fmt.Errorf("set download dir: %w", err)
	}

	return &sessionPage{lnch: l, browser: browser, page: page}, nil
}

func (s *sessionPage) Navigate(ctx context.Context, url string) error {
	pg := s.page.Context(ctx)
	if err := pg.Navigate(url); err != nil {
		return err
	}
	return pg.WaitLoad()
}

func (s *sessionPage) WaitVisible(ctx context.Context, selector string) error {
	el, err := s.page.Context(ctx).Element(selector)
	if err != nil {
		return err
	}
	return el.WaitVisible()
}

func (s *sessionPage) SetField(ctx context.Context, selector, value string) error {
	el, err := s.page.Context(ctx).Element(selector)
	if err != nil {
		return err
	}
	if err := el.SelectAllText(); err != nil {
		return err
	}
	return el.Input(value)
}

// Click clicks through JavaScript instead of synthesized mouse events: the
// export control sits under a transparent overlay that swallows real
// clicks.
func (s *sessionPage) Click(ctx context.Context, selector string) error {
	el, err := s.page.Context(ctx).Element(selector)
	if err != nil {
		return err
	}
	_, err = el.Eval(`() => this.click()`)
	return err
}

func (s *sessionPage) Close() error {
	if s.page != nil {
		s.page.Close()
	}
	err := s.browser.Close()
	s.lnch.Cleanup()
	return err
}
