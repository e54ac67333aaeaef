package agoda

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	cookiejar "github.com/orirawlings/persistent-cookiejar"
)

// Login flow selectors. The flow is email -> continue -> password -> submit;
// the markers below decide how a failed attempt is classified.
const (
	selSignInButton   = "button[data-element-name='sign-in-button']"
	selLoginEmail     = "input[data-selenium='login-email-input']"
	selLoginContinue  = "button[data-selenium='login-continue-button']"
	selLoginPassword  = "input[data-selenium='login-password-input']"
	selLoginSubmit    = "button[data-selenium='login-submit-button']"
	selLoggedInMarker = "div[data-element-name='user-avatar']"
	selLoginError     = "div[data-selenium='login-error-message']"
)

var challengeSelectors = []string{
	"iframe[src*='captcha']",
	"#px-captcha",
	"div[data-selenium='captcha-challenge']",
}

// SessionHandle reports what the established session is good for.
// Degraded means the site presented a challenge the scraper cannot solve;
// whether traversal continues unauthenticated is the orchestrator's call.
type SessionHandle struct {
	Authenticated bool
	Degraded      bool
}

// Session owns the authentication state of one browser tab: cookie reuse
// across runs, session validity probing, and the interactive login flow.
type Session struct {
	Name       string // directory name for session files (cookies)
	FilePrefix string // prefix to the session directory
	Log        Logger

	loginTimeout time.Duration
	tab          context.Context
	jar          *cookiejar.Jar
	baseURL      *url.URL
}

func NewSession(tab context.Context, name string, log Logger) *Session {
	if log == nil {
		log = NopLogger{}
	}
	base, _ := url.Parse(BaseURL)
	return &Session{
		Name:         name,
		Log:          log,
		loginTimeout: DefaultTimeout,
		tab:          tab,
		baseURL:      base,
	}
}

func (session *Session) directory() string {
	return session.FilePrefix + session.Name
}

func (session *Session) cookieFilename() string {
	return filepath.Join(session.directory(), "cookies.json")
}

// LoadCookies opens the persistent jar, creating the session directory on
// first use. Must be called before Establish.
func (session *Session) LoadCookies() error {
	if err := os.MkdirAll(session.directory(), 0o744); err != nil {
		return err
	}
	jar, err := cookiejar.New(&cookiejar.Options{
		Filename:              session.cookieFilename(),
		PersistSessionCookies: true,
	})
	if err != nil {
		return err
	}
	session.jar = jar
	return nil
}

// SaveCookies persists the jar. Call after Establish has exported the
// browser cookies.
func (session *Session) SaveCookies() error {
	if session.jar == nil {
		return errors.New("LoadCookies must be called first")
	}
	return session.jar.Save()
}

// run executes browser actions against the session tab. Each call is
// bounded by the login timeout, and the caller's ctx cancels it mid-flight.
func (session *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	opCtx, cancel := context.WithTimeout(session.tab, session.loginTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- chromedp.Run(opCtx, actions...) }()
	select {
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// snapshot parses the current DOM of the session tab.
func (session *Session) snapshot(ctx context.Context) (*goquery.Document, error) {
	var html string
	if err := session.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return nil, &TransientError{Op: "snapshot page", Err: err}
	}
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

// Establish validates any persisted session first and performs the login
// flow only when that fails. On a challenge interstitial it returns a
// degraded handle together with an AuthError so the caller can decide
// whether to continue unauthenticated.
func (session *Session) Establish(ctx context.Context, creds Credentials) (*SessionHandle, error) {
	if session.jar == nil {
		if err := session.LoadCookies(); err != nil {
			return nil, err
		}
	}

	if err := session.injectCookies(ctx); err != nil {
		return nil, err
	}

	session.Log.Printf("probing session state at %v", session.baseURL)
	if err := session.run(ctx,
		chromedp.Navigate(session.baseURL.String()),
		chromedp.WaitReady("body"),
		chromedp.Sleep(DefaultSettleDelay),
	); err != nil {
		return nil, session.classifyNavError("session probe", err)
	}

	doc, err := session.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if doc.Find(selLoggedInMarker).Length() > 0 {
		session.Log.Printf("existing session still valid")
		return &SessionHandle{Authenticated: true}, nil
	}
	if sel := findChallenge(doc); sel != "" {
		return &SessionHandle{Degraded: true}, &AuthError{
			Reason:  AuthChallenge,
			Message: fmt.Sprintf("challenge interstitial before login (%v)", sel),
		}
	}

	return session.login(ctx, creds)
}

func (session *Session) login(ctx context.Context, creds Credentials) (*SessionHandle, error) {
	session.Log.Printf("performing interactive login")

	err := session.run(ctx,
		chromedp.Click(selSignInButton, chromedp.ByQuery),
		chromedp.WaitVisible(selLoginEmail, chromedp.ByQuery),
		chromedp.SendKeys(selLoginEmail, creds.Username, chromedp.ByQuery),
		chromedp.Click(selLoginContinue, chromedp.ByQuery),
		chromedp.WaitVisible(selLoginPassword, chromedp.ByQuery),
		chromedp.SendKeys(selLoginPassword, creds.Password, chromedp.ByQuery),
		chromedp.Click(selLoginSubmit, chromedp.ByQuery),
		chromedp.Sleep(DefaultSettleDelay),
	)
	if err != nil {
		return nil, session.classifyNavError("login", err)
	}

	doc, err := session.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	switch {
	case doc.Find(selLoggedInMarker).Length() > 0:
		if err := session.exportCookies(ctx); err != nil {
			session.Log.Printf("could not persist session cookies: %v", err)
		}
		session.Log.Printf("login succeeded")
		return &SessionHandle{Authenticated: true}, nil

	case doc.Find(selLoginError).Length() > 0:
		message := strings.TrimSpace(doc.Find(selLoginError).First().Text())
		return nil, &AuthError{Reason: AuthBadCredentials, Message: message}

	default:
		if sel := findChallenge(doc); sel != "" {
			return &SessionHandle{Degraded: true}, &AuthError{
				Reason:  AuthChallenge,
				Message: fmt.Sprintf("challenge interstitial during login (%v)", sel),
			}
		}
		return nil, &AuthError{Reason: AuthTimeout, Message: "login outcome not recognized"}
	}
}

func (session *Session) classifyNavError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &AuthError{Reason: AuthTimeout, Message: op + " timed out"}
	}
	return &TransientError{Op: op, Err: err}
}

// findChallenge reports the first challenge marker present in the page.
func findChallenge(doc *goquery.Document) string {
	for _, sel := range challengeSelectors {
		if doc.Find(sel).Length() > 0 {
			return sel
		}
	}
	return ""
}

// injectCookies copies persisted cookies into the browser tab.
func (session *Session) injectCookies(ctx context.Context) error {
	cookies := session.jar.AllCookies()
	if len(cookies) == 0 {
		return nil
	}
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		param := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HttpOnly,
		}
		if param.Domain == "" {
			param.URL = session.baseURL.String()
		}
		if !c.Expires.IsZero() {
			expires := cdp.TimeSinceEpoch(c.Expires)
			param.Expires = &expires
		}
		params = append(params, param)
	}
	session.Log.Printf("injecting %d persisted cookies", len(params))
	return session.run(ctx, storage.SetCookies(params))
}

// exportCookies copies the browser cookies back into the persistent jar
// and saves it so the next run can skip login.
func (session *Session) exportCookies(ctx context.Context) error {
	var cookies []*network.Cookie
	err := session.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = storage.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return err
	}

	httpCookies := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		cookie := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   strings.TrimPrefix(c.Domain, "."),
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		}
		if c.Expires > 0 {
			cookie.Expires = time.Unix(int64(c.Expires), 0)
		}
		httpCookies = append(httpCookies, cookie)
	}
	session.jar.SetCookies(session.baseURL, httpCookies)
	return session.SaveCookies()
}
