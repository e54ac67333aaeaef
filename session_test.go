package agoda

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"
)

func TestFindChallenge(t *testing.T) {
	cases := []struct {
		name string
		html string
		want string
	}{
		{
			"captcha iframe",
			`<html><body><iframe src="https://challenge.example/captcha?x=1"></iframe></body></html>`,
			"iframe[src*='captcha']",
		},
		{
			"px widget",
			`<html><body><div id="px-captcha"></div></body></html>`,
			"#px-captcha",
		},
		{
			"clean page",
			`<html><body><div data-element-name="user-avatar"></div></body></html>`,
			"",
		},
	}
	for _, c := range cases {
		doc := docFromHTML(t, c.html)
		if got := findChallenge(doc); got != c.want {
			t.Errorf("%v: findChallenge = %q, want %q", c.name, got, c.want)
		}
	}
}

func TestClassifyNavError(t *testing.T) {
	session := NewSession(context.Background(), "test", nil)

	err := session.classifyNavError("probe", context.DeadlineExceeded)
	var authErr *AuthError
	if !errors.As(err, &authErr) || authErr.Reason != AuthTimeout {
		t.Errorf("deadline: got %v, want AuthError timeout", err)
	}

	err = session.classifyNavError("probe", errors.New("connection reset"))
	if !IsTransient(err) {
		t.Errorf("network failure not transient: %v", err)
	}
}

func TestSessionCookiePersistence(t *testing.T) {
	session := NewSession(context.Background(), "cookies", nil)
	session.FilePrefix = t.TempDir() + "/"

	if err := session.LoadCookies(); err != nil {
		t.Fatal(err)
	}

	base, _ := url.Parse(BaseURL)
	session.jar.SetCookies(base, []*http.Cookie{{
		Name:    "session-token",
		Value:   "abc123",
		Path:    "/",
		Expires: time.Now().Add(24 * time.Hour),
	}})
	if err := session.SaveCookies(); err != nil {
		t.Fatal(err)
	}

	// a fresh session with the same name sees the persisted cookie
	reloaded := NewSession(context.Background(), "cookies", nil)
	reloaded.FilePrefix = session.FilePrefix
	if err := reloaded.LoadCookies(); err != nil {
		t.Fatal(err)
	}
	cookies := reloaded.jar.Cookies(base)
	found := false
	for _, c := range cookies {
		if c.Name == "session-token" && c.Value == "abc123" {
			found = true
		}
	}
	if !found {
		t.Errorf("persisted cookie not reloaded; got %v", cookies)
	}
}

func TestSaveCookiesWithoutLoad(t *testing.T) {
	session := NewSession(context.Background(), "unloaded", nil)
	if err := session.SaveCookies(); err == nil {
		t.Error("expected error before LoadCookies")
	}
}

func TestEstablishObservesCancellation(t *testing.T) {
	session := NewSession(context.Background(), "cancelled", nil)
	session.FilePrefix = t.TempDir() + "/"

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// must return before touching the browser instead of blocking on
	// navigation
	done := make(chan error, 1)
	go func() {
		_, err := session.Establish(ctx, Credentials{Username: "u", Password: "p"})
		done <- err
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected error from cancelled context")
		}
		if !errors.Is(err, context.Canceled) {
			t.Errorf("got %v, want context.Canceled in chain", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Establish did not return after cancellation")
	}
}

func TestSessionRunCancelled(t *testing.T) {
	session := NewSession(context.Background(), "run", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := session.run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("run = %v, want context.Canceled", err)
	}
}
