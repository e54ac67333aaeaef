package agoda

import (
	"context"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

// Navigation selectors.
const (
	selReadAllReviews = "span[label='Read all reviews']"
	selNextReviewPage = "button[aria-label='Next reviews page'], button[data-element-name='review-paginator-next']"
	selBackdrop       = "[data-selenium='backdrop']"
)

// Navigator drives page-to-page movement through the traversal state
// machine: Listing -> HotelDetail -> ReviewPage(n) -> ... -> End. NextPage
// signals termination with EndOfPagination; invoking it again on a
// terminal state yields EndOfPagination again.
type Navigator interface {
	Goto(ctx context.Context, target Target) (*PageState, error)
	OpenHotel(ctx context.Context, hotelURL string) (*PageState, error)
	OpenReviews(ctx context.Context, state *PageState) (*PageState, error)
	NextPage(ctx context.Context, state *PageState) (*PageState, error)
}

// ChromeNavigator drives a live browser tab. Not safe for concurrent use;
// each worker owns its own tab and navigator.
type ChromeNavigator struct {
	Log Logger

	// MaxReviewPages caps pages visited per hotel independently of the
	// site's own pagination signal.
	MaxReviewPages int

	Timeout  time.Duration // per navigation/extraction step
	Settle   time.Duration
	Recorder *Recorder // optional; saves every snapshot for replay

	tab context.Context
}

func NewChromeNavigator(tab context.Context, log Logger, maxReviewPages int) *ChromeNavigator {
	if log == nil {
		log = NopLogger{}
	}
	if maxReviewPages < 1 {
		maxReviewPages = DefaultMaxReviewPages
	}
	return &ChromeNavigator{
		Log:            log,
		MaxReviewPages: maxReviewPages,
		Timeout:        DefaultTimeout,
		Settle:         DefaultSettleDelay,
		tab:            tab,
	}
}

// run executes browser actions against the navigator's own tab, bounded by
// the step timeout and the caller's cancellation. Every browser operation
// either completes within its timeout or surfaces as a transient failure.
func (nav *ChromeNavigator) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	opCtx, cancel := context.WithTimeout(nav.tab, nav.Timeout)
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

func (nav *ChromeNavigator) Goto(ctx context.Context, target Target) (*PageState, error) {
	kind := PageListing
	if target.Kind == TargetSingleHotel {
		kind = PageHotelDetail
	}
	nav.Log.Printf("navigating to %v", target.URL)

	if err := nav.navigate(ctx, target.URL); err != nil {
		return nil, err
	}
	if kind == PageListing {
		// scroll to trigger lazy-loaded result cards
		if err := nav.scroll(ctx, 3); err != nil {
			return nil, &TransientError{Op: "scroll listing", Err: err}
		}
	}
	return nav.capture(ctx, kind, 0)
}

func (nav *ChromeNavigator) OpenHotel(ctx context.Context, hotelURL string) (*PageState, error) {
	nav.Log.Printf("opening hotel %v", hotelURL)
	if err := nav.navigate(ctx, hotelURL); err != nil {
		return nil, err
	}
	return nav.capture(ctx, PageHotelDetail, 0)
}

// OpenReviews expands the review section of a hotel detail page. When the
// expand control is missing the inline reviews are used as page 1; that is
// how the site renders hotels with few reviews.
func (nav *ChromeNavigator) OpenReviews(ctx context.Context, state *PageState) (*PageState, error) {
	if state.Kind != PageHotelDetail {
		return nil, fmt.Errorf("OpenReviews: expected hotel detail state, got %v", state.Kind)
	}

	if state.Doc().Find(selReadAllReviews).Length() > 0 {
		nav.dismissOverlay(ctx)
		err := nav.run(ctx,
			chromedp.Click(selReadAllReviews, chromedp.ByQuery),
			chromedp.WaitReady("body"),
			chromedp.Sleep(nav.Settle),
		)
		if err != nil {
			return nil, &TransientError{Op: "open reviews", Err: err}
		}
	} else {
		nav.Log.Printf("no review expand control, using inline reviews")
	}
	return nav.capture(ctx, PageReviews, 1)
}

func (nav *ChromeNavigator) NextPage(ctx context.Context, state *PageState) (*PageState, error) {
	if state.Kind == PageEnd {
		return state, EndOfPagination
	}
	if state.Kind != PageReviews {
		return nil, fmt.Errorf("NextPage: expected reviews state, got %v", state.Kind)
	}
	if state.Num >= nav.MaxReviewPages {
		nav.Log.Printf("review page budget (%d) reached", nav.MaxReviewPages)
		return endState(state), EndOfPagination
	}
	if !hasNextReviewControl(state.Doc()) {
		return endState(state), EndOfPagination
	}

	nav.dismissOverlay(ctx)
	err := nav.run(ctx,
		chromedp.Click(selNextReviewPage, chromedp.ByQuery),
		chromedp.WaitReady("body"),
		chromedp.Sleep(nav.Settle),
	)
	if err != nil {
		return nil, &TransientError{Op: fmt.Sprintf("next review page after #%d", state.Num), Err: err}
	}
	return nav.capture(ctx, PageReviews, state.Num+1)
}

func (nav *ChromeNavigator) navigate(ctx context.Context, pageURL string) error {
	err := nav.run(ctx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body"),
		chromedp.Sleep(nav.Settle),
	)
	if err != nil {
		return &TransientError{Op: "navigate " + pageURL, Err: err}
	}
	nav.activate(ctx)
	return nil
}

// activate nudges the DOM the way a human would; some widgets refuse
// pointer events until the page has seen real input.
func (nav *ChromeNavigator) activate(ctx context.Context) {
	err := nav.run(ctx,
		chromedp.KeyEvent(kb.PageDown),
		chromedp.Sleep(300*time.Millisecond),
		chromedp.MouseClickXY(960, 540, chromedp.ButtonRight),
		chromedp.Sleep(500*time.Millisecond),
	)
	if err != nil {
		nav.Log.Printf("page activation failed: %v", err)
	}
}

func (nav *ChromeNavigator) scroll(ctx context.Context, pages int) error {
	for i := 0; i < pages; i++ {
		if err := nav.run(ctx,
			chromedp.KeyEvent(kb.PageDown),
			chromedp.Sleep(time.Second),
		); err != nil {
			return err
		}
	}
	return nil
}

// dismissOverlay closes the backdrop that intercepts clicks on the review
// controls. Escape first, then pointer-events removal as a fallback.
func (nav *ChromeNavigator) dismissOverlay(ctx context.Context) {
	var present bool
	script := fmt.Sprintf("document.querySelector(%q) !== null", selBackdrop)
	if err := nav.run(ctx, chromedp.Evaluate(script, &present)); err != nil || !present {
		return
	}
	nav.Log.Printf("backdrop detected, dismissing")
	disable := fmt.Sprintf(
		"(() => { const b = document.querySelector(%q); if (b) { b.style.pointerEvents = 'none'; b.style.opacity = '0'; } })()",
		selBackdrop)
	err := nav.run(ctx,
		chromedp.KeyEvent(kb.Escape),
		chromedp.Sleep(200*time.Millisecond),
		chromedp.Evaluate(disable, nil),
	)
	if err != nil {
		nav.Log.Printf("overlay dismissal failed: %v", err)
	}
}

// capture snapshots the rendered DOM into a PageState.
func (nav *ChromeNavigator) capture(ctx context.Context, kind PageKind, num int) (*PageState, error) {
	var html, location string
	err := nav.run(ctx,
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, &TransientError{Op: "capture page", Err: err}
	}

	state, err := NewPageState(kind, location, []byte(html))
	if err != nil {
		return nil, err
	}
	state.Num = num

	if nav.Recorder != nil {
		if err := nav.Recorder.Save(state, []byte(html)); err != nil {
			nav.Log.Printf("recording snapshot failed: %v", err)
		}
	}
	nav.Log.Printf("* %v", state.Title)
	return state, nil
}

// hasNextReviewControl reports whether the page offers another review page:
// a next-control that exists and is not disabled. Absence of the control is
// the explicit end-of-pagination marker.
func hasNextReviewControl(doc *goquery.Document) bool {
	buttons := doc.Find(selNextReviewPage)
	if buttons.Length() == 0 {
		return false
	}
	enabled := false
	buttons.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if _, disabled := s.Attr("disabled"); disabled {
			return true
		}
		if v, ok := s.Attr("aria-disabled"); ok && v == "true" {
			return true
		}
		enabled = true
		return false
	})
	return enabled
}
