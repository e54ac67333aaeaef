package agoda

import (
	"fmt"
	"strings"
	"sync"
	"testing"
)

// captureLog records every Printf call, safe for concurrent writers.
type captureLog struct {
	mu    sync.Mutex
	lines []string
}

func (log *captureLog) Printf(format string, a ...interface{}) {
	log.mu.Lock()
	defer log.mu.Unlock()
	log.lines = append(log.lines, fmt.Sprintf(format, a...))
}

func (log *captureLog) entries() []string {
	log.mu.Lock()
	defer log.mu.Unlock()
	return append([]string(nil), log.lines...)
}

func mustPage(t *testing.T, kind PageKind, pageURL, html string) *PageState {
	t.Helper()
	state, err := NewPageState(kind, pageURL, []byte(html))
	if err != nil {
		t.Fatalf("NewPageState: %v", err)
	}
	return state
}

func floatPtr(f float64) *float64 { return &f }

func intPtr(i int) *int { return &i }

// listingHTML builds a search-result page with the given hotel cards.
func listingHTML(cards ...string) string {
	return `<html><head><title>Da Nang Hotels</title></head><body>
	<ol data-selenium="hotel-list">` + strings.Join(cards, "\n") + `</ol></body></html>`
}

func hotelCard(name, href, score, count string) string {
	card := `<li data-selenium="hotel-item">
	  <a data-element-name="property-card-content" href="` + href + `">
	    <h3 data-selenium="hotel-name">` + name + `</h3>
	  </a>`
	if score != "" {
		card += `<span data-selenium="review-score">` + score + `</span>`
	}
	if count != "" {
		card += `<span data-selenium="review-count">` + count + ` reviews</span>`
	}
	return card + `</li>`
}

func detailHTML(name, address, score, price string) string {
	return `<html><head><title>` + name + `</title></head><body>
	<div data-selenium="hotel-header">
	  <h1 data-selenium="hotel-header-name">` + name + `</h1>
	  <span data-selenium="hotel-address-map">` + address + `</span>
	  <div data-selenium="hotel-header-review">
	    <span data-selenium="review-score">` + score + `</span>
	  </div>
	  <div data-selenium="display-price">` + price + `</div>
	  <div data-selenium="hotel-star-rating" aria-label="4 stars out of 5"></div>
	</div></body></html>`
}

func reviewComment(reviewer, score, text string) string {
	return `<div data-selenium="review-comment">
	  <div data-selenium="review-comment-reviewer"><strong>` + reviewer + `</strong>
	    <span data-selenium="reviewer-country">Japan</span></div>
	  <span data-selenium="review-comment-score">` + score + `</span>
	  <p data-selenium="review-comment-body">` + text + `</p>
	  <span data-selenium="review-comment-date">Reviewed March 12, 2025</span>
	</div>`
}

// reviewsHTML builds one review page. hasNext controls the paginator
// control; an empty string omits it entirely.
func reviewsHTML(hasNext string, comments ...string) string {
	page := `<html><head><title>Reviews</title></head><body>
	<div data-selenium="review-section">
	  <span data-selenium="review-overall-score">8.4</span>
	  <span data-selenium="review-overall-text">Excellent</span>
	  <span data-selenium="review-total">1,234 reviews</span>
	  <div data-selenium="review-category">
	    <span data-selenium="review-category-name">Cleanliness</span>
	    <span data-selenium="review-category-score">8.8</span>
	  </div>` + strings.Join(comments, "\n")
	switch hasNext {
	case "enabled":
		page += `<button aria-label="Next reviews page">Next</button>`
	case "disabled":
		page += `<button aria-label="Next reviews page" disabled>Next</button>`
	case "aria-disabled":
		page += `<button aria-label="Next reviews page" aria-disabled="true">Next</button>`
	}
	return page + `</div></body></html>`
}

// reviewPages builds a recorded pagination run of n pages; the last page
// carries a disabled next-control.
func reviewPages(t *testing.T, hotelURL string, n int) []*PageState {
	t.Helper()
	states := make([]*PageState, 0, n)
	for i := 1; i <= n; i++ {
		next := "enabled"
		if i == n {
			next = "disabled"
		}
		state := mustPage(t, PageReviews, hotelURL, reviewsHTML(next,
			reviewComment(fmt.Sprintf("Guest %d", i), "9.0", fmt.Sprintf("Review from page %d", i))))
		state.Num = i
		states = append(states, state)
	}
	return states
}
