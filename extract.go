package agoda

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// HotelSummary is one entry of a search-result listing. Link is resolved to
// an absolute URL before the summary leaves the extractor.
type HotelSummary struct {
	Name        string
	Link        string
	Rating      *float64
	ReviewCount *int
}

// Extractor issues structural queries against a rendered page and returns
// typed records. Implementations never walk raw markup at call sites; the
// matching is delegated to the declarative query engine (struct-tag schemas
// or the remote AgentQL service).
type Extractor interface {
	HotelList(ctx context.Context, state *PageState) ([]HotelSummary, error)
	HotelDetail(ctx context.Context, state *PageState) (HotelRecord, error)
	ReviewStats(ctx context.Context, state *PageState) (*ReviewStats, error)
	Reviews(ctx context.Context, state *PageState) ([]ReviewRecord, error)
}

// Selectors for the structural schemas. Layout drift localizes here: when
// the site changes, extraction raises StructuralError rather than silently
// returning empty records.
const (
	selHotelItem     = "li[data-selenium='hotel-item']"
	selSearchResults = "ol[data-selenium='hotel-list']"

	selDetailRoot = "div[data-selenium='hotel-header']"

	selReviewSection = "div[data-selenium='review-section']"
	selReviewComment = "div[data-selenium='review-comment']"
)

type hotelItemSchema struct {
	Name        string   `find:"h3[data-selenium='hotel-name']"`
	Link        string   `find:"a[data-element-name='property-card-content']" attr:"href"`
	Rating      *float64 `find:"span[data-selenium='review-score']"`
	ReviewCount *int     `find:"span[data-selenium='review-count']" re:"([0-9,]+)"`
}

type hotelDetailSchema struct {
	Name     string   `find:"h1[data-selenium='hotel-header-name']"`
	Address  string   `find:"span[data-selenium='hotel-address-map']" optional:"true"`
	Rating   *float64 `find:"div[data-selenium='hotel-header-review'] span[data-selenium='review-score']"`
	Price    string   `find:"div[data-selenium='display-price']" optional:"true"`
	Stars    string   `find:"div[data-selenium='hotel-star-rating']" attr:"aria-label" optional:"true"`
	Area     string   `find:"span[data-selenium='area-city-text']" optional:"true"`
	CheckIn  string   `find:"span[data-selenium='check-in-time']" optional:"true"`
	CheckOut string   `find:"span[data-selenium='check-out-time']" optional:"true"`
}

type reviewStatsSchema struct {
	OverallScore *float64 `find:"span[data-selenium='review-overall-score']"`
	RatingText   string   `find:"span[data-selenium='review-overall-text']" optional:"true"`
	TotalReviews *int     `find:"span[data-selenium='review-total']" re:"([0-9,]+)"`
	Categories   []struct {
		Name  string   `find:"span[data-selenium='review-category-name']"`
		Score *float64 `find:"span[data-selenium='review-category-score']"`
	} `find:"div[data-selenium='review-category']"`
}

type reviewSchema struct {
	ReviewerName string   `find:"div[data-selenium='review-comment-reviewer'] strong"`
	Country      string   `find:"div[data-selenium='review-comment-reviewer'] span[data-selenium='reviewer-country']" optional:"true"`
	Score        *float64 `find:"span[data-selenium='review-comment-score']"`
	ScoreText    string   `find:"span[data-selenium='review-comment-score-text']" optional:"true"`
	TravelerType string   `find:"div[data-selenium='review-traveler-type']" optional:"true"`
	RoomType     string   `find:"div[data-selenium='review-room-type']" optional:"true"`
	StayDuration string   `find:"div[data-selenium='review-stay-detail']" optional:"true"`
	Title        string   `find:"p[data-selenium='review-comment-title']" optional:"true"`
	Text         string   `find:"p[data-selenium='review-comment-body']"`
	Date         string   `find:"span[data-selenium='review-comment-date']" re:"Reviewed (.*)" optional:"true"`
}

// SchemaExtractor evaluates the struct-tag schemas against PageState
// snapshots.
type SchemaExtractor struct {
	Log Logger
}

func NewSchemaExtractor(log Logger) *SchemaExtractor {
	if log == nil {
		log = NopLogger{}
	}
	return &SchemaExtractor{Log: log}
}

func (ex *SchemaExtractor) HotelList(ctx context.Context, state *PageState) ([]HotelSummary, error) {
	if err := checkBlocked(state); err != nil {
		return nil, err
	}
	doc := state.Doc()
	if doc.Find(selSearchResults).Length() == 0 {
		return nil, &StructuralError{Page: state.String(), Detail: "search result list not found"}
	}

	items := doc.Find(selHotelItem)
	summaries := make([]HotelSummary, 0, items.Length())
	for i := 0; i < items.Length(); i++ {
		var schema hotelItemSchema
		if err := UnmarshalPage(&schema, items.Eq(i), QueryOption{}); err != nil {
			// one broken card does not fail the listing
			ex.Log.Printf("skipping hotel card #%d: %v", i, err)
			continue
		}
		link, err := state.ResolveLink(schema.Link)
		if err != nil {
			ex.Log.Printf("skipping hotel card #%d: bad link %q", i, schema.Link)
			continue
		}
		summaries = append(summaries, HotelSummary{
			Name:        schema.Name,
			Link:        link,
			Rating:      schema.Rating,
			ReviewCount: schema.ReviewCount,
		})
	}
	return summaries, nil
}

func (ex *SchemaExtractor) HotelDetail(ctx context.Context, state *PageState) (HotelRecord, error) {
	if err := checkBlocked(state); err != nil {
		return HotelRecord{}, err
	}
	doc := state.Doc()
	root := doc.Find(selDetailRoot)
	if root.Length() == 0 {
		return HotelRecord{}, &StructuralError{Page: state.String(), Detail: "hotel header not found"}
	}

	var schema hotelDetailSchema
	if err := UnmarshalPage(&schema, root, QueryOption{}); err != nil {
		return HotelRecord{}, &StructuralError{Page: state.String(), Detail: err.Error()}
	}

	record := HotelRecord{
		ID:      HotelIDFromURL(state.URL),
		Name:    schema.Name,
		URL:     state.URL.String(),
		Address: schema.Address,
		Rating:  schema.Rating,
		Price:   schema.Price,
	}
	meta := map[string]string{}
	for key, value := range map[string]string{
		"stars":     schema.Stars,
		"area":      schema.Area,
		"check_in":  schema.CheckIn,
		"check_out": schema.CheckOut,
	} {
		if value != "" {
			meta[key] = value
		}
	}
	if len(meta) > 0 {
		record.Metadata = meta
	}
	return record, nil
}

func (ex *SchemaExtractor) ReviewStats(ctx context.Context, state *PageState) (*ReviewStats, error) {
	if err := checkBlocked(state); err != nil {
		return nil, err
	}
	section := state.Doc().Find(selReviewSection)
	if section.Length() == 0 {
		return nil, &StructuralError{Page: state.String(), Detail: "review section not found"}
	}

	var schema reviewStatsSchema
	if err := UnmarshalPage(&schema, section, QueryOption{}); err != nil {
		return nil, &StructuralError{Page: state.String(), Detail: err.Error()}
	}

	stats := &ReviewStats{
		OverallScore: schema.OverallScore,
		RatingText:   schema.RatingText,
		TotalReviews: schema.TotalReviews,
	}
	for _, category := range schema.Categories {
		stats.Categories = append(stats.Categories, CategoryScore{
			Name:  category.Name,
			Score: category.Score,
		})
	}
	return stats, nil
}

func (ex *SchemaExtractor) Reviews(ctx context.Context, state *PageState) ([]ReviewRecord, error) {
	if err := checkBlocked(state); err != nil {
		return nil, err
	}
	doc := state.Doc()
	if doc.Find(selReviewSection).Length() == 0 {
		return nil, &StructuralError{Page: state.String(), Detail: "review section not found"}
	}

	hotelID := HotelIDFromURL(state.URL)
	comments := doc.Find(selReviewComment)
	reviews := make([]ReviewRecord, 0, comments.Length())
	for i := 0; i < comments.Length(); i++ {
		var schema reviewSchema
		if err := UnmarshalPage(&schema, comments.Eq(i), QueryOption{}); err != nil {
			ex.Log.Printf("skipping review #%d on %v: %v", i, state, err)
			continue
		}
		reviews = append(reviews, ReviewRecord{
			HotelID:      hotelID,
			ReviewerName: schema.ReviewerName,
			Country:      schema.Country,
			Score:        schema.Score,
			ScoreText:    schema.ScoreText,
			TravelerType: schema.TravelerType,
			RoomType:     schema.RoomType,
			StayDuration: schema.StayDuration,
			Title:        schema.Title,
			Text:         schema.Text,
			Date:         schema.Date,
		})
	}
	return reviews, nil
}

// HotelIDFromURL derives a stable hotel identifier from the detail page
// URL: the hotel slug, without the .html suffix.
func HotelIDFromURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	if id := u.Query().Get("hotelId"); id != "" {
		return id
	}
	base := path.Base(u.Path)
	return strings.TrimSuffix(base, ".html")
}

var blockMarkers = []string{
	"access denied",
	"are you a human",
	"verify you are human",
	"captcha",
}

// checkBlocked classifies anti-automation block pages as transient so the
// retry controller backs off and tries again.
func checkBlocked(state *PageState) error {
	title := strings.ToLower(state.Title)
	for _, marker := range blockMarkers {
		if strings.Contains(title, marker) {
			return &TransientError{
				Op:  fmt.Sprintf("extract %v", state.Kind),
				Err: errors.New("blocked: " + state.Title),
			}
		}
	}
	return nil
}
