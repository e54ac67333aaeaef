package agoda

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
)

// AgentQL is the remote structural query engine: it receives the rendered
// HTML plus a declarative field query and returns typed values. Used as an
// alternative extraction backend when the CSS schemas cannot keep up with
// layout churn.

const agentqlBaseURL = "https://api.agentql.com/v1"

// Queries are a versioned contract with the query engine; fields marked
// (Optional) may come back null without failing the extraction.
const (
	HotelListQuery = `{
    hotels[] {
        hotel_name
        hotel_link
        rating (Optional)
        review_count (Optional)
    }
}`

	OverallReviewStatsQuery = `{
    overall_score
    overall_rating_text
    total_reviews
    review_categories[] {
        category_name
        category_score
    }
}`

	IndividualReviewsQuery = `{
    reviews[] {
        reviewer_score
        reviewer_score_text
        reviewer_name
        reviewer_country
        traveler_type (Optional)
        room_type (Optional)
        stay_duration (Optional)
        review_title
        review_text
        review_date
    }
}`
)

type agentqlRequest struct {
	Query string `json:"query"`
	HTML  string `json:"html"`
}

type agentqlResponse struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error,omitempty"`
}

// AgentQLClient talks to the query-data endpoint.
type AgentQLClient struct {
	http *resty.Client
	log  Logger
}

func NewAgentQLClient(apiKey string, log Logger) *AgentQLClient {
	if log == nil {
		log = NopLogger{}
	}
	client := resty.New().
		SetBaseURL(agentqlBaseURL).
		SetHeader("X-API-Key", apiKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(DefaultTimeout)
	return &AgentQLClient{http: client, log: log}
}

// SetBaseURL points the client at a different endpoint. Primarily for
// tests against a local server.
func (client *AgentQLClient) SetBaseURL(baseURL string) *AgentQLClient {
	client.http.SetBaseURL(baseURL)
	return client
}

// QueryData runs one declarative query against the given rendered HTML and
// decodes the result into out.
func (client *AgentQLClient) QueryData(ctx context.Context, html, query string, out interface{}) error {
	// resty decodes Result on 2xx and Error on 4xx/5xx, so both point at body
	var body agentqlResponse
	resp, err := client.http.R().
		SetContext(ctx).
		SetBody(agentqlRequest{Query: query, HTML: html}).
		SetResult(&body).
		SetError(&body).
		Post("/query-data")
	if err != nil {
		return &TransientError{Op: "agentql query", Err: err}
	}

	switch {
	case resp.StatusCode() == http.StatusOK:
		// fallthrough to decode
	case resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden:
		return &ConfigError{Field: EnvAgentQLKey, Message: "query engine rejected the API key"}
	case resp.StatusCode() >= http.StatusInternalServerError || resp.StatusCode() == http.StatusTooManyRequests:
		return &TransientError{Op: "agentql query", Err: fmt.Errorf("status %v", resp.Status())}
	default:
		return &StructuralError{Page: "agentql query", Detail: fmt.Sprintf("status %v: %v", resp.Status(), body.Error)}
	}

	if len(body.Data) == 0 {
		return &StructuralError{Page: "agentql query", Detail: "empty response data"}
	}
	if err := json.Unmarshal(body.Data, out); err != nil {
		return &StructuralError{Page: "agentql query", Detail: err.Error()}
	}
	return nil
}

// AgentQLExtractor implements Extractor on top of the remote engine.
type AgentQLExtractor struct {
	client *AgentQLClient
	log    Logger
}

func NewAgentQLExtractor(client *AgentQLClient, log Logger) *AgentQLExtractor {
	if log == nil {
		log = NopLogger{}
	}
	return &AgentQLExtractor{client: client, log: log}
}

func (ex *AgentQLExtractor) HotelList(ctx context.Context, state *PageState) ([]HotelSummary, error) {
	if err := checkBlocked(state); err != nil {
		return nil, err
	}
	html, err := state.HTML()
	if err != nil {
		return nil, err
	}

	var data struct {
		Hotels []struct {
			HotelName   string   `json:"hotel_name"`
			HotelLink   string   `json:"hotel_link"`
			Rating      *float64 `json:"rating"`
			ReviewCount *int     `json:"review_count"`
		} `json:"hotels"`
	}
	if err := ex.client.QueryData(ctx, html, HotelListQuery, &data); err != nil {
		return nil, err
	}

	summaries := make([]HotelSummary, 0, len(data.Hotels))
	for i, hotel := range data.Hotels {
		if hotel.HotelLink == "" {
			ex.log.Printf("skipping hotel #%d (%q): no link", i, hotel.HotelName)
			continue
		}
		link, err := state.ResolveLink(hotel.HotelLink)
		if err != nil {
			ex.log.Printf("skipping hotel #%d (%q): bad link", i, hotel.HotelName)
			continue
		}
		summaries = append(summaries, HotelSummary{
			Name:        hotel.HotelName,
			Link:        link,
			Rating:      hotel.Rating,
			ReviewCount: hotel.ReviewCount,
		})
	}
	return summaries, nil
}

func (ex *AgentQLExtractor) HotelDetail(ctx context.Context, state *PageState) (HotelRecord, error) {
	if err := checkBlocked(state); err != nil {
		return HotelRecord{}, err
	}
	// the detail fields the pipeline needs are covered by the page header;
	// the remote engine is reserved for the review structures, so reuse the
	// schema extractor here.
	schema := SchemaExtractor{Log: ex.log}
	return schema.HotelDetail(ctx, state)
}

func (ex *AgentQLExtractor) ReviewStats(ctx context.Context, state *PageState) (*ReviewStats, error) {
	if err := checkBlocked(state); err != nil {
		return nil, err
	}
	html, err := state.HTML()
	if err != nil {
		return nil, err
	}

	var data struct {
		OverallScore      *float64 `json:"overall_score"`
		OverallRatingText string   `json:"overall_rating_text"`
		TotalReviews      *int     `json:"total_reviews"`
		ReviewCategories  []struct {
			CategoryName  string   `json:"category_name"`
			CategoryScore *float64 `json:"category_score"`
		} `json:"review_categories"`
	}
	if err := ex.client.QueryData(ctx, html, OverallReviewStatsQuery, &data); err != nil {
		return nil, err
	}

	stats := &ReviewStats{
		OverallScore: data.OverallScore,
		RatingText:   data.OverallRatingText,
		TotalReviews: data.TotalReviews,
	}
	for _, category := range data.ReviewCategories {
		stats.Categories = append(stats.Categories, CategoryScore{
			Name:  category.CategoryName,
			Score: category.CategoryScore,
		})
	}
	return stats, nil
}

func (ex *AgentQLExtractor) Reviews(ctx context.Context, state *PageState) ([]ReviewRecord, error) {
	if err := checkBlocked(state); err != nil {
		return nil, err
	}
	html, err := state.HTML()
	if err != nil {
		return nil, err
	}

	var data struct {
		Reviews []struct {
			ReviewerScore     *float64 `json:"reviewer_score"`
			ReviewerScoreText string   `json:"reviewer_score_text"`
			ReviewerName      string   `json:"reviewer_name"`
			ReviewerCountry   string   `json:"reviewer_country"`
			TravelerType      string   `json:"traveler_type"`
			RoomType          string   `json:"room_type"`
			StayDuration      string   `json:"stay_duration"`
			ReviewTitle       string   `json:"review_title"`
			ReviewText        string   `json:"review_text"`
			ReviewDate        string   `json:"review_date"`
		} `json:"reviews"`
	}
	if err := ex.client.QueryData(ctx, html, IndividualReviewsQuery, &data); err != nil {
		return nil, err
	}

	hotelID := HotelIDFromURL(state.URL)
	reviews := make([]ReviewRecord, 0, len(data.Reviews))
	for _, review := range data.Reviews {
		reviews = append(reviews, ReviewRecord{
			HotelID:      hotelID,
			ReviewerName: review.ReviewerName,
			Country:      review.ReviewerCountry,
			Score:        review.ReviewerScore,
			ScoreText:    review.ReviewerScoreText,
			TravelerType: review.TravelerType,
			RoomType:     review.RoomType,
			StayDuration: review.StayDuration,
			Title:        review.ReviewTitle,
			Text:         review.ReviewText,
			Date:         review.ReviewDate,
		})
	}
	return reviews, nil
}
