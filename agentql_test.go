package agoda

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func agentqlServer(t *testing.T, handler http.HandlerFunc) *AgentQLClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewAgentQLClient("test-key", nil).SetBaseURL(server.URL)
}

func TestAgentQLClientQueryData(t *testing.T) {
	client := agentqlServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/query-data" {
			t.Errorf("path = %v", r.URL.Path)
		}
		if got := r.Header.Get("X-API-Key"); got != "test-key" {
			t.Errorf("X-API-Key = %q", got)
		}
		var req agentqlRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Query != HotelListQuery || req.HTML == "" {
			t.Errorf("request = %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"hotels":[{"hotel_name":"Grand Plaza","hotel_link":"/grand-plaza.html","rating":8.4}]}}`))
	})

	var data struct {
		Hotels []struct {
			HotelName string   `json:"hotel_name"`
			HotelLink string   `json:"hotel_link"`
			Rating    *float64 `json:"rating"`
		} `json:"hotels"`
	}
	if err := client.QueryData(context.Background(), "<html></html>", HotelListQuery, &data); err != nil {
		t.Fatal(err)
	}
	if len(data.Hotels) != 1 || data.Hotels[0].HotelName != "Grand Plaza" {
		t.Errorf("data = %+v", data)
	}
}

func TestAgentQLClientStatusClassification(t *testing.T) {
	cases := []struct {
		status    int
		transient bool
		config    bool
	}{
		{http.StatusUnauthorized, false, true},
		{http.StatusForbidden, false, true},
		{http.StatusTooManyRequests, true, false},
		{http.StatusInternalServerError, true, false},
		{http.StatusBadRequest, false, false},
	}
	for _, c := range cases {
		client := agentqlServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(c.status)
			w.Write([]byte(`{"error":"nope"}`))
		})

		var out json.RawMessage
		err := client.QueryData(context.Background(), "<html></html>", HotelListQuery, &out)
		if err == nil {
			t.Errorf("status %d: expected error", c.status)
			continue
		}
		if got := IsTransient(err); got != c.transient {
			t.Errorf("status %d: IsTransient = %v, want %v", c.status, got, c.transient)
		}
		var configErr *ConfigError
		if got := errors.As(err, &configErr); got != c.config {
			t.Errorf("status %d: ConfigError = %v, want %v", c.status, got, c.config)
		}
	}
}

func TestAgentQLClientErrorDetail(t *testing.T) {
	client := agentqlServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"unsupported query term"}`))
	})

	var out json.RawMessage
	err := client.QueryData(context.Background(), "<html></html>", HotelListQuery, &out)
	var structural *StructuralError
	if !errors.As(err, &structural) {
		t.Fatalf("got %v, want StructuralError", err)
	}
	if !strings.Contains(structural.Detail, "unsupported query term") {
		t.Errorf("Detail = %q, want the engine's error message included", structural.Detail)
	}
}

func TestAgentQLClientEmptyData(t *testing.T) {
	client := agentqlServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	})

	var out json.RawMessage
	err := client.QueryData(context.Background(), "<html></html>", HotelListQuery, &out)
	var structural *StructuralError
	if !errors.As(err, &structural) {
		t.Errorf("got %v, want StructuralError", err)
	}
}

func TestAgentQLExtractorReviews(t *testing.T) {
	client := agentqlServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req agentqlRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Query != IndividualReviewsQuery {
			t.Errorf("query = %q", req.Query)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"reviews":[
			{"reviewer_name":"Alex","reviewer_country":"Japan","reviewer_score":9.2,"review_text":"Great stay","review_date":"March 12, 2025"}
		]}}`))
	})

	state := mustPage(t, PageReviews, "https://www.agoda.com/grand-plaza/hotel/da-nang-vn.html",
		reviewsHTML("disabled"))
	got, err := NewAgentQLExtractor(client, nil).Reviews(context.Background(), state)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d reviews", len(got))
	}
	review := got[0]
	if review.HotelID != "da-nang-vn" {
		t.Errorf("HotelID = %q", review.HotelID)
	}
	if review.ReviewerName != "Alex" || review.Score == nil || *review.Score != 9.2 {
		t.Errorf("review = %+v", review)
	}
}

func TestAgentQLExtractorHotelList(t *testing.T) {
	client := agentqlServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"hotels":[
			{"hotel_name":"Grand Plaza","hotel_link":"/grand-plaza.html","rating":8.4,"review_count":1234},
			{"hotel_name":"No Link Hotel","hotel_link":""}
		]}}`))
	})

	state := mustPage(t, PageListing, "https://www.agoda.com/city/da-nang-vn.html", listingHTML())
	got, err := NewAgentQLExtractor(client, nil).HotelList(context.Background(), state)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d summaries, want the linkless one skipped", len(got))
	}
	if got[0].Link != "https://www.agoda.com/grand-plaza.html" {
		t.Errorf("Link = %q", got[0].Link)
	}
}
