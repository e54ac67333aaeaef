package agoda

import (
	"sync"
	"time"
)

// HotelRecord is produced from one detail page. Immutable once created.
type HotelRecord struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	URL         string            `json:"url"`
	Address     string            `json:"address,omitempty"`
	Rating      *float64          `json:"rating,omitempty"`
	Price       string            `json:"price,omitempty"`
	ReviewCount *int              `json:"review_count,omitempty"`
	Stats       *ReviewStats      `json:"overall_statistics,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ReviewStats summarizes the review section of a hotel page.
type ReviewStats struct {
	OverallScore *float64        `json:"overall_score,omitempty"`
	RatingText   string          `json:"overall_rating_text,omitempty"`
	TotalReviews *int            `json:"total_reviews,omitempty"`
	Categories   []CategoryScore `json:"review_categories,omitempty"`
}

type CategoryScore struct {
	Name  string   `json:"category_name"`
	Score *float64 `json:"category_score,omitempty"`
}

// ReviewRecord holds one review. HotelID is a back-reference to the hotel
// it was scraped from; the record itself is owned by the RunResult.
type ReviewRecord struct {
	HotelID      string   `json:"-"`
	ReviewerName string   `json:"reviewer_name"`
	Country      string   `json:"reviewer_country,omitempty"`
	Score        *float64 `json:"reviewer_score,omitempty"`
	ScoreText    string   `json:"reviewer_score_text,omitempty"`
	TravelerType string   `json:"traveler_type,omitempty"`
	RoomType     string   `json:"room_type,omitempty"`
	StayDuration string   `json:"stay_duration,omitempty"`
	Title        string   `json:"review_title,omitempty"`
	Text         string   `json:"review_text"`
	Date         string   `json:"review_date,omitempty"`
}

// HotelFailure records a hotel that could not be scraped. The rest of the
// run is unaffected.
type HotelFailure struct {
	HotelID string `json:"hotel_id"`
	URL     string `json:"url,omitempty"`
	Reason  string `json:"reason"`
}

// RunResult accumulates records while the pipeline progresses and is
// finalized at run end. Mutation goes through the Add methods, which are
// safe for concurrent workers; browser state is never shared, only this
// accumulation point is.
type RunResult struct {
	mu sync.Mutex

	Target     Target
	StartedAt  time.Time
	FinishedAt time.Time
	Hotels     []HotelRecord
	Reviews    []ReviewRecord
	Errors     []HotelFailure

	log Logger
}

func NewRunResult(target Target, log Logger) *RunResult {
	if log == nil {
		log = NopLogger{}
	}
	return &RunResult{
		Target:    target,
		StartedAt: time.Now(),
		log:       log,
	}
}

func (result *RunResult) AddHotel(hotel HotelRecord) {
	result.mu.Lock()
	defer result.mu.Unlock()
	result.Hotels = append(result.Hotels, hotel)
}

// AddReviews attaches reviews to an already recorded hotel. Reviews whose
// hotel reference does not match any HotelRecord in this result are
// discarded; the inconsistency is logged, not fatal.
func (result *RunResult) AddReviews(reviews []ReviewRecord) {
	result.mu.Lock()
	defer result.mu.Unlock()
	for _, review := range reviews {
		if !result.hasHotelLocked(review.HotelID) {
			result.log.Printf("discarding review by %q: no hotel %q in result", review.ReviewerName, review.HotelID)
			continue
		}
		result.Reviews = append(result.Reviews, review)
	}
}

func (result *RunResult) AddFailure(failure HotelFailure) {
	result.mu.Lock()
	defer result.mu.Unlock()
	result.Errors = append(result.Errors, failure)
}

func (result *RunResult) hasHotelLocked(hotelID string) bool {
	for i := range result.Hotels {
		if result.Hotels[i].ID == hotelID {
			return true
		}
	}
	return false
}

// ReviewsFor returns the reviews recorded for one hotel, in scrape order.
func (result *RunResult) ReviewsFor(hotelID string) []ReviewRecord {
	result.mu.Lock()
	defer result.mu.Unlock()
	var reviews []ReviewRecord
	for _, review := range result.Reviews {
		if review.HotelID == hotelID {
			reviews = append(reviews, review)
		}
	}
	return reviews
}

// Finalize stamps the end time. Call once, after the last mutation.
func (result *RunResult) Finalize() {
	result.mu.Lock()
	defer result.mu.Unlock()
	result.FinishedAt = time.Now()
}

// Snapshot returns a consistent copy for serialization.
func (result *RunResult) Snapshot() RunReport {
	result.mu.Lock()
	defer result.mu.Unlock()

	report := RunReport{
		TargetURL:  result.Target.URL,
		StartedAt:  result.StartedAt,
		FinishedAt: result.FinishedAt,
		Errors:     append([]HotelFailure(nil), result.Errors...),
	}
	for _, hotel := range result.Hotels {
		entry := HotelReport{HotelRecord: hotel}
		for _, review := range result.Reviews {
			if review.HotelID == hotel.ID {
				entry.Reviews = append(entry.Reviews, review)
			}
		}
		report.Hotels = append(report.Hotels, entry)
	}
	return report
}

// RunReport is the serialized form of a RunResult: hotels with their
// reviews nested, plus the error section.
type RunReport struct {
	TargetURL  string         `json:"target_url"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Hotels     []HotelReport  `json:"hotels"`
	Errors     []HotelFailure `json:"errors"`
}

type HotelReport struct {
	HotelRecord
	Reviews []ReviewRecord `json:"reviews"`
}
