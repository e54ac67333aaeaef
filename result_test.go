package agoda

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRunResultDiscardsOrphanReviews(t *testing.T) {
	result := NewRunResult(SearchTarget(""), nil)
	result.AddHotel(HotelRecord{ID: "grand-plaza", Name: "Grand Plaza"})

	result.AddReviews([]ReviewRecord{
		{HotelID: "grand-plaza", ReviewerName: "Alex", Text: "Great"},
		{HotelID: "no-such-hotel", ReviewerName: "Ghost", Text: "From nowhere"},
		{HotelID: "grand-plaza", ReviewerName: "Kim", Text: "Fine"},
	})

	if len(result.Reviews) != 2 {
		t.Fatalf("kept %d reviews, want 2", len(result.Reviews))
	}
	for _, review := range result.Reviews {
		if review.HotelID != "grand-plaza" {
			t.Errorf("review by %q references unknown hotel %q", review.ReviewerName, review.HotelID)
		}
	}
}

func TestRunResultReviewsFor(t *testing.T) {
	result := NewRunResult(SearchTarget(""), nil)
	result.AddHotel(HotelRecord{ID: "a"})
	result.AddHotel(HotelRecord{ID: "b"})
	result.AddReviews([]ReviewRecord{
		{HotelID: "a", ReviewerName: "first", Text: "t"},
		{HotelID: "b", ReviewerName: "other", Text: "t"},
		{HotelID: "a", ReviewerName: "second", Text: "t"},
	})

	got := result.ReviewsFor("a")
	if len(got) != 2 || got[0].ReviewerName != "first" || got[1].ReviewerName != "second" {
		t.Errorf("ReviewsFor(a) = %v", got)
	}
}

func TestRunResultSnapshotNesting(t *testing.T) {
	result := NewRunResult(SingleHotelTarget("https://www.agoda.com/grand-plaza.html"), nil)
	result.AddHotel(HotelRecord{ID: "grand-plaza", Name: "Grand Plaza"})
	result.AddReviews([]ReviewRecord{{HotelID: "grand-plaza", ReviewerName: "Alex", Text: "Great"}})
	result.AddFailure(HotelFailure{HotelID: "broken", URL: "https://www.agoda.com/broken.html", Reason: "timeout"})
	result.Finalize()

	report := result.Snapshot()
	if report.TargetURL != "https://www.agoda.com/grand-plaza.html" {
		t.Errorf("TargetURL = %q", report.TargetURL)
	}
	if len(report.Hotels) != 1 {
		t.Fatalf("Hotels = %d, want 1", len(report.Hotels))
	}
	wantReviews := []ReviewRecord{{HotelID: "grand-plaza", ReviewerName: "Alex", Text: "Great"}}
	if diff := cmp.Diff(wantReviews, report.Hotels[0].Reviews); diff != "" {
		t.Error(diff)
	}
	if len(report.Errors) != 1 || report.Errors[0].HotelID != "broken" {
		t.Errorf("Errors = %v", report.Errors)
	}
	if report.FinishedAt.Before(report.StartedAt) {
		t.Error("FinishedAt before StartedAt")
	}
}
