package agoda

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"
)

func docFromHTML(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(bytes.NewBufferString(html))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

type cardSchema struct {
	Name  string `find:"h3.name"`
	Link  string `find:"a.card" attr:"href"`
	Score string `find:"span.score" optional:"true"`
}

func TestUnmarshalPageTags(t *testing.T) {
	html := `<div class="item">
	  <a class="card" href="/hotel/grand-plaza.html"><h3 class="name"> Grand Plaza </h3></a>
	  <span class="score">8.4 Excellent</span>
	</div>`

	var card cardSchema
	err := UnmarshalPage(&card, docFromHTML(t, html).Find("div.item"), QueryOption{})
	if err != nil {
		t.Fatal(err)
	}

	want := cardSchema{
		Name:  "Grand Plaza",
		Link:  "/hotel/grand-plaza.html",
		Score: "8.4 Excellent",
	}
	if card != want {
		t.Errorf("%#v != %#v", card, want)
	}
}

func TestUnmarshalPageOptionalAndPointers(t *testing.T) {
	type schema struct {
		Name   string   `find:"h3"`
		Score  *float64 `find:"span.score"`
		Badge  string   `find:"span.badge" optional:"true"`
		Rating *float64 `find:"span.rating"`
	}
	html := `<div><h3>Grand Plaza</h3><span class="score">8.4 Excellent</span></div>`

	var got schema
	if err := UnmarshalPage(&got, docFromHTML(t, html).Find("div"), QueryOption{}); err != nil {
		t.Fatal(err)
	}

	if got.Name != "Grand Plaza" {
		t.Errorf("Name = %q", got.Name)
	}
	if got.Score == nil || *got.Score != 8.4 {
		t.Errorf("Score = %v, want 8.4", got.Score)
	}
	if got.Badge != "" {
		t.Errorf("Badge = %q, want empty", got.Badge)
	}
	if got.Rating != nil {
		t.Errorf("Rating = %v, want nil", got.Rating)
	}
}

func TestUnmarshalPageMissingRequired(t *testing.T) {
	type schema struct {
		Name string `find:"h3.absent"`
	}
	var got schema
	err := UnmarshalPage(&got, docFromHTML(t, `<div><p>text</p></div>`).Find("div"), QueryOption{})
	if err == nil {
		t.Fatal("expected error for missing required field")
	}

	var fieldErr FieldError
	if !errors.As(err, &fieldErr) {
		t.Fatalf("error %T is not a FieldError", err)
	}
	var missing MissingFieldError
	if !errors.As(err, &missing) {
		t.Fatalf("error %v does not wrap MissingFieldError", err)
	}
	if missing.Selector != "h3.absent" {
		t.Errorf("Selector = %q, want %q", missing.Selector, "h3.absent")
	}
	if !strings.Contains(err.Error(), "Name") {
		t.Errorf("error %q does not name the field", err)
	}
}

func TestUnmarshalPageSlice(t *testing.T) {
	type schema struct {
		Items []struct {
			Name  string `find:"h3"`
			Count int    `find:"span"`
		} `find:"li"`
	}
	html := `<ul>
	  <li><h3>one</h3><span>1,234</span></li>
	  <li><h3>two</h3><span>42</span></li>
	</ul>`

	var got schema
	if err := UnmarshalPage(&got, docFromHTML(t, html).Find("ul"), QueryOption{}); err != nil {
		t.Fatal(err)
	}
	if len(got.Items) != 2 {
		t.Fatalf("got %d items, want 2", len(got.Items))
	}
	if got.Items[0].Count != 1234 || got.Items[1].Count != 42 {
		t.Errorf("counts = %d, %d", got.Items[0].Count, got.Items[1].Count)
	}
}

func TestUnmarshalPageFirstMatchWins(t *testing.T) {
	type schema struct {
		Name string `find:"h3"`
	}
	html := `<div><h3>first</h3><h3>second</h3></div>`

	var got schema
	if err := UnmarshalPage(&got, docFromHTML(t, html).Find("div"), QueryOption{}); err != nil {
		t.Fatal(err)
	}
	if got.Name != "first" {
		t.Errorf("Name = %q, want %q", got.Name, "first")
	}
}

func TestUnmarshalPageRegexp(t *testing.T) {
	type schema struct {
		Count int    `find:"span" re:"([0-9,]+) reviews"`
		Date  string `find:"p" re:"Reviewed (.*)"`
	}
	html := `<div><span>1,234 reviews</span><p>Reviewed March 12, 2025</p></div>`

	var got schema
	if err := UnmarshalPage(&got, docFromHTML(t, html).Find("div"), QueryOption{}); err != nil {
		t.Fatal(err)
	}
	if got.Count != 1234 {
		t.Errorf("Count = %d", got.Count)
	}
	if got.Date != "March 12, 2025" {
		t.Errorf("Date = %q", got.Date)
	}
}

func TestUnmarshalPageTime(t *testing.T) {
	type schema struct {
		Posted time.Time `find:"span" time:"2006-01-02"`
	}
	html := `<div><span>2025-03-12</span></div>`

	var got schema
	if err := UnmarshalPage(&got, docFromHTML(t, html).Find("div"), QueryOption{}); err != nil {
		t.Fatal(err)
	}
	want := time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)
	if !got.Posted.Equal(want) {
		t.Errorf("Posted = %v, want %v", got.Posted, want)
	}
}

func TestUnmarshalPageNotPointer(t *testing.T) {
	var got cardSchema
	err := UnmarshalPage(got, docFromHTML(t, `<div></div>`).Find("div"), QueryOption{})
	if _, ok := err.(MustBePointerError); !ok {
		t.Errorf("got %v, want MustBePointerError", err)
	}
}

func TestExtractNumber(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"8.4 Excellent", 8.4},
		{"1,234 reviews", 1234},
		{"42", 42},
		{" 9.1", 9.1},
	}
	for _, c := range cases {
		got, err := ExtractNumber(c.in)
		if err != nil {
			t.Errorf("ExtractNumber(%q): %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ExtractNumber(%q) = %v, want %v", c.in, got, c.want)
		}
	}

	if _, err := ExtractNumber("no number here"); err == nil {
		t.Error("expected error for non-numeric text")
	}
}

func TestFieldErrorPath(t *testing.T) {
	err := FieldError{"Outer", FieldError{"Inner", MissingFieldError{Selector: "h3"}}}
	if diff := cmp.Diff(`Outer.Inner: no match for required selector "h3"`, err.Error()); diff != "" {
		t.Error(diff)
	}
}
