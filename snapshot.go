package agoda

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Recorded runs allow the traversal and extraction logic to be replayed
// without a browser: every snapshot a ChromeNavigator captures is written
// as <n>.html plus a <n>.meta sidecar, and a ReplayNavigator walks them
// back in order.

const snapshotMetaExtension = ".meta"

// SnapshotMeta is the sidecar for one recorded page.
type SnapshotMeta struct {
	URL   string   `json:"url"`
	Title string   `json:"title,omitempty"`
	Kind  PageKind `json:"kind"`
	Num   int      `json:"num,omitempty"`
}

// Recorder saves page snapshots to a directory.
type Recorder struct {
	Dir   string
	count int
}

func NewRecorder(dir string) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o744); err != nil {
		return nil, err
	}
	return &Recorder{Dir: dir}, nil
}

func (rec *Recorder) Save(state *PageState, html []byte) error {
	rec.count++
	filename := filepath.Join(rec.Dir, fmt.Sprintf("%d.html", rec.count))
	if err := os.WriteFile(filename, html, 0o644); err != nil {
		return err
	}

	meta := SnapshotMeta{
		URL:   state.URL.String(),
		Title: state.Title,
		Kind:  state.Kind,
		Num:   state.Num,
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return os.WriteFile(filename+snapshotMetaExtension, metaBytes, 0o644)
}

// LoadSnapshots reads a recorded directory back into PageStates, in
// recording order.
func LoadSnapshots(dir string) ([]*PageState, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".html") {
			names = append(names, name)
		}
	}
	sort.Slice(names, func(i, j int) bool {
		return snapshotIndex(names[i]) < snapshotIndex(names[j])
	})

	states := make([]*PageState, 0, len(names))
	for _, name := range names {
		html, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		metaBytes, err := os.ReadFile(filepath.Join(dir, name+snapshotMetaExtension))
		if err != nil {
			return nil, fmt.Errorf("snapshot %v has no metadata: %v", name, err)
		}
		var meta SnapshotMeta
		if err := json.Unmarshal(metaBytes, &meta); err != nil {
			return nil, fmt.Errorf("snapshot %v: %v", name, err)
		}

		state, err := NewPageState(meta.Kind, meta.URL, html)
		if err != nil {
			return nil, err
		}
		state.Num = meta.Num
		states = append(states, state)
	}
	return states, nil
}

func snapshotIndex(name string) int {
	var n int
	fmt.Sscanf(name, "%d.html", &n)
	return n
}

// ReplayNavigator serves recorded snapshots instead of driving a browser.
// Each navigation step consumes the next snapshot and verifies it has the
// requested kind; end-of-pagination is decided by the same control
// detection the live navigator uses, so the state machine under test is
// the real one.
type ReplayNavigator struct {
	MaxReviewPages int

	states []*PageState
	pos    int
}

func NewReplayNavigator(states []*PageState, maxReviewPages int) *ReplayNavigator {
	if maxReviewPages < 1 {
		maxReviewPages = DefaultMaxReviewPages
	}
	return &ReplayNavigator{MaxReviewPages: maxReviewPages, states: states}
}

func (nav *ReplayNavigator) next(kind PageKind) (*PageState, error) {
	if nav.pos >= len(nav.states) {
		return nil, &TransientError{Op: "replay", Err: fmt.Errorf("no snapshot left for %v", kind)}
	}
	state := nav.states[nav.pos]
	if state.Kind != kind {
		return nil, fmt.Errorf("replay: snapshot #%d is %v, expected %v", nav.pos+1, state.Kind, kind)
	}
	nav.pos++
	return state, nil
}

func (nav *ReplayNavigator) Goto(ctx context.Context, target Target) (*PageState, error) {
	kind := PageListing
	if target.Kind == TargetSingleHotel {
		kind = PageHotelDetail
	}
	return nav.next(kind)
}

func (nav *ReplayNavigator) OpenHotel(ctx context.Context, hotelURL string) (*PageState, error) {
	return nav.next(PageHotelDetail)
}

func (nav *ReplayNavigator) OpenReviews(ctx context.Context, state *PageState) (*PageState, error) {
	if state.Kind != PageHotelDetail {
		return nil, fmt.Errorf("OpenReviews: expected hotel detail state, got %v", state.Kind)
	}
	return nav.next(PageReviews)
}

func (nav *ReplayNavigator) NextPage(ctx context.Context, state *PageState) (*PageState, error) {
	if state.Kind == PageEnd {
		return state, EndOfPagination
	}
	if state.Kind != PageReviews {
		return nil, fmt.Errorf("NextPage: expected reviews state, got %v", state.Kind)
	}
	if state.Num >= nav.MaxReviewPages {
		return endState(state), EndOfPagination
	}
	if !hasNextReviewControl(state.Doc()) {
		return endState(state), EndOfPagination
	}
	return nav.next(PageReviews)
}
