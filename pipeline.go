package agoda

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"golang.org/x/sync/errgroup"
)

// RunState tracks the orchestrator through one run:
// Init -> Authenticating -> Traversing -> Finalizing -> Done, with Aborted
// reachable from any state on an unrecoverable error.
type RunState int

const (
	StateInit RunState = iota
	StateAuthenticating
	StateTraversing
	StateFinalizing
	StateDone
	StateAborted
)

func (s RunState) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateAuthenticating:
		return "authenticating"
	case StateTraversing:
		return "traversing"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	}
	return "unknown"
}

// SessionEstablisher is the session manager as the pipeline sees it.
type SessionEstablisher interface {
	Establish(ctx context.Context, creds Credentials) (*SessionHandle, error)
}

// Worker is one independent traversal unit: a navigator bound to its own
// browser context plus an extractor. Browser state is never shared between
// workers; only the RunResult accumulation point is.
type Worker struct {
	Nav   Navigator
	Ex    Extractor
	Close func()
}

// WorkerFactory creates workers on demand, one per concurrent hotel
// traversal.
type WorkerFactory interface {
	NewWorker(ctx context.Context) (*Worker, error)
}

// WorkerFactoryFunc adapts a function to the WorkerFactory interface.
type WorkerFactoryFunc func(ctx context.Context) (*Worker, error)

func (fn WorkerFactoryFunc) NewWorker(ctx context.Context) (*Worker, error) {
	return fn(ctx)
}

// Pipeline composes session, navigation, extraction, pacing and output
// into an end-to-end run.
type Pipeline struct {
	cfg        RunConfig
	target     Target
	session    SessionEstablisher
	factory    WorkerFactory
	controller *Controller
	sink       Sink
	log        Logger

	mu    sync.Mutex
	state RunState
}

func NewPipeline(cfg RunConfig, target Target, session SessionEstablisher, factory WorkerFactory, controller *Controller, sink Sink, log Logger) *Pipeline {
	if log == nil {
		log = NopLogger{}
	}
	return &Pipeline{
		cfg:        cfg,
		target:     target,
		session:    session,
		factory:    factory,
		controller: controller,
		sink:       sink,
		log:        log,
		state:      StateInit,
	}
}

// State reports the current run state.
func (p *Pipeline) State() RunState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Pipeline) setState(state RunState) {
	p.mu.Lock()
	p.state = state
	p.mu.Unlock()
	p.log.Printf("pipeline state: %v", state)
}

// Run executes the whole pipeline. The returned RunResult is always
// non-nil; it carries whatever was scraped before an error, and the error
// section lists every hotel that failed. A non-nil error means the run was
// aborted as a whole.
func (p *Pipeline) Run(ctx context.Context) (*RunResult, error) {
	result := NewRunResult(p.target, p.log)

	if err := p.authenticate(ctx, result); err != nil {
		p.setState(StateAborted)
		result.Finalize()
		return result, err
	}

	p.setState(StateTraversing)
	summaries, err := p.collectTargets(ctx, result)
	if err != nil {
		p.setState(StateAborted)
		result.Finalize()
		p.flush(result)
		return result, err
	}

	traverseErr := p.traverse(ctx, summaries, result)

	p.setState(StateFinalizing)
	result.Finalize()
	p.flush(result)

	if traverseErr != nil {
		p.setState(StateAborted)
		return result, traverseErr
	}
	p.setState(StateDone)
	return result, nil
}

func (p *Pipeline) authenticate(ctx context.Context, result *RunResult) error {
	p.setState(StateAuthenticating)

	var handle *SessionHandle
	err := p.controller.Do(ctx, "establish session", func(ctx context.Context) error {
		var establishErr error
		handle, establishErr = p.session.Establish(ctx, p.cfg.Credentials)
		return establishErr
	})
	if err == nil {
		if handle != nil && handle.Authenticated {
			p.log.Printf("session established (authenticated)")
		}
		return nil
	}

	var authErr *AuthError
	if errors.As(err, &authErr) && authErr.Reason == AuthChallenge && p.cfg.AllowUnauthenticated {
		p.log.Printf("session degraded by challenge, continuing unauthenticated: %v", err)
		return nil
	}

	result.AddFailure(HotelFailure{Reason: err.Error()})
	return err
}

// collectTargets resolves the run target into the list of hotels to visit,
// capped at MaxHotels.
func (p *Pipeline) collectTargets(ctx context.Context, result *RunResult) ([]HotelSummary, error) {
	if p.target.Kind == TargetSingleHotel {
		return []HotelSummary{{Link: p.target.URL}}, nil
	}

	worker, err := p.factory.NewWorker(ctx)
	if err != nil {
		result.AddFailure(HotelFailure{Reason: fmt.Sprintf("listing worker: %v", err)})
		return nil, err
	}
	defer worker.Close()

	var listing *PageState
	err = p.controller.Do(ctx, "open listing", func(ctx context.Context) error {
		var navErr error
		listing, navErr = worker.Nav.Goto(ctx, p.target)
		return navErr
	})
	if err != nil {
		result.AddFailure(HotelFailure{URL: p.target.URL, Reason: fmt.Sprintf("open listing: %v", err)})
		return nil, err
	}

	var summaries []HotelSummary
	err = p.controller.Do(ctx, "extract hotel list", func(ctx context.Context) error {
		var exErr error
		summaries, exErr = worker.Ex.HotelList(ctx, listing)
		return exErr
	})
	if err != nil {
		result.AddFailure(HotelFailure{URL: p.target.URL, Reason: fmt.Sprintf("extract hotel list: %v", err)})
		return nil, err
	}

	p.log.Printf("found %d hotels", len(summaries))
	if len(summaries) > p.cfg.MaxHotels {
		summaries = summaries[:p.cfg.MaxHotels]
	}
	return summaries, nil
}

// traverse visits every hotel, isolating per-hotel failures. Only failures
// that invalidate the whole session abort the run; cancellation stops
// between hotel iterations.
func (p *Pipeline) traverse(ctx context.Context, summaries []HotelSummary, result *RunResult) error {
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(p.cfg.Workers)

	for i, summary := range summaries {
		if groupCtx.Err() != nil {
			break
		}
		i, summary := i, summary
		group.Go(func() error {
			if groupCtx.Err() != nil {
				return nil
			}
			// workers run concurrently; each buffers its own output so a
			// hotel's log lines land as one block
			buflog := &BufferedLogger{}
			defer buflog.Flush(p.log)
			buflog.Printf("processing hotel %d/%d: %v", i+1, len(summaries), summary.Link)

			worker, err := p.factory.NewWorker(groupCtx)
			if err != nil {
				result.AddFailure(HotelFailure{URL: summary.Link, Reason: fmt.Sprintf("worker: %v", err)})
				return nil
			}
			defer worker.Close()

			err = p.scrapeHotel(groupCtx, worker, summary, result, buflog)
			if err == nil {
				p.flush(result)
				return nil
			}

			var authErr *AuthError
			if errors.As(err, &authErr) {
				// session lost mid-run; no per-hotel recovery from that
				result.AddFailure(HotelFailure{URL: summary.Link, Reason: err.Error()})
				return err
			}
			result.AddFailure(HotelFailure{
				HotelID: hotelIDFromLink(summary.Link),
				URL:     summary.Link,
				Reason:  err.Error(),
			})
			return nil
		})
	}
	return group.Wait()
}

// scrapeHotel runs the detail -> reviews traversal for one hotel and
// stores the records. log is the worker's own buffered logger.
func (p *Pipeline) scrapeHotel(ctx context.Context, worker *Worker, summary HotelSummary, result *RunResult, log Logger) error {
	var detail *PageState
	err := p.controller.Do(ctx, "open hotel", func(ctx context.Context) error {
		var navErr error
		detail, navErr = worker.Nav.OpenHotel(ctx, summary.Link)
		return navErr
	})
	if err != nil {
		return err
	}

	var hotel HotelRecord
	err = p.controller.Do(ctx, "extract hotel detail", func(ctx context.Context) error {
		var exErr error
		hotel, exErr = worker.Ex.HotelDetail(ctx, detail)
		return exErr
	})
	if err != nil {
		return err
	}

	var reviews []ReviewRecord
	if p.cfg.ReviewsPerHotel > 0 {
		reviews, err = p.collectReviews(ctx, worker, detail, &hotel, log)
		if err != nil {
			return err
		}
	}

	result.AddHotel(hotel)
	result.AddReviews(reviews)
	log.Printf("hotel %v: %d reviews", hotel.ID, len(reviews))
	return nil
}

// collectReviews pages through the review section until the per-hotel
// review limit, the page budget, or the end of pagination.
func (p *Pipeline) collectReviews(ctx context.Context, worker *Worker, detail *PageState, hotel *HotelRecord, log Logger) ([]ReviewRecord, error) {
	var page *PageState
	err := p.controller.Do(ctx, "open reviews", func(ctx context.Context) error {
		var navErr error
		page, navErr = worker.Nav.OpenReviews(ctx, detail)
		return navErr
	})
	if err != nil {
		return nil, err
	}

	// overall stats are nice to have; a failure here is logged, not fatal
	statsErr := p.controller.Do(ctx, "extract review stats", func(ctx context.Context) error {
		stats, exErr := worker.Ex.ReviewStats(ctx, page)
		if exErr != nil {
			return exErr
		}
		hotel.Stats = stats
		return nil
	})
	if statsErr != nil {
		log.Printf("review stats for %v unavailable: %v", hotel.ID, statsErr)
	}

	var collected []ReviewRecord
	for {
		var batch []ReviewRecord
		err := p.controller.Do(ctx, fmt.Sprintf("extract reviews page %d", page.Num), func(ctx context.Context) error {
			var exErr error
			batch, exErr = worker.Ex.Reviews(ctx, page)
			return exErr
		})
		if err != nil {
			return collected, err
		}
		if len(batch) == 0 {
			// no new records is an end marker in its own right
			log.Printf("no reviews on page %d, stopping", page.Num)
			break
		}

		collected = append(collected, batch...)
		if len(collected) >= p.cfg.ReviewsPerHotel {
			collected = collected[:p.cfg.ReviewsPerHotel]
			break
		}

		var next *PageState
		err = p.controller.Do(ctx, fmt.Sprintf("next review page after %d", page.Num), func(ctx context.Context) error {
			var navErr error
			next, navErr = worker.Nav.NextPage(ctx, page)
			if errors.Is(navErr, EndOfPagination) {
				return nil
			}
			return navErr
		})
		if err != nil {
			return collected, err
		}
		if next == nil || next.Kind == PageEnd {
			break
		}
		page = next
	}
	return collected, nil
}

func (p *Pipeline) flush(result *RunResult) {
	if p.sink == nil {
		return
	}
	if err := p.sink.Write(result.Snapshot()); err != nil {
		p.log.Printf("writing result failed: %v", err)
	}
}

func hotelIDFromLink(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return HotelIDFromURL(u)
}
