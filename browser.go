package agoda

import (
	"context"
	"path/filepath"

	"github.com/chromedp/chromedp"
)

// BrowserOptions configures the shared Chrome process for a run.
type BrowserOptions struct {
	Headless    bool
	UserAgent   string
	UserDataDir string // profile directory; persists login state between runs
}

// Browser owns the exec allocator. Each traversal worker derives its own
// tab context from it, so hotels can be visited concurrently without
// sharing page state.
type Browser struct {
	allocCtx context.Context
	cancel   context.CancelFunc
	log      Logger
}

func NewBrowser(options BrowserOptions, log Logger) (*Browser, error) {
	if log == nil {
		log = NopLogger{}
	}
	userDataDir := options.UserDataDir
	if userDataDir == "" {
		userDataDir = "./chromeUserData"
	}
	userDataDir, err := filepath.Abs(userDataDir)
	if err != nil {
		return nil, err
	}

	userAgent := options.UserAgent
	if userAgent == "" {
		userAgent = UserAgentDefault
	}

	allocOptions := append([]chromedp.ExecAllocatorOption{},
		chromedp.DefaultExecAllocatorOptions[:]...)
	allocOptions = append(allocOptions,
		chromedp.UserDataDir(userDataDir),
		chromedp.UserAgent(userAgent),
		chromedp.WindowSize(1920, 1080),
	)
	if options.Headless {
		allocOptions = append(allocOptions,
			chromedp.Headless,
			chromedp.DisableGPU,
		)
	} else {
		allocOptions = append(allocOptions,
			chromedp.Flag("headless", false),
		)
	}

	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), allocOptions...)

	return &Browser{
		allocCtx: allocCtx,
		cancel:   cancel,
		log:      log,
	}, nil
}

// NewTab opens an independent browser tab and returns its context. The
// caller owns the cancel func.
func (b *Browser) NewTab() (context.Context, context.CancelFunc) {
	return chromedp.NewContext(b.allocCtx, chromedp.WithLogf(b.log.Printf))
}

func (b *Browser) Close() {
	b.cancel()
}
