package agoda

import (
	"fmt"
	"os"
	"time"
)

const (
	BaseURL          = "https://www.agoda.com"
	DefaultSearchURL = BaseURL + "/city/da-nang-vn.html"

	UserAgentDefault = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

	DefaultTimeout     = 30 * time.Second
	DefaultSettleDelay = 2 * time.Second

	DefaultMaxHotels       = 3
	DefaultReviewsPerHotel = 20
	DefaultMaxReviewPages  = 50

	// DefaultMinInterval is the minimum pause between any two network-facing
	// steps. Applies on success paths too.
	DefaultMinInterval = 3 * time.Second
)

// EnvUsername and friends name the environment variables carrying
// authentication material. Absence of a required variable is a startup
// failure.
const (
	EnvUsername   = "AGODA_USERNAME"
	EnvPassword   = "AGODA_PASSWORD"
	EnvAgentQLKey = "AGENTQL_API_KEY"
)

// TargetKind selects between a single hotel run and a search run.
type TargetKind int

const (
	TargetSearch TargetKind = iota
	TargetSingleHotel
)

// Target is the user-specified scope of one run. Immutable once the run
// starts.
type Target struct {
	Kind TargetKind
	URL  string // search URL or hotel detail URL
}

func SearchTarget(url string) Target {
	if url == "" {
		url = DefaultSearchURL
	}
	return Target{Kind: TargetSearch, URL: url}
}

func SingleHotelTarget(url string) Target {
	return Target{Kind: TargetSingleHotel, URL: url}
}

// Credentials references the secrets a run needs. Loaded once at startup.
type Credentials struct {
	Username   string
	Password   string
	AgentQLKey string
}

// CredentialsFromEnv reads the required variables and fails fast when one
// is missing.
func CredentialsFromEnv() (Credentials, error) {
	var creds Credentials
	for _, v := range []struct {
		name string
		dst  *string
	}{
		{EnvUsername, &creds.Username},
		{EnvPassword, &creds.Password},
		{EnvAgentQLKey, &creds.AgentQLKey},
	} {
		value := os.Getenv(v.name)
		if value == "" {
			return Credentials{}, &ConfigError{Field: v.name, Message: "environment variable not set"}
		}
		*v.dst = value
	}
	return creds, nil
}

// RunConfig is the resolved configuration for a single invocation.
// Read-only after construction.
type RunConfig struct {
	MaxHotels       int
	ReviewsPerHotel int
	MaxReviewPages  int // step budget per hotel, independent of the site's pagination signal
	Workers         int // concurrent hotel traversals; 1 = fully sequential
	Headless        bool

	// AllowUnauthenticated keeps the run going with a degraded session when
	// login hits a challenge the scraper cannot solve.
	AllowUnauthenticated bool

	Timeout     time.Duration
	MinInterval time.Duration
	OutputDir   string

	Credentials Credentials
}

func DefaultRunConfig() RunConfig {
	return RunConfig{
		MaxHotels:       DefaultMaxHotels,
		ReviewsPerHotel: DefaultReviewsPerHotel,
		MaxReviewPages:  DefaultMaxReviewPages,
		Workers:         1,
		Headless:        true,
		Timeout:         DefaultTimeout,
		MinInterval:     DefaultMinInterval,
		OutputDir:       "output",
	}
}

// Validate reports the first startup-time problem found.
func (cfg RunConfig) Validate() error {
	if cfg.MaxHotels < 1 {
		return &ConfigError{Field: "max-hotels", Message: fmt.Sprintf("must be at least 1, got %d", cfg.MaxHotels)}
	}
	if cfg.ReviewsPerHotel < 0 {
		return &ConfigError{Field: "reviews", Message: fmt.Sprintf("must not be negative, got %d", cfg.ReviewsPerHotel)}
	}
	if cfg.MaxReviewPages < 1 {
		return &ConfigError{Field: "max-review-pages", Message: fmt.Sprintf("must be at least 1, got %d", cfg.MaxReviewPages)}
	}
	if cfg.Workers < 1 {
		return &ConfigError{Field: "workers", Message: fmt.Sprintf("must be at least 1, got %d", cfg.Workers)}
	}
	if cfg.Timeout <= 0 {
		return &ConfigError{Field: "timeout", Message: "must be positive"}
	}
	return nil
}
