package linguist

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/trace"

	"github.com/stackvity/stack-linguist/pkg/linguist/cache"
	"github.com/stackvity/stack-linguist/pkg/linguist/classifier"
	"github.com/stackvity/stack-linguist/pkg/linguist/encoding"
	"github.com/stackvity/stack-linguist/pkg/linguist/metrics"
	"github.com/stackvity/stack-linguist/pkg/linguist/samples"
	"github.com/stackvity/stack-linguist/pkg/linguist/tables"
)

// Hooks receives progress callbacks. Implementations must be safe for
// concurrent use: file callbacks arrive from the walker and every worker.
type Hooks interface {
	OnFileDiscovered(path string) error
	OnFileStatusUpdate(path string, status Status, message string, duration time.Duration) error
	OnRunComplete(results *Results, duration time.Duration) error
}

// NoOpHooks ignores every callback.
type NoOpHooks struct{}

func (NoOpHooks) OnFileDiscovered(string) error { return nil }

func (NoOpHooks) OnFileStatusUpdate(string, Status, string, time.Duration) error { return nil }

func (NoOpHooks) OnRunComplete(*Results, time.Duration) error { return nil }

// Options configures one run. The zero value is not useful; start from
// DefaultOptions.
type Options struct {
	// IgnoredFiles are globs matched anywhere in a path, as if wrapped in "*...*".
	IgnoredFiles []string `mapstructure:"ignoredFiles"`
	// IgnoredLanguages are removed from the language table before classification.
	IgnoredLanguages []string `mapstructure:"ignoredLanguages"`
	// Categories, when non-empty, keeps only languages of these types.
	Categories []string `mapstructure:"categories" validate:"dive,oneof=data markup programming prose"`

	ChildLanguages  bool `mapstructure:"childLanguages"`
	KeepVendored    bool `mapstructure:"keepVendored"`
	KeepBinary      bool `mapstructure:"keepBinary"`
	CheckAttributes bool `mapstructure:"checkAttributes"`
	CheckIgnored    bool `mapstructure:"checkIgnored"`
	CheckHeuristics bool `mapstructure:"checkHeuristics"`
	CheckShebang    bool `mapstructure:"checkShebang"`
	// Quick turns off every Check* option.
	Quick bool `mapstructure:"quick"`

	Concurrency     int             `mapstructure:"concurrency" validate:"gte=0"`
	Fallback        classifier.Kind `mapstructure:"fallback" validate:"omitempty,oneof=samples enry none"`
	MaxFileBytes    int64           `mapstructure:"maxFileBytes" validate:"gte=0"`
	DefaultEncoding string          `mapstructure:"defaultEncoding"`

	// CacheFilePath is where Cache is loaded from and persisted to. Empty
	// disables persistence even when Cache is set.
	CacheFilePath string `mapstructure:"-"`
	// AppVersion is recorded in the configuration hash of cached entries.
	AppVersion string `mapstructure:"-"`

	Tables   *tables.Set         `mapstructure:"-"`
	Samples  samples.Provider    `mapstructure:"-"`
	Strategy classifier.Strategy `mapstructure:"-"` // overrides Fallback when set
	Cache    cache.Manager       `mapstructure:"-"`
	Metrics  *metrics.Collector  `mapstructure:"-"`
	Tracer   trace.Tracer        `mapstructure:"-"`
	Reader   encoding.Handler    `mapstructure:"-"`
	Logger   slog.Handler        `mapstructure:"-"`

	EventHooks            Hooks         `mapstructure:"-"`
	DispatchWarnThreshold time.Duration `mapstructure:"-"`
}

// DefaultOptions returns the documented defaults with no injected dependencies.
func DefaultOptions() Options {
	return Options{
		ChildLanguages:        DefaultChildLanguages,
		KeepVendored:          DefaultKeepVendored,
		KeepBinary:            DefaultKeepBinary,
		CheckAttributes:       DefaultCheckAttributes,
		CheckIgnored:          DefaultCheckIgnored,
		CheckHeuristics:       DefaultCheckHeuristics,
		CheckShebang:          DefaultCheckShebang,
		Quick:                 DefaultQuick,
		Concurrency:           DefaultConcurrency,
		Fallback:              DefaultFallback,
		MaxFileBytes:          DefaultMaxFileBytes,
		DispatchWarnThreshold: DefaultDispatchWarnThreshold,
	}
}

var optionsValidate = validator.New()

// Validate checks field constraints. Errors wrap ErrConfigValidation.
func (o Options) Validate() error {
	if err := optionsValidate.Struct(o); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s fails %q (value %v)", ErrConfigValidation, fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("%w: %v", ErrConfigValidation, err)
	}
	return nil
}

// effective applies Quick and fills unset knobs.
func (o Options) effective() Options {
	if o.Quick {
		o.CheckAttributes = false
		o.CheckIgnored = false
		o.CheckHeuristics = false
		o.CheckShebang = false
	}
	if o.Fallback == "" {
		o.Fallback = DefaultFallback
	}
	if o.MaxFileBytes <= 0 {
		o.MaxFileBytes = DefaultMaxFileBytes
	}
	if o.DispatchWarnThreshold <= 0 {
		o.DispatchWarnThreshold = DefaultDispatchWarnThreshold
	}
	if o.EventHooks == nil {
		o.EventHooks = NoOpHooks{}
	}
	return o
}
