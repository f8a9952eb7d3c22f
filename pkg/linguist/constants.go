package linguist

import (
	"time"

	"github.com/stackvity/stack-linguist/pkg/linguist/classifier"
	"github.com/stackvity/stack-linguist/pkg/linguist/encoding"
)

// Defaults applied by DefaultOptions and by the CLI configuration layer.
const (
	// DefaultConcurrency of 0 means runtime.NumCPU().
	DefaultConcurrency     = 0
	DefaultChildLanguages  = false
	DefaultKeepVendored    = false
	DefaultKeepBinary      = false
	DefaultCheckAttributes = true
	DefaultCheckIgnored    = true
	DefaultCheckHeuristics = true
	DefaultCheckShebang    = true
	DefaultQuick           = false
	DefaultFallback        = classifier.KindSamples
	DefaultMaxFileBytes    = encoding.DefaultMaxBytes

	// DefaultDispatchWarnThreshold is how long the walker waits on a full
	// worker queue before logging a warning.
	DefaultDispatchWarnThreshold = time.Second
)

// TracerName is the instrumentation scope used for spans.
const TracerName = "github.com/stackvity/stack-linguist/pkg/linguist"
