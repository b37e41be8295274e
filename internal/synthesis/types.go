package synthesis

import "strings"

// Request describes a single text-to-video synthesis call.
// It is owned by the caller and must not be mutated once passed in.
type Request struct {
	Text      string
	Voice     Voice
	Presenter Presenter
	Format    Format
}

// Voice selects the speech engine and voice used by the provider.
type Voice struct {
	// Provider is the speech backend name as understood by the provider, e.g. "microsoft".
	Provider string
	ID       string
}

// Presenter selects the visual side of the clip.
type Presenter struct {
	ID              string
	SourceURL       string
	BackgroundColor string
}

// Format carries output hints. Adapters ignore the ones their provider does not support.
// Nil flags take the adapter default.
type Format struct {
	ResultFormat string
	Stitch       *bool
	Fluent       *bool
	Subtitles    *bool
}

// Bool returns a pointer to v, for Format flags.
func Bool(v bool) *bool {
	return &v
}

// Validate reports InvalidInput when the request cannot be submitted.
func (r *Request) Validate() error {
	if r == nil || strings.TrimSpace(r.Text) == "" {
		return &Error{Kind: KindInvalidInput, Op: OpValidate, Detail: "text is required"}
	}
	return nil
}

// Handle is the opaque job identifier returned by a provider.
type Handle string

func (h Handle) String() string {
	return string(h)
}

// State is the coarse state of a provider job.
type State int

const (
	StatePending State = iota
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal returns true if no further transition is possible from s.
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}

// Status is the result of a single poll.
type Status struct {
	State State
	// ArtifactURL is set for StateDone.
	ArtifactURL string
	// Detail is the provider error description for StateFailed.
	Detail string
	// Raw is the literal status value reported by the provider.
	Raw string
}

// Result is the successful outcome of Synthesize.
type Result struct {
	ArtifactURL string
	Handle      Handle
	Attempts    int
	Provider    string
}
