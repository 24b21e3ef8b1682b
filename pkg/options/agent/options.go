// Package agent provides options for the conversational agent.
package agent

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/cyplan/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options configures the agent graph, retrieval context and plan summaries.
type Options struct {
	// MaxRounds caps tool rounds per run.
	MaxRounds int `json:"max-rounds" mapstructure:"max-rounds"`
	// ModelTimeout bounds a single model call.
	ModelTimeout time.Duration `json:"model-timeout" mapstructure:"model-timeout"`
	// ContextChars truncates retrieval context injected into the system prompt.
	ContextChars int `json:"context-chars" mapstructure:"context-chars"`
	// SessionContextChars truncates retrieval context for session replies.
	SessionContextChars int `json:"session-context-chars" mapstructure:"session-context-chars"`
	// HistoryWindow is the number of recent session messages sent to the model.
	HistoryWindow int `json:"history-window" mapstructure:"history-window"`
	// Temperature is the sampling temperature of agent replies.
	Temperature float64 `json:"temperature" mapstructure:"temperature"`
	// UseVectorSearch enables document retrieval in agent context.
	UseVectorSearch bool `json:"use-vector-search" mapstructure:"use-vector-search"`
	// StreamTokens streams reply text to thread clients as it is generated.
	StreamTokens bool `json:"stream-tokens" mapstructure:"stream-tokens"`
	// SummaryTemperature is the sampling temperature of plan summaries.
	SummaryTemperature float64 `json:"summary-temperature" mapstructure:"summary-temperature"`
	// SummaryMaxTokens bounds plan summary length.
	SummaryMaxTokens int `json:"summary-max-tokens" mapstructure:"summary-max-tokens"`
}

// NewOptions creates Options with defaults.
func NewOptions() *Options {
	return &Options{
		MaxRounds:           6,
		ModelTimeout:        90 * time.Second,
		ContextChars:        1500,
		SessionContextChars: 2000,
		HistoryWindow:       10,
		Temperature:         0.4,
		UseVectorSearch:     true,
		StreamTokens:        true,
		SummaryTemperature:  0.7,
		SummaryMaxTokens:    3000,
	}
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "agent."
	fs.IntVar(&o.MaxRounds, p+"max-rounds", o.MaxRounds, "Maximum tool rounds per agent run.")
	fs.DurationVar(&o.ModelTimeout, p+"model-timeout", o.ModelTimeout, "Timeout of a single model call.")
	fs.IntVar(&o.ContextChars, p+"context-chars", o.ContextChars, "Characters of retrieval context injected into the system prompt.")
	fs.IntVar(&o.SessionContextChars, p+"session-context-chars", o.SessionContextChars, "Characters of retrieval context used by session replies.")
	fs.IntVar(&o.HistoryWindow, p+"history-window", o.HistoryWindow, "Recent session messages sent to the model.")
	fs.Float64Var(&o.Temperature, p+"temperature", o.Temperature, "Sampling temperature for agent replies.")
	fs.BoolVar(&o.UseVectorSearch, p+"use-vector-search", o.UseVectorSearch, "Include library documents in agent context.")
	fs.BoolVar(&o.StreamTokens, p+"stream-tokens", o.StreamTokens, "Stream reply tokens to thread clients.")
	fs.Float64Var(&o.SummaryTemperature, p+"summary-temperature", o.SummaryTemperature, "Sampling temperature for plan summaries.")
	fs.IntVar(&o.SummaryMaxTokens, p+"summary-max-tokens", o.SummaryMaxTokens, "Maximum tokens of a plan summary.")
}

// Complete completes the options.
func (o *Options) Complete() error {
	return nil
}

// Validate validates the options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.MaxRounds <= 0 {
		errs = append(errs, fmt.Errorf("agent: max-rounds must be positive"))
	}
	if o.ModelTimeout <= 0 {
		errs = append(errs, fmt.Errorf("agent: model-timeout must be positive"))
	}
	if o.ContextChars <= 0 || o.SessionContextChars <= 0 {
		errs = append(errs, fmt.Errorf("agent: context sizes must be positive"))
	}
	if o.HistoryWindow <= 0 {
		errs = append(errs, fmt.Errorf("agent: history-window must be positive"))
	}
	if o.SummaryMaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("agent: summary-max-tokens must be positive"))
	}
	return errs
}
