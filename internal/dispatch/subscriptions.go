package dispatch

import (
	"fmt"
	"regexp"

	"github.com/sweeney/asterisk-callhook/internal/config"
	"github.com/sweeney/asterisk-callhook/internal/handlers"
	"github.com/sweeney/asterisk-callhook/internal/rules"
)

// MaxOutgoingDigits is the largest repeat count RE2 accepts.
const MaxOutgoingDigits = 1000

// Options parameterize the built-in call-lifecycle rules.
type Options struct {
	TrunkContext      string         // context of calls arriving from the provider
	InternalContext   string         // context of calls placed by extensions
	IncomingChannel   *regexp.Regexp // provider channel names, e.g. ^SIP/Sipgate_-2615510
	MinOutgoingDigits int            // dialed numbers shorter than this are internal
}

// DefaultOptions returns the stock FreePBX contexts with no channel filter.
func DefaultOptions() Options {
	return Options{
		TrunkContext:      "from-trunk",
		InternalContext:   "from-internal",
		IncomingChannel:   regexp.MustCompile(`.*`),
		MinOutgoingDigits: 5,
	}
}

// RegisterDefaults adds the five call-lifecycle rules to table in their
// fixed evaluation order: incoming, outgoing, hangup, accepted, transfer.
func RegisterDefaults(table *rules.Table, opts Options) error {
	if opts.IncomingChannel == nil {
		return fmt.Errorf("dispatch: incoming channel pattern is required")
	}
	if opts.MinOutgoingDigits < 1 || opts.MinOutgoingDigits > MaxOutgoingDigits {
		return fmt.Errorf("dispatch: min outgoing digits must be between 1 and %d, got %d", MaxOutgoingDigits, opts.MinOutgoingDigits)
	}
	dialed, err := regexp.Compile(fmt.Sprintf(`.{%d,}`, opts.MinOutgoingDigits))
	if err != nil {
		return fmt.Errorf("dispatch: outgoing number pattern: %w", err)
	}

	defaults := []rules.Rule{
		{
			Name: "incoming-call",
			Kind: "Newstate",
			Fields: map[string]rules.Predicate{
				"ChannelStateDesc": rules.Exact("Ring"),
				"Context":          rules.Exact(opts.TrunkContext),
				"Channel":          rules.Pattern(opts.IncomingChannel),
			},
			Handler: handlers.IncomingCall,
		},
		{
			Name: "outgoing-call",
			Kind: "Newstate",
			Fields: map[string]rules.Predicate{
				"ChannelStateDesc": rules.Exact("Ring"),
				"Context":          rules.Exact(opts.InternalContext),
				"Exten":            rules.Pattern(dialed),
			},
			Handler: handlers.OutgoingCall,
		},
		{
			Name: "hangup",
			Kind: "Hangup",
			Fields: map[string]rules.Predicate{
				"Context": rules.Exact(opts.TrunkContext),
			},
			Handler: handlers.Hangup,
		},
		{
			Name: "accepted-call",
			Kind: "Newstate",
			Fields: map[string]rules.Predicate{
				"Context":          rules.Exact(opts.TrunkContext),
				"ChannelStateDesc": rules.Exact("Up"),
			},
			Handler: handlers.AcceptedCall,
		},
		{
			Name:    "transfer",
			Kind:    "AttendedTransfer",
			Handler: handlers.Transfer,
		},
	}

	for _, r := range defaults {
		if err := table.Register(r); err != nil {
			return err
		}
	}
	return nil
}

// OptionsFromConfig builds Options from the rules section of the config.
func OptionsFromConfig(cfg config.RulesConfig) (Options, error) {
	re, err := regexp.Compile(cfg.IncomingChannel)
	if err != nil {
		return Options{}, fmt.Errorf("compiling incoming channel pattern: %w", err)
	}
	return Options{
		TrunkContext:      cfg.TrunkContext,
		InternalContext:   cfg.InternalContext,
		IncomingChannel:   re,
		MinOutgoingDigits: cfg.MinOutgoingDigits,
	}, nil
}

// RegisterConfigured compiles configuration-defined rules and appends them to
// table after whatever is already registered.
func RegisterConfigured(table *rules.Table, extra []config.RuleConfig) error {
	for _, rc := range extra {
		r := rules.Rule{
			Name:    rc.Name,
			Kind:    rc.Kind,
			Fields:  make(map[string]rules.Predicate, len(rc.Fields)),
			Handler: handlers.Forward(rc.Name, rc.Emit.Event, rc.Emit.Fields),
		}
		for field, spec := range rc.Fields {
			p, err := rules.ParsePredicate(spec)
			if err != nil {
				return fmt.Errorf("rule %s field %s: %w", rc.Name, field, err)
			}
			r.Fields[field] = p
		}
		if rc.When != "" {
			cond, err := rules.CompileCondition(rc.When)
			if err != nil {
				return fmt.Errorf("rule %s: %w", rc.Name, err)
			}
			r.When = cond
		}
		if err := table.Register(r); err != nil {
			return err
		}
	}
	return nil
}

// BuildTable returns the default rules followed by any configured ones.
func BuildTable(cfg config.RulesConfig) (*rules.Table, error) {
	opts, err := OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	table := rules.NewTable()
	if err := RegisterDefaults(table, opts); err != nil {
		return nil, err
	}
	if err := RegisterConfigured(table, cfg.Extra); err != nil {
		return nil, err
	}
	return table, nil
}
