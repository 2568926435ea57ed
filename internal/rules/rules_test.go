package rules_test

import (
	"errors"
	"regexp"
	"testing"

	"github.com/sweeney/asterisk-callhook/internal/ami"
	"github.com/sweeney/asterisk-callhook/internal/notify"
	"github.com/sweeney/asterisk-callhook/internal/rules"
)

type namedPayload string

func (p namedPayload) EventName() string { return string(p) }

func handlerFor(name string) rules.Handler {
	return func(ami.Event) (notify.Payload, error) { return namedPayload(name), nil }
}

func newstate(kvs ...string) ami.Event {
	return ami.NewEvent(append([]string{"Event", "Newstate"}, kvs...)...)
}

func TestMatches(t *testing.T) {
	incoming := rules.Rule{
		Name: "incoming-call",
		Kind: "Newstate",
		Fields: map[string]rules.Predicate{
			"ChannelStateDesc": rules.Exact("Ring"),
			"Context":          rules.Exact("from-trunk"),
			"Channel":          rules.MustPattern(`^SIP/Sipgate_-2615510.*`),
		},
		Handler: handlerFor("incoming"),
	}

	tests := []struct {
		name string
		evt  ami.Event
		want bool
	}{
		{"all predicates hold", newstate("ChannelStateDesc", "Ring", "Context", "from-trunk", "Channel", "SIP/Sipgate_-2615510-00a1"), true},
		{"wrong kind", ami.NewEvent("Event", "Hangup", "ChannelStateDesc", "Ring", "Context", "from-trunk", "Channel", "SIP/Sipgate_-2615510-00a1"), false},
		{"exact is case-sensitive", newstate("ChannelStateDesc", "ring", "Context", "from-trunk", "Channel", "SIP/Sipgate_-2615510-00a1"), false},
		{"Ringing is not Ring", newstate("ChannelStateDesc", "Ringing", "Context", "from-trunk", "Channel", "SIP/Sipgate_-2615510-00a1"), false},
		{"pattern anchored", newstate("ChannelStateDesc", "Ring", "Context", "from-trunk", "Channel", "PJSIP/SIP/Sipgate_-2615510"), false},
		{"missing field", newstate("ChannelStateDesc", "Ring", "Context", "from-trunk"), false},
		{"no fields at all", ami.NewEvent(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rules.Matches(tt.evt, incoming); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatchesAnyKind(t *testing.T) {
	r := rules.Rule{
		Name:    "trunk",
		Fields:  map[string]rules.Predicate{"Context": rules.Exact("from-trunk")},
		Handler: handlerFor("trunk"),
	}
	for _, kind := range []string{"Newstate", "Hangup", "DialBegin"} {
		if !rules.Matches(ami.NewEvent("Event", kind, "Context", "from-trunk"), r) {
			t.Errorf("expected kind-less rule to match %s", kind)
		}
	}
}

func TestOutgoingLengthThreshold(t *testing.T) {
	r := rules.Rule{
		Name:    "outgoing-call",
		Kind:    "Newstate",
		Fields:  map[string]rules.Predicate{"Exten": rules.MustPattern(`.{5,}`)},
		Handler: handlerFor("outgoing"),
	}
	if rules.Matches(newstate("Exten", "1234"), r) {
		t.Error("expected 4-digit extension not to match")
	}
	if !rules.Matches(newstate("Exten", "12345"), r) {
		t.Error("expected 5-digit extension to match")
	}
}

func TestAnyAndOptional(t *testing.T) {
	tests := []struct {
		pred    rules.Predicate
		value   string
		present bool
		want    bool
	}{
		{rules.Any(), "", true, true},
		{rules.Any(), "", false, false},
		{rules.Optional(rules.Exact("x")), "", false, true},
		{rules.Optional(rules.Exact("x")), "x", true, true},
		{rules.Optional(rules.Exact("x")), "y", true, false},
		{rules.Exact(""), "", true, true},
		{rules.Exact(""), "", false, false},
	}
	for _, tt := range tests {
		if got := tt.pred.Match(tt.value, tt.present); got != tt.want {
			t.Errorf("%s.Match(%q, %v) = %v, want %v", tt.pred, tt.value, tt.present, got, tt.want)
		}
	}
}

func TestParsePredicate(t *testing.T) {
	tests := []struct {
		in      string
		value   string
		present bool
		want    bool
	}{
		{"from-trunk", "from-trunk", true, true},
		{"from-trunk", "from-trunk-x", true, false},
		{"*", "anything", true, true},
		{"*", "", false, false},
		{`re:^\d+$`, "12345", true, true},
		{`re:^\d+$`, "12a45", true, false},
		{`?re:^\d+$`, "", false, true},
		{"?from-trunk", "from-internal", true, false},
	}
	for _, tt := range tests {
		p, err := rules.ParsePredicate(tt.in)
		if err != nil {
			t.Fatalf("ParsePredicate(%q): %v", tt.in, err)
		}
		if got := p.Match(tt.value, tt.present); got != tt.want {
			t.Errorf("ParsePredicate(%q).Match(%q, %v) = %v, want %v", tt.in, tt.value, tt.present, got, tt.want)
		}
	}

	if _, err := rules.ParsePredicate("re:(unclosed"); err == nil {
		t.Error("expected error for invalid pattern")
	}
}

func TestCondition(t *testing.T) {
	tests := []struct {
		expr string
		evt  ami.Event
		want bool
	}{
		{"len(Exten) >= 5", newstate("Exten", "12345"), true},
		{"len(Exten) >= 5", newstate("Exten", "1234"), false},
		{"len(Exten) >= 5", newstate(), false},
		{"lower(Context) == 'from-trunk'", newstate("Context", "FROM-TRUNK"), true},
		{"first_word(CallerIDName) == 'jane'", newstate("CallerIDName", "Jane Doe"), true},
		{"[Cause-txt] == 'Normal Clearing'", ami.NewEvent("Event", "Hangup", "Cause-txt", "Normal Clearing"), true},
		{"Context", newstate("Context", "from-trunk"), false},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			c, err := rules.CompileCondition(tt.expr)
			if err != nil {
				t.Fatalf("compile: %v", err)
			}
			if got := c.Eval(tt.evt); got != tt.want {
				t.Errorf("Eval() = %v, want %v", got, tt.want)
			}
		})
	}

	if _, err := rules.CompileCondition("len(Exten >="); err == nil {
		t.Error("expected compile error")
	}
}

func TestMatchesWithCondition(t *testing.T) {
	cond, err := rules.CompileCondition("len(CallerIDNum) > 3")
	if err != nil {
		t.Fatal(err)
	}
	r := rules.Rule{
		Name:    "long-callers",
		Kind:    "Newstate",
		Fields:  map[string]rules.Predicate{"Context": rules.Exact("from-trunk")},
		When:    cond,
		Handler: handlerFor("x"),
	}
	if !rules.Matches(newstate("Context", "from-trunk", "CallerIDNum", "+4917"), r) {
		t.Error("expected match")
	}
	if rules.Matches(newstate("Context", "from-trunk", "CallerIDNum", "201"), r) {
		t.Error("expected condition to reject short caller id")
	}
	if rules.Matches(newstate("Context", "from-internal", "CallerIDNum", "+4917"), r) {
		t.Error("expected field predicate to reject before condition")
	}
}

func TestTableRegistrationOrder(t *testing.T) {
	table := rules.NewTable()
	for _, name := range []string{"first", "second", "third"} {
		if err := table.Register(rules.Rule{
			Name:    name,
			Fields:  map[string]rules.Predicate{"Context": rules.Any()},
			Handler: handlerFor(name),
		}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	table.Freeze()

	matched := table.Match(ami.NewEvent("Event", "Hangup", "Context", "from-trunk"))
	if len(matched) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(matched))
	}
	for i, want := range []string{"first", "second", "third"} {
		if matched[i].Name != want {
			t.Errorf("match %d: expected %s, got %s", i, want, matched[i].Name)
		}
	}

	if got := table.Match(ami.NewEvent("Event", "Hangup")); len(got) != 0 {
		t.Errorf("expected no matches without Context, got %d", len(got))
	}
}

func TestTableRegisterErrors(t *testing.T) {
	table := rules.NewTable()

	if err := table.Register(rules.Rule{Handler: handlerFor("x")}); err == nil {
		t.Error("expected error for unnamed rule")
	}
	if err := table.Register(rules.Rule{Name: "nohandler"}); err == nil {
		t.Error("expected error for rule without handler")
	}
	if err := table.Register(rules.Rule{Name: "a", Handler: handlerFor("a")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := table.Register(rules.Rule{Name: "a", Handler: handlerFor("a")}); err == nil {
		t.Error("expected error for duplicate rule")
	}

	table.Freeze()
	if !table.Frozen() {
		t.Fatal("expected table to be frozen")
	}
	err := table.Register(rules.Rule{Name: "late", Handler: handlerFor("late")})
	if !errors.Is(err, rules.ErrFrozen) {
		t.Errorf("expected ErrFrozen, got %v", err)
	}
	if len(table.Rules()) != 1 {
		t.Errorf("expected 1 rule, got %d", len(table.Rules()))
	}
}

func TestRuleString(t *testing.T) {
	r := rules.Rule{
		Name: "outgoing-call",
		Kind: "Newstate",
		Fields: map[string]rules.Predicate{
			"Exten":   rules.Pattern(regexp.MustCompile(`.{5,}`)),
			"Context": rules.Exact("from-internal"),
		},
	}
	want := `outgoing-call[Event=Newstate Context="from-internal" Exten=re:.{5,}]`
	if got := r.String(); got != want {
		t.Errorf("String() = %s, want %s", got, want)
	}
}
