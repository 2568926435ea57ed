package rules

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sweeney/asterisk-callhook/internal/ami"
	"github.com/sweeney/asterisk-callhook/internal/notify"
)

// ErrFrozen is returned when registering into a table that is already in use.
var ErrFrozen = errors.New("rules: table is frozen")

// Handler renders a matched event into a notification payload.
type Handler func(ami.Event) (notify.Payload, error)

// Rule binds field predicates on one event kind to a handler.
// An empty Kind matches events of any kind.
type Rule struct {
	Name    string
	Kind    string
	Fields  map[string]Predicate
	When    *Condition
	Handler Handler
}

func (r Rule) String() string {
	keys := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys)+2)
	kind := r.Kind
	if kind == "" {
		kind = "*"
	}
	parts = append(parts, "Event="+kind)
	for _, k := range keys {
		parts = append(parts, k+"="+r.Fields[k].String())
	}
	if r.When != nil {
		parts = append(parts, "when "+r.When.String())
	}
	return fmt.Sprintf("%s[%s]", r.Name, strings.Join(parts, " "))
}

// Matches reports whether evt satisfies every constraint of r.
func Matches(evt ami.Event, r Rule) bool {
	if r.Kind != "" && evt.Type() != r.Kind {
		return false
	}
	for field, pred := range r.Fields {
		v, present := evt.Lookup(field)
		if !pred.Match(v, present) {
			return false
		}
	}
	if r.When != nil && !r.When.Eval(evt) {
		return false
	}
	return true
}

// Table is the ordered subscription list. Rules are registered at startup;
// after Freeze the table is read-only and safe for concurrent readers.
type Table struct {
	rules  []Rule
	names  map[string]bool
	frozen bool
}

// NewTable returns an empty, unfrozen table.
func NewTable() *Table {
	return &Table{names: make(map[string]bool)}
}

// Register appends r. Rules are evaluated in registration order.
func (t *Table) Register(r Rule) error {
	if t.frozen {
		return ErrFrozen
	}
	if r.Name == "" {
		return fmt.Errorf("rules: rule name is required")
	}
	if r.Handler == nil {
		return fmt.Errorf("rules: rule %s has no handler", r.Name)
	}
	if t.names[r.Name] {
		return fmt.Errorf("rules: duplicate rule %s", r.Name)
	}
	t.names[r.Name] = true
	t.rules = append(t.rules, r)
	return nil
}

// Freeze ends registration.
func (t *Table) Freeze() {
	t.frozen = true
}

// Frozen reports whether Freeze has been called.
func (t *Table) Frozen() bool {
	return t.frozen
}

// Rules returns the registered rules in order. The slice must not be modified.
func (t *Table) Rules() []Rule {
	return t.rules
}

// Match returns the rules evt satisfies, in registration order.
func (t *Table) Match(evt ami.Event) []Rule {
	var matched []Rule
	for _, r := range t.rules {
		if Matches(evt, r) {
			matched = append(matched, r)
		}
	}
	return matched
}
