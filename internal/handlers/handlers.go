// Package handlers turns matched AMI events into notification payloads.
//
// Every handler is a pure function of the event's fields. A field the
// payload needs but the event lacks yields a *MissingFieldError and no
// payload.
package handlers

import (
	"fmt"
	"sort"

	"github.com/sweeney/asterisk-callhook/internal/ami"
	"github.com/sweeney/asterisk-callhook/internal/notify"
	"github.com/sweeney/asterisk-callhook/internal/rules"
	"github.com/sweeney/asterisk-callhook/internal/textutil"
)

// MissingFieldError reports a required event field that was absent.
type MissingFieldError struct {
	Handler string
	Field   string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s: event has no %s field", e.Handler, e.Field)
}

// fields looks up keys on evt, failing on the first one that is absent.
func fields(evt ami.Event, handler string, keys ...string) ([]string, error) {
	out := make([]string, len(keys))
	for i, k := range keys {
		v, ok := evt.Lookup(k)
		if !ok {
			return nil, &MissingFieldError{Handler: handler, Field: k}
		}
		out[i] = v
	}
	return out, nil
}

// IncomingCall renders a ringing external channel.
func IncomingCall(evt ami.Event) (notify.Payload, error) {
	f, err := fields(evt, "incoming-call", "CallerIDNum", "Uniqueid", "Exten")
	if err != nil {
		return nil, err
	}
	return IncomingCallPayload{
		Event:  EventIncomingCall,
		Remote: f[0],
		CallID: f[1],
		Dialed: f[2],
	}, nil
}

// OutgoingCall renders an internal extension dialing out. The dialed number
// is the remote party; the user is the caller's first name.
func OutgoingCall(evt ami.Event) (notify.Payload, error) {
	f, err := fields(evt, "outgoing-call", "Uniqueid", "Exten", "CallerIDName")
	if err != nil {
		return nil, err
	}
	return OutgoingCallPayload{
		Event:  EventOutgoingCall,
		CallID: f[0],
		Remote: f[1],
		User:   textutil.FirstWord(f[2]),
	}, nil
}

// AcceptedCall renders an answered external channel.
func AcceptedCall(evt ami.Event) (notify.Payload, error) {
	f, err := fields(evt, "accepted-call", "Uniqueid", "CallerIDNum", "Exten", "ConnectedLineName")
	if err != nil {
		return nil, err
	}
	p := AcceptedCallPayload{
		Event:  EventAcceptedCall,
		CallID: f[0],
		Remote: f[1],
		Dialed: f[2],
	}
	if name := f[3]; name != UnknownName {
		user := textutil.FirstWord(name)
		p.User = &user
	}
	return p, nil
}

// Hangup renders an external channel hanging up.
func Hangup(evt ami.Event) (notify.Payload, error) {
	f, err := fields(evt, "hangup", "Uniqueid", "CallerIDNum")
	if err != nil {
		return nil, err
	}
	return HangupPayload{
		Event:  EventHangup,
		CallID: f[0],
		Remote: f[1],
	}, nil
}

// Transfer renders an attended transfer. The call id is the transferee's
// channel, which is the one that survives the transfer.
func Transfer(evt ami.Event) (notify.Payload, error) {
	f, err := fields(evt, "transfer", "TransfereeUniqueid", "TransferTargetCallerIDName")
	if err != nil {
		return nil, err
	}
	return TransferPayload{
		Event:   EventTransfer,
		CallID:  f[0],
		NewUser: textutil.FirstWord(f[1]),
	}, nil
}

// Forward returns a handler that emits a GenericPayload with the given event
// name and output keys copied from event fields (output key -> field name).
func Forward(name, event string, mapping map[string]string) rules.Handler {
	keys := make([]string, 0, len(mapping))
	for k := range mapping {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return func(evt ami.Event) (notify.Payload, error) {
		p := GenericPayload{"event": event}
		for _, out := range keys {
			v, ok := evt.Lookup(mapping[out])
			if !ok {
				return nil, &MissingFieldError{Handler: name, Field: mapping[out]}
			}
			p[out] = v
		}
		return p, nil
	}
}
