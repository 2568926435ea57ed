package handlers

// Event discriminators as seen by the webhook receiver.
const (
	EventIncomingCall = "Incoming Call"
	EventOutgoingCall = "Outgoing Call"
	EventAcceptedCall = "Accepted Call"
	EventHangup       = "Hangup"
	EventTransfer     = "Transfer Call"
)

// UnknownName is the placeholder Asterisk uses for an unset caller name.
const UnknownName = "<unknown>"

// IncomingCallPayload is sent when an external call starts ringing.
type IncomingCallPayload struct {
	Event  string `json:"event"`
	Remote string `json:"remote"`
	CallID string `json:"callid"`
	Dialed string `json:"dialed"`
}

func (p IncomingCallPayload) EventName() string { return p.Event }

// OutgoingCallPayload is sent when an internal extension dials out.
type OutgoingCallPayload struct {
	Event  string `json:"event"`
	CallID string `json:"callid"`
	Remote string `json:"remote"`
	User   string `json:"user"`
}

func (p OutgoingCallPayload) EventName() string { return p.Event }

// AcceptedCallPayload is sent when an external call is answered. User is nil,
// and omitted, only when the answering party is unknown; an empty first word
// is still sent.
type AcceptedCallPayload struct {
	Event  string  `json:"event"`
	CallID string  `json:"callid"`
	Remote string  `json:"remote"`
	Dialed string  `json:"dialed"`
	User   *string `json:"user,omitempty"`
}

func (p AcceptedCallPayload) EventName() string { return p.Event }

// HangupPayload is sent when an external channel hangs up.
type HangupPayload struct {
	Event  string `json:"event"`
	CallID string `json:"callid"`
	Remote string `json:"remote"`
}

func (p HangupPayload) EventName() string { return p.Event }

// TransferPayload is sent on an attended transfer.
type TransferPayload struct {
	Event   string `json:"event"`
	CallID  string `json:"callid"`
	NewUser string `json:"newuser"`
}

func (p TransferPayload) EventName() string { return p.Event }

// GenericPayload is produced by configuration-defined rules. encoding/json
// writes map keys sorted, so output is deterministic.
type GenericPayload map[string]string

func (p GenericPayload) EventName() string { return p["event"] }
