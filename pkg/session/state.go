package session

// State is a state of the negotiation.
type State int

const (
	Idle State = iota
	OfferRequested
	OfferSent
	Negotiating
	Connected
	Disconnected
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case OfferRequested:
		return "OFFER_REQUESTED"
	case OfferSent:
		return "OFFER_SENT"
	case Negotiating:
		return "NEGOTIATING"
	case Connected:
		return "CONNECTED"
	case Disconnected:
		return "DISCONNECTED"
	case Closed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// transitions lists all the legal moves except the ones to Closed,
// which is reachable from anywhere.
var transitions = map[State][]State{
	Idle:           {OfferRequested},
	OfferRequested: {OfferSent},
	OfferSent:      {Negotiating, Disconnected},
	Negotiating:    {Connected, Disconnected},
	Connected:      {Disconnected},
	Disconnected:   {OfferRequested},
}

// CanTransition tells if the negotiation may go from one state to another.
func CanTransition(from, to State) bool {
	if from == Closed {
		return false
	}
	if to == Closed {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Role says which side generates the initial offer.
// The media-producing side is always the offerer.
type Role int

const (
	Offerer Role = iota
	Answerer
)

func (r Role) String() string {
	if r == Offerer {
		return "OFFERER"
	}
	return "ANSWERER"
}

func (r Role) MarshalText() ([]byte, error) { return []byte(r.String()), nil }
