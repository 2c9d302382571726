// Structure of the elimination fan-out models in squidElim.

package entity

// EliminationEvent is broadcasted to every connected viewer when a player goes down.
// It's a notification, not a snapshot; viewers already hold full player records
// from the roster fetch and apply this as a targeted update.
type EliminationEvent struct {
	PlayerNumber uint64 `json:"playerNumber"`
}

// Subscriber uniquely defines one viewer's live connection to the Publisher.
// A viewer who reconnects gets a brand-new Subscriber with no carried-over history.
type Subscriber struct {
	// Unique Subscriber ID
	ID string
	// Channel the Publisher delivers events into
	Channel chan EliminationEvent
}
