// Structure of Player Model in squidElim.

package entity

// Saved in DB as player:<player_number>
type Player struct {
	// Public identity of the player, assigned once at registration and never reused.
	PlayerNumber uint64 `json:"playerNumber" redis:"player_number" valid:"-"`
	Name         string `json:"name" redis:"name" valid:"required,type(string),printableascii,stringlength(1|30),playername~name:Only letters with numbers and spaces or underscores and periods are allowed here"`
	Avatar       string `json:"avatar" redis:"avatar" valid:"-"`
	// One-way flag, a player never comes back once eliminated.
	Eliminated bool `json:"eliminated" redis:"eliminated" valid:"-"`
	// Unix milliseconds, set in the same transaction which flips Eliminated.
	EliminatedAt int64 `json:"eliminatedAt,omitempty" redis:"eliminated_at" valid:"-"`
	CreatedAt    int64 `json:"createdAt,omitempty" redis:"created_at" valid:"-"`
}

// Default avatar assigned to players who registered without one.
const DefaultAvatar = "/placeholder.svg?height=100&width=100"
