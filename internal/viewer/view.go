// Local player-state view kept by a viewer, merged from two independent
// sources: a point-in-time roster snapshot and the live elimination stream.

package viewer

import (
	"sort"
	"sync"

	"github.com/PsychoGas/squidElim/internal/entity"
)

// View holds one viewer's reconciled copy of the roster.
// The merge is commutative and idempotent, so snapshot and stream data can
// land in any order without producing an inconsistent final state.
type View struct {
	mu      sync.RWMutex
	players map[uint64]entity.Player
}

func NewView() *View {
	return &View{players: make(map[uint64]entity.Player)}
}

// ApplySnapshot merges a full roster fetch into the view.
// Eliminated is a one-way flag; a stream event may already have marked a
// player down before this snapshot was taken, which must not be undone.
func (v *View) ApplySnapshot(players []entity.Player) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, player := range players {
		if local, ok := v.players[player.PlayerNumber]; ok && local.Eliminated && !player.Eliminated {
			player.Eliminated = true
			player.EliminatedAt = local.EliminatedAt
		}
		v.players[player.PlayerNumber] = player
	}
}

// ApplyEvent merges one elimination event into the view.
// Applying the same event twice has no additional effect, and events for
// players the view doesn't hold yet are ignored rather than failing.
func (v *View) ApplyEvent(event entity.EliminationEvent, at int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	player, ok := v.players[event.PlayerNumber]
	if !ok || player.Eliminated {
		return
	}
	player.Eliminated = true
	player.EliminatedAt = at
	v.players[event.PlayerNumber] = player
}

// Player returns the local record of one player number.
func (v *View) Player(playerNumber uint64) (entity.Player, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	player, ok := v.players[playerNumber]
	return player, ok
}

// Players returns the reconciled roster, sorted by player number.
func (v *View) Players() []entity.Player {
	v.mu.RLock()
	defer v.mu.RUnlock()
	roster := make([]entity.Player, 0, len(v.players))
	for _, player := range v.players {
		roster = append(roster, player)
	}
	sort.Slice(roster, func(i, j int) bool { return roster[i].PlayerNumber < roster[j].PlayerNumber })
	return roster
}

// EliminatedCount returns how many players in the view are down.
func (v *View) EliminatedCount() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	count := 0
	for _, player := range v.players {
		if player.Eliminated {
			count++
		}
	}
	return count
}
