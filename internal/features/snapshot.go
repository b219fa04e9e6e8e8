package features

import "github.com/fortuna/caddie/internal/store"

// Snapshot holds the three feature families computed for one event, keyed by player.
type Snapshot struct {
	Cut    map[string]CutHistory `json:"cut"`
	Form   map[string]Finish     `json:"form"`
	Course map[string]Finish     `json:"course"`
}

// Snapshots maps an event to its feature snapshot.
type Snapshots map[store.EventKey]Snapshot

// Player is every rolling feature of one player for one event. Families without
// history for the player are nil.
type Player struct {
	Cut    *CutHistory `json:"cut,omitempty"`
	Form   *Finish     `json:"form,omitempty"`
	Course *Finish     `json:"course,omitempty"`
}

// Lookup returns the player's features for an event. A missing event or player
// yields an empty Player.
func (s Snapshots) Lookup(key store.EventKey, player string) Player {
	snap, ok := s[key]
	if !ok {
		return Player{}
	}

	var p Player
	if h, ok := snap.Cut[player]; ok {
		p.Cut = &h
	}
	if f, ok := snap.Form[player]; ok {
		p.Form = &f
	}
	if c, ok := snap.Course[player]; ok {
		p.Course = &c
	}
	return p
}
