package game

import "sort"

// WarContribution is the number of cards each war contender must put up:
// one face-down plus one face-up. Only the face-up card is compared.
const WarContribution = 2

// HighestHolders returns the ids of all players whose card has the maximum
// rank among the given plays, sorted for determinism. Suit never breaks ties.
func HighestHolders(plays map[string]Card) []string {
	best := -1
	var holders []string
	for id, card := range plays {
		rank := card.Rank()
		switch {
		case rank > best:
			best = rank
			holders = holders[:0]
			holders = append(holders, id)
		case rank == best:
			holders = append(holders, id)
		}
	}
	sort.Strings(holders)
	return holders
}

// RoundComplete reports whether the current regular round has every play in.
// A participant is expected to play if they are active and either still hold
// cards or have already played this round; a round needs at least two plays.
// (Requiring literally every active participant would deadlock once a third
// player runs out of cards mid-game.)
func RoundComplete(s *Session) bool {
	if s.Status != StatusPlaying || s.WarState || len(s.BattleCards) < 2 {
		return false
	}
	expected := 0
	for id, p := range s.Players {
		if !p.Active {
			continue
		}
		if _, played := s.BattleCards[id]; played || len(p.Cards) > 0 {
			expected++
		}
	}
	return len(s.BattleCards) == expected
}

// warContributed returns how many war cards the given player has put up
// in the current war round.
func (s *Session) warContributed(id string) int {
	n := 0
	if _, ok := s.WarFaceDown[id]; ok {
		n++
	}
	if _, ok := s.WarFaceUp[id]; ok {
		n++
	}
	return n
}

// WarForfeited reports whether a war player cannot see the war through:
// too few cards to contribute, or departed from the session. A forfeiting
// player is excluded from the comparison but cedes nothing beyond what is
// already on the table.
func (s *Session) WarForfeited(id string) bool {
	p, ok := s.Players[id]
	if !ok || !p.Active {
		return true
	}
	return len(p.Cards)+s.warContributed(id) < WarContribution
}

// WarContenders splits the current war players into those able to see the
// war through and those who forfeit. Both slices are sorted.
func WarContenders(s *Session) (contenders, forfeits []string) {
	for _, id := range s.WarPlayers {
		if s.WarForfeited(id) {
			forfeits = append(forfeits, id)
		} else {
			contenders = append(contenders, id)
		}
	}
	sort.Strings(contenders)
	sort.Strings(forfeits)
	return contenders, forfeits
}

// WarStageComplete reports whether every non-forfeiting contender has
// contributed the card the current war stage asks for.
func WarStageComplete(s *Session) bool {
	if !s.WarState {
		return false
	}
	contenders, _ := WarContenders(s)
	if len(contenders) == 0 {
		// Nothing further will arrive; resolution handles the forfeit case.
		return true
	}
	var plays map[string]Card
	switch s.WarStage {
	case WarStageFaceDown:
		plays = s.WarFaceDown
	case WarStageFaceUp:
		plays = s.WarFaceUp
	default:
		return false
	}
	for _, id := range contenders {
		if _, ok := plays[id]; !ok {
			return false
		}
	}
	return true
}

// CanRecurse reports whether every player in the newly tied subset holds
// enough cards to fight another war round.
func CanRecurse(s *Session, tied []string) bool {
	for _, id := range tied {
		if len(s.Players[id].Cards) < WarContribution {
			return false
		}
	}
	return true
}

// BattleSpoils returns the cards of the current regular round in sorted
// player order.
func BattleSpoils(s *Session) []Card {
	return cardsByPlayer(s.BattleCards)
}

// WarSpoils assembles everything the war winner takes: the accumulated pot,
// then all face-down cards, then all face-up cards, then the original tied
// battle cards.
func WarSpoils(s *Session) []Card {
	spoils := make([]Card, 0, len(s.WarPot)+len(s.WarFaceDown)+len(s.WarFaceUp)+len(s.BattleCards))
	spoils = append(spoils, s.WarPot...)
	spoils = append(spoils, cardsByPlayer(s.WarFaceDown)...)
	spoils = append(spoils, cardsByPlayer(s.WarFaceUp)...)
	spoils = append(spoils, cardsByPlayer(s.BattleCards)...)
	return spoils
}

// WarRoundCards returns every card put up during the current war round
// (all face-down, then all face-up), the set that rolls into the pot when
// a war recurses.
func WarRoundCards(s *Session) []Card {
	return append(cardsByPlayer(s.WarFaceDown), cardsByPlayer(s.WarFaceUp)...)
}

// cardsByPlayer flattens a play map into a slice ordered by player id so
// that concurrent resolvers assemble identical piles.
func cardsByPlayer(plays map[string]Card) []Card {
	ids := make([]string, 0, len(plays))
	for id := range plays {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	cards := make([]Card, 0, len(ids))
	for _, id := range ids {
		cards = append(cards, plays[id])
	}
	return cards
}
