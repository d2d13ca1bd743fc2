package game

import "math/rand"

// DeckSize is the number of cards in a full deck.
const DeckSize = 52

// NewDeck returns the full 52-card deck in fixed enumeration order
// (suits outer, values inner). No shuffling.
func NewDeck() []Card {
	deck := make([]Card, 0, DeckSize)
	for _, suit := range CardSuits {
		for _, value := range CardValues {
			deck = append(deck, Card{Value: value, Suit: suit})
		}
	}
	return deck
}

// Shuffle returns a uniformly random permutation of the given deck.
// The input is not modified.
func Shuffle(deck []Card) []Card {
	out := make([]Card, len(deck))
	copy(out, deck)
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// Deal distributes the deck round-robin across the given participant ids,
// starting from the first id. When the deck does not divide evenly, earlier
// participants receive one extra card. The first card dealt to a participant
// is the front of their pile, i.e. the next card they will play.
func Deal(deck []Card, participantIDs []string) map[string][]Card {
	hands := make(map[string][]Card, len(participantIDs))
	for _, id := range participantIDs {
		hands[id] = []Card{}
	}
	if len(participantIDs) == 0 {
		return hands
	}
	for i, card := range deck {
		id := participantIDs[i%len(participantIDs)]
		hands[id] = append(hands[id], card)
	}
	return hands
}
