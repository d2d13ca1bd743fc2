package game

// CardValues is the fixed rank order, lowest first. A card's strength is
// its value's index in this list; suit never affects comparison.
var CardValues = []string{"2", "3", "4", "5", "6", "7", "8", "9", "10", "J", "Q", "K", "A"}

// CardSuits lists the four suits in deck enumeration order.
var CardSuits = []string{"♠", "♥", "♦", "♣"}

// Card is an immutable playing card.
type Card struct {
	Value string `json:"value"`
	Suit  string `json:"suit"`
}

// Rank returns the card's comparison rank (0 for "2" up to 12 for "A"),
// or -1 if the value is not a legal card value.
func (c Card) Rank() int {
	for i, v := range CardValues {
		if v == c.Value {
			return i
		}
	}
	return -1
}

// String returns the display form, e.g. "Q♥".
func (c Card) String() string {
	return c.Value + c.Suit
}
