package dispatch

import (
	"regexp"
	"strconv"
	"strings"
)

// DiceRoll is a parsed NdM roll request.
type DiceRoll struct {
	Count int
	Sides int
}

// diceRE matches "NdM" with an optional "/roll" command prefix. Dice
// syntax is treated as an unambiguous intentional command, so it is
// answered even in mention-only groups.
var diceRE = regexp.MustCompile(`(?i)^(?:/roll\s+)?([1-9]\d{0,2})d([1-9]\d{0,3})$`)

// ParseDiceRoll reports whether content is a dice-roll command.
func ParseDiceRoll(content string) (DiceRoll, bool) {
	m := diceRE.FindStringSubmatch(strings.TrimSpace(content))
	if m == nil {
		return DiceRoll{}, false
	}
	count, err := strconv.Atoi(m[1])
	if err != nil {
		return DiceRoll{}, false
	}
	sides, err := strconv.Atoi(m[2])
	if err != nil {
		return DiceRoll{}, false
	}
	return DiceRoll{Count: count, Sides: sides}, true
}
