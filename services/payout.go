package services

// PayoutTable is the typed form of the raw payout config map. It is resolved
// once at startup; the distribution pipeline only ever reads the typed fields,
// never the raw string keys.
type PayoutTable struct {
	Winner        int64
	Second        int64
	Third         int64
	Participation int64
}

// Historical config files spell the same placement several ways. Aliases are
// resolved in the order listed; the first key present in the raw map wins.
var placementAliases = map[string][]string{
	"winner":        {"first_place", "1", "winner", "gold"},
	"second":        {"second", "2", "second_place", "runner_up", "silver"},
	"third":         {"third", "3", "third_place", "bronze"},
	"participation": {"participation", "default", "other"},
}

// ResolvePayouts collapses a raw alias-keyed map into a PayoutTable. Absent
// placements resolve to zero (no payout).
func ResolvePayouts(raw map[string]int64) PayoutTable {
	lookup := func(name string) int64 {
		for _, alias := range placementAliases[name] {
			if v, ok := raw[alias]; ok {
				return v
			}
		}
		return 0
	}
	return PayoutTable{
		Winner:        lookup("winner"),
		Second:        lookup("second"),
		Third:         lookup("third"),
		Participation: lookup("participation"),
	}
}

// ForPlacement returns the payout for a 1-based placement; anything past the
// podium gets the participation amount.
func (t PayoutTable) ForPlacement(p int) int64 {
	switch p {
	case 1:
		return t.Winner
	case 2:
		return t.Second
	case 3:
		return t.Third
	default:
		return t.Participation
	}
}
