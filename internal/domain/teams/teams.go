// Package teams assigns match seats to teams.
//
// The split is a protocol detail: submissions carry seats in order and
// the aggregation side must partition them the same way every worker
// would, so the rule lives here rather than implicitly in list math.
package teams

import "github.com/okian/scrim/internal/domain/model"

// Team identifies one side of a match.
type Team int

const (
	Blue Team = iota
	Orange
)

// Assigner maps a seat index to a team given the total seat count.
type Assigner func(seat, total int) Team

// SplitFirstHalf is the default rule: the first ceil(total/2) seats are
// blue, the remainder orange.
func SplitFirstHalf(seat, total int) Team {
	if seat < (total+1)/2 {
		return Blue
	}
	return Orange
}

// Partition splits ratings into blue and orange groups using the
// assigner, preserving seat order within each team.
func Partition(ratings []model.Rating, assign Assigner) (blue, orange []model.Rating) {
	for i, r := range ratings {
		if assign(i, len(ratings)) == Blue {
			blue = append(blue, r)
		} else {
			orange = append(orange, r)
		}
	}
	return blue, orange
}

// Merge is the inverse of Partition: it restores seat order from the
// two team groups. len(blue)+len(orange) must equal total.
func Merge(blue, orange []model.Rating, total int, assign Assigner) []model.Rating {
	out := make([]model.Rating, 0, total)
	var b, o int
	for i := 0; i < total; i++ {
		if assign(i, total) == Blue {
			out = append(out, blue[b])
			b++
		} else {
			out = append(out, orange[o])
			o++
		}
	}
	return out
}
