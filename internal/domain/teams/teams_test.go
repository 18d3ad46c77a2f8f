package teams

import (
	"testing"

	"github.com/okian/scrim/internal/domain/model"
)

func TestSplitFirstHalf(t *testing.T) {
	cases := []struct {
		total    int
		wantBlue int
	}{
		{total: 2, wantBlue: 1},
		{total: 3, wantBlue: 2},
		{total: 4, wantBlue: 2},
		{total: 6, wantBlue: 3},
		{total: 1, wantBlue: 1},
	}

	for _, c := range cases {
		blue := 0
		for seat := 0; seat < c.total; seat++ {
			if SplitFirstHalf(seat, c.total) == Blue {
				blue++
			}
		}
		if blue != c.wantBlue {
			t.Errorf("total %d: got %d blue seats, want %d", c.total, blue, c.wantBlue)
		}
	}
}

func TestSplitFirstHalfIsPrefix(t *testing.T) {
	// Blue seats must be a contiguous prefix: submission order decides
	// teams, not any label in the data.
	const total = 5
	seenOrange := false
	for seat := 0; seat < total; seat++ {
		switch SplitFirstHalf(seat, total) {
		case Orange:
			seenOrange = true
		case Blue:
			if seenOrange {
				t.Fatalf("blue seat %d after an orange seat", seat)
			}
		}
	}
}

func TestPartitionMergeRoundTrip(t *testing.T) {
	ratings := []model.Rating{
		{Mu: 1}, {Mu: 2}, {Mu: 3}, {Mu: 4}, {Mu: 5},
	}

	blue, orange := Partition(ratings, SplitFirstHalf)
	if len(blue) != 3 || len(orange) != 2 {
		t.Fatalf("unexpected split sizes: %d/%d", len(blue), len(orange))
	}

	merged := Merge(blue, orange, len(ratings), SplitFirstHalf)
	for i := range ratings {
		if merged[i] != ratings[i] {
			t.Errorf("seat %d: got %+v, want %+v", i, merged[i], ratings[i])
		}
	}
}
