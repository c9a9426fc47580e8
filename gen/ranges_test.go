package gen

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRangeOrdering(t *testing.T) {
	var set rangeSet
	set.insert(InstRange{First: 2, Last: 4, Origin: 1, Kind: RangeForward})
	set.insert(InstRange{First: 0, Last: 3, Origin: 0, Kind: RangeForward})
	set.insert(InstRange{First: 0, Last: 5, Origin: 2, Kind: RangeBackward})
	set.insert(InstRange{First: 0, Last: 3, Origin: 0, Kind: RangeGuard})
	set.insert(InstRange{First: 0, Last: 3, Origin: 0, Kind: RangeBackward})
	require.False(t, set.insert(InstRange{First: 2, Last: 4, Origin: 1, Kind: RangeForward}))

	require.Equal(t, rangeSet{
		{First: 0, Last: 5, Origin: 2, Kind: RangeBackward},
		{First: 0, Last: 3, Origin: 0, Kind: RangeBackward},
		{First: 0, Last: 3, Origin: 0, Kind: RangeGuard},
		{First: 0, Last: 3, Origin: 0, Kind: RangeForward},
		{First: 2, Last: 4, Origin: 1, Kind: RangeForward},
	}, set)
}

func TestLaminar(t *testing.T) {
	require.True(t, Laminar([]InstRange{{First: 0, Last: 4}, {First: 1, Last: 2}, {First: 5, Last: 6}}))
	require.True(t, Laminar([]InstRange{{First: 0, Last: 4}, {First: 0, Last: 4}}))
	require.False(t, Laminar([]InstRange{{First: 0, Last: 2}, {First: 1, Last: 3}}))
	require.False(t, Laminar([]InstRange{{First: 1, Last: 3}, {First: 0, Last: 1}}))
}
