package roster

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/automoto/kitchen-mp/shared/messages"
	"github.com/automoto/kitchen-mp/shared/netconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func colorsOf(r *Roster) []int {
	var out []int
	for _, rec := range r.Records() {
		out = append(out, rec.ColorIndex)
	}
	return out
}

func TestColorAssignmentReusesFirstFreeColor(t *testing.T) {
	// Arrange
	r := New()

	// Act
	r.Add("A", "", "a", 0)
	r.Add("B", "", "b", 0)
	r.Add("C", "", "c", 0)
	require.Equal(t, []int{0, 1, 2}, colorsOf(r))

	r.Remove("A")
	change, ok := r.Add("D", "", "d", 0)

	// Assert
	require.True(t, ok)
	assert.Equal(t, 0, change.Record.ColorIndex)
	assert.Equal(t, 2, change.Index)
	assert.Equal(t, []int{1, 2, 0}, colorsOf(r))
}

func TestColorsStayDistinctAcrossChurn(t *testing.T) {
	r := New()
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 500; i++ {
		peer := netconfig.PeerID(fmt.Sprintf("p%d", rng.Intn(12)))
		if rng.Intn(2) == 0 {
			r.Add(peer, "", string(peer), 0)
		} else {
			r.Remove(peer)
		}

		seen := map[int]bool{}
		for _, c := range colorsOf(r) {
			if c == netconfig.NoColor {
				continue
			}
			require.False(t, seen[c], "color %d used twice", c)
			seen[c] = true
		}
	}
}

func TestPaletteExhaustedGivesNoColor(t *testing.T) {
	r := New()
	for i := 0; i < netconfig.ColorCount(); i++ {
		r.Add(netconfig.PeerID(fmt.Sprint(i)), "", "", 0)
	}

	change, ok := r.Add("extra", "", "", 0)

	require.True(t, ok)
	require.Equal(t, netconfig.NoColor, change.Record.ColorIndex)
}

func TestIsPlayerConnectedMatchesLength(t *testing.T) {
	r := New()
	for n := 0; n < 4; n++ {
		for i := -1; i <= 5; i++ {
			assert.Equal(t, i >= 0 && i < r.Len(), r.IsPlayerConnected(i), "len=%d index=%d", r.Len(), i)
		}
		r.Add(netconfig.PeerID(fmt.Sprint(n)), "", "", 0)
	}
}

func TestAddSamePeerTwice(t *testing.T) {
	r := New()
	_, ok := r.Add("A", "", "", 0)
	require.True(t, ok)

	_, ok = r.Add("A", "", "", 0)

	require.False(t, ok)
	require.Equal(t, 1, r.Len())
}

func TestRemoveUnknownIsNoop(t *testing.T) {
	r := New()
	r.Add("A", "", "", 0)

	_, ok := r.Remove("ghost")

	require.False(t, ok)
	require.Equal(t, 1, r.Len())
}

func TestChangeColor(t *testing.T) {
	r := New()
	r.Add("A", "", "", 0)
	r.Add("B", "", "", 0)

	_, ok := r.ChangeColor("A", 1)
	require.False(t, ok, "color held by B")

	_, ok = r.ChangeColor("A", netconfig.ColorCount())
	require.False(t, ok, "out of range")

	_, ok = r.ChangeColor("ghost", 5)
	require.False(t, ok, "unknown peer")

	change, ok := r.ChangeColor("A", 5)
	require.True(t, ok)
	require.Equal(t, messages.RosterUpdated, change.Op)
	require.Equal(t, 0, change.Index)
	require.Equal(t, []int{5, 1}, colorsOf(r))
}

func TestVersionsIncreaseByOne(t *testing.T) {
	r := New()
	a, _ := r.Add("A", "", "", 0)
	b, _ := r.Add("B", "", "", 0)
	c, _ := r.Remove("A")

	require.Equal(t, []uint64{1, 2, 3}, []uint64{a.Version, b.Version, c.Version})
	require.Equal(t, uint64(3), r.Snapshot().Version)
}

func TestLookups(t *testing.T) {
	r := New()
	r.Add("A", "player-a", "Alice", 0)
	r.Add("B", "player-b", "Bob", 0)

	rec, idx, ok := r.ByPeer("B")
	require.True(t, ok)
	require.Equal(t, 1, idx)
	require.Equal(t, "Bob", rec.Name)

	rec, ok = r.At(0)
	require.True(t, ok)
	require.Equal(t, "player-a", rec.PlayerID)

	_, ok = r.At(2)
	require.False(t, ok)
}
