package sim

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sanders/internal/coterie"
	"sanders/internal/mutex"
)

func ids(n int) []mutex.ID {
	out := make([]mutex.ID, n)
	for i := range out {
		out[i] = mutex.ID(fmt.Sprintf("n%02d", i))
	}
	return out
}

// TestCluster_TwoBidders covers two bids a round apart on a three node
// full mesh: the earlier bid is admitted first and the later one waits
// for its release.
func TestCluster_TwoBidders(t *testing.T) {
	members := []mutex.ID{"A", "B", "C"}
	c, err := NewCluster(Options{
		Members:       members,
		Provider:      coterie.NewFullMesh(members),
		Seed:          1,
		SessionRounds: 3,
	})
	require.NoError(t, err)

	require.NoError(t, c.Step())
	require.Equal(t, int64(1), c.Round())
	require.NoError(t, c.Request("A"))

	require.NoError(t, c.Step())
	require.NoError(t, c.Request("B"))

	ok, err := c.RunUntil(c.Engine("A").IsInCriticalSection, 10)
	require.NoError(t, err)
	require.True(t, ok, "A should be admitted")
	assert.False(t, c.Engine("B").IsInCriticalSection())
	assert.True(t, c.Engine("B").IsAwaitingEntry())

	// B's bid waits in every voter's queue for as long as A is inside.
	for c.Engine("A").IsInCriticalSection() {
		for _, id := range members {
			st := c.Engine(id).State()
			assert.Equal(t, mutex.ID("A"), st.Candidate, "voter %s", id)
			assert.Equal(t, 1, c.Engine(id).PendingCount(), "voter %s", id)
		}
		require.NoError(t, c.Step())
	}

	ok, err = c.RunUntil(c.Engine("B").IsInCriticalSection, 20)
	require.NoError(t, err)
	require.True(t, ok, "B should be admitted after A releases")
	assert.False(t, c.Engine("A").IsInCriticalSection())

	assert.Equal(t, []Entry{{Node: "A", Round: 1}, {Node: "B", Round: 2}}, c.Monitor().Entries())
	assert.Empty(t, c.Monitor().Violations())

	ok, err = c.RunUntil(c.Quiescent, 20)
	require.NoError(t, err)
	assert.True(t, ok, "cluster should settle")
}

func TestCluster_SimultaneousBidsTieBreak(t *testing.T) {
	members := []mutex.ID{"A", "B", "C"}
	c, err := NewCluster(Options{
		Members:  members,
		Provider: coterie.NewFullMesh(members),
		Seed:     7,
	})
	require.NoError(t, err)

	// Same round, so the lower identity wins.
	require.NoError(t, c.Request("B"))
	require.NoError(t, c.Request("A"))

	ok, err := c.RunUntil(func() bool { return len(c.Monitor().Entries()) >= 2 }, 50)
	require.NoError(t, err)
	require.True(t, ok)

	entries := c.Monitor().Entries()
	assert.Equal(t, mutex.ID("A"), entries[0].Node)
	assert.Equal(t, mutex.ID("B"), entries[1].Node)
	assert.Empty(t, c.Monitor().Violations())
}

func TestCluster_SafetyAndLiveness(t *testing.T) {
	full := ids(5)
	grid := ids(9)
	gridProvider, err := coterie.NewGrid(grid)
	require.NoError(t, err)

	tests := []struct {
		name     string
		members  []mutex.ID
		provider mutex.CoterieProvider
	}{
		{"full mesh", full, coterie.NewFullMesh(full)},
		{"grid", grid, gridProvider},
	}

	for _, tt := range tests {
		for seed := int64(1); seed <= 3; seed++ {
			t.Run(fmt.Sprintf("%s/seed=%d", tt.name, seed), func(t *testing.T) {
				c, err := NewCluster(Options{
					Members:            tt.members,
					Provider:           tt.provider,
					Seed:               seed,
					SessionRounds:      2,
					RequestProbability: 0.2,
				})
				require.NoError(t, err)

				require.NoError(t, c.Run(3000))
				assert.Empty(t, c.Monitor().Violations())

				for _, id := range tt.members {
					assert.Positive(t, c.Monitor().Admissions(id), "%s never entered", id)
				}

				// Every outstanding bid is served once bidding stops.
				c.SetRequestProbability(0)
				ok, err := c.RunUntil(c.Quiescent, 2000)
				require.NoError(t, err)
				assert.True(t, ok, "cluster should settle")
				assert.Empty(t, c.Monitor().Violations())
				assert.Empty(t, c.Monitor().Inside())
			})
		}
	}
}

func TestCluster_SingleMember(t *testing.T) {
	c, err := NewCluster(Options{
		Members:  []mutex.ID{"solo"},
		Provider: coterie.NewFullMesh([]mutex.ID{"solo"}),
	})
	require.NoError(t, err)

	require.NoError(t, c.Request("solo"))
	assert.True(t, c.Engine("solo").IsInCriticalSection())
	assert.Zero(t, c.InFlight())

	ok, err := c.RunUntil(c.Quiescent, 10)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, c.Monitor().Admissions("solo"))
}

func TestCluster_DuplicateBid(t *testing.T) {
	members := []mutex.ID{"A", "B"}
	c, err := NewCluster(Options{Members: members, Provider: coterie.NewFullMesh(members)})
	require.NoError(t, err)

	require.NoError(t, c.Request("A"))
	assert.ErrorIs(t, c.Request("A"), mutex.ErrDuplicateEntryRequest)
	assert.Error(t, c.Request("Z"))
}

func TestNewCluster_Invalid(t *testing.T) {
	_, err := NewCluster(Options{})
	assert.Error(t, err)

	_, err = NewCluster(Options{Members: []mutex.ID{"A"}})
	assert.Error(t, err)

	_, err = NewCluster(Options{
		Members:  []mutex.ID{"A", "A"},
		Provider: coterie.NewFullMesh([]mutex.ID{"A"}),
	})
	assert.Error(t, err)
}

func TestMonitor_FlagsOverlap(t *testing.T) {
	m := NewMonitor()
	m.Observe(mutex.Event{Node: "A", Action: mutex.ActionEnter, Round: 1})
	m.Observe(mutex.Event{Node: "B", Action: mutex.ActionEnter, Round: 2})
	m.Observe(mutex.Event{Node: "A", Action: mutex.ActionExit})
	m.Observe(mutex.Event{Node: "B", Action: mutex.ActionExit})
	m.Observe(mutex.Event{Node: "C", Action: mutex.ActionEnter, Round: 3})

	v := m.Violations()
	require.Len(t, v, 1)
	assert.Equal(t, mutex.ID("B"), v[0].Node)
	assert.Equal(t, []mutex.ID{"A"}, v[0].Holders)
	assert.Equal(t, []mutex.ID{"C"}, m.Inside())
	assert.Len(t, m.Entries(), 3)
}
