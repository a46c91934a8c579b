package videosync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGroup(t *testing.T) {
	group, err := NewGroup(Topology{{3, 1}, {2, 3}})
	require.NoError(t, err)

	assert.Equal(t, []ChannelID{1, 2, 3}, group.Members())
	assert.Equal(t, ChannelID(1), group.Reference())
	assert.Equal(t, 3, group.Size())
	assert.True(t, group.Contains(2))
	assert.False(t, group.Contains(4))
}

func TestNewGroup_ElectsMinimum(t *testing.T) {
	group, err := NewGroup(Topology{{9, 7}, {8}})
	require.NoError(t, err)
	assert.Equal(t, ChannelID(7), group.Reference())
}

func TestNewGroup_SingleMember(t *testing.T) {
	group, err := NewGroup(Topology{{5}})
	require.NoError(t, err)
	assert.Equal(t, ChannelID(5), group.Reference())
	assert.Equal(t, 1, group.Size())
}

func TestNewGroup_Invalid(t *testing.T) {
	_, err := NewGroup(nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewGroup(Topology{{}, {}})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestGroup_MembersIsCopy(t *testing.T) {
	group, err := NewGroup(Topology{{1, 2}})
	require.NoError(t, err)

	members := group.Members()
	members[0] = 99
	assert.Equal(t, ChannelID(1), group.Reference())
	assert.True(t, group.Contains(1))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "awaiting_group_ready", StateAwaitingGroupReady.String())
	assert.Equal(t, "destroyed", StateDestroyed.String())
	assert.Equal(t, "unknown", State(42).String())
}
