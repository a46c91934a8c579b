package videosync

import (
	"fmt"
	"sort"
	"strconv"
)

// ChannelID identifies a display endpoint on the messaging channel.
// IDs are totally ordered; the smallest member of a group is its reference.
type ChannelID int

func (id ChannelID) String() string {
	return strconv.Itoa(int(id))
}

// Topology is the wall layout: rows of channel IDs.
type Topology [][]ChannelID

// Group is the fixed membership of one synchronized session.
type Group struct {
	members   []ChannelID
	reference ChannelID
}

// NewGroup flattens the topology into a deduplicated, sorted member set and
// elects the minimum channel ID as the reference endpoint.
func NewGroup(topology Topology) (Group, error) {
	if len(topology) == 0 {
		return Group{}, fmt.Errorf("%w: empty topology", ErrInvalidArgument)
	}

	seen := make(map[ChannelID]struct{})
	var members []ChannelID
	for _, row := range topology {
		for _, id := range row {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			members = append(members, id)
		}
	}
	if len(members) == 0 {
		return Group{}, fmt.Errorf("%w: topology has no channels", ErrInvalidArgument)
	}

	sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })

	return Group{
		members:   members,
		reference: members[0],
	}, nil
}

// Members returns a copy of the member IDs in ascending order.
func (g Group) Members() []ChannelID {
	out := make([]ChannelID, len(g.members))
	copy(out, g.members)
	return out
}

// Reference returns the elected reference endpoint.
func (g Group) Reference() ChannelID {
	return g.reference
}

// Contains reports whether id is a member of the group.
func (g Group) Contains(id ChannelID) bool {
	i := sort.Search(len(g.members), func(i int) bool { return g.members[i] >= id })
	return i < len(g.members) && g.members[i] == id
}

// Size returns the number of members.
func (g Group) Size() int {
	return len(g.members)
}
