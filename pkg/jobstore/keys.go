// Package jobstore implements a DynamoDB-backed job store for
// scheduler clusters: durable jobs, triggers, calendars, group pause
// state, and the multi-instance trigger acquisition protocol.
//
// Multiple scheduler processes run against the same tables with no
// shared locks; every exclusive state transition is a conditional
// write, and a failed condition means another instance won the race.
package jobstore

// JobKey identifies a job by name within a group.
type JobKey struct {
	Name  string
	Group string
}

// NewJobKey creates a key in the default group.
func NewJobKey(name string) JobKey {
	return JobKey{Name: name, Group: DefaultGroup}
}

// String returns the conventional "group.name" rendering.
func (k JobKey) String() string {
	return k.Group + "." + k.Name
}

// TriggerKey identifies a trigger by name within a group.
type TriggerKey struct {
	Name  string
	Group string
}

// NewTriggerKey creates a key in the default group.
func NewTriggerKey(name string) TriggerKey {
	return TriggerKey{Name: name, Group: DefaultGroup}
}

// String returns the conventional "group.name" rendering.
func (k TriggerKey) String() string {
	return k.Group + "." + k.Name
}

// DefaultGroup is the group assigned when callers leave it empty.
const DefaultGroup = "DEFAULT"

type matchOp int

const (
	matchEquals matchOp = iota
	matchStartsWith
	matchAny
)

// GroupMatcher selects job or trigger groups by exact name, prefix, or
// everything. Matchers are also resolved against group names that have
// no stored record yet, so pausing a never-seen group is durable.
type GroupMatcher struct {
	op    matchOp
	value string
}

// GroupEquals matches exactly one group name.
func GroupEquals(name string) GroupMatcher {
	return GroupMatcher{op: matchEquals, value: name}
}

// GroupStartsWith matches groups sharing a prefix.
func GroupStartsWith(prefix string) GroupMatcher {
	return GroupMatcher{op: matchStartsWith, value: prefix}
}

// AnyGroup matches every group.
func AnyGroup() GroupMatcher {
	return GroupMatcher{op: matchAny}
}

// Matches reports whether the group name satisfies the matcher.
func (m GroupMatcher) Matches(group string) bool {
	switch m.op {
	case matchEquals:
		return group == m.value
	case matchStartsWith:
		return len(group) >= len(m.value) && group[:len(m.value)] == m.value
	default:
		return true
	}
}

// Literal returns the exact group name for an equals matcher, and ""
// for any other matcher kind. Used to pause groups that do not exist.
func (m GroupMatcher) Literal() string {
	if m.op == matchEquals {
		return m.value
	}
	return ""
}
