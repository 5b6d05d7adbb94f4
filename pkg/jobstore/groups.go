package jobstore

import (
	"github.com/3leaps/dynastore/pkg/storage"
)

// GroupState marks a job or trigger group active or paused. A group
// record outlives its members: pausing a group that has no members
// (yet) durably records the pause, and members stored later inherit it.
type GroupState string

const (
	GroupStateActive GroupState = "Active"
	GroupStatePaused GroupState = "Paused"
)

// JobGroup is the persisted pause state of a job group.
type JobGroup struct {
	Name  string
	State GroupState
}

// TableName implements Entity.
func (g *JobGroup) TableName() string { return TableJobGroup }

// KeyRecord implements Entity.
func (g *JobGroup) KeyRecord() storage.Record {
	return storage.Record{attrName: attrS(g.Name)}
}

// MarshalRecord implements Entity.
func (g *JobGroup) MarshalRecord() (storage.Record, error) {
	return storage.Record{
		attrName:  attrS(g.Name),
		attrState: attrS(string(g.State)),
	}, nil
}

// UnmarshalRecord implements Entity.
func (g *JobGroup) UnmarshalRecord(rec storage.Record) error {
	g.Name = getS(rec, attrName)
	g.State = GroupState(getS(rec, attrState))
	return nil
}

// TriggerGroup is the persisted pause state of a trigger group.
type TriggerGroup struct {
	Name  string
	State GroupState
}

// TableName implements Entity.
func (g *TriggerGroup) TableName() string { return TableTriggerGroup }

// KeyRecord implements Entity.
func (g *TriggerGroup) KeyRecord() storage.Record {
	return storage.Record{attrName: attrS(g.Name)}
}

// MarshalRecord implements Entity.
func (g *TriggerGroup) MarshalRecord() (storage.Record, error) {
	return storage.Record{
		attrName:  attrS(g.Name),
		attrState: attrS(string(g.State)),
	}, nil
}

// UnmarshalRecord implements Entity.
func (g *TriggerGroup) UnmarshalRecord(rec storage.Record) error {
	g.Name = getS(rec, attrName)
	g.State = GroupState(getS(rec, attrState))
	return nil
}
