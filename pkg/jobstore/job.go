package jobstore

import (
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"

	"github.com/3leaps/dynastore/pkg/storage"
)

// JobDetail is a durable job definition. Identity is (Name, Group).
type JobDetail struct {
	Key         JobKey
	Description string

	// JobType identifies the executable code for this job; it is
	// resolved by the scheduling framework, not the store.
	JobType string

	// JobData is the opaque payload handed to the job at execution.
	JobData map[string]string

	// Durable jobs survive having zero triggers.
	Durable bool

	// PersistJobDataAfterExecution stores the (possibly mutated)
	// JobData back after each execution.
	PersistJobDataAfterExecution bool

	// ConcurrentExecutionDisallowed serializes executions of this job:
	// at most one trigger for it may be acquired or executing at a time.
	ConcurrentExecutionDisallowed bool

	// RequestsRecovery asks the scheduler to re-execute the job if an
	// instance dies mid-execution.
	RequestsRecovery bool
}

// Clone returns a deep copy so engine mutations never alias caller state.
func (j *JobDetail) Clone() *JobDetail {
	out := *j
	if j.JobData != nil {
		out.JobData = make(map[string]string, len(j.JobData))
		for k, v := range j.JobData {
			out.JobData[k] = v
		}
	}
	return &out
}

// TableName implements Entity.
func (j *JobDetail) TableName() string { return TableJob }

// KeyRecord implements Entity.
func (j *JobDetail) KeyRecord() storage.Record {
	return jobKeyRecord(j.Key)
}

func jobKeyRecord(key JobKey) storage.Record {
	return storage.Record{
		attrGroup: attrS(key.Group),
		attrName:  attrS(key.Name),
	}
}

// MarshalRecord implements Entity.
func (j *JobDetail) MarshalRecord() (storage.Record, error) {
	rec := storage.Record{
		attrGroup:                       attrS(j.Key.Group),
		attrName:                        attrS(j.Key.Name),
		"JobType":                       attrS(j.JobType),
		"Durable":                       attrBool(j.Durable),
		"PersistJobDataAfterExecution":  attrBool(j.PersistJobDataAfterExecution),
		"ConcurrentExecutionDisallowed": attrBool(j.ConcurrentExecutionDisallowed),
		"RequestsRecovery":              attrBool(j.RequestsRecovery),
	}
	setOptS(rec, "Description", j.Description)

	if len(j.JobData) > 0 {
		data, err := attributevalue.Marshal(j.JobData)
		if err != nil {
			return nil, err
		}
		rec["JobData"] = data
	}
	return rec, nil
}

// UnmarshalRecord implements Entity.
func (j *JobDetail) UnmarshalRecord(rec storage.Record) error {
	j.Key = JobKey{Name: getS(rec, attrName), Group: getS(rec, attrGroup)}
	j.Description = getS(rec, "Description")
	j.JobType = getS(rec, "JobType")
	j.Durable = getBool(rec, "Durable")
	j.PersistJobDataAfterExecution = getBool(rec, "PersistJobDataAfterExecution")
	j.ConcurrentExecutionDisallowed = getBool(rec, "ConcurrentExecutionDisallowed")
	j.RequestsRecovery = getBool(rec, "RequestsRecovery")

	j.JobData = nil
	if data, ok := rec["JobData"]; ok {
		return attributevalue.Unmarshal(data, &j.JobData)
	}
	return nil
}
