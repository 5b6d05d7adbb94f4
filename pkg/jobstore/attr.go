package jobstore

import (
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/3leaps/dynastore/pkg/storage"
)

// record is a local alias to keep codec signatures short.
type record = storage.Record

// Attribute marshaling helpers shared by every entity codec. Datetimes
// are stored as integer UTC Unix-epoch seconds; sub-second precision is
// not preserved.

func attrS(v string) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: v}
}

func attrN(v int64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(v, 10)}
}

func attrBool(v bool) types.AttributeValue {
	return &types.AttributeValueMemberBOOL{Value: v}
}

func attrTime(t time.Time) types.AttributeValue {
	return attrN(t.UTC().Unix())
}

func getS(rec storage.Record, name string) string {
	if v, ok := rec[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func getN(rec storage.Record, name string) int64 {
	if v, ok := rec[name].(*types.AttributeValueMemberN); ok {
		n, err := strconv.ParseInt(v.Value, 10, 64)
		if err == nil {
			return n
		}
	}
	return 0
}

func getBool(rec storage.Record, name string) bool {
	if v, ok := rec[name].(*types.AttributeValueMemberBOOL); ok {
		return v.Value
	}
	return false
}

func parseEpoch(v string) time.Time {
	n, _ := strconv.ParseInt(v, 10, 64)
	return time.Unix(n, 0).UTC()
}

func getTime(rec storage.Record, name string) (time.Time, bool) {
	if _, ok := rec[name]; !ok {
		return time.Time{}, false
	}
	return time.Unix(getN(rec, name), 0).UTC(), true
}

// setOptTime writes an epoch-seconds attribute only when the time is set.
func setOptTime(rec storage.Record, name string, t *time.Time) {
	if t != nil {
		rec[name] = attrTime(*t)
	}
}

// setOptS writes a string attribute only when non-empty.
func setOptS(rec storage.Record, name, v string) {
	if v != "" {
		rec[name] = attrS(v)
	}
}

// getOptTime reads an optional epoch-seconds attribute.
func getOptTime(rec storage.Record, name string) *time.Time {
	if t, ok := getTime(rec, name); ok {
		return &t
	}
	return nil
}
