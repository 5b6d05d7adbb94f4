package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/dynastore/pkg/storage"
)

const testTable = "Triggers"

func newTestTable(t *testing.T) *Store {
	t.Helper()
	s := New()
	require.NoError(t, s.CreateTable(context.Background(), testTable, storage.TableSpec{
		HashKey:  "Group",
		RangeKey: "Name",
	}))
	return s
}

func item(group, name string, extra ...string) storage.Record {
	rec := storage.Record{
		"Group": &types.AttributeValueMemberS{Value: group},
		"Name":  &types.AttributeValueMemberS{Value: name},
	}
	for i := 0; i+1 < len(extra); i += 2 {
		rec[extra[i]] = &types.AttributeValueMemberS{Value: extra[i+1]}
	}
	return rec
}

func TestPutAndGet(t *testing.T) {
	s := newTestTable(t)
	ctx := context.Background()

	prior, err := s.Put(ctx, testTable, item("DEFAULT", "t1", "State", "Waiting"), nil)
	require.NoError(t, err)
	assert.Nil(t, prior, "fresh put has no prior item")

	got, err := s.Get(ctx, testTable, item("DEFAULT", "t1"))
	require.NoError(t, err)
	assert.Equal(t, "Waiting", stringAttr(got["State"]))

	// Same name under a different group is a different item.
	_, err = s.Get(ctx, testTable, item("batch", "t1"))
	assert.True(t, storage.IsNotFound(err))
}

func TestPutReturnsPriorItem(t *testing.T) {
	s := newTestTable(t)
	ctx := context.Background()

	_, err := s.Put(ctx, testTable, item("DEFAULT", "t1", "State", "Waiting"), nil)
	require.NoError(t, err)

	prior, err := s.Put(ctx, testTable, item("DEFAULT", "t1", "State", "Acquired"), nil)
	require.NoError(t, err)
	require.NotNil(t, prior)
	assert.Equal(t, "Waiting", stringAttr(prior["State"]))
}

func TestConditionAbsentAttr(t *testing.T) {
	s := newTestTable(t)
	ctx := context.Background()

	// Keyed on a key attribute this means "must not exist".
	cond := &storage.Condition{AbsentAttr: "Name"}
	_, err := s.Put(ctx, testTable, item("DEFAULT", "t1"), cond)
	require.NoError(t, err)

	_, err = s.Put(ctx, testTable, item("DEFAULT", "t1"), cond)
	assert.True(t, storage.IsConditionFailed(err))

	// A different item is unaffected.
	_, err = s.Put(ctx, testTable, item("DEFAULT", "t2"), cond)
	assert.NoError(t, err)
}

func TestConditionEquals(t *testing.T) {
	s := newTestTable(t)
	ctx := context.Background()

	_, err := s.Put(ctx, testTable, item("DEFAULT", "t1", "State", "Waiting"), nil)
	require.NoError(t, err)

	expect := func(state string) *storage.Condition {
		return &storage.Condition{Equals: storage.Record{
			"State": &types.AttributeValueMemberS{Value: state},
		}}
	}

	// Matching guard applies.
	_, err = s.Put(ctx, testTable, item("DEFAULT", "t1", "State", "Acquired"), expect("Waiting"))
	require.NoError(t, err)

	// The losing side of the race sees a condition failure and the
	// winner's write is untouched.
	_, err = s.Put(ctx, testTable, item("DEFAULT", "t1", "State", "Acquired"), expect("Waiting"))
	assert.True(t, storage.IsConditionFailed(err))

	got, err := s.Get(ctx, testTable, item("DEFAULT", "t1"))
	require.NoError(t, err)
	assert.Equal(t, "Acquired", stringAttr(got["State"]))
}

func TestConditionEqualsAgainstAbsentItemFails(t *testing.T) {
	s := newTestTable(t)

	cond := &storage.Condition{Equals: storage.Record{
		"State": &types.AttributeValueMemberS{Value: "Waiting"},
	}}
	_, err := s.Put(context.Background(), testTable, item("DEFAULT", "ghost"), cond)
	assert.True(t, storage.IsConditionFailed(err))
}

func TestConditionEqualsMissingAttributeFails(t *testing.T) {
	s := newTestTable(t)
	ctx := context.Background()

	_, err := s.Put(ctx, testTable, item("DEFAULT", "t1"), nil)
	require.NoError(t, err)

	cond := &storage.Condition{Equals: storage.Record{
		"State": &types.AttributeValueMemberS{Value: "Waiting"},
	}}
	_, err = s.Put(ctx, testTable, item("DEFAULT", "t1", "State", "Waiting"), cond)
	assert.True(t, storage.IsConditionFailed(err))
}

func TestStoredItemsAreIsolatedFromCallers(t *testing.T) {
	s := newTestTable(t)
	ctx := context.Background()

	in := item("DEFAULT", "t1", "State", "Waiting")
	_, err := s.Put(ctx, testTable, in, nil)
	require.NoError(t, err)

	// Mutating the caller's record after Put must not leak into the store.
	in["State"] = &types.AttributeValueMemberS{Value: "Corrupted"}

	got, err := s.Get(ctx, testTable, item("DEFAULT", "t1"))
	require.NoError(t, err)
	assert.Equal(t, "Waiting", stringAttr(got["State"]))

	// Nor must mutating a returned record leak back.
	got["State"] = &types.AttributeValueMemberS{Value: "AlsoCorrupted"}
	again, err := s.Get(ctx, testTable, item("DEFAULT", "t1"))
	require.NoError(t, err)
	assert.Equal(t, "Waiting", stringAttr(again["State"]))
}

func TestDelete(t *testing.T) {
	s := newTestTable(t)
	ctx := context.Background()

	_, err := s.Put(ctx, testTable, item("DEFAULT", "t1"), nil)
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, testTable, item("DEFAULT", "t1")))
	_, err = s.Get(ctx, testTable, item("DEFAULT", "t1"))
	assert.True(t, storage.IsNotFound(err))

	// Deleting an absent item or from an absent table is not an error.
	assert.NoError(t, s.Delete(ctx, testTable, item("DEFAULT", "t1")))
	assert.NoError(t, s.Delete(ctx, "NoSuchTable", item("DEFAULT", "t1")))
}

func TestScanIsStableAndCompleteAndAbsentTableIsEmpty(t *testing.T) {
	s := newTestTable(t)
	ctx := context.Background()

	for _, name := range []string{"c", "a", "b"} {
		_, err := s.Put(ctx, testTable, item("DEFAULT", name), nil)
		require.NoError(t, err)
	}

	items, err := s.Scan(ctx, testTable)
	require.NoError(t, err)
	require.Len(t, items, 3)
	for i, want := range []string{"a", "b", "c"} {
		assert.Equal(t, want, stringAttr(items[i]["Name"]))
	}

	empty, err := s.Scan(ctx, "NoSuchTable")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestBatchPut(t *testing.T) {
	s := newTestTable(t)
	ctx := context.Background()

	items := make([]storage.Record, 40)
	for i := range items {
		items[i] = item("DEFAULT", fmt.Sprintf("t%02d", i))
	}
	require.NoError(t, s.BatchPut(ctx, testTable, items))

	info, err := s.DescribeTable(ctx, testTable)
	require.NoError(t, err)
	assert.Equal(t, int64(40), info.ItemCount)
	assert.Equal(t, storage.TableStatusActive, info.Status)
}

func TestTableLifecycle(t *testing.T) {
	s := New()
	ctx := context.Background()
	spec := storage.TableSpec{HashKey: "Group", RangeKey: "Name"}

	_, err := s.DescribeTable(ctx, testTable)
	assert.True(t, storage.IsTableNotFound(err))

	require.NoError(t, s.CreateTable(ctx, testTable, spec))
	_, err = s.Put(ctx, testTable, item("DEFAULT", "t1"), nil)
	require.NoError(t, err)

	// Re-creating must not wipe existing data.
	require.NoError(t, s.CreateTable(ctx, testTable, spec))
	info, err := s.DescribeTable(ctx, testTable)
	require.NoError(t, err)
	assert.Equal(t, int64(1), info.ItemCount)

	require.NoError(t, s.DeleteTable(ctx, testTable))
	_, err = s.DescribeTable(ctx, testTable)
	assert.True(t, storage.IsTableNotFound(err))
}

func TestConcurrentConditionalPutsAdmitOneWinner(t *testing.T) {
	s := newTestTable(t)
	ctx := context.Background()

	_, err := s.Put(ctx, testTable, item("DEFAULT", "t1", "State", "Waiting"), nil)
	require.NoError(t, err)

	cond := &storage.Condition{Equals: storage.Record{
		"State": &types.AttributeValueMemberS{Value: "Waiting"},
	}}

	const workers = 16
	var wg sync.WaitGroup
	wins := make(chan int, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			rec := item("DEFAULT", "t1", "State", "Acquired", "Owner", fmt.Sprintf("w%d", id))
			if _, err := s.Put(ctx, testTable, rec, cond); err == nil {
				wins <- id
			} else if !storage.IsConditionFailed(err) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	var winners []int
	for id := range wins {
		winners = append(winners, id)
	}
	require.Len(t, winners, 1)

	got, err := s.Get(ctx, testTable, item("DEFAULT", "t1"))
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("w%d", winners[0]), stringAttr(got["Owner"]))
}
