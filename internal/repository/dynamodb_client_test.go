package repository

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"gmail-archiver/internal/domain"
)

type fakeDynamo struct {
	putErr       error
	queryOut     *dynamodb.QueryOutput
	queryErr     error
	lastPutInput *dynamodb.PutItemInput
	lastQueryIn  *dynamodb.QueryInput
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.lastPutInput = in
	return &dynamodb.PutItemOutput{}, f.putErr
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.lastQueryIn = in
	return f.queryOut, f.queryErr
}

func mustNewLedger(t *testing.T, db *fakeDynamo) *RunLedger {
	t.Helper()
	l, err := NewRunLedger(db, "runs-table", time.Hour)
	require.NoError(t, err)
	return l
}

func sampleRun() domain.RunRecord {
	started := time.Date(2026, 10, 1, 6, 0, 0, 0, time.UTC)
	return domain.RunRecord{
		RunID:      "run-1",
		Namespace:  "user_xyz",
		Filter:     "in:inbox newer_than:1d",
		Status:     "partial",
		Summary:    domain.Summary{Attempted: 5, Succeeded: 4, Failed: 1},
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Second),
	}
}

func sAttr(t *testing.T, item map[string]types.AttributeValue, key string) string {
	t.Helper()
	v, ok := item[key].(*types.AttributeValueMemberS)
	require.True(t, ok, "attribute %q", key)
	return v.Value
}

func nAttr(t *testing.T, item map[string]types.AttributeValue, key string) string {
	t.Helper()
	v, ok := item[key].(*types.AttributeValueMemberN)
	require.True(t, ok, "attribute %q", key)
	return v.Value
}

func TestRecordRun_HappyPath(t *testing.T) {
	db := &fakeDynamo{}
	l := mustNewLedger(t, db)
	run := sampleRun()

	require.NoError(t, l.RecordRun(context.Background(), run))

	in := db.lastPutInput
	require.Equal(t, "runs-table", *in.TableName)
	require.Equal(t, "attribute_not_exists(PK) AND attribute_not_exists(SK)", *in.ConditionExpression)
	require.Equal(t, "RUN#user_xyz", sAttr(t, in.Item, "PK"))
	require.Equal(t, "2026-10-01T06:00:00Z#run-1", sAttr(t, in.Item, "SK"))
	require.Equal(t, "partial", sAttr(t, in.Item, "status"))
	require.Equal(t, "5", nAttr(t, in.Item, "attempted"))
	require.Equal(t, "4", nAttr(t, in.Item, "succeeded"))
	require.Equal(t, "1", nAttr(t, in.Item, "failed"))
	require.Equal(t, strconv.FormatInt(run.StartedAt.Add(time.Hour).Unix(), 10), nAttr(t, in.Item, "ttl"))
}

func TestRecordRun_DynamoError(t *testing.T) {
	db := &fakeDynamo{putErr: errors.New("ProvisionedThroughputExceededException")}
	l := mustNewLedger(t, db)
	err := l.RecordRun(context.Background(), sampleRun())
	require.Error(t, err)
	require.Contains(t, err.Error(), "RecordRun")
}

func TestRecordRun_MissingKeys(t *testing.T) {
	l := mustNewLedger(t, &fakeDynamo{})

	run := sampleRun()
	run.RunID = ""
	require.ErrorContains(t, l.RecordRun(context.Background(), run), "required")

	run = sampleRun()
	run.Namespace = ""
	require.ErrorContains(t, l.RecordRun(context.Background(), run), "required")
}

func TestRecentRuns_RoundTrip(t *testing.T) {
	db := &fakeDynamo{}
	l := mustNewLedger(t, db)
	run := sampleRun()
	require.NoError(t, l.RecordRun(context.Background(), run))

	db.queryOut = &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{db.lastPutInput.Item}}
	runs, err := l.RecentRuns(context.Background(), "user_xyz", 5)
	require.NoError(t, err)
	require.Equal(t, []domain.RunRecord{run}, runs)

	require.Equal(t, "PK = :pk", *db.lastQueryIn.KeyConditionExpression)
	require.False(t, *db.lastQueryIn.ScanIndexForward)
	require.Equal(t, int32(5), *db.lastQueryIn.Limit)
}

func TestRecentRuns_DefaultLimit(t *testing.T) {
	db := &fakeDynamo{queryOut: &dynamodb.QueryOutput{}}
	l := mustNewLedger(t, db)
	runs, err := l.RecentRuns(context.Background(), "user_xyz", 0)
	require.NoError(t, err)
	require.Empty(t, runs)
	require.Equal(t, int32(10), *db.lastQueryIn.Limit)
}

func TestRecentRuns_QueryError(t *testing.T) {
	db := &fakeDynamo{queryErr: errors.New("ResourceNotFoundException")}
	l := mustNewLedger(t, db)
	_, err := l.RecentRuns(context.Background(), "user_xyz", 5)
	require.Error(t, err)
	require.Contains(t, err.Error(), "RecentRuns")
}

func TestRecentRuns_MalformedItem(t *testing.T) {
	item := map[string]types.AttributeValue{
		"runId":     &types.AttributeValueMemberS{Value: "run-1"},
		"namespace": &types.AttributeValueMemberS{Value: "user_xyz"},
		"status":    &types.AttributeValueMemberS{Value: "success"},
		"attempted": &types.AttributeValueMemberS{Value: "bad"},
	}
	db := &fakeDynamo{queryOut: &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{item}}}
	l := mustNewLedger(t, db)
	_, err := l.RecentRuns(context.Background(), "user_xyz", 5)
	require.Error(t, err)
	require.Contains(t, err.Error(), "attempted")
}

func TestRunSK_OrdersChronologically(t *testing.T) {
	earlier := runSK(time.Date(2026, 10, 1, 6, 0, 0, 0, time.UTC), "b")
	later := runSK(time.Date(2026, 10, 2, 6, 0, 0, 0, time.UTC), "a")
	require.Less(t, earlier, later)
}

func TestNewRunLedger_Validation(t *testing.T) {
	_, err := NewRunLedger(nil, "runs-table", 0)
	require.ErrorContains(t, err, "must not be nil")

	_, err = NewRunLedger(&fakeDynamo{}, " ", 0)
	require.ErrorContains(t, err, "must not be empty")

	l, err := NewRunLedger(&fakeDynamo{}, "runs-table", 0)
	require.NoError(t, err)
	require.Equal(t, defaultTTLDuration, l.ttl)
}
