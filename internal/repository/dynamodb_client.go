package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"gmail-archiver/internal/domain"
)

const (
	pkPrefixRun        = "RUN#"
	defaultTTLDuration = 30 * 24 * time.Hour
)

// dynamodbAPI is the minimal DynamoDB interface required by RunLedger.
// Defined here for testability.
type dynamodbAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// RunLedger records one item per archive run, partitioned by namespace and
// sorted by start time.
type RunLedger struct {
	api       dynamodbAPI
	tableName string
	ttl       time.Duration
}

// NewRunLedger creates a RunLedger. A non-positive ttl selects 30 days.
func NewRunLedger(api dynamodbAPI, tableName string, ttl time.Duration) (*RunLedger, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	if ttl <= 0 {
		ttl = defaultTTLDuration
	}
	return &RunLedger{api: api, tableName: tableName, ttl: ttl}, nil
}

// runPK returns the partition key for a namespace.
func runPK(namespace string) string {
	return pkPrefixRun + namespace
}

// runSK orders runs chronologically; the run id keeps same-instant runs apart.
func runSK(startedAt time.Time, runID string) string {
	return startedAt.UTC().Format(time.RFC3339Nano) + "#" + runID
}

// RecordRun writes the run item. Items are never updated in place.
func (l *RunLedger) RecordRun(ctx context.Context, run domain.RunRecord) error {
	if run.RunID == "" || run.Namespace == "" {
		return errors.New("repository: RecordRun: run id and namespace are required")
	}
	_, err := l.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(l.tableName),
		Item:                l.runItem(run),
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return fmt.Errorf("repository: RecordRun: %w", err)
	}
	return nil
}

// RecentRuns returns up to limit runs for a namespace, newest first.
func (l *RunLedger) RecentRuns(ctx context.Context, namespace string, limit int) ([]domain.RunRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	out, err := l.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(l.tableName),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: runPK(namespace)},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: RecentRuns query: %w", err)
	}

	runs := make([]domain.RunRecord, 0, len(out.Items))
	for _, item := range out.Items {
		run, err := itemToRun(item)
		if err != nil {
			return nil, fmt.Errorf("repository: RecentRuns unmarshal: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, nil
}

func (l *RunLedger) runItem(run domain.RunRecord) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":         &types.AttributeValueMemberS{Value: runPK(run.Namespace)},
		"SK":         &types.AttributeValueMemberS{Value: runSK(run.StartedAt, run.RunID)},
		"runId":      &types.AttributeValueMemberS{Value: run.RunID},
		"namespace":  &types.AttributeValueMemberS{Value: run.Namespace},
		"filter":     &types.AttributeValueMemberS{Value: run.Filter},
		"status":     &types.AttributeValueMemberS{Value: run.Status},
		"errorCode":  &types.AttributeValueMemberS{Value: run.ErrorCode},
		"attempted":  &types.AttributeValueMemberN{Value: strconv.Itoa(run.Summary.Attempted)},
		"succeeded":  &types.AttributeValueMemberN{Value: strconv.Itoa(run.Summary.Succeeded)},
		"failed":     &types.AttributeValueMemberN{Value: strconv.Itoa(run.Summary.Failed)},
		"startedAt":  &types.AttributeValueMemberS{Value: run.StartedAt.UTC().Format(time.RFC3339Nano)},
		"finishedAt": &types.AttributeValueMemberS{Value: run.FinishedAt.UTC().Format(time.RFC3339Nano)},
		"ttl":        &types.AttributeValueMemberN{Value: strconv.FormatInt(run.StartedAt.Add(l.ttl).Unix(), 10)},
	}
}

// itemToRun converts a DynamoDB attribute map to a RunRecord.
func itemToRun(item map[string]types.AttributeValue) (domain.RunRecord, error) {
	runID, err := strAttr(item, "runId")
	if err != nil {
		return domain.RunRecord{}, err
	}
	namespace, err := strAttr(item, "namespace")
	if err != nil {
		return domain.RunRecord{}, err
	}
	status, err := strAttr(item, "status")
	if err != nil {
		return domain.RunRecord{}, err
	}
	filter, _ := strAttr(item, "filter")       // allow empty
	errorCode, _ := strAttr(item, "errorCode") // allow empty

	run := domain.RunRecord{
		RunID:     runID,
		Namespace: namespace,
		Filter:    filter,
		Status:    status,
		ErrorCode: errorCode,
	}
	if run.Summary.Attempted, err = intAttr(item, "attempted"); err != nil {
		return domain.RunRecord{}, err
	}
	if run.Summary.Succeeded, err = intAttr(item, "succeeded"); err != nil {
		return domain.RunRecord{}, err
	}
	if run.Summary.Failed, err = intAttr(item, "failed"); err != nil {
		return domain.RunRecord{}, err
	}
	if run.StartedAt, err = timeAttr(item, "startedAt"); err != nil {
		return domain.RunRecord{}, err
	}
	if run.FinishedAt, err = timeAttr(item, "finishedAt"); err != nil {
		return domain.RunRecord{}, err
	}
	return run, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}

func timeAttr(item map[string]types.AttributeValue, key string) (time.Time, error) {
	s, err := strAttr(item, key)
	if err != nil {
		return time.Time{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return ts, nil
}
