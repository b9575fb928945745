// Package dynamodb persists session snapshots and commit history in a
// single DynamoDB table.
package dynamodb

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"catalog-staging/application/ports"
	"catalog-staging/domain/staging"
	"catalog-staging/pkg/errors"
)

// snapshotTTL keeps abandoned sessions from accumulating
const snapshotTTL = 7 * 24 * time.Hour

// DynamoDBAPI is the subset of the DynamoDB client the store uses
type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// SessionStore stores snapshots under SESSION#<id>/SNAPSHOT and
// committed batches under SESSION#<id>/BATCH#<timestamp>#<id>
type SessionStore struct {
	client    DynamoDBAPI
	tableName string
}

// snapshotRecord is the stored form of a session snapshot
type snapshotRecord struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	Blob      []byte `dynamodbav:"Blob"`
	UpdatedAt string `dynamodbav:"UpdatedAt"`
	TTL       int64  `dynamodbav:"TTL,omitempty"`
}

// batchRecord is the stored form of a committed batch
type batchRecord struct {
	PK                 string                   `dynamodbav:"PK"`
	SK                 string                   `dynamodbav:"SK"`
	BatchID            string                   `dynamodbav:"BatchID"`
	SessionID          string                   `dynamodbav:"SessionID"`
	UserID             string                   `dynamodbav:"UserID,omitempty"`
	CommittedAt        string                   `dynamodbav:"CommittedAt"`
	ChangesProcessed   int                      `dynamodbav:"ChangesProcessed"`
	AdditionsProcessed int                      `dynamodbav:"AdditionsProcessed"`
	DeletionsProcessed int                      `dynamodbav:"DeletionsProcessed"`
	AdditionDetails    []map[string]interface{} `dynamodbav:"AdditionDetails,omitempty"`
	DeletionDetails    []map[string]interface{} `dynamodbav:"DeletionDetails,omitempty"`
}

// NewSessionStore creates a DynamoDB-backed session store
func NewSessionStore(client DynamoDBAPI, tableName string) *SessionStore {
	return &SessionStore{client: client, tableName: tableName}
}

func sessionPK(sessionID string) string {
	return "SESSION#" + sessionID
}

// Save stores a snapshot blob for a session
func (s *SessionStore) Save(ctx context.Context, sessionID string, blob []byte) error {
	record := snapshotRecord{
		PK:        sessionPK(sessionID),
		SK:        "SNAPSHOT",
		Blob:      blob,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
		TTL:       time.Now().Add(snapshotTTL).Unix(),
	}

	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return errors.NewInternalError("failed to marshal snapshot record").WithCause(err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return errors.NewExternalError("dynamodb", err)
	}
	return nil
}

// Load returns a session's snapshot blob
func (s *SessionStore) Load(ctx context.Context, sessionID string) ([]byte, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
			"SK": &types.AttributeValueMemberS{Value: "SNAPSHOT"},
		},
	})
	if err != nil {
		return nil, errors.NewExternalError("dynamodb", err)
	}
	if out.Item == nil {
		return nil, errors.NewNotFoundError("session")
	}

	var record snapshotRecord
	if err := attributevalue.UnmarshalMap(out.Item, &record); err != nil {
		return nil, errors.NewInternalError("failed to unmarshal snapshot record").WithCause(err)
	}
	return record.Blob, nil
}

// Delete removes a session's snapshot blob
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
			"SK": &types.AttributeValueMemberS{Value: "SNAPSHOT"},
		},
	})
	if err != nil {
		return errors.NewExternalError("dynamodb", err)
	}
	return nil
}

// AppendHistory records a committed batch for a session
func (s *SessionStore) AppendHistory(ctx context.Context, sessionID string, batch ports.CommittedBatch) error {
	record := batchRecord{
		PK:                 sessionPK(sessionID),
		SK:                 fmt.Sprintf("BATCH#%s#%s", batch.CommittedAt, batch.BatchID),
		BatchID:            batch.BatchID,
		SessionID:          sessionID,
		UserID:             batch.UserID,
		CommittedAt:        batch.CommittedAt,
		ChangesProcessed:   batch.ChangesProcessed,
		AdditionsProcessed: batch.AdditionsProcessed,
		DeletionsProcessed: batch.DeletionsProcessed,
	}
	for _, d := range batch.AdditionDetails {
		record.AdditionDetails = append(record.AdditionDetails, map[string]interface{}{
			"tempId":    d.TempID,
			"real_id":   d.RealID,
			"name":      d.Name,
			"type":      d.Type,
			"parent_id": d.ParentID,
		})
	}
	for _, d := range batch.DeletionDetails {
		record.DeletionDetails = append(record.DeletionDetails, map[string]interface{}{
			"deleted":    d.Deleted,
			"reparented": d.Reparented,
		})
	}

	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return errors.NewInternalError("failed to marshal batch record").WithCause(err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return errors.NewExternalError("dynamodb", err)
	}
	return nil
}

// History returns a session's committed batches, newest first
func (s *SessionStore) History(ctx context.Context, sessionID string, limit int) ([]ports.CommittedBatch, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :sk)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
			":sk": &types.AttributeValueMemberS{Value: "BATCH#"},
		},
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}

	out, err := s.client.Query(ctx, input)
	if err != nil {
		return nil, errors.NewExternalError("dynamodb", err)
	}

	batches := make([]ports.CommittedBatch, 0, len(out.Items))
	for _, item := range out.Items {
		var record batchRecord
		if err := attributevalue.UnmarshalMap(item, &record); err != nil {
			return nil, errors.NewInternalError("failed to unmarshal batch record").WithCause(err)
		}
		batches = append(batches, recordToBatch(record))
	}
	return batches, nil
}

func recordToBatch(record batchRecord) ports.CommittedBatch {
	batch := ports.CommittedBatch{
		BatchID:            record.BatchID,
		SessionID:          record.SessionID,
		UserID:             record.UserID,
		CommittedAt:        record.CommittedAt,
		ChangesProcessed:   record.ChangesProcessed,
		AdditionsProcessed: record.AdditionsProcessed,
		DeletionsProcessed: record.DeletionsProcessed,
	}
	for _, d := range record.AdditionDetails {
		batch.AdditionDetails = append(batch.AdditionDetails, additionDetailFromMap(d))
	}
	for _, d := range record.DeletionDetails {
		batch.DeletionDetails = append(batch.DeletionDetails, deletionDetailFromMap(d))
	}
	return batch
}

func additionDetailFromMap(m map[string]interface{}) staging.AdditionDetail {
	return staging.AdditionDetail{
		TempID:   stringAt(m, "tempId"),
		RealID:   stringAt(m, "real_id"),
		Name:     stringAt(m, "name"),
		Type:     stringAt(m, "type"),
		ParentID: stringAt(m, "parent_id"),
	}
}

func deletionDetailFromMap(m map[string]interface{}) staging.DeletionDetail {
	return staging.DeletionDetail{
		Deleted:    stringsAt(m, "deleted"),
		Reparented: stringsAt(m, "reparented"),
	}
}

func stringAt(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func stringsAt(m map[string]interface{}, key string) []string {
	raw, ok := m[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
