package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/jiahaoliu666/aws-blog-sub002/internal/domain"
)

// FailedNotificationRepo is the store-backed failed-notification queue.
// Backing the queue with a table means queued deliveries survive restarts.
type FailedNotificationRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewFailedNotificationRepo(client *dynamodb.Client, tableName string) *FailedNotificationRepo {
	return &FailedNotificationRepo{client: client, tableName: tableName}
}

func (r *FailedNotificationRepo) Put(ctx context.Context, e *domain.FailedNotification) error {
	item, err := attributevalue.MarshalMap(e)
	if err != nil {
		return fmt.Errorf("marshal failed notification: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

// List scans the whole queue. The queue only holds entries between a failed
// send and a successful (or terminal) replay, so it stays small.
func (r *FailedNotificationRepo) List(ctx context.Context) ([]domain.FailedNotification, error) {
	var entries []domain.FailedNotification
	paginator := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{
		TableName: aws.String(r.tableName),
	})
	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		var page []domain.FailedNotification
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, err
		}
		entries = append(entries, page...)
	}
	return entries, nil
}

func (r *FailedNotificationRepo) Delete(ctx context.Context, entryID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("entry_id", entryID),
	})
	return err
}

// RecordRetry persists the outcome of a failed replay attempt.
func (r *FailedNotificationRepo) RecordRetry(ctx context.Context, entryID string, retryCount int, lastRetryMS int64) error {
	ue, err := buildUpdateExpr(map[string]interface{}{
		"retry_count":     retryCount,
		"last_retry_time": lastRetryMS,
	})
	if err != nil {
		return err
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("entry_id", entryID),
		UpdateExpression:          aws.String(ue.Expr),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	return err
}
