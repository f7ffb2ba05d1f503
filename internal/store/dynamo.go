package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/recap/devmon/internal/config"
	"github.com/recap/devmon/internal/types"
)

// dynamoAPI is the subset of *dynamodb.Client used by Dynamo.
type dynamoAPI interface {
	dynamodb.ScanAPIClient
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// Dynamo reads heartbeats from and persists device state in DynamoDB.
// The heartbeat table holds one item per device_key, overwritten by devices.
type Dynamo struct {
	client         dynamoAPI
	heartbeatTable string
	stateTable     string
}

type dynamoHeartbeat struct {
	DeviceKey         string   `dynamodbav:"device_key"`
	Timestamp         int64    `dynamodbav:"ts"` // unix milliseconds
	CameraOK          *bool    `dynamodbav:"camera_ok"`
	BufferOK          *bool    `dynamodbav:"buffer_ok"`
	ButtonOK          *bool    `dynamodbav:"button_ok"`
	LastSegmentAgeSec *int64   `dynamodbav:"last_segment_age_sec"`
	DiskFreeGB        *float64 `dynamodbav:"disk_free_gb"`
	CPUTempC          *float64 `dynamodbav:"cpu_temp_c"`
	Notes             string   `dynamodbav:"notes,omitempty"`
}

type dynamoState struct {
	DeviceKey        string `dynamodbav:"device_key"`
	LastSeenTS       int64  `dynamodbav:"last_seen_ts"`
	LastIsOffline    bool   `dynamodbav:"last_is_offline"`
	LastAlertedAt    *int64 `dynamodbav:"last_alerted_at"`
	LastAlertedState string `dynamodbav:"last_alerted_state"`
	UpdatedAt        int64  `dynamodbav:"updated_at"`
}

// OpenDynamo builds a DynamoDB client from the default AWS credential chain.
func OpenDynamo(ctx context.Context, cfg config.DynamoDBConfig) (*Dynamo, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return newDynamo(client, cfg.HeartbeatTable, cfg.StateTable), nil
}

func newDynamo(client dynamoAPI, heartbeatTable, stateTable string) *Dynamo {
	return &Dynamo{
		client:         client,
		heartbeatTable: heartbeatTable,
		stateTable:     stateTable,
	}
}

// LatestHeartbeats scans the whole heartbeat table. A failed page fails the
// read so a partial scan is never treated as a full snapshot.
func (d *Dynamo) LatestHeartbeats(ctx context.Context) ([]types.DeviceHeartbeat, error) {
	paginator := dynamodb.NewScanPaginator(d.client, &dynamodb.ScanInput{
		TableName:      aws.String(d.heartbeatTable),
		ConsistentRead: aws.Bool(true),
	})

	var out []types.DeviceHeartbeat
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("scan heartbeats: %w", err)
		}
		var items []dynamoHeartbeat
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("unmarshal heartbeats: %w", err)
		}
		for _, item := range items {
			out = append(out, types.DeviceHeartbeat{
				DeviceKey:         item.DeviceKey,
				Timestamp:         time.UnixMilli(item.Timestamp).UTC(),
				CameraOK:          types.FlagFromPtr(item.CameraOK),
				BufferOK:          types.FlagFromPtr(item.BufferOK),
				ButtonOK:          types.FlagFromPtr(item.ButtonOK),
				LastSegmentAgeSec: item.LastSegmentAgeSec,
				DiskFreeGB:        item.DiskFreeGB,
				CPUTempC:          item.CPUTempC,
				Notes:             item.Notes,
			})
		}
	}
	return out, nil
}

// Get reads the state item for deviceKey with a strongly consistent read.
func (d *Dynamo) Get(ctx context.Context, deviceKey string) (*types.DeviceStatusState, error) {
	resp, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.stateTable),
		Key: map[string]ddbtypes.AttributeValue{
			"device_key": &ddbtypes.AttributeValueMemberS{Value: deviceKey},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get device state: %w", err)
	}
	if len(resp.Item) == 0 {
		return nil, nil
	}

	var item dynamoState
	if err := attributevalue.UnmarshalMap(resp.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal device state: %w", err)
	}

	st := &types.DeviceStatusState{
		DeviceKey:        item.DeviceKey,
		LastSeenTS:       time.UnixMilli(item.LastSeenTS).UTC(),
		LastIsOffline:    item.LastIsOffline,
		LastAlertedState: types.AlertedState(item.LastAlertedState),
		UpdatedAt:        time.UnixMilli(item.UpdatedAt).UTC(),
	}
	if item.LastAlertedAt != nil {
		at := time.UnixMilli(*item.LastAlertedAt).UTC()
		st.LastAlertedAt = &at
	}
	return st, nil
}

// Upsert puts the state item guarded by a condition on the prior classification.
func (d *Dynamo) Upsert(ctx context.Context, next types.DeviceStatusState, prior *types.DeviceStatusState) error {
	item := dynamoState{
		DeviceKey:        next.DeviceKey,
		LastSeenTS:       next.LastSeenTS.UnixMilli(),
		LastIsOffline:    next.LastIsOffline,
		LastAlertedState: string(next.LastAlertedState),
		UpdatedAt:        next.UpdatedAt.UnixMilli(),
	}
	if item.LastAlertedState == "" {
		item.LastAlertedState = string(types.AlertedNone)
	}
	if next.LastAlertedAt != nil {
		at := next.LastAlertedAt.UnixMilli()
		item.LastAlertedAt = &at
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal device state: %w", err)
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(d.stateTable),
		Item:      av,
	}
	if prior == nil {
		input.ConditionExpression = aws.String("attribute_not_exists(device_key)")
	} else {
		input.ConditionExpression = aws.String("last_is_offline = :prior")
		input.ExpressionAttributeValues = map[string]ddbtypes.AttributeValue{
			":prior": &ddbtypes.AttributeValueMemberBOOL{Value: prior.LastIsOffline},
		}
	}

	if _, err := d.client.PutItem(ctx, input); err != nil {
		var ccf *ddbtypes.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrConflict
		}
		return fmt.Errorf("failed to update device state: %w", err)
	}
	return nil
}

// Close is a no-op; the SDK client holds no persistent connection.
func (d *Dynamo) Close() error {
	return nil
}
