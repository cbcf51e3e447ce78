package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/ShravaniMogali/4GB-sub001/internal/config"
)

// DynamoDB provides principal storage via AWS DynamoDB
type DynamoDB struct {
	db        *dynamodb.Client
	tableName string
}

// NewDynamoDBStore creates a new DynamoDB-backed store
func NewDynamoDBStore(cfg config.DynamoConfig) (*DynamoDB, error) {
	ctx := context.Background()

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Endpoint != "" {
		opts = append(opts, awsconfig.WithBaseEndpoint(cfg.Endpoint))

		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.StaticCredentialsProvider{
			Value: aws.Credentials{
				AccessKeyID:     "dummy",
				SecretAccessKey: "dummy",
			},
		}))
	}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	store := &DynamoDB{
		db:        dynamodb.NewFromConfig(awsCfg),
		tableName: cfg.PrincipalsTable,
	}
	return store, store.initialize(ctx, cfg)
}

// initialize checks the principals table exists, creating it when running
// against a local endpoint.
func (d *DynamoDB) initialize(ctx context.Context, cfg config.DynamoConfig) error {
	_, err := d.db.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(d.tableName),
	})
	if err == nil {
		log.Infow("Table already exists", "table_name", d.tableName)
		return nil
	}
	// without an endpoint we are in production and the table must already exist
	if cfg.Endpoint == "" {
		return fmt.Errorf("failed to check if table %s exists: %w", d.tableName, err)
	}

	_, err = d.db.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(d.tableName),
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("id"), KeyType: types.KeyTypeHash},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("id"), AttributeType: types.ScalarAttributeTypeS},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		return fmt.Errorf("failed to create table %s: %w", d.tableName, err)
	}

	log.Infow("DynamoDB store initialized",
		"table_name", d.tableName,
		"region", d.db.Options().Region,
		"endpoint", d.db.Options().BaseEndpoint)
	return nil
}

func (d *DynamoDB) Get(ctx context.Context, id string) (*Principal, error) {
	result, err := d.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.tableName),
		Key:            principalKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get principal %s: %w", id, err)
	}
	if len(result.Item) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrPrincipalNotFound, id)
	}
	return principalFromItem(result.Item)
}

func (d *DynamoDB) Exists(ctx context.Context, id string) (bool, error) {
	result, err := d.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:            aws.String(d.tableName),
		Key:                  principalKey(id),
		ProjectionExpression: aws.String("id"),
		ConsistentRead:       aws.Bool(true),
	})
	if err != nil {
		return false, fmt.Errorf("failed to check principal %s: %w", id, err)
	}
	return len(result.Item) > 0, nil
}

// Put writes a new principal. The write is conditional on the id being
// unused, so concurrent registrations of the same id cannot both succeed.
func (d *DynamoDB) Put(ctx context.Context, p Principal) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	p.UpdatedAt = p.CreatedAt

	item := map[string]types.AttributeValue{
		"id":             &types.AttributeValueMemberS{Value: p.ID},
		"role":           &types.AttributeValueMemberS{Value: p.Role},
		"address":        &types.AttributeValueMemberS{Value: p.Address},
		"privateKey":     &types.AttributeValueMemberS{Value: p.PrivateKey},
		"credentialHash": &types.AttributeValueMemberS{Value: p.CredentialHash},
		"createdAt":      &types.AttributeValueMemberS{Value: p.CreatedAt.Format(time.RFC3339Nano)},
		"updatedAt":      &types.AttributeValueMemberS{Value: p.UpdatedAt.Format(time.RFC3339Nano)},
	}

	_, err := d.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("%w: %s", ErrPrincipalExists, p.ID)
		}
		log.Errorw("Error storing principal", "id", p.ID, "error", err)
		return fmt.Errorf("failed to store principal: %w", err)
	}

	log.Infow("Stored principal", "id", p.ID, "role", p.Role, "address", p.Address)
	return nil
}

func (d *DynamoDB) UpdateCredential(ctx context.Context, id string, credentialHash string) error {
	_, err := d.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(d.tableName),
		Key:                 principalKey(id),
		UpdateExpression:    aws.String("SET credentialHash = :hash, updatedAt = :now"),
		ConditionExpression: aws.String("attribute_exists(id)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":hash": &types.AttributeValueMemberS{Value: credentialHash},
			":now":  &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("%w: %s", ErrPrincipalNotFound, id)
		}
		log.Errorw("Error updating credential", "id", id, "error", err)
		return fmt.Errorf("failed to update credential: %w", err)
	}
	return nil
}

func principalKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberS{Value: id},
	}
}

func principalFromItem(item map[string]types.AttributeValue) (*Principal, error) {
	str := func(name string) string {
		if v, ok := item[name].(*types.AttributeValueMemberS); ok {
			return v.Value
		}
		return ""
	}
	p := &Principal{
		ID:             str("id"),
		Role:           str("role"),
		Address:        str("address"),
		PrivateKey:     str("privateKey"),
		CredentialHash: str("credentialHash"),
	}
	var err error
	if p.CreatedAt, err = parseTime(str("createdAt")); err != nil {
		return nil, fmt.Errorf("principal %s createdAt: %w", p.ID, err)
	}
	if p.UpdatedAt, err = parseTime(str("updatedAt")); err != nil {
		return nil, fmt.Errorf("principal %s updatedAt: %w", p.ID, err)
	}
	return p, nil
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, v)
}

var _ PrincipalStore = (*DynamoDB)(nil)
