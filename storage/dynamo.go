package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/richinex/turbineopt/catalog"
	"github.com/richinex/turbineopt/model"
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoStore.
type DynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, opts ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// dynamoBatchSize is the BatchWriteItem request limit.
const dynamoBatchSize = 25

const dynamoMaxAttempts = 5

// DynamoStore keeps the catalog (HASH turbine_id) and optimization results
// (HASH turbine_id, RANGE assessed_date) in two DynamoDB tables.
type DynamoStore struct {
	client       DynamoAPI
	catalogTable string
	resultsTable string
}

// NewDynamoStore wraps a client.
func NewDynamoStore(client DynamoAPI, catalogTable, resultsTable string) *DynamoStore {
	return &DynamoStore{client: client, catalogTable: catalogTable, resultsTable: resultsTable}
}

// NewDynamoClient builds a client from the default AWS credential chain.
// An empty region falls back to the environment.
func NewDynamoClient(ctx context.Context, region string) (*dynamodb.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg), nil
}

// CreateTables creates the catalog and results tables with on-demand
// billing. Tables that already exist are left alone.
func (s *DynamoStore) CreateTables(ctx context.Context) error {
	tables := []*dynamodb.CreateTableInput{
		{
			TableName:            aws.String(s.catalogTable),
			AttributeDefinitions: []types.AttributeDefinition{{AttributeName: aws.String("turbine_id"), AttributeType: types.ScalarAttributeTypeS}},
			KeySchema:            []types.KeySchemaElement{{AttributeName: aws.String("turbine_id"), KeyType: types.KeyTypeHash}},
			BillingMode:          types.BillingModePayPerRequest,
		},
		{
			TableName: aws.String(s.resultsTable),
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: aws.String("turbine_id"), AttributeType: types.ScalarAttributeTypeS},
				{AttributeName: aws.String("assessed_date"), AttributeType: types.ScalarAttributeTypeS},
			},
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String("turbine_id"), KeyType: types.KeyTypeHash},
				{AttributeName: aws.String("assessed_date"), KeyType: types.KeyTypeRange},
			},
			BillingMode: types.BillingModePayPerRequest,
		},
	}
	for _, in := range tables {
		_, err := s.client.CreateTable(ctx, in)
		var inUse *types.ResourceInUseException
		if errors.As(err, &inUse) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to create table %s: %w", aws.ToString(in.TableName), err)
		}
	}
	return nil
}

// SaveResults writes results in batches of 25. A single result is written
// with PutItem.
func (s *DynamoStore) SaveResults(ctx context.Context, results []model.OptimizationResult) error {
	if len(results) == 1 {
		return s.PutResult(ctx, results[0])
	}
	items := make([]map[string]types.AttributeValue, len(results))
	for i, r := range results {
		items[i] = resultItem(r)
	}
	return s.batchPut(ctx, s.resultsTable, items)
}

// PutResult writes a single result.
func (s *DynamoStore) PutResult(ctx context.Context, r model.OptimizationResult) error {
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.resultsTable),
		Item:      resultItem(r),
	})
	if err != nil {
		return fmt.Errorf("failed to put result %s/%s: %w", r.TurbineID, r.AssessedDate, err)
	}
	return nil
}

// GetResult returns one result, or ErrNotFound.
func (s *DynamoStore) GetResult(ctx context.Context, turbineID, assessedDate string) (model.OptimizationResult, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.resultsTable),
		Key: map[string]types.AttributeValue{
			"turbine_id":    str(turbineID),
			"assessed_date": str(assessedDate),
		},
	})
	if err != nil {
		return model.OptimizationResult{}, fmt.Errorf("failed to get result: %w", err)
	}
	if len(out.Item) == 0 {
		return model.OptimizationResult{}, fmt.Errorf("result %s/%s: %w", turbineID, assessedDate, ErrNotFound)
	}
	return decodeResult(out.Item)
}

// QueryResults queries by partition key when a turbine is given and scans
// otherwise.
func (s *DynamoStore) QueryResults(ctx context.Context, q ResultQuery) ([]model.OptimizationResult, error) {
	var items []map[string]types.AttributeValue
	var err error

	if q.TurbineID != "" {
		cond := "turbine_id = :t"
		values := map[string]types.AttributeValue{":t": str(q.TurbineID)}
		if q.AssessedDate != "" {
			cond += " AND assessed_date = :d"
			values[":d"] = str(q.AssessedDate)
		}
		items, err = s.query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(s.resultsTable),
			KeyConditionExpression:    aws.String(cond),
			ExpressionAttributeValues: values,
		})
	} else {
		in := &dynamodb.ScanInput{TableName: aws.String(s.resultsTable)}
		if q.AssessedDate != "" {
			in.FilterExpression = aws.String("assessed_date = :d")
			in.ExpressionAttributeValues = map[string]types.AttributeValue{":d": str(q.AssessedDate)}
		}
		items, err = s.scan(ctx, in)
	}
	if err != nil {
		return nil, err
	}

	results := []model.OptimizationResult{}
	for _, item := range items {
		r, err := decodeResult(item)
		if err != nil {
			return nil, err
		}
		if q.Matches(r) {
			results = append(results, r)
		}
	}
	SortResults(results)
	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return results, nil
}

// SaveTurbines writes catalog rows in batches of 25.
func (s *DynamoStore) SaveTurbines(ctx context.Context, turbines []model.Turbine) error {
	items := make([]map[string]types.AttributeValue, len(turbines))
	for i, t := range turbines {
		items[i] = turbineItem(t)
	}
	return s.batchPut(ctx, s.catalogTable, items)
}

// GetTurbine returns one turbine, or ErrNotFound.
func (s *DynamoStore) GetTurbine(ctx context.Context, id string) (model.Turbine, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.catalogTable),
		Key:       map[string]types.AttributeValue{"turbine_id": str(id)},
	})
	if err != nil {
		return model.Turbine{}, fmt.Errorf("failed to get turbine: %w", err)
	}
	if len(out.Item) == 0 {
		return model.Turbine{}, fmt.Errorf("turbine %s: %w", id, ErrNotFound)
	}
	return decodeTurbine(out.Item)
}

// FindTurbines scans the catalog table with a filter expression built from
// the non-empty filter fields.
func (s *DynamoStore) FindTurbines(ctx context.Context, f catalog.Filter) ([]model.Turbine, error) {
	in := &dynamodb.ScanInput{TableName: aws.String(s.catalogTable)}

	var conds []string
	names := map[string]string{}
	values := map[string]types.AttributeValue{}
	for _, c := range []struct{ attr, val string }{
		{"state", f.State},
		{"model", f.Model},
		{"install_date", f.InstallDate},
		{"last_maintenance", f.LastMaintenance},
	} {
		if c.val == "" {
			continue
		}
		conds = append(conds, fmt.Sprintf("#%s = :%s", c.attr, c.attr))
		names["#"+c.attr] = c.attr
		values[":"+c.attr] = str(c.val)
	}
	if len(conds) > 0 {
		in.FilterExpression = aws.String(strings.Join(conds, " AND "))
		in.ExpressionAttributeNames = names
		in.ExpressionAttributeValues = values
	}

	items, err := s.scan(ctx, in)
	if err != nil {
		return nil, err
	}
	turbines := []model.Turbine{}
	for _, item := range items {
		t, err := decodeTurbine(item)
		if err != nil {
			return nil, err
		}
		if f.Match(t) {
			turbines = append(turbines, t)
		}
	}
	sortTurbines(turbines)
	return turbines, nil
}

func (s *DynamoStore) batchPut(ctx context.Context, table string, items []map[string]types.AttributeValue) error {
	for start := 0; start < len(items); start += dynamoBatchSize {
		end := start + dynamoBatchSize
		if end > len(items) {
			end = len(items)
		}
		requests := make([]types.WriteRequest, 0, end-start)
		for _, item := range items[start:end] {
			requests = append(requests, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
		}
		if err := s.writeBatch(ctx, table, requests); err != nil {
			return err
		}
	}
	return nil
}

// writeBatch retries unprocessed items with exponential backoff.
func (s *DynamoStore) writeBatch(ctx context.Context, table string, requests []types.WriteRequest) error {
	pending := map[string][]types.WriteRequest{table: requests}
	for attempt := 0; attempt < dynamoMaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(1<<attempt) * 50 * time.Millisecond):
			}
		}
		out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			return fmt.Errorf("failed to write batch to %s: %w", table, err)
		}
		if len(out.UnprocessedItems[table]) == 0 {
			return nil
		}
		pending = out.UnprocessedItems
	}
	return fmt.Errorf("%d items to %s still unprocessed after %d attempts", len(pending[table]), table, dynamoMaxAttempts)
}

func (s *DynamoStore) query(ctx context.Context, in *dynamodb.QueryInput) ([]map[string]types.AttributeValue, error) {
	var items []map[string]types.AttributeValue
	for {
		out, err := s.client.Query(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("failed to query %s: %w", aws.ToString(in.TableName), err)
		}
		items = append(items, out.Items...)
		if len(out.LastEvaluatedKey) == 0 {
			return items, nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func (s *DynamoStore) scan(ctx context.Context, in *dynamodb.ScanInput) ([]map[string]types.AttributeValue, error) {
	var items []map[string]types.AttributeValue
	for {
		out, err := s.client.Scan(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", aws.ToString(in.TableName), err)
		}
		items = append(items, out.Items...)
		if len(out.LastEvaluatedKey) == 0 {
			return items, nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// Item encoding

func str(s string) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: s}
}

func num(f float64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: formatFloat(f)}
}

func resultItem(r model.OptimizationResult) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"turbine_id":    str(r.TurbineID),
		"assessed_date": str(r.AssessedDate),
		"optimal_rpm":   num(r.OptimalRPM),
		"cost":          num(r.Cost),
		"revenue":       num(r.Revenue),
		"profit":        num(r.Profit),
	}
}

func turbineItem(t model.Turbine) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"turbine_id":  str(t.ID),
		"lat":         num(t.Lat),
		"lon":         num(t.Lon),
		"capacity_mw": num(t.CapacityMW),
	}
	for _, attr := range []string{"name", "model", "state", "install_date", "last_maintenance"} {
		if v := t.Attribute(attr); v != "" {
			item[attr] = str(v)
		}
	}
	return item
}

func decodeResult(item map[string]types.AttributeValue) (model.OptimizationResult, error) {
	var r model.OptimizationResult
	var err error
	r.TurbineID = getS(item, "turbine_id")
	r.AssessedDate = getS(item, "assessed_date")
	if r.OptimalRPM, err = getN(item, "optimal_rpm"); err != nil {
		return r, err
	}
	if r.Cost, err = getN(item, "cost"); err != nil {
		return r, err
	}
	if r.Revenue, err = getN(item, "revenue"); err != nil {
		return r, err
	}
	if r.Profit, err = getN(item, "profit"); err != nil {
		return r, err
	}
	return r, nil
}

func decodeTurbine(item map[string]types.AttributeValue) (model.Turbine, error) {
	t := model.Turbine{
		ID:    getS(item, "turbine_id"),
		Name:  getS(item, "name"),
		Model: getS(item, "model"),
		State: getS(item, "state"),
	}
	var err error
	if t.InstallDate, err = getDate(item, "install_date"); err != nil {
		return t, err
	}
	if t.LastMaintenance, err = getDate(item, "last_maintenance"); err != nil {
		return t, err
	}
	if t.Lat, err = getN(item, "lat"); err != nil {
		return t, err
	}
	if t.Lon, err = getN(item, "lon"); err != nil {
		return t, err
	}
	if t.CapacityMW, err = getN(item, "capacity_mw"); err != nil {
		return t, err
	}
	return t, nil
}

func getS(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

// getN returns 0 for an absent attribute.
func getN(item map[string]types.AttributeValue, name string) (float64, error) {
	v, ok := item[name].(*types.AttributeValueMemberN)
	if !ok {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v.Value, 64)
	if err != nil {
		return 0, fmt.Errorf("attribute %s: %w", name, err)
	}
	return f, nil
}

func getDate(item map[string]types.AttributeValue, name string) (time.Time, error) {
	s := getS(item, name)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := catalog.ParseTime(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("attribute %s: %w", name, err)
	}
	return t, nil
}

// Verify DynamoStore implements all interfaces
var _ ResultSink = (*DynamoStore)(nil)
var _ ResultReader = (*DynamoStore)(nil)
var _ CatalogStore = (*DynamoStore)(nil)
var _ DynamoAPI = (*dynamodb.Client)(nil)
