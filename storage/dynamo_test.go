package storage

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richinex/turbineopt/catalog"
	"github.com/richinex/turbineopt/model"
)

// fakeDynamo keeps items per table and pages scans two items at a time.
// Filter expressions are ignored; DynamoStore re-checks matches locally.
type fakeDynamo struct {
	mu            sync.Mutex
	tables        map[string]map[string]map[string]types.AttributeValue
	batchSizes    []int
	unprocessOnce bool
	lastScan      *dynamodb.ScanInput
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{tables: make(map[string]map[string]map[string]types.AttributeValue)}
}

func itemKey(item map[string]types.AttributeValue) string {
	return getS(item, "turbine_id") + "|" + getS(item, "assessed_date")
}

func (f *fakeDynamo) table(name string) map[string]map[string]types.AttributeValue {
	t, ok := f.tables[name]
	if !ok {
		t = make(map[string]map[string]types.AttributeValue)
		f.tables[name] = t
	}
	return t
}

func (f *fakeDynamo) sorted(name string) []map[string]types.AttributeValue {
	t := f.table(name)
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]map[string]types.AttributeValue, len(keys))
	for i, k := range keys {
		out[i] = t[k]
	}
	return out
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &dynamodb.GetItemOutput{Item: f.table(aws.ToString(in.TableName))[itemKey(in.Key)]}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.table(aws.ToString(in.TableName))[itemKey(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) BatchWriteItem(_ context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &dynamodb.BatchWriteItemOutput{}
	for name, reqs := range in.RequestItems {
		if len(reqs) > dynamoBatchSize {
			return nil, fmt.Errorf("batch of %d exceeds limit", len(reqs))
		}
		f.batchSizes = append(f.batchSizes, len(reqs))
		if f.unprocessOnce && len(reqs) > 1 {
			f.unprocessOnce = false
			out.UnprocessedItems = map[string][]types.WriteRequest{name: reqs[len(reqs)-1:]}
			reqs = reqs[:len(reqs)-1]
		}
		for _, r := range reqs {
			f.table(name)[itemKey(r.PutRequest.Item)] = r.PutRequest.Item
		}
	}
	return out, nil
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	turbine := getS(in.ExpressionAttributeValues, ":t")
	date := getS(in.ExpressionAttributeValues, ":d")
	var items []map[string]types.AttributeValue
	for _, item := range f.sorted(aws.ToString(in.TableName)) {
		if getS(item, "turbine_id") != turbine {
			continue
		}
		if date != "" && getS(item, "assessed_date") != date {
			continue
		}
		items = append(items, item)
	}
	return &dynamodb.QueryOutput{Items: items}, nil
}

func (f *fakeDynamo) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastScan = in
	all := f.sorted(aws.ToString(in.TableName))

	offset := 0
	if v, ok := in.ExclusiveStartKey["offset"].(*types.AttributeValueMemberN); ok {
		offset, _ = strconv.Atoi(v.Value)
	}
	end := offset + 2
	out := &dynamodb.ScanOutput{}
	if end < len(all) {
		out.LastEvaluatedKey = map[string]types.AttributeValue{"offset": &types.AttributeValueMemberN{Value: strconv.Itoa(end)}}
	} else {
		end = len(all)
	}
	out.Items = all[offset:end]
	return out, nil
}

func (f *fakeDynamo) CreateTable(_ context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(in.TableName)
	if _, exists := f.tables[name]; exists {
		return nil, &types.ResourceInUseException{Message: aws.String("table exists: " + name)}
	}
	f.table(name)
	return &dynamodb.CreateTableOutput{}, nil
}

func TestDynamoStoreCreateTablesIsIdempotent(t *testing.T) {
	fake := newFakeDynamo()
	store := NewDynamoStore(fake, "WT_Catalog", "WT_Asset_Optimization")

	require.NoError(t, store.CreateTables(context.Background()))
	require.NoError(t, store.CreateTables(context.Background()))
	assert.Len(t, fake.tables, 2)
}

func TestDynamoStore(t *testing.T) {
	exerciseStore(t, NewDynamoStore(newFakeDynamo(), "WT_Catalog", "WT_Asset_Optimization"))
}

func TestDynamoStoreBatchesOf25(t *testing.T) {
	fake := newFakeDynamo()
	store := NewDynamoStore(fake, "WT_Catalog", "WT_Asset_Optimization")

	results := make([]model.OptimizationResult, 60)
	for i := range results {
		results[i] = model.OptimizationResult{TurbineID: fmt.Sprintf("WT-%03d", i), AssessedDate: "2024-07-02", OptimalRPM: 8}
	}
	require.NoError(t, store.SaveResults(context.Background(), results))
	assert.Equal(t, []int{25, 25, 10}, fake.batchSizes)

	got, err := store.QueryResults(context.Background(), ResultQuery{AssessedDate: "2024-07-02"})
	require.NoError(t, err)
	assert.Len(t, got, 60)
}

func TestDynamoStoreRetriesUnprocessedItems(t *testing.T) {
	fake := newFakeDynamo()
	fake.unprocessOnce = true
	store := NewDynamoStore(fake, "WT_Catalog", "WT_Asset_Optimization")

	require.NoError(t, store.SaveResults(context.Background(), sampleResults()))
	assert.Equal(t, []int{3, 1}, fake.batchSizes)

	_, err := store.GetResult(context.Background(), "WT-001", "2024-07-01")
	assert.NoError(t, err)
}

func TestDynamoStoreFilterExpression(t *testing.T) {
	fake := newFakeDynamo()
	store := NewDynamoStore(fake, "WT_Catalog", "WT_Asset_Optimization")
	require.NoError(t, store.SaveTurbines(context.Background(), sampleTurbines()))

	_, err := store.FindTurbines(context.Background(), catalog.Filter{State: "TX", Model: "V90"})
	require.NoError(t, err)
	require.NotNil(t, fake.lastScan)
	assert.Equal(t, "#state = :state AND #model = :model", aws.ToString(fake.lastScan.FilterExpression))
	assert.Equal(t, "state", fake.lastScan.ExpressionAttributeNames["#state"])
	assert.Equal(t, "V90", getS(fake.lastScan.ExpressionAttributeValues, ":model"))
}

func TestDynamoStoreSingleResultUsesPutItem(t *testing.T) {
	fake := newFakeDynamo()
	store := NewDynamoStore(fake, "WT_Catalog", "WT_Asset_Optimization")
	r := sampleResults()[0]
	require.NoError(t, store.SaveResults(context.Background(), []model.OptimizationResult{r}))
	assert.Empty(t, fake.batchSizes)

	got, err := store.GetResult(context.Background(), r.TurbineID, r.AssessedDate)
	require.NoError(t, err)
	assert.Equal(t, r, got)
}
