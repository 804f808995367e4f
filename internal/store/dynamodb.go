package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/cthiel42/ipamd/internal/node"
)

// Index names match the four GSIs of spec.md §3.3 / §6.2.
const (
	rootIndexName              = "RootIndex"
	freeCapacityIndexName      = "FreeCapacityIndex"
	reservationByPoolIndexName = "ReservationByPoolIndex"
	reservationByRootIndexName = "ReservationByRootIndex"
)

// DynamoDBStore is the production backend: the single table "CIDRpit"
// with primary key (cidr, prefix_length) and the four sparse GSIs,
// mutated through TransactWriteItems with per-item ConditionExpressions
// and read through TransactGetItems — the literal DynamoDB transaction
// primitives original_source/main.py drives via pynamodb's TransactWrite
// and TransactGet. It is a natural extension of the teacher's own
// aws-sdk-go-v2 dependency family (aws-sdk-go-v2/config,
// aws-sdk-go-v2/service/s3 are already direct teacher dependencies).
type DynamoDBStore struct {
	client *dynamodb.Client
	table  string
}

// NewDynamoDBStore creates a DynamoDBStore against an existing table.
// Table provisioning (CreateTable + GSIs) is an operational concern,
// not this package's — spec.md §1 scopes "the underlying persistent
// store" out of the core.
func NewDynamoDBStore(ctx context.Context, region, table string) (*DynamoDBStore, error) {
	if table == "" {
		table = "CIDRpit"
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("store: failed to load aws config: %w", err)
	}
	return &DynamoDBStore{client: dynamodb.NewFromConfig(cfg), table: table}, nil
}

func itemKey(key node.Key) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"cidr":          &types.AttributeValueMemberS{Value: key.CIDR},
		"prefix_length": &types.AttributeValueMemberN{Value: strconv.Itoa(key.PrefixLength)},
	}
}

func marshalNode(n node.Node) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"cidr":          &types.AttributeValueMemberS{Value: n.CIDR},
		"prefix_length": &types.AttributeValueMemberN{Value: strconv.Itoa(n.PrefixLength)},
		"pool_name":     &types.AttributeValueMemberS{Value: n.PoolName},
		"root_cidr":     &types.AttributeValueMemberS{Value: n.RootCIDR},
		"created":       &types.AttributeValueMemberN{Value: strconv.FormatInt(n.Created, 10)},
	}
	setSparse := func(name string, v node.Optional[string]) {
		if v.Set {
			item[name] = &types.AttributeValueMemberS{Value: v.Value}
		}
	}
	setSparse("root_of_pool", n.RootOfPool)
	setSparse("left_free", n.LeftFree)
	setSparse("right_free", n.RightFree)
	setSparse("capacity_in_pool", n.CapacityInPool)
	setSparse("reservation_in_pool", n.ReservationInPool)
	setSparse("comment", n.Comment)
	return item
}

func unmarshalNode(item map[string]types.AttributeValue) (node.Node, error) {
	var n node.Node
	str := func(name string) (string, bool) {
		av, ok := item[name]
		if !ok {
			return "", false
		}
		s, ok := av.(*types.AttributeValueMemberS)
		if !ok {
			return "", false
		}
		return s.Value, true
	}
	if v, ok := str("cidr"); ok {
		n.CIDR = v
	}
	if v, ok := item["prefix_length"].(*types.AttributeValueMemberN); ok {
		p, err := strconv.Atoi(v.Value)
		if err != nil {
			return node.Node{}, fmt.Errorf("store: bad prefix_length: %w", err)
		}
		n.PrefixLength = p
	}
	if v, ok := str("pool_name"); ok {
		n.PoolName = v
	}
	if v, ok := str("root_cidr"); ok {
		n.RootCIDR = v
	}
	if v, ok := item["created"].(*types.AttributeValueMemberN); ok {
		c, err := strconv.ParseInt(v.Value, 10, 64)
		if err != nil {
			return node.Node{}, fmt.Errorf("store: bad created: %w", err)
		}
		n.Created = c
	}
	if v, ok := str("root_of_pool"); ok {
		n.RootOfPool = node.Some(v)
	}
	if v, ok := str("left_free"); ok {
		n.LeftFree = node.Some(v)
	}
	if v, ok := str("right_free"); ok {
		n.RightFree = node.Some(v)
	}
	if v, ok := str("capacity_in_pool"); ok {
		n.CapacityInPool = node.Some(v)
	}
	if v, ok := str("reservation_in_pool"); ok {
		n.ReservationInPool = node.Some(v)
	}
	if v, ok := str("comment"); ok {
		n.Comment = node.Some(v)
	}
	return n, nil
}

// conditionExpression translates a declarative Condition into a
// DynamoDB ConditionExpression, the Go-side analog of the
// `condition=(...)` arguments in original_source/main.py.
func conditionExpression(c Condition) (*string, map[string]string, map[string]types.AttributeValue) {
	if !c.Exists && !c.NotExists && len(c.FieldEquals) == 0 {
		return nil, nil, nil
	}
	names := map[string]string{}
	values := map[string]types.AttributeValue{}
	var expr string
	switch {
	case c.NotExists:
		expr = "attribute_not_exists(#cidr)"
		names["#cidr"] = "cidr"
	case c.Exists && len(c.FieldEquals) == 0:
		expr = "attribute_exists(#cidr)"
		names["#cidr"] = "cidr"
	}
	i := 0
	for field, want := range c.FieldEquals {
		nameKey := fmt.Sprintf("#f%d", i)
		valueKey := fmt.Sprintf(":v%d", i)
		names[nameKey] = field
		values[valueKey] = &types.AttributeValueMemberS{Value: want}
		clause := fmt.Sprintf("%s = %s", nameKey, valueKey)
		if expr == "" {
			expr = clause
		} else {
			expr += " AND " + clause
		}
		i++
	}
	return aws.String(expr), names, values
}

func (d *DynamoDBStore) Get(ctx context.Context, key node.Key) (*node.Node, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.table),
		Key:       itemKey(key),
	})
	if err != nil {
		return nil, fmt.Errorf("store: dynamodb GetItem: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}
	n, err := unmarshalNode(out.Item)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (d *DynamoDBStore) BatchGet(ctx context.Context, keys []node.Key) ([]*node.Node, error) {
	out := make([]*node.Node, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	items := make([]types.TransactGetItem, len(keys))
	for i, k := range keys {
		items[i] = types.TransactGetItem{
			Get: &types.Get{
				TableName: aws.String(d.table),
				Key:       itemKey(k),
			},
		}
	}
	resp, err := d.client.TransactGetItems(ctx, &dynamodb.TransactGetItemsInput{TransactItems: items})
	if err != nil {
		return nil, fmt.Errorf("store: dynamodb TransactGetItems: %w", err)
	}
	for i, r := range resp.Responses {
		if len(r.Item) == 0 {
			continue
		}
		n, err := unmarshalNode(r.Item)
		if err != nil {
			return nil, err
		}
		cp := n
		out[i] = &cp
	}
	return out, nil
}

func (d *DynamoDBStore) Put(ctx context.Context, n node.Node, cond Condition) error {
	expr, names, values := conditionExpression(cond)
	input := &dynamodb.PutItemInput{
		TableName: aws.String(d.table),
		Item:      marshalNode(n),
	}
	if expr != nil {
		input.ConditionExpression = expr
		input.ExpressionAttributeNames = names
		if len(values) > 0 {
			input.ExpressionAttributeValues = values
		}
	}
	_, err := d.client.PutItem(ctx, input)
	if err != nil {
		return translateConditionalCheckFailed(err)
	}
	return nil
}

func (d *DynamoDBStore) Delete(ctx context.Context, key node.Key, cond Condition) error {
	expr, names, values := conditionExpression(cond)
	input := &dynamodb.DeleteItemInput{
		TableName: aws.String(d.table),
		Key:       itemKey(key),
	}
	if expr != nil {
		input.ConditionExpression = expr
		input.ExpressionAttributeNames = names
		if len(values) > 0 {
			input.ExpressionAttributeValues = values
		}
	}
	_, err := d.client.DeleteItem(ctx, input)
	if err != nil {
		return translateConditionalCheckFailed(err)
	}
	return nil
}

func (d *DynamoDBStore) Transact(ctx context.Context, writes []Write) error {
	items := make([]types.TransactWriteItem, 0, len(writes))
	for _, w := range writes {
		expr, names, values := conditionExpression(w.Condition)
		switch {
		case w.Delete:
			del := &types.Delete{
				TableName: aws.String(d.table),
				Key:       itemKey(w.Key),
			}
			if expr != nil {
				del.ConditionExpression = expr
				del.ExpressionAttributeNames = names
				if len(values) > 0 {
					del.ExpressionAttributeValues = values
				}
			}
			items = append(items, types.TransactWriteItem{Delete: del})
		case w.Put != nil:
			put := &types.Put{
				TableName: aws.String(d.table),
				Item:      marshalNode(*w.Put),
			}
			if expr != nil {
				put.ConditionExpression = expr
				put.ExpressionAttributeNames = names
				if len(values) > 0 {
					put.ExpressionAttributeValues = values
				}
			}
			items = append(items, types.TransactWriteItem{Put: put})
		}
	}
	_, err := d.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		return translateConditionalCheckFailed(err)
	}
	return nil
}

func translateConditionalCheckFailed(err error) error {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return ErrConditionFailed
	}
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		for _, reason := range tce.CancellationReasons {
			if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
				return ErrConditionFailed
			}
		}
		return ErrConditionFailed
	}
	return fmt.Errorf("store: dynamodb write failed: %w", err)
}

func (d *DynamoDBStore) queryIndex(ctx context.Context, indexName, keyName, keyValue string) ([]map[string]types.AttributeValue, error) {
	var results []map[string]types.AttributeValue
	var lastKey map[string]types.AttributeValue
	for {
		out, err := d.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(d.table),
			IndexName:              aws.String(indexName),
			KeyConditionExpression: aws.String("#k = :v"),
			ExpressionAttributeNames: map[string]string{
				"#k": keyName,
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":v": &types.AttributeValueMemberS{Value: keyValue},
			},
			ExclusiveStartKey: lastKey,
		})
		if err != nil {
			return nil, fmt.Errorf("store: dynamodb Query(%s): %w", indexName, err)
		}
		results = append(results, out.Items...)
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		lastKey = out.LastEvaluatedKey
	}
	return results, nil
}

func (d *DynamoDBStore) scanIndex(ctx context.Context, indexName string) ([]map[string]types.AttributeValue, error) {
	var results []map[string]types.AttributeValue
	var lastKey map[string]types.AttributeValue
	for {
		out, err := d.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(d.table),
			IndexName:         aws.String(indexName),
			ExclusiveStartKey: lastKey,
		})
		if err != nil {
			return nil, fmt.Errorf("store: dynamodb Scan(%s): %w", indexName, err)
		}
		results = append(results, out.Items...)
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		lastKey = out.LastEvaluatedKey
	}
	return results, nil
}

func unmarshalAll(items []map[string]types.AttributeValue) ([]node.Node, error) {
	out := make([]node.Node, 0, len(items))
	for _, item := range items {
		n, err := unmarshalNode(item)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created < out[j].Created })
	return out, nil
}

func (d *DynamoDBStore) QueryRootIndex(ctx context.Context, pool string) ([]node.Node, error) {
	var items []map[string]types.AttributeValue
	var err error
	if pool == "" {
		items, err = d.scanIndex(ctx, rootIndexName)
	} else {
		items, err = d.queryIndex(ctx, rootIndexName, "root_of_pool", pool)
	}
	if err != nil {
		return nil, err
	}
	return unmarshalAll(items)
}

func (d *DynamoDBStore) QueryFreeCapacityTop(ctx context.Context, pool string, lessThanPrefix int) (*node.Node, error) {
	out, err := d.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(d.table),
		IndexName:              aws.String(freeCapacityIndexName),
		KeyConditionExpression: aws.String("capacity_in_pool = :p AND prefix_length < :n"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":p": &types.AttributeValueMemberS{Value: pool},
			":n": &types.AttributeValueMemberN{Value: strconv.Itoa(lessThanPrefix)},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("store: dynamodb Query(%s): %w", freeCapacityIndexName, err)
	}
	if len(out.Items) == 0 {
		return nil, nil
	}
	n, err := unmarshalNode(out.Items[0])
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (d *DynamoDBStore) QueryReservationsByPool(ctx context.Context, pool string) ([]node.Node, error) {
	var items []map[string]types.AttributeValue
	var err error
	if pool == "" {
		items, err = d.scanIndex(ctx, reservationByPoolIndexName)
	} else {
		items, err = d.queryIndex(ctx, reservationByPoolIndexName, "reservation_in_pool", pool)
	}
	if err != nil {
		return nil, err
	}
	return unmarshalAll(items)
}

func (d *DynamoDBStore) QueryReservationsByRoot(ctx context.Context, rootCIDR string) ([]node.Node, error) {
	items, err := d.queryIndex(ctx, reservationByRootIndexName, "root_cidr", rootCIDR)
	if err != nil {
		return nil, err
	}
	return unmarshalAll(items)
}
