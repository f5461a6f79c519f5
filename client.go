package dax

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/datasage/amazon-dax-client/auth"
	"github.com/datasage/amazon-dax-client/cache"
	"github.com/datasage/amazon-dax-client/protocol"
	"github.com/datasage/amazon-dax-client/transport"
)

// Client talks to one DAX cluster. All methods are safe for concurrent use.
type Client struct {
	cfg        Config
	pool       *transport.Pool
	keySchemas *cache.KeySchemaCache
	attrLists  *cache.AttributeListCache
	log        *logrus.Entry

	// describe collapses concurrent schema lookups for the same table.
	describe singleflight.Group

	closed atomic.Bool
}

// NewClient validates cfg and builds a client. No connection is opened until
// the first operation.
func NewClient(cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	endpoints, err := transport.ParseEndpoints(cfg.endpointURLs())
	if err != nil {
		return nil, invalidConfigf("%v", err)
	}
	if cfg.DebugLogging {
		cfg.Logger.SetLevel(logrus.DebugLevel)
	}

	tcfg := transport.Config{
		ConnectTimeout:           cfg.ConnectTimeout,
		RequestTimeout:           cfg.RequestTimeout,
		IdleTimeout:              cfg.IdleTimeout,
		MaxPendingPerHost:        cfg.MaxPendingConnectionsPerHost,
		SkipHostnameVerification: cfg.SkipHostnameVerification,
		Signer:                   auth.NewSigner(cfg.Region, cfg.Credentials),
		Logger:                   cfg.Logger,
		Dial:                     cfg.Dial,
	}
	return &Client{
		cfg:        cfg,
		pool:       transport.NewPool(endpoints, tcfg, cfg.Registerer),
		keySchemas: cache.NewKeySchemaCache(cfg.KeySchemaCacheSize, cfg.KeySchemaCacheTTL),
		attrLists:  cache.NewAttributeListCache(cfg.AttrListCacheSize),
		log:        cfg.Logger.WithField("component", "client"),
	}, nil
}

// Close shuts the client and its connections down. Idempotent; operations
// after Close fail with ErrClosed.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.pool.Close()
}

// GetItem reads one item by primary key.
func (c *Client) GetItem(ctx context.Context, params map[string]any) (map[string]any, error) {
	return c.doMap(ctx, protocol.OpGetItem, params)
}

// PutItem writes one item.
func (c *Client) PutItem(ctx context.Context, params map[string]any) (map[string]any, error) {
	return c.doMap(ctx, protocol.OpPutItem, params)
}

// DeleteItem removes one item by primary key.
func (c *Client) DeleteItem(ctx context.Context, params map[string]any) (map[string]any, error) {
	return c.doMap(ctx, protocol.OpDeleteItem, params)
}

// UpdateItem applies an update expression to one item.
func (c *Client) UpdateItem(ctx context.Context, params map[string]any) (map[string]any, error) {
	return c.doMap(ctx, protocol.OpUpdateItem, params)
}

// BatchGetItem reads items from one or more tables.
func (c *Client) BatchGetItem(ctx context.Context, params map[string]any) (map[string]any, error) {
	return c.doMap(ctx, protocol.OpBatchGetItem, params)
}

// BatchWriteItem puts and deletes items across one or more tables.
func (c *Client) BatchWriteItem(ctx context.Context, params map[string]any) (map[string]any, error) {
	return c.doMap(ctx, protocol.OpBatchWriteItem, params)
}

// Query runs a key-condition query against one table or index.
func (c *Client) Query(ctx context.Context, params map[string]any) (map[string]any, error) {
	return c.doMap(ctx, protocol.OpQuery, params)
}

// Scan walks a table or index.
func (c *Client) Scan(ctx context.Context, params map[string]any) (map[string]any, error) {
	return c.doMap(ctx, protocol.OpScan, params)
}

// DescribeTable returns the table description. A successful reply also
// refreshes the key-schema cache for the table.
func (c *Client) DescribeTable(ctx context.Context, params map[string]any) (map[string]any, error) {
	reply, err := c.doMap(ctx, protocol.OpDescribeTable, params)
	if err != nil {
		return nil, err
	}
	if table, ok := params["TableName"].(string); ok {
		if schema := schemaFromDescription(reply); schema != nil {
			if err := c.keySchemas.Put(table, schema); err != nil {
				c.log.WithError(err).WithField("table", table).Warn("key schema not cached")
			}
		}
	}
	return reply, nil
}

// DefineKeySchema resolves the key schema of a table, from cache when fresh.
func (c *Client) DefineKeySchema(ctx context.Context, table string) (*cache.KeySchema, error) {
	if schema, ok := c.keySchemas.Get(table); ok {
		return schema, nil
	}
	body, err := c.do(ctx, protocol.OpDefineKeySchema, map[string]any{"TableName": table})
	if err != nil {
		return nil, err
	}
	schema := schemaFromElements(body)
	if schema == nil {
		return nil, &RequestError{Op: protocol.OpDefineKeySchema, Err: &protocol.MalformedReplyError{Reason: "reply is not a key schema"}}
	}
	if err := c.keySchemas.Put(table, schema); err != nil {
		c.log.WithError(err).WithField("table", table).Warn("key schema not cached")
	}
	return schema, nil
}

// DefineAttributeList resolves an attribute-list id to its names, from cache
// when present.
func (c *Client) DefineAttributeList(ctx context.Context, id uint64) ([]string, error) {
	if list, ok := c.attrLists.Get(id); ok {
		return list.Names, nil
	}
	body, err := c.do(ctx, protocol.OpDefineAttributeList, map[string]any{"AttributeListId": id})
	if err != nil {
		return nil, err
	}
	names, ok := stringSlice(body)
	if !ok {
		return nil, &RequestError{Op: protocol.OpDefineAttributeList, Err: &protocol.MalformedReplyError{Reason: "reply is not a name list"}}
	}
	c.attrLists.Put(id, names)
	return names, nil
}

// DefineAttributeListID interns a name list, asking the server only when the
// list is not already cached.
func (c *Client) DefineAttributeListID(ctx context.Context, names []string) (uint64, error) {
	if id, ok := c.attrLists.IDByHash(cache.HashNames(names)); ok {
		return id, nil
	}
	body, err := c.do(ctx, protocol.OpDefineAttributeListID, map[string]any{"AttributeNames": names})
	if err != nil {
		return 0, err
	}
	id, ok := uintValue(body)
	if !ok {
		return 0, &RequestError{Op: protocol.OpDefineAttributeListID, Err: &protocol.MalformedReplyError{Reason: "reply is not a list id"}}
	}
	c.attrLists.Put(id, names)
	return id, nil
}

// doMap runs an operation whose reply body is an attribute map (or null).
func (c *Client) doMap(ctx context.Context, op string, params map[string]any) (map[string]any, error) {
	body, err := c.do(ctx, op, params)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, nil
	}
	m, ok := body.(map[string]any)
	if !ok {
		return nil, &RequestError{Op: op, Err: &protocol.MalformedReplyError{Reason: fmt.Sprintf("reply body is %T, not a map", body)}}
	}
	return m, nil
}

// do runs one request/reply cycle: validate, serialize, round-trip on a
// pooled connection, decode. Transport and codec failures take the
// connection out of circulation and come back wrapped in *RequestError;
// validation and server errors surface as they are.
func (c *Client) do(ctx context.Context, op string, params map[string]any) (any, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if err := protocol.Prepare(op, params, func(table string) *cache.KeySchema {
		return c.schemaFor(ctx, table)
	}); err != nil {
		return nil, err
	}
	request, err := protocol.Serialize(op, params)
	if err != nil {
		return nil, err
	}
	return c.roundTrip(ctx, op, request)
}

func (c *Client) roundTrip(ctx context.Context, op string, request []byte) (any, error) {
	conn, err := c.pool.Get(ctx)
	if err != nil {
		return nil, &RequestError{Op: op, Err: err}
	}
	reply, err := conn.RoundTrip(ctx, request)
	if err != nil {
		c.pool.MarkBad(conn)
		return nil, &RequestError{Op: op, Err: err}
	}
	body, err := protocol.DecodeReply(reply)
	if err != nil {
		if _, server := err.(*protocol.ServerError); server {
			// The wire is still in sync; only the operation failed.
			c.pool.Release(conn)
			return nil, err
		}
		c.pool.MarkBad(conn)
		return nil, &RequestError{Op: op, Err: err}
	}
	c.pool.Release(conn)
	return body, nil
}

// schemaFor resolves a table's key schema for request validation. On a cache
// miss it falls back to DescribeTable, collapsed per table across concurrent
// callers; a failed fallback is logged and the request proceeds unvalidated.
func (c *Client) schemaFor(ctx context.Context, table string) *cache.KeySchema {
	if schema, ok := c.keySchemas.Get(table); ok {
		return schema
	}
	v, err, _ := c.describe.Do(table, func() (any, error) {
		request, err := protocol.Serialize(protocol.OpDescribeTable, map[string]any{"TableName": table})
		if err != nil {
			return nil, err
		}
		body, err := c.roundTrip(ctx, protocol.OpDescribeTable, request)
		if err != nil {
			return nil, err
		}
		reply, _ := body.(map[string]any)
		schema := schemaFromDescription(reply)
		if schema == nil {
			return nil, &protocol.MalformedReplyError{Reason: "table description without key schema"}
		}
		if err := c.keySchemas.Put(table, schema); err != nil {
			return nil, err
		}
		return schema, nil
	})
	if err != nil {
		c.log.WithError(err).WithField("table", table).Warn("key schema lookup failed; request not validated")
		return nil
	}
	return v.(*cache.KeySchema)
}

// schemaFromDescription extracts the key schema from a DescribeTable reply.
// Attribute types come from AttributeDefinitions, defaulting to S.
func schemaFromDescription(reply map[string]any) *cache.KeySchema {
	table, ok := reply["Table"].(map[string]any)
	if !ok {
		return nil
	}
	types := make(map[string]string)
	if defs, ok := table["AttributeDefinitions"].([]any); ok {
		for _, raw := range defs {
			def, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			name, _ := def["AttributeName"].(string)
			typ, _ := def["AttributeType"].(string)
			if name != "" && typ != "" {
				types[name] = typ
			}
		}
	}

	elements, ok := table["KeySchema"].([]any)
	if !ok {
		return nil
	}
	var schema cache.KeySchema
	for _, raw := range elements {
		elem, ok := raw.(map[string]any)
		if !ok {
			return nil
		}
		name, _ := elem["AttributeName"].(string)
		if name == "" {
			return nil
		}
		typ := types[name]
		if typ == "" {
			typ = "S"
		}
		keyType, _ := elem["KeyType"].(string)
		el := cache.KeySchemaElement{AttributeName: name, AttributeType: typ}
		if keyType == "RANGE" {
			rangeKey := el
			schema.RangeKey = &rangeKey
		} else {
			schema.HashKey = el
		}
	}
	if schema.HashKey.AttributeName == "" {
		return nil
	}
	return &schema
}

// schemaFromElements parses the bare key-schema list shape: hash key first,
// optional range key second, attribute type defaulting to S.
func schemaFromElements(body any) *cache.KeySchema {
	elements, ok := body.([]any)
	if !ok || len(elements) == 0 || len(elements) > 2 {
		return nil
	}
	parse := func(raw any) (cache.KeySchemaElement, bool) {
		elem, ok := raw.(map[string]any)
		if !ok {
			return cache.KeySchemaElement{}, false
		}
		name, _ := elem["AttributeName"].(string)
		if name == "" {
			return cache.KeySchemaElement{}, false
		}
		typ, _ := elem["AttributeType"].(string)
		if typ == "" {
			typ = "S"
		}
		return cache.KeySchemaElement{AttributeName: name, AttributeType: typ}, true
	}

	hash, ok := parse(elements[0])
	if !ok {
		return nil
	}
	schema := &cache.KeySchema{HashKey: hash}
	if len(elements) == 2 {
		rangeKey, ok := parse(elements[1])
		if !ok {
			return nil
		}
		schema.RangeKey = &rangeKey
	}
	return schema
}

func stringSlice(body any) ([]string, bool) {
	raw, ok := body.([]any)
	if !ok {
		return nil, false
	}
	names := make([]string, len(raw))
	for i, v := range raw {
		s, ok := v.(string)
		if !ok {
			return nil, false
		}
		names[i] = s
	}
	return names, true
}

func uintValue(body any) (uint64, bool) {
	switch v := body.(type) {
	case uint64:
		return v, true
	case int64:
		if v >= 0 {
			return uint64(v), true
		}
	}
	return 0, false
}
