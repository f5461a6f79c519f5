package protocol

import (
	"github.com/datasage/amazon-dax-client/cache"
	"github.com/datasage/amazon-dax-client/cbe"
	"github.com/datasage/amazon-dax-client/document"
)

// SchemaSource resolves a table name to its cached key schema, or nil when
// the schema is unknown. A nil schema skips key validation.
type SchemaSource func(table string) *cache.KeySchema

// Prepare validates params for op before any bytes go on the wire. Key maps
// are checked against the table's key schema when one is available.
func Prepare(op string, params map[string]any, schemas SchemaSource) error {
	if schemas == nil {
		schemas = func(string) *cache.KeySchema { return nil }
	}
	switch op {
	case OpGetItem, OpDeleteItem, OpUpdateItem:
		table, err := requireString(params, "TableName")
		if err != nil {
			return err
		}
		if key, ok := keyMap(params, "Key"); ok {
			return validateAgainst(key, schemas(table))
		}
		return nil
	case OpPutItem:
		table, err := requireString(params, "TableName")
		if err != nil {
			return err
		}
		if item, ok := keyMap(params, "Item"); ok {
			return validateItemProjection(item, schemas(table))
		}
		return nil
	case OpBatchGetItem:
		return prepareBatchGet(params, schemas)
	case OpBatchWriteItem:
		return prepareBatchWrite(params, schemas)
	case OpQuery, OpScan, OpDefineKeySchema:
		_, err := requireString(params, "TableName")
		return err
	case OpDescribeTable:
		return nil
	case OpDefineAttributeList:
		return requireField(params, "AttributeListId")
	case OpDefineAttributeListID:
		return requireField(params, "AttributeNames")
	default:
		return &UnsupportedOperationError{Op: op}
	}
}

func prepareBatchGet(params map[string]any, schemas SchemaSource) error {
	items, ok := params["RequestItems"].(map[string]any)
	if !ok {
		return &MissingFieldError{Field: "RequestItems"}
	}
	for table, raw := range items {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		keys, ok := entry["Keys"].([]any)
		if !ok {
			continue
		}
		schema := schemas(table)
		for _, rawKey := range keys {
			key, ok := rawKey.(map[string]any)
			if !ok {
				continue
			}
			if err := validateAgainst(key, schema); err != nil {
				return err
			}
		}
	}
	return nil
}

func prepareBatchWrite(params map[string]any, schemas SchemaSource) error {
	items, ok := params["RequestItems"].(map[string]any)
	if !ok {
		return &MissingFieldError{Field: "RequestItems"}
	}
	for table, raw := range items {
		writes, ok := raw.([]any)
		if !ok {
			continue
		}
		schema := schemas(table)
		for _, rawWrite := range writes {
			write, ok := rawWrite.(map[string]any)
			if !ok {
				continue
			}
			if put, ok := write["PutRequest"].(map[string]any); ok {
				if item, ok := put["Item"].(map[string]any); ok {
					if err := validateItemProjection(item, schema); err != nil {
						return err
					}
				}
			}
			if del, ok := write["DeleteRequest"].(map[string]any); ok {
				if key, ok := del["Key"].(map[string]any); ok {
					if err := validateAgainst(key, schema); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// ValidateKey checks that the key map carries exactly the schema's key
// attributes.
func ValidateKey(key map[string]any, schema *cache.KeySchema) error {
	names := schema.KeyNames()
	for _, name := range names {
		if _, ok := key[name]; !ok {
			return &MissingKeyError{Attribute: name}
		}
	}
	for attr := range key {
		found := false
		for _, name := range names {
			if attr == name {
				found = true
				break
			}
		}
		if !found {
			return &ExtraKeyError{Attribute: attr}
		}
	}
	return nil
}

func validateAgainst(key map[string]any, schema *cache.KeySchema) error {
	if schema == nil {
		return nil
	}
	return ValidateKey(key, schema)
}

// validateItemProjection extracts the key attributes of an item. When every
// key attribute is present the projection is validated; otherwise the write
// proceeds unvalidated and the server is the arbiter.
func validateItemProjection(item map[string]any, schema *cache.KeySchema) error {
	if schema == nil {
		return nil
	}
	projection := make(map[string]any)
	for _, name := range schema.KeyNames() {
		if v, ok := item[name]; ok {
			projection[name] = v
		}
	}
	if len(projection) < len(schema.KeyNames()) {
		return nil
	}
	return ValidateKey(projection, schema)
}

// Serialize frames op and params as service id, method id, then the encoded
// parameter map.
func Serialize(op string, params map[string]any) ([]byte, error) {
	id, err := MethodID(op)
	if err != nil {
		return nil, err
	}
	body, err := document.Encode(params)
	if err != nil {
		return nil, err
	}
	buf := cbe.AppendValue(nil, cbe.Uint(ServiceID))
	buf = cbe.AppendValue(buf, cbe.Uint(id))
	return cbe.AppendValue(buf, body), nil
}

func requireString(params map[string]any, field string) (string, error) {
	v, ok := params[field].(string)
	if !ok || v == "" {
		return "", &MissingFieldError{Field: field}
	}
	return v, nil
}

func requireField(params map[string]any, field string) error {
	if _, ok := params[field]; !ok {
		return &MissingFieldError{Field: field}
	}
	return nil
}

func keyMap(params map[string]any, field string) (map[string]any, bool) {
	m, ok := params[field].(map[string]any)
	return m, ok
}
