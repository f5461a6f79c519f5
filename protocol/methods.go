// Package protocol frames table operations for the wire: it knows the
// method-id table, shapes and validates request parameter maps, and decodes
// reply streams.
package protocol

// ServiceID is the first value of every request and of the auth frame.
const ServiceID = 1

// Operation names accepted by the framing layer.
const (
	OpGetItem               = "GetItem"
	OpPutItem               = "PutItem"
	OpDeleteItem            = "DeleteItem"
	OpUpdateItem            = "UpdateItem"
	OpBatchGetItem          = "BatchGetItem"
	OpBatchWriteItem        = "BatchWriteItem"
	OpQuery                 = "Query"
	OpScan                  = "Scan"
	OpDescribeTable         = "DescribeTable"
	OpDefineKeySchema       = "DefineKeySchema"
	OpDefineAttributeList   = "DefineAttributeList"
	OpDefineAttributeListID = "DefineAttributeListId"
)

// MethodAuthorizeConnection is the method id of the in-band auth request.
// It is not routed through the operation table; the transport emits the
// frame itself.
const MethodAuthorizeConnection = 1489122155

// methodIDs is the closed wire-compatibility table.
var methodIDs = map[string]uint64{
	OpGetItem:               263244906,
	OpPutItem:               20969,
	OpDeleteItem:            7,
	OpUpdateItem:            10,
	OpBatchGetItem:          697851100,
	OpBatchWriteItem:        116217951,
	OpQuery:                 2,
	OpScan:                  3,
	OpDescribeTable:         4,
	OpDefineKeySchema:       681,
	OpDefineAttributeList:   656,
	OpDefineAttributeListID: 657,
}

// MethodID resolves an operation name to its wire method id.
func MethodID(op string) (uint64, error) {
	id, ok := methodIDs[op]
	if !ok {
		return 0, &UnsupportedOperationError{Op: op}
	}
	return id, nil
}
