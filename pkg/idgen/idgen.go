package idgen

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/snowflake"
)

// Snowflake ids give trend-increasing, globally unique public identifiers
// without a database round trip. The node id separates replicas.

var (
	node     *snowflake.Node
	nodeOnce sync.Once
	nodeErr  error
)

// Init configures the node id. It must be called before the first id is
// generated; later calls are ignored.
func Init(nodeID int64) error {
	nodeOnce.Do(func() {
		node, nodeErr = snowflake.NewNode(nodeID)
	})
	return nodeErr
}

func next() snowflake.ID {
	if err := Init(1); err != nil {
		panic(fmt.Sprintf("idgen: %v", err))
	}
	return node.Generate()
}

// NextID returns a raw snowflake id.
func NextID() int64 {
	return next().Int64()
}

// OrderID formats a merch order id, e.g. ord_1763198510862331904.
func OrderID() string {
	return "ord_" + next().String()
}

// TransactionNo formats a wallet ledger entry id.
func TransactionNo() string {
	return "txn_" + next().String()
}

// RegistrationNo formats an event registration id.
func RegistrationNo() string {
	return "reg_" + next().String()
}

// PaymentNo formats the internal id of a gateway payment.
func PaymentNo() string {
	return "pay_" + next().String()
}
