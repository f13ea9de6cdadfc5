package id

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node *snowflake.Node
	once sync.Once
)

// Init initializes the Snowflake node with the given node ID.
// Subsequent calls are no-ops and return the first result.
func Init(nodeID int64) error {
	var err error
	once.Do(func() {
		node, err = snowflake.NewNode(nodeID)
	})
	return err
}

// New generates a time-ordered review ID. Init must have been called.
func New() int64 {
	return node.Generate().Int64()
}

// String renders an ID the way it travels over HTTP (JSON numbers lose precision in browsers).
func String(v int64) string {
	return snowflake.ParseInt64(v).String()
}

// Parse reads an ID produced by String.
func Parse(s string) (int64, error) {
	parsed, err := snowflake.ParseString(s)
	if err != nil {
		return 0, fmt.Errorf("parsing review id %q: %w", s, err)
	}
	return parsed.Int64(), nil
}
