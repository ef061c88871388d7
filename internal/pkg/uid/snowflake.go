package uid

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
)

// Snowflake generates 63-bit time ordered ids for a single node.
type Snowflake struct {
	node *snowflake.Node
}

// NewSnowflake creates a generator for node, which must be in [0, 1023].
func NewSnowflake(node int64) (*Snowflake, error) {
	n, err := snowflake.NewNode(node)
	if err != nil {
		return nil, fmt.Errorf("uid: snowflake node %d: %w", node, err)
	}
	return &Snowflake{node: n}, nil
}

func (s *Snowflake) Generate() int64 {
	return s.node.Generate().Int64()
}

// String adapts the generator to StringID using base58 output.
func (s *Snowflake) String() StringID {
	return snowflakeString{node: s.node}
}

type snowflakeString struct {
	node *snowflake.Node
}

func (s snowflakeString) Generate() string {
	return s.node.Generate().Base58()
}
