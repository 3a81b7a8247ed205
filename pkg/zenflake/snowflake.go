package zenflake

import (
	"fmt"
	"hash/adler32"

	"github.com/bwmarrin/snowflake"
)

var (
	// NodeBits holds the number of bits to use for Node
	// Remember, you have a total 22 bits to share between Node/Step
	NodeBits uint8 = 10

	// StepBits holds the number of bits to use for Step
	// Remember, you have a total 22 bits to share between Node/Step
	StepBits uint8 = 12

	// internal values of bwmarrin/snowflake
	nodeMax   int64 = -1 ^ (-1 << NodeBits)
	nodeMask        = nodeMax << StepBits
	nodeShift       = StepBits
)

func GetNodeMask() int64 {
	return nodeMask
}

// GetNodeId extracts the id of the node that generated id.
func GetNodeId(id int64) int64 {
	return (id & GetNodeMask()) >> int64(nodeShift)
}

// NodeIdOf hashes seed into the range of valid node ids.
func NodeIdOf(seed string) int64 {
	return int64(adler32.Checksum([]byte(seed))) & nodeMax
}

// NewNode creates a snowflake node whose id is derived from seed.
func NewNode(seed string) (*snowflake.Node, error) {
	snowflake.NodeBits = NodeBits
	snowflake.StepBits = StepBits
	node, err := snowflake.NewNode(NodeIdOf(seed))
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node for %q: %w", seed, err)
	}
	return node, nil
}
