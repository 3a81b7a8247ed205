package zenflake

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeMask(t *testing.T) {
	nodeId := int64(4)
	node, err := snowflake.NewNode(nodeId)
	require.NoError(t, err)
	id := node.Generate()

	assert.Equal(t, nodeId, GetNodeId(id.Int64()))
}

func TestNewNodeIsDeterministic(t *testing.T) {
	// given
	first, err := NewNode("engine-a")
	require.NoError(t, err)
	second, err := NewNode("engine-a")
	require.NoError(t, err)

	// when
	a := first.Generate().Int64()
	b := second.Generate().Int64()

	// then
	assert.Equal(t, GetNodeId(a), GetNodeId(b))
	assert.Equal(t, NodeIdOf("engine-a"), GetNodeId(a))
	assert.LessOrEqual(t, NodeIdOf("some other seed"), nodeMax)
}
