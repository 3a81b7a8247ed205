package bpmn

import (
	"github.com/bwmarrin/snowflake"
	"github.com/pbinitiative/zenorchestrator/pkg/zenflake"
)

// newSnowflakeNode creates the generator of execution keys for the engine called name.
func newSnowflakeNode(name string) *snowflake.Node {
	node, err := zenflake.NewNode(name)
	if err != nil {
		// node ids are masked into range so this only fails on a broken bit layout
		panic(err)
	}
	return node
}
