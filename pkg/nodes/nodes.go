// Package nodes wires the built-in action node factories into a registry.
package nodes

import (
	"github.com/conveyor-automation/conveyor/pkg/nodes/delay"
	"github.com/conveyor-automation/conveyor/pkg/nodes/filewrite"
	"github.com/conveyor-automation/conveyor/pkg/nodes/httprequest"
	"github.com/conveyor-automation/conveyor/pkg/nodes/log"
	"github.com/conveyor-automation/conveyor/pkg/nodes/transform"
	"github.com/conveyor-automation/conveyor/pkg/nodes/variable"
	"github.com/conveyor-automation/conveyor/pkg/registry"
)

// RegisterDefaults registers every built-in action node type.
func RegisterDefaults(reg *registry.Registry) {
	reg.RegisterNode(log.NewNodeFactory())
	reg.RegisterNode(httprequest.NewNodeFactory())
	reg.RegisterNode(transform.NewNodeFactory())
	reg.RegisterNode(delay.NewNodeFactory())
	reg.RegisterNode(variable.NewNodeFactory())
	reg.RegisterNode(filewrite.NewNodeFactory())
}
