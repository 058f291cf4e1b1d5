package models

// Port IDs are globally unique strings in the form "{node_id}:{port_name}".

// MakePortID creates a port ID from node ID and port name.
func MakePortID(nodeID, portName string) string {
	return nodeID + ":" + portName
}

// ParsePortID splits a port ID into node ID and port name.
func ParsePortID(portID string) (string, string, bool) {
	for i := 0; i < len(portID); i++ {
		if portID[i] == ':' {
			return portID[:i], portID[i+1:], true
		}
	}

	return "", "", false
}

// Well-known port names used by control nodes.
const (
	PortMain      = "main"
	PortTrue      = "true"
	PortFalse     = "false"
	PortLoopBody  = "body"
	PortLoopDone  = "done"
	PortCatch     = "catch"
	PortScopeBody = "try"
)
