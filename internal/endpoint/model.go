package endpoint

import "time"

// ManagerID is the reserved identifier of the manager's own record in the registry.
const ManagerID = "000"

// Status is the connection status the manager records for an agent.
type Status string

const (
	StatusActive         Status = "active"
	StatusPending        Status = "pending"
	StatusDisconnected   Status = "disconnected"
	StatusNeverConnected Status = "never_connected"
)

// Endpoint is a managed agent as recorded by the manager.
// The upgrade tool only reads these records; the manager updates them as keep-alives arrive.
type Endpoint struct {
	ID   string
	Name string
	IP   string

	Status Status

	// Version is the agent version as reported by the agent, e.g. "v4.2.0".
	Version string

	// LastKeepAlive is the time of the last keep-alive received from the agent.
	// Zero when the agent never connected.
	LastKeepAlive time.Time
}

// IsActive reports whether the agent is currently connected.
func (e *Endpoint) IsActive() bool {
	return e != nil && e.Status == StatusActive
}
