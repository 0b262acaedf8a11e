package topic

import (
	"fmt"
)

// Topic segments shared by the upgrade tool (cloud) and the agent (edge).
// Changing these values breaks compatibility with deployed agents.
const (
	// SuffixUpgrade carries upgrade commands (Cloud -> Edge).
	// Structure: {root}/upgrade/{agentID}
	SuffixUpgrade = "upgrade"

	// SuffixUpgradeAck carries the agent's acceptance or rejection of a command (Edge -> Cloud).
	// Structure: {root}/upgrade/ack/{agentID}
	SuffixUpgradeAck = "upgrade/ack"

	// SuffixUpgradeProgress carries package download progress (Edge -> Cloud).
	// Structure: {root}/upgrade/progress/{agentID}
	SuffixUpgradeProgress = "upgrade/progress"

	// SuffixUpgradeResult carries the final outcome, published after the agent restarts (Edge -> Cloud).
	// Structure: {root}/upgrade/result/{agentID}
	SuffixUpgradeResult = "upgrade/result"
)

// Builder encapsulates the logic for constructing MQTT topic strings.
type Builder struct {
	// root is the base namespace for all topics (e.g., "wpk/v1").
	root string
}

// NewBuilder creates a new instance of Builder with the specified root namespace.
func NewBuilder(root string) *Builder {
	return &Builder{root: root}
}

// Upgrade returns the topic string for sending upgrade commands to an agent.
// Direction: Cloud -> Edge
func (b *Builder) Upgrade(agentID string) string {
	return b.build(SuffixUpgrade, agentID)
}

// UpgradeAck returns the topic an agent uses to acknowledge a command.
// Direction: Edge -> Cloud
func (b *Builder) UpgradeAck(agentID string) string {
	return b.build(SuffixUpgradeAck, agentID)
}

// UpgradeProgress returns the topic an agent uses to report download progress.
// Direction: Edge -> Cloud
func (b *Builder) UpgradeProgress(agentID string) string {
	return b.build(SuffixUpgradeProgress, agentID)
}

// UpgradeResult returns the topic an agent uses to report the final result.
// Direction: Edge -> Cloud
func (b *Builder) UpgradeResult(agentID string) string {
	return b.build(SuffixUpgradeResult, agentID)
}

// build constructs {root}/{suffix}/{identifier}.
func (b *Builder) build(suffix, id string) string {
	return fmt.Sprintf("%s/%s/%s", b.root, suffix, id)
}
