package transfer

// CommandType tells the agent where the package comes from.
type CommandType string

const (
	CommandRepository CommandType = "repository"
	CommandCustom     CommandType = "custom"
)

// Command is published to {root}/upgrade/{agentID}.
type Command struct {
	RequestID string      `json:"request_id"`
	Type      CommandType `json:"type"`

	// PackageURL is the repository directory in repository mode and a
	// presigned download link in custom mode.
	PackageURL string `json:"package_url"`
	Version    string `json:"version,omitempty"`
	Force      bool   `json:"force,omitempty"`
	Installer  string `json:"installer,omitempty"`
	ChunkSize  int    `json:"chunk_size"`

	// ReconnectTimeout is in seconds, -1 means the agent waits indefinitely.
	ReconnectTimeout int `json:"reconnect_timeout"`

	// SHA256 is the hex digest of the custom package.
	SHA256 string `json:"sha256,omitempty"`
}

// Ack is published by the agent on {root}/upgrade/ack/{agentID}.
type Ack struct {
	RequestID string `json:"request_id"`
	Accepted  bool   `json:"accepted"`
	Message   string `json:"message"`
}

// Progress is published by the agent on {root}/upgrade/progress/{agentID}.
type Progress struct {
	RequestID  string `json:"request_id"`
	Percentage int    `json:"percentage"`
}

// Result is published by the agent on {root}/upgrade/result/{agentID} once
// the installer has finished.
type Result struct {
	RequestID string `json:"request_id"`
	Succeeded bool   `json:"succeeded"`
	Version   string `json:"version,omitempty"`
	Message   string `json:"message"`
	Detail    string `json:"detail,omitempty"`
}
