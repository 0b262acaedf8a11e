package upgrade

import "path/filepath"

// Mode selects where the upgrade package comes from.
type Mode string

const (
	// ModeRepository lets the agent fetch a WPK package from a package repository.
	ModeRepository Mode = "repository"
	// ModeCustomFile pushes an operator-supplied WPK file with a custom installer.
	ModeCustomFile Mode = "custom"
)

// LatestVersion is sent to the repository when no target version is requested.
const LatestVersion = "latest"

// UnboundedTimeout tells the agent to wait indefinitely before unlocking its restart.
const UnboundedTimeout = -1

// Request holds the parameters of one upgrade attempt. Optional fields are nil
// when the operator did not supply them.
type Request struct {
	// AgentID identifies the agent to upgrade.
	AgentID string

	// Version is the target version, vX.Y.Z. Nil means the latest version.
	Version *string

	// Force allows reinstalling the same version or downgrading.
	Force bool

	// ChunkSize is the WPK transfer chunk size in bytes. Nil means the configured default.
	ChunkSize *int

	// Timeout is the restart-unlock timeout in seconds handed to the agent.
	// Nil means UnboundedTimeout.
	Timeout *int

	// RepositoryURL overrides the default package repository. Repository mode only.
	RepositoryURL string

	// UseHTTP selects plain HTTP instead of HTTPS for the repository. Repository mode only.
	UseHTTP bool

	// FilePath is the custom WPK file. Setting it selects ModeCustomFile.
	FilePath string

	// Installer is the executable inside the custom WPK. Custom mode only.
	Installer string
}

// Mode derives the transfer mode from the request.
func (r *Request) Mode() Mode {
	if r.FilePath != "" {
		return ModeCustomFile
	}
	return ModeRepository
}

// clone returns a deep copy so the attempt is immune to later changes of the caller's value.
func (r *Request) clone() Request {
	c := *r
	if r.Version != nil {
		v := *r.Version
		c.Version = &v
	}
	if r.ChunkSize != nil {
		n := *r.ChunkSize
		c.ChunkSize = &n
	}
	if r.Timeout != nil {
		n := *r.Timeout
		c.Timeout = &n
	}
	if c.FilePath != "" {
		c.FilePath = filepath.Clean(c.FilePath)
	}
	return c
}

// CustomTransfer is what the transfer collaborator receives in custom file mode.
type CustomTransfer struct {
	AgentID   string
	FilePath  string
	Installer string
	ChunkSize int
	Timeout   int
}

// RepositoryTransfer is what the transfer collaborator receives in repository mode.
type RepositoryTransfer struct {
	AgentID       string
	RepositoryURL string
	Version       string
	Force         bool
	ChunkSize     int
	Timeout       int
	UseHTTP       bool
}
