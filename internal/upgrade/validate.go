package upgrade

import (
	"regexp"
	"strconv"

	"github.com/autopeer-io/agentupgrade/internal/endpoint"
)

// Chunk size bounds accepted by the agent's WPK receiver.
const (
	MinChunkSize = 1
	MaxChunkSize = 64000
)

var versionPattern = regexp.MustCompile(`^v[0-9]+\.[0-9]+\.[0-9]+$`)

// ValidateEndpointActive fails with ErrEndpointNotActive unless the agent is connected.
func ValidateEndpointActive(ep *endpoint.Endpoint) error {
	if !ep.IsActive() {
		status := "unknown"
		if ep != nil && ep.Status != "" {
			status = string(ep.Status)
		}
		return ErrEndpointNotActive.With("Agent status: " + status)
	}
	return nil
}

// ValidateVersion fails with ErrInvalidVersion unless version is exactly vX.Y.Z.
func ValidateVersion(version string) error {
	if !versionPattern.MatchString(version) {
		return ErrInvalidVersion.With("Version received: " + version)
	}
	return nil
}

// ValidateChunkSize fails with ErrInvalidChunkSize unless size is within [MinChunkSize, MaxChunkSize].
func ValidateChunkSize(size int) error {
	if size < MinChunkSize || size > MaxChunkSize {
		return ErrInvalidChunkSize.With("Chunk defined: " + strconv.Itoa(size))
	}
	return nil
}

// Validate runs every precondition against an already loaded agent record.
// Absent optional fields are valid. It has no side effects.
func Validate(ep *endpoint.Endpoint, req *Request) error {
	if err := ValidateEndpointActive(ep); err != nil {
		return err
	}
	if req.Version != nil {
		if err := ValidateVersion(*req.Version); err != nil {
			return err
		}
	}
	if req.ChunkSize != nil {
		if err := ValidateChunkSize(*req.ChunkSize); err != nil {
			return err
		}
	}
	return nil
}
