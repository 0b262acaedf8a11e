package endpoint

import (
	"strings"

	"github.com/blang/semver/v4"
	"github.com/pkg/errors"
)

// parseVersion accepts the forms "v4.2.0", "4.2.0" and "Wazuh v4.2.0".
func parseVersion(s string) (semver.Version, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return semver.Version{}, errors.New("empty version")
	}
	v, err := semver.ParseTolerant(fields[len(fields)-1])
	if err != nil {
		return semver.Version{}, errors.Wrapf(err, "parse version %q", s)
	}
	return v, nil
}
