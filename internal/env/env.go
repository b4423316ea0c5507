// Package env resolves the runtime environment of the process.
package env

import (
	"os"
	"strings"

	"github.com/ekisa-team/ttsd/internal/envvar"
)

// Environment is the deployment environment the process runs in.
type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
)

// FromEnv reads the environment from TTSD_ENV. Anything other than a
// production spelling is treated as development.
func FromEnv() Environment {
	return Parse(os.Getenv(envvar.TtsdEnv))
}

// Parse maps a raw value to an Environment.
func Parse(s string) Environment {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "prod", "production":
		return Production
	default:
		return Development
	}
}

// IsProduction reports whether e is the production environment.
func (e Environment) IsProduction() bool {
	return e == Production
}
