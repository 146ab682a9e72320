package instance

import (
	"fmt"
	"os"
	"strings"
)

// EnvInstanceID overrides the derived identifier, e.g. with a pod name.
const EnvInstanceID = "ATELIER_INSTANCE_ID"

// ID names this process in logs.
// It prefers EnvInstanceID and otherwise combines role, hostname and pid.
func ID(role string) string {
	if id := strings.TrimSpace(os.Getenv(EnvInstanceID)); id != "" {
		return id
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("%s@%s:%d", role, host, os.Getpid())
}
