package remote

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kevinburke/ssh_config"

	"github.com/sebastian-xyz/scanpi/internal/domain"
)

// targetPattern matches host, user@host, host:port and user@host:port.
var targetPattern = regexp.MustCompile(`^([a-zA-Z0-9_\-]+@)?[a-zA-Z0-9_\-]+(:[0-9]+)?$`)

// Target is the ssh destination of the scanner host.
type Target struct {
	User string
	Host string
	Port int // 0 means the ssh default
}

// ParseTarget validates and splits a target specification.
func ParseTarget(spec string) (Target, error) {
	if !targetPattern.MatchString(spec) {
		return Target{}, domain.ConfigError(
			fmt.Sprintf("invalid target %q, expected 'user@host:port', 'user@host', 'host:port' or 'host'", spec), nil)
	}

	var t Target
	rest := spec
	if at := strings.IndexByte(rest, '@'); at >= 0 {
		t.User = rest[:at]
		rest = rest[at+1:]
	}
	if colon := strings.IndexByte(rest, ':'); colon >= 0 {
		port, err := strconv.Atoi(rest[colon+1:])
		if err != nil || port < 1 || port > 65535 {
			return Target{}, domain.ConfigError(fmt.Sprintf("invalid port in target %q", spec), err)
		}
		t.Port = port
		rest = rest[:colon]
	}
	t.Host = rest
	return t, nil
}

// Destination returns the ssh destination without the port, e.g. pi@scanner.
func (t Target) Destination() string {
	if t.User == "" {
		return t.Host
	}
	return t.User + "@" + t.Host
}

// String returns the target in its configured form.
func (t Target) String() string {
	if t.Port == 0 {
		return t.Destination()
	}
	return fmt.Sprintf("%s:%d", t.Destination(), t.Port)
}

// Describe resolves ssh config aliases for display, e.g.
// "scanpi (pi@192.168.1.20:22)". Unknown aliases are returned unchanged.
func (t Target) Describe() string {
	hostName := ssh_config.Get(t.Host, "HostName")
	if hostName == "" || hostName == t.Host {
		return t.String()
	}

	resolved := Target{User: t.User, Host: hostName, Port: t.Port}
	if resolved.User == "" {
		resolved.User = ssh_config.Get(t.Host, "User")
	}
	if resolved.Port == 0 {
		if p, err := strconv.Atoi(ssh_config.Get(t.Host, "Port")); err == nil && p != 22 {
			resolved.Port = p
		}
	}
	return fmt.Sprintf("%s (%s)", t.String(), resolved.String())
}
