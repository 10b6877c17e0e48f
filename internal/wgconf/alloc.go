package wgconf

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrSubnetExhausted reports that every host address in [2,254] is taken.
var ErrSubnetExhausted = errors.New("wgconf: no free addresses in subnet")

// NextIP scans the AllowedIPs lines of configText and returns the
// lowest unused host address under subnetBase (three dotted octets,
// e.g. "10.0.1") as a /32. Host 1 is reserved for the server.
func NextIP(subnetBase, configText string) (string, error) {
	prefix := subnetBase + "."
	used := make(map[int]bool)

	for _, line := range strings.Split(configText, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "AllowedIPs") {
			continue
		}
		_, value, ok := strings.Cut(trimmed, "=")
		if !ok {
			continue
		}
		for _, cidr := range strings.Split(value, ",") {
			ip, _, _ := strings.Cut(strings.TrimSpace(cidr), "/")
			if !strings.HasPrefix(ip, prefix) {
				continue
			}
			if host, err := strconv.Atoi(ip[len(prefix):]); err == nil {
				used[host] = true
			}
		}
	}

	for host := 2; host <= 254; host++ {
		if !used[host] {
			return fmt.Sprintf("%s.%d/32", subnetBase, host), nil
		}
	}
	return "", ErrSubnetExhausted
}
