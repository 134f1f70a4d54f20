package reachability

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultSysfsRoot lists network interfaces on Linux.
const DefaultSysfsRoot = "/sys/class/net"

// virtualPrefixes are interfaces that never carry an uplink by themselves.
var virtualPrefixes = []string{"lo", "docker", "veth", "br-", "virbr", "cni", "flannel", "tun", "tap"}

// Classify maps an interface name to a transport class.
func Classify(iface string) Transport {
	switch {
	case hasAnyPrefix(iface, "en", "eth"):
		return TransportWired
	case hasAnyPrefix(iface, "wl"):
		return TransportLocalArea
	case hasAnyPrefix(iface, "ww", "rmnet", "ppp", "wwan"):
		return TransportWideAreaMetered
	default:
		return TransportUnknown
	}
}

// rank orders transports when several interfaces are up.
func rank(t Transport) int {
	switch t {
	case TransportWired:
		return 0
	case TransportLocalArea:
		return 1
	case TransportWideAreaMetered:
		return 2
	default:
		return 3
	}
}

// Probe inspects root (a /sys/class/net style directory) and reports the
// best interface that is up. ChangedAt is left zero.
func Probe(root string) (Status, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return Status{Transport: TransportUnknown}, fmt.Errorf("failed to read interfaces in %s: %w", root, err)
	}

	var up []string
	for _, e := range entries {
		name := e.Name()
		if hasAnyPrefix(name, virtualPrefixes...) {
			continue
		}
		if isUp(filepath.Join(root, name)) {
			up = append(up, name)
		}
	}

	if len(up) == 0 {
		return Status{Transport: TransportUnknown}, nil
	}

	sort.SliceStable(up, func(i, j int) bool {
		ri, rj := rank(Classify(up[i])), rank(Classify(up[j]))
		if ri != rj {
			return ri < rj
		}
		return up[i] < up[j]
	})

	best := up[0]
	return Status{Connected: true, Transport: Classify(best), Interface: best}, nil
}

// isUp reads operstate. Point-to-point links often report "unknown" while
// passing traffic, so those count when carrier is 1.
func isUp(dir string) bool {
	state := readTrimmed(filepath.Join(dir, "operstate"))
	switch state {
	case "up":
		return true
	case "unknown":
		return readTrimmed(filepath.Join(dir, "carrier")) == "1"
	}
	return false
}

func readTrimmed(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
