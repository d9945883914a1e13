package network

import (
	"context"
	"fmt"
	"net"
	"strings"

	"moments/internal/config"
	"moments/internal/moments"
)

// Interface is the subset of a network interface the condition inspects.
type Interface struct {
	Name     string
	Up       bool
	Loopback bool
	HasAddr  bool
}

// InterfaceCondition holds when an interface whose name starts with one of
// Prefixes is up and has an address, e.g. "wlan" or "en" for Wi-Fi and
// ethernet while cellular ("wwan", "rmnet") is excluded.
type InterfaceCondition struct {
	Prefixes []string

	// list enumerates interfaces; nil uses the host's.
	list func() ([]Interface, error)
}

var _ moments.Condition = (*InterfaceCondition)(nil)

// NewInterfaceCondition creates a condition over the host's interfaces.
func NewInterfaceCondition(prefixes []string) *InterfaceCondition {
	return &InterfaceCondition{Prefixes: prefixes, list: hostInterfaces}
}

func (c *InterfaceCondition) Ready(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	list := c.list
	if list == nil {
		list = hostInterfaces
	}
	ifaces, err := list()
	if err != nil {
		return false, fmt.Errorf("listing interfaces: %w", err)
	}

	for _, iface := range ifaces {
		if !iface.Up || iface.Loopback || !iface.HasAddr {
			continue
		}
		for _, p := range c.Prefixes {
			if strings.HasPrefix(iface.Name, p) {
				return true, nil
			}
		}
	}
	return false, nil
}

func hostInterfaces() ([]Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	out := make([]Interface, 0, len(ifaces))
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		out = append(out, Interface{
			Name:     iface.Name,
			Up:       iface.Flags&net.FlagUp != 0,
			Loopback: iface.Flags&net.FlagLoopback != 0,
			HasAddr:  err == nil && len(addrs) > 0,
		})
	}
	return out, nil
}

// NewConditionFromConfig creates the sync resumption condition.
func NewConditionFromConfig(cfg config.SyncConfig) (moments.Condition, error) {
	switch cfg.Condition {
	case "always", "":
		return moments.Always{}, nil
	case "interface":
		if len(cfg.PreferredInterfaces) == 0 {
			return nil, fmt.Errorf("interface condition requires preferred_interfaces to be set")
		}
		return NewInterfaceCondition(cfg.PreferredInterfaces), nil
	default:
		return nil, fmt.Errorf("unknown sync condition: %s", cfg.Condition)
	}
}
