package vportio

import (
	"fmt"
	"strings"

	"github.com/ovsdp/ovsdp/pkg/bufpool"
	"github.com/ovsdp/ovsdp/pkg/memnic"
	"github.com/ovsdp/ovsdp/pkg/vport"
)

// queueCapacity is the default ring size backing a queue-style port's
// ingress and egress rings.
const queueCapacity = 1024

// ParseType maps a configuration file's vport type name onto
// vport.Type, accepting the lowercase names spec.md §4.2's port table
// uses.
func ParseType(name string) (vport.Type, error) {
	switch strings.ToLower(name) {
	case "phy":
		return vport.Phy, nil
	case "client":
		return vport.Client, nil
	case "kni":
		return vport.KNI, nil
	case "veth":
		return vport.Veth, nil
	case "vhost":
		return vport.Vhost, nil
	case "memnic":
		return vport.Memnic, nil
	case "bridge":
		return vport.Bridge, nil
	case "vswitchd":
		return vport.Vswitchd, nil
	default:
		return vport.Disabled, fmt.Errorf("vportio: unknown vport type %q", name)
	}
}

// New builds the vport.IOPort for a vport of type t. device names a
// capture interface for Phy/KNI, a /dev/shm path for Memnic, and is
// ignored for the in-process queue-backed types.
func New(t vport.Type, device string, pool *bufpool.Pool, core int) (vport.IOPort, error) {
	switch t {
	case vport.Phy, vport.KNI:
		return newPCAPPort(device, pool, core)
	case vport.Memnic:
		region, err := openOrCreateMemnic(device)
		if err != nil {
			return nil, err
		}
		return newMemnicPort(region, pool, core), nil
	case vport.Client, vport.Veth, vport.Vhost, vport.Bridge, vport.Vswitchd:
		return newQueuePort(queueCapacity), nil
	default:
		return nil, fmt.Errorf("vportio: cannot build io for vport type %d", t)
	}
}

func openOrCreateMemnic(path string) (*memnic.Region, error) {
	if region, err := memnic.Open(path); err == nil {
		return region, nil
	}
	return memnic.Create(path)
}
