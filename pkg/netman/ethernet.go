package netman

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"strings"
	"time"

	"outpost-firmware/pkg/globals"
)

// EthernetDriver is the wired variant: client mode only, and Connect
// blocks until link-up is observed. There is no access-point fallback
// on a wired link, so an unconfigured device still comes up as a
// client.
type EthernetDriver struct {
	iface string
}

func NewEthernetDriver() *EthernetDriver {
	return &EthernetDriver{iface: globals.EthernetInterface}
}

func (e *EthernetDriver) SupportsAccessPoint() bool { return false }

// Connect brings the interface up and waits for carrier. It blocks
// indefinitely: on a wired device there is nothing useful to do until
// the cable works.
func (e *EthernetDriver) Connect(essid, password, hostname string) error {
	if err := exec.Command("sudo", "ip", "link", "set", e.iface, "up").Run(); err != nil {
		return fmt.Errorf("failed to bring up %s: %w", e.iface, err)
	}

	if hostname != "" {
		exec.Command("sudo", "hostnamectl", "set-hostname", hostname).Run()
	}

	fmt.Print("Waiting for ethernet link")
	for !e.carrier() {
		fmt.Print(".")
		time.Sleep(100 * time.Millisecond)
	}
	fmt.Println()

	return nil
}

func (e *EthernetDriver) Reconnect() error {
	// The kernel re-negotiates a wired link on its own; cycling the
	// interface is the only nudge available.
	if err := exec.Command("sudo", "ip", "link", "set", e.iface, "down").Run(); err != nil {
		return fmt.Errorf("failed to cycle %s: %w", e.iface, err)
	}
	return exec.Command("sudo", "ip", "link", "set", e.iface, "up").Run()
}

func (e *EthernetDriver) StartAccessPoint(name, secret string) error {
	return ErrAccessPointUnsupported
}

func (e *EthernetDriver) Scan() ([]Network, error) {
	return nil, ErrScanUnsupported
}

func (e *EthernetDriver) IsConnected() bool {
	return e.carrier() && e.LocalIP() != ""
}

func (e *EthernetDriver) Watch(stop <-chan struct{}, events chan<- Event) {
	go func() {
		defer close(events)
		ticker := time.NewTicker(watchPeriod)
		defer ticker.Stop()

		up := false
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				now := e.IsConnected()
				if now == up {
					continue
				}
				up = now
				if up {
					events <- EventAddressAcquired
				} else {
					events <- EventDisconnected
				}
			}
		}
	}()
}

func (e *EthernetDriver) LocalIP() string {
	return interfaceIP(e.iface)
}

// AccessPointIP is meaningless on a wired link.
func (e *EthernetDriver) AccessPointIP() string { return "" }

func (e *EthernetDriver) HardwareMAC() ([]byte, error) {
	out, err := exec.Command("ethtool", "-P", e.iface).Output()
	if err == nil {
		fields := strings.Fields(strings.TrimSpace(string(out)))
		if len(fields) > 0 {
			if mac, err := net.ParseMAC(fields[len(fields)-1]); err == nil {
				return mac, nil
			}
		}
	}
	return e.SoftwareMAC()
}

func (e *EthernetDriver) SoftwareMAC() ([]byte, error) {
	iface, err := net.InterfaceByName(e.iface)
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s: %w", e.iface, err)
	}
	return iface.HardwareAddr, nil
}

func (e *EthernetDriver) carrier() bool {
	data, err := os.ReadFile("/sys/class/net/" + e.iface + "/carrier")
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(data)) == "1"
}
