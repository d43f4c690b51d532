package netman

import (
	"bytes"
	"fmt"
	"net"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	"outpost-firmware/pkg/globals"
)

const (
	apAddress   = "192.168.4.1"
	apCIDR      = apAddress + "/24"
	watchPeriod = 2 * time.Second
)

// WifiDriver drives the wireless interface through wpa_supplicant for
// client mode and hostapd/dnsmasq for access-point mode.
type WifiDriver struct {
	mu         sync.Mutex
	iface      string
	hostapdCmd *exec.Cmd
	dnsmasqCmd *exec.Cmd
}

func NewWifiDriver() *WifiDriver {
	return &WifiDriver{iface: globals.WifiInterface}
}

func (w *WifiDriver) SupportsAccessPoint() bool { return true }

// Connect switches the interface to client mode and kicks off the
// association. It does not wait for the connection to come up; the
// watcher reports that.
func (w *WifiDriver) Connect(essid, password, hostname string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	// Escape the SSID for safe embedding in the supplicant config
	escaped := strings.ReplaceAll(essid, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)

	var network []byte
	if password == "" {
		network = []byte(fmt.Sprintf("network={\n\tssid=\"%s\"\n\tkey_mgmt=NONE\n}\n", escaped))
	} else {
		// wpa_passphrase derives the PSK; the password goes through
		// stdin so it never appears in a command line
		cmd := exec.Command("wpa_passphrase", escaped)
		cmd.Stdin = strings.NewReader(password)
		out, err := cmd.Output()
		if err != nil {
			return fmt.Errorf("failed to derive network config: %w", err)
		}
		network = out
	}

	header := "ctrl_interface=/var/run/wpa_supplicant\nupdate_config=1\n\n"
	write := exec.Command("sudo", "tee", "/etc/wpa_supplicant/wpa_supplicant.conf")
	write.Stdin = bytes.NewReader(append([]byte(header), network...))
	write.Stdout = nil
	if err := write.Run(); err != nil {
		return fmt.Errorf("failed to save network config: %w", err)
	}

	if hostname != "" {
		// Best effort: the DHCP client picks the hostname up on the
		// next lease
		exec.Command("sudo", "hostnamectl", "set-hostname", hostname).Run()
	}

	if err := exec.Command("wpa_cli", "-i", w.iface, "reconfigure").Run(); err != nil {
		return fmt.Errorf("failed to apply network config: %w", err)
	}

	return nil
}

// Reconnect nudges the supplicant after a drop. The supplicant's own
// retry behavior takes over from there.
func (w *WifiDriver) Reconnect() error {
	if err := exec.Command("wpa_cli", "-i", w.iface, "reconnect").Run(); err != nil {
		return fmt.Errorf("failed to trigger reconnect: %w", err)
	}
	return nil
}

// StartAccessPoint tears down client mode and opens a local network.
// With a secret the network is WPA2-protected, otherwise open.
func (w *WifiDriver) StartAccessPoint(name, secret string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	exec.Command("sudo", "killall", "wpa_supplicant").Run()

	if err := exec.Command("sudo", "ip", "addr", "flush", "dev", w.iface).Run(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", w.iface, err)
	}
	if err := exec.Command("sudo", "ip", "addr", "add", apCIDR, "dev", w.iface).Run(); err != nil {
		return fmt.Errorf("failed to assign address: %w", err)
	}
	if err := exec.Command("sudo", "ip", "link", "set", w.iface, "up").Run(); err != nil {
		return fmt.Errorf("failed to bring up %s: %w", w.iface, err)
	}

	if err := w.startDNSMasq(); err != nil {
		return fmt.Errorf("failed to start dnsmasq: %w", err)
	}
	if err := w.startHostAPD(name, secret); err != nil {
		return fmt.Errorf("failed to start hostapd: %w", err)
	}

	return nil
}

func (w *WifiDriver) startDNSMasq() error {
	conf := fmt.Sprintf(`interface=%s
dhcp-range=192.168.4.2,192.168.4.20,255.255.255.0,24h
domain=wlan
`, w.iface)

	cmd := exec.Command("sudo", "tee", "/tmp/dnsmasq.conf")
	cmd.Stdin = strings.NewReader(conf)
	cmd.Stdout = nil
	if err := cmd.Run(); err != nil {
		return err
	}

	w.dnsmasqCmd = exec.Command("sudo", "dnsmasq", "-C", "/tmp/dnsmasq.conf", "--no-daemon")
	return w.dnsmasqCmd.Start()
}

func (w *WifiDriver) startHostAPD(name, secret string) error {
	conf := fmt.Sprintf(`interface=%s
driver=nl80211
ssid=%s
hw_mode=g
channel=7
wmm_enabled=0
macaddr_acl=0
auth_algs=1
ignore_broadcast_ssid=0
`, w.iface, name)

	if secret != "" {
		conf += fmt.Sprintf(`wpa=2
wpa_passphrase=%s
wpa_key_mgmt=WPA-PSK
rsn_pairwise=CCMP
`, secret)
	}

	cmd := exec.Command("sudo", "tee", "/tmp/hostapd.conf")
	cmd.Stdin = strings.NewReader(conf)
	cmd.Stdout = nil
	if err := cmd.Run(); err != nil {
		return err
	}

	w.hostapdCmd = exec.Command("sudo", "hostapd", "/tmp/hostapd.conf")
	return w.hostapdCmd.Start()
}

// IsConnected reports whether the interface is associated with a
// network and has an address.
func (w *WifiDriver) IsConnected() bool {
	out, err := exec.Command("iwgetid", "-r").Output()
	if err != nil || len(strings.TrimSpace(string(out))) == 0 {
		return false
	}
	return w.LocalIP() != ""
}

// Watch polls the link and emits transitions. Polling keeps the driver
// independent of any particular supplicant event socket.
func (w *WifiDriver) Watch(stop <-chan struct{}, events chan<- Event) {
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
				now := w.IsConnected()
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

func (w *WifiDriver) LocalIP() string {
	return interfaceIP(w.iface)
}

func (w *WifiDriver) AccessPointIP() string {
	return apAddress
}

// HardwareMAC reads the factory-programmed address, which survives
// MAC randomization and manual overrides.
func (w *WifiDriver) HardwareMAC() ([]byte, error) {
	out, err := exec.Command("ethtool", "-P", w.iface).Output()
	if err == nil {
		// Output: "Permanent address: aa:bb:cc:dd:ee:ff"
		fields := strings.Fields(strings.TrimSpace(string(out)))
		if len(fields) > 0 {
			if mac, err := net.ParseMAC(fields[len(fields)-1]); err == nil {
				return mac, nil
			}
		}
	}
	// Fall back to the assigned address
	return w.SoftwareMAC()
}

func (w *WifiDriver) SoftwareMAC() ([]byte, error) {
	iface, err := net.InterfaceByName(w.iface)
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s: %w", w.iface, err)
	}
	return iface.HardwareAddr, nil
}

// Scan lists nearby networks for the setup API.
func (w *WifiDriver) Scan() ([]Network, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	exec.Command("sudo", "iwlist", w.iface, "scan").Run() // trigger scan

	out, err := exec.Command("sudo", "iwlist", w.iface, "scan").Output()
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}
	return parseScan(string(out)), nil
}

var (
	ssidRe       = regexp.MustCompile(`ESSID:"([^"]+)"`)
	qualityRe    = regexp.MustCompile(`Quality=(\d+)/(\d+)`)
	encryptionRe = regexp.MustCompile(`Encryption key:(on|off)`)
)

func parseScan(output string) []Network {
	var networks []Network

	for _, cell := range strings.Split(output, "Cell ")[1:] {
		ssidMatch := ssidRe.FindStringSubmatch(cell)
		if len(ssidMatch) < 2 {
			continue
		}

		network := Network{SSID: ssidMatch[1]}

		if m := qualityRe.FindStringSubmatch(cell); len(m) > 2 {
			var quality, max int
			fmt.Sscanf(m[1], "%d", &quality)
			fmt.Sscanf(m[2], "%d", &max)
			if max > 0 {
				network.Signal = (quality * 100) / max
			}
		}

		if m := encryptionRe.FindStringSubmatch(cell); len(m) > 1 {
			network.Secured = m[1] == "on"
		}

		networks = append(networks, network)
	}

	return networks
}

// interfaceIP returns the first IPv4 address assigned to iface, or "".
func interfaceIP(name string) string {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return ""
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return ""
	}
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok {
			if v4 := ipnet.IP.To4(); v4 != nil {
				return v4.String()
			}
		}
	}
	return ""
}
