// Package bootstrap ties the pieces together at process start: it
// loads (or repairs) the configuration, runs the boot-failure guard,
// settles the access point secret, brings the network up and starts the
// setup surfaces. The sequencing matters: the guard may mutate the
// configuration and restart the device before anything else runs.
package bootstrap

import (
	"fmt"
	"log"
	"strings"

	"outpost-firmware/pkg/bootguard"
	"outpost-firmware/pkg/config"
	"outpost-firmware/pkg/counter"
	"outpost-firmware/pkg/globals"
	"outpost-firmware/pkg/netman"
	"outpost-firmware/pkg/platform"
	"outpost-firmware/pkg/setupapi"
	"outpost-firmware/pkg/statusled"
	"outpost-firmware/pkg/sysinfo"
)

const defaultHostname = "outpost-device"

// LinkType selects the network driver at construction time.
type LinkType int

const (
	LinkWifi LinkType = iota
	LinkEthernet
)

// SetupUI controls when the setup API is served.
type SetupUI int

const (
	SetupUIAccessPoint SetupUI = iota // only while in access-point mode
	SetupUIAlways
	SetupUINever
)

type Options struct {
	Link    LinkType
	SetupUI SetupUI
	// OpenAccessPoint starts the setup AP without WPA2 even when a
	// secret exists. The secret still gates the setup API.
	OpenAccessPoint bool
	// FixedAPSecret, when at least the minimum length, is persisted
	// instead of a generated secret. Shorter values are refused.
	FixedAPSecret string
	SetupPort     string
}

// Bootstrap owns the started services for the rest of the process life.
type Bootstrap struct {
	Config      *config.Config
	Provisioner *netman.Provisioner
	Counters    *counter.Store
	Hostname    string
	setup       *setupapi.Server
}

// Begin runs the whole startup sequence. If the boot guard decides on a
// recovery action this call never returns (the device restarts).
func Begin(opts Options) (*Bootstrap, error) {
	fixedSecret := opts.FixedAPSecret
	if fixedSecret != "" && len(fixedSecret) < netman.MinimumSecretLength {
		log.Println("Given fixed access point secret is too short. Refusing.")
		fixedSecret = ""
	}

	log.Println("********************")
	log.Println("Outpost startup")
	log.Println("********************")

	cfg := config.Get()
	if err := cfg.Load(); err != nil {
		log.Printf("Configuration is broken, resetting: %v", err)
		if err := cfg.Reset(); err != nil {
			return nil, fmt.Errorf("failed to reset broken configuration: %w", err)
		}
	}

	hostname := CleanHostname(cfg.GetString(config.KeyDeviceName))
	log.Printf("Hostname: %s", hostname)

	counters, err := counter.Open(globals.CountersPath, globals.BootNamespace)
	if err != nil {
		return nil, fmt.Errorf("failed to open counter store: %w", err)
	}

	plat := platform.New()
	guard := bootguard.New(counters, cfg, plat)
	if _, err := guard.Evaluate(); err != nil {
		// The escalation guarantee is broken if these writes fail;
		// make it impossible to miss in the logs, but keep booting.
		log.Printf("CRITICAL: boot evaluation failed: %v", err)
	}

	if opts.Link == LinkWifi {
		if err := ensureAPSecret(cfg, fixedSecret); err != nil {
			return nil, err
		}
	}

	var driver netman.Driver
	if opts.Link == LinkEthernet {
		driver = netman.NewEthernetDriver()
	} else {
		driver = netman.NewWifiDriver()
	}

	provisioner := netman.New(driver, func() error {
		return counters.PutUint(globals.BootCounterKey, 0)
	})

	apSecret := cfg.GetString(config.KeyAccessPointSecret)
	if opts.OpenAccessPoint {
		apSecret = ""
	}

	mode, err := provisioner.Begin(
		cfg.GetString(config.KeyWifiEssid),
		cfg.GetString(config.KeyWifiPassword),
		cfg.GetString(config.KeyWifiConfigured),
		hostname,
		apSecret,
	)
	if err != nil {
		log.Printf("Network startup problem: %v", err)
	}

	statusled.Init()
	statusled.Get().ObserveMode(mode)
	provisioner.Subscribe(statusled.Get().ObserveEvent)

	b := &Bootstrap{
		Config:      cfg,
		Provisioner: provisioner,
		Counters:    counters,
		Hostname:    hostname,
	}

	if opts.SetupUI == SetupUIAlways ||
		(opts.SetupUI == SetupUIAccessPoint && mode == netman.ModeAccessPoint) {
		port := opts.SetupPort
		if port == "" {
			port = globals.SetupAPIPort
		}
		b.setup = setupapi.New(provisioner, cfg, plat.Restart)
		b.setup.Start(port)
	}

	logBanner(cfg, provisioner)
	return b, nil
}

// Close stops the started services. Only used by tests; on a device the
// process runs until reboot.
func (b *Bootstrap) Close() {
	if b.setup != nil {
		b.setup.Stop()
	}
	b.Provisioner.Close()
	b.Counters.Close()
}

// ensureAPSecret makes sure a setup secret exists before the first time
// it could be needed. A valid fixed secret always wins; otherwise a
// secret is generated once and reused for the life of the device (it
// survives configuration resets, which rewrite only the wifi keys).
func ensureAPSecret(cfg *config.Config, fixedSecret string) error {
	if cfg.IsKeySet(config.KeyAccessPointSecret) && fixedSecret == "" {
		return nil
	}

	secret := fixedSecret
	if secret == "" {
		log.Println("Generating access point secret.")
		secret = netman.GenerateRandomSecret(netman.MinimumSecretLength)
	} else {
		log.Println("Using fixed access point secret.")
	}

	cfg.Set(config.KeyAccessPointSecret, secret)
	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to persist access point secret: %w", err)
	}
	return nil
}

// CleanHostname derives a DHCP-safe hostname from the configured device
// name: lowercase, every non-alphanumeric rune replaced with '-'.
func CleanHostname(deviceName string) string {
	if deviceName == "" {
		return defaultHostname
	}

	var b strings.Builder
	for _, r := range strings.ToLower(deviceName) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}

// logBanner prints the identification block, deliberately including the
// access point secret so a user who forgot it can read it back from the
// device log.
func logBanner(cfg *config.Config, p *netman.Provisioner) {
	snap := sysinfo.Collect()
	log.Printf("MAC address: %s, hardware MAC: %s",
		p.SoftwareMACAddress(":"), p.HardwareMACAddress(":"))
	log.Printf("Platform: %s/%s, uptime %s, load %.2f",
		snap.PlatformName, snap.KernelArch, snap.Uptime, snap.LoadAvg1)

	if cfg.IsKeySet(config.KeyAccessPointSecret) {
		log.Println("*******************************************")
		log.Printf("* ACCESS POINT PASSWORD: %s", cfg.GetString(config.KeyAccessPointSecret))
		log.Println("*******************************************")
	}
}
