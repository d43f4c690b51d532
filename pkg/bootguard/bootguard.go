// Package bootguard turns a run of unexplained reboots into a
// deterministic recovery action. Every boot caused by a power cycle or
// the reset button increments a persistent counter; acquiring a network
// address later clears it. When the counter climbs too high the device
// first retries, then falls back to wiping its configuration (or, if it
// was never configured, its whole data partition) so it always ends up
// reachable through the setup access point again.
package bootguard

import (
	"fmt"
	"log"
	"strings"

	"outpost-firmware/pkg/config"
	"outpost-firmware/pkg/globals"
	"outpost-firmware/pkg/platform"
)

// Counters is the slice of the counter store this package needs.
type Counters interface {
	GetUint(key string, def uint) (uint, error)
	PutUint(key string, value uint) error
	Close() error
}

// Device is the slice of the platform this package needs. Restart must
// not return.
type Device interface {
	ResetCause() platform.ResetCause
	Restart()
	FormatData() error
}

// Outcome reports what Evaluate decided, mostly for logging and tests.
// The two reset outcomes are never observed by callers in production
// because they end in a restart.
type Outcome int

const (
	OutcomeNormal Outcome = iota
	OutcomeCounted
	OutcomeConfigReset
	OutcomeFactoryReset
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCounted:
		return "counted"
	case OutcomeConfigReset:
		return "config-reset"
	case OutcomeFactoryReset:
		return "factory-reset"
	default:
		return "normal"
	}
}

type Guard struct {
	counters Counters
	cfg      *config.Config
	device   Device
}

func New(counters Counters, cfg *config.Config, device Device) *Guard {
	return &Guard{counters: counters, cfg: cfg, device: device}
}

// Evaluate runs the boot state machine. It either returns with the
// counter updated, or persists a recovery action and restarts the
// device (in which case it never returns). Persistence errors are
// returned so the caller can log them loudly; suppressing them would
// break the escalation guarantee.
func (g *Guard) Evaluate() (Outcome, error) {
	cause := g.device.ResetCause()
	log.Printf("Reset cause: %s", cause)

	if cause != platform.CausePowerOnOrButton {
		// A software reset or crash recovery is not part of a
		// power-cycle run; start the window over.
		if err := g.counters.PutUint(globals.BootCounterKey, 0); err != nil {
			return OutcomeNormal, fmt.Errorf("failed to clear boot counter: %w", err)
		}
		return OutcomeNormal, nil
	}

	count, err := g.counters.GetUint(globals.BootCounterKey, 0)
	if err != nil {
		return OutcomeNormal, fmt.Errorf("failed to read boot counter: %w", err)
	}
	count++
	log.Printf("Unexplained boots in a row: %d", count)

	configured := g.cfg.GetString(config.KeyWifiConfigured)

	switch {
	case count > 3:
		// The config reset at three boots did not help (or the run
		// started configured). Drop back to setup mode.
		log.Println("Forcing configuration reset: network setup will reopen")
		g.cfg.Set(config.KeyWifiConfigured, "false")
		if err := g.cfg.Save(); err != nil {
			return OutcomeConfigReset, fmt.Errorf("failed to save forced config reset: %w", err)
		}
		if err := g.finishAndRestart(); err != nil {
			return OutcomeConfigReset, err
		}
		return OutcomeConfigReset, nil // unreachable, restart does not return

	case count == 3 && !equalsTrue(configured):
		// Never configured and still failing: the stored data itself
		// is the prime suspect. Wipe it all. The counter is zeroed
		// and committed before the wipe so the store file is not
		// deleted under an open handle; after the wipe an absent
		// counter reads as zero anyway.
		log.Println("Forcing factory reset: wiping data partition")
		if err := g.counters.PutUint(globals.BootCounterKey, 0); err != nil {
			return OutcomeFactoryReset, fmt.Errorf("failed to clear boot counter: %w", err)
		}
		if err := g.counters.Close(); err != nil {
			return OutcomeFactoryReset, fmt.Errorf("failed to commit counter store: %w", err)
		}
		if err := g.device.FormatData(); err != nil {
			return OutcomeFactoryReset, fmt.Errorf("failed to format data partition: %w", err)
		}
		g.device.Restart()
		return OutcomeFactoryReset, nil // unreachable

	default:
		if err := g.counters.PutUint(globals.BootCounterKey, count); err != nil {
			return OutcomeCounted, fmt.Errorf("failed to store boot counter: %w", err)
		}
		return OutcomeCounted, nil
	}
}

// finishAndRestart zeroes the counter, commits the store and reboots.
// The write-then-close ordering guarantees the next boot never sees a
// counter inconsistent with the action already taken.
func (g *Guard) finishAndRestart() error {
	if err := g.counters.PutUint(globals.BootCounterKey, 0); err != nil {
		return fmt.Errorf("failed to clear boot counter: %w", err)
	}
	if err := g.counters.Close(); err != nil {
		return fmt.Errorf("failed to commit counter store: %w", err)
	}
	g.device.Restart()
	return nil
}

func equalsTrue(value string) bool {
	return strings.EqualFold(value, "true")
}
