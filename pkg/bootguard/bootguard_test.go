package bootguard

import (
	"errors"
	"path/filepath"
	"testing"

	"outpost-firmware/pkg/config"
	"outpost-firmware/pkg/globals"
	"outpost-firmware/pkg/platform"
)

type fakeCounters struct {
	values map[string]uint
	closed bool
	putErr error
	getErr error
}

func newFakeCounters(boot uint) *fakeCounters {
	return &fakeCounters{values: map[string]uint{globals.BootCounterKey: boot}}
}

func (f *fakeCounters) GetUint(key string, def uint) (uint, error) {
	if f.getErr != nil {
		return def, f.getErr
	}
	if v, ok := f.values[key]; ok {
		return v, nil
	}
	return def, nil
}

func (f *fakeCounters) PutUint(key string, value uint) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.values[key] = value
	return nil
}

func (f *fakeCounters) Close() error {
	f.closed = true
	return nil
}

type fakeDevice struct {
	cause     platform.ResetCause
	restarted bool
	formatted bool
	formatErr error
}

func (f *fakeDevice) ResetCause() platform.ResetCause { return f.cause }
func (f *fakeDevice) Restart()                        { f.restarted = true }
func (f *fakeDevice) FormatData() error {
	f.formatted = true
	return f.formatErr
}

func testConfig(t *testing.T, configured string) *config.Config {
	t.Helper()
	cfg := config.New(filepath.Join(t.TempDir(), "config.json"))
	if err := cfg.Load(); err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if configured != "" {
		cfg.Set(config.KeyWifiConfigured, configured)
		if err := cfg.Save(); err != nil {
			t.Fatalf("Failed to save config: %v", err)
		}
	}
	return cfg
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name          string
		cause         platform.ResetCause
		prior         uint
		configured    string
		wantOutcome   Outcome
		wantCounter   uint
		wantRestart   bool
		wantFormatted bool
	}{
		{
			name:        "software reset clears counter",
			cause:       platform.CauseOther,
			prior:       5,
			configured:  "true",
			wantOutcome: OutcomeNormal,
			wantCounter: 0,
		},
		{
			name:        "first unexplained boot increments",
			cause:       platform.CausePowerOnOrButton,
			prior:       0,
			configured:  "true",
			wantOutcome: OutcomeCounted,
			wantCounter: 1,
		},
		{
			name:        "second unexplained boot increments",
			cause:       platform.CausePowerOnOrButton,
			prior:       1,
			configured:  "true",
			wantOutcome: OutcomeCounted,
			wantCounter: 2,
		},
		{
			name:        "third boot with configured device keeps counting",
			cause:       platform.CausePowerOnOrButton,
			prior:       2,
			configured:  "true",
			wantOutcome: OutcomeCounted,
			wantCounter: 3,
		},
		{
			name:        "configured flag comparison ignores case",
			cause:       platform.CausePowerOnOrButton,
			prior:       2,
			configured:  "TRUE",
			wantOutcome: OutcomeCounted,
			wantCounter: 3,
		},
		{
			name:          "third boot unconfigured wipes storage",
			cause:         platform.CausePowerOnOrButton,
			prior:         2,
			configured:    "false",
			wantOutcome:   OutcomeFactoryReset,
			wantCounter:   0,
			wantRestart:   true,
			wantFormatted: true,
		},
		{
			name:          "third boot with configured key absent wipes storage",
			cause:         platform.CausePowerOnOrButton,
			prior:         2,
			configured:    "",
			wantOutcome:   OutcomeFactoryReset,
			wantCounter:   0,
			wantRestart:   true,
			wantFormatted: true,
		},
		{
			name:        "fourth boot forces config reset even when configured",
			cause:       platform.CausePowerOnOrButton,
			prior:       3,
			configured:  "true",
			wantOutcome: OutcomeConfigReset,
			wantCounter: 0,
			wantRestart: true,
		},
		{
			name:        "fourth boot unconfigured also forces config reset",
			cause:       platform.CausePowerOnOrButton,
			prior:       3,
			configured:  "false",
			wantOutcome: OutcomeConfigReset,
			wantCounter: 0,
			wantRestart: true,
		},
		{
			name:        "runaway counter forces config reset",
			cause:       platform.CausePowerOnOrButton,
			prior:       17,
			configured:  "true",
			wantOutcome: OutcomeConfigReset,
			wantCounter: 0,
			wantRestart: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counters := newFakeCounters(tt.prior)
			device := &fakeDevice{cause: tt.cause}
			cfg := testConfig(t, tt.configured)

			outcome, err := New(counters, cfg, device).Evaluate()
			if err != nil {
				t.Fatalf("Evaluate returned error: %v", err)
			}
			if outcome != tt.wantOutcome {
				t.Errorf("outcome = %s, want %s", outcome, tt.wantOutcome)
			}

			got, _ := counters.GetUint(globals.BootCounterKey, 0)
			if got != tt.wantCounter {
				t.Errorf("counter = %d, want %d", got, tt.wantCounter)
			}
			if device.restarted != tt.wantRestart {
				t.Errorf("restarted = %v, want %v", device.restarted, tt.wantRestart)
			}
			if device.formatted != tt.wantFormatted {
				t.Errorf("formatted = %v, want %v", device.formatted, tt.wantFormatted)
			}
		})
	}
}

func TestEvaluateConfigResetMarksUnconfigured(t *testing.T) {
	counters := newFakeCounters(3)
	device := &fakeDevice{cause: platform.CausePowerOnOrButton}
	cfg := testConfig(t, "true")

	if _, err := New(counters, cfg, device).Evaluate(); err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}

	if got := cfg.GetString(config.KeyWifiConfigured); got != "false" {
		t.Errorf("wifiConfigured = %q, want %q", got, "false")
	}

	// The change must be on disk before the restart; reload to check
	if err := cfg.Load(); err != nil {
		t.Fatalf("Failed to reload config: %v", err)
	}
	if got := cfg.GetString(config.KeyWifiConfigured); got != "false" {
		t.Errorf("persisted wifiConfigured = %q, want %q", got, "false")
	}
}

func TestEvaluateCommitsStoreBeforeRestart(t *testing.T) {
	counters := newFakeCounters(3)
	device := &fakeDevice{cause: platform.CausePowerOnOrButton}

	if _, err := New(counters, testConfig(t, "true"), device).Evaluate(); err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}

	if !counters.closed {
		t.Error("counter store was not closed before restart")
	}
	if !device.restarted {
		t.Error("device was not restarted")
	}
}

func TestEvaluatePersistenceErrorsPropagate(t *testing.T) {
	writeErr := errors.New("disk on fire")

	t.Run("counter write failure", func(t *testing.T) {
		counters := newFakeCounters(0)
		counters.putErr = writeErr
		device := &fakeDevice{cause: platform.CausePowerOnOrButton}

		_, err := New(counters, testConfig(t, "true"), device).Evaluate()
		if !errors.Is(err, writeErr) {
			t.Errorf("Evaluate error = %v, want wrapped %v", err, writeErr)
		}
		if device.restarted {
			t.Error("device restarted despite persistence failure")
		}
	})

	t.Run("counter read failure", func(t *testing.T) {
		counters := newFakeCounters(0)
		counters.getErr = writeErr
		device := &fakeDevice{cause: platform.CausePowerOnOrButton}

		_, err := New(counters, testConfig(t, "true"), device).Evaluate()
		if !errors.Is(err, writeErr) {
			t.Errorf("Evaluate error = %v, want wrapped %v", err, writeErr)
		}
	})

	t.Run("format failure", func(t *testing.T) {
		counters := newFakeCounters(2)
		device := &fakeDevice{cause: platform.CausePowerOnOrButton, formatErr: writeErr}

		_, err := New(counters, testConfig(t, "false"), device).Evaluate()
		if !errors.Is(err, writeErr) {
			t.Errorf("Evaluate error = %v, want wrapped %v", err, writeErr)
		}
		if device.restarted {
			t.Error("device restarted despite failed format")
		}
	})
}
