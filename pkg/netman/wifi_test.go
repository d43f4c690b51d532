package netman

import "testing"

const scanOutput = `wlan0     Scan completed :
          Cell 01 - Address: AA:BB:CC:DD:EE:01
                    ESSID:"HomeNet"
                    Quality=60/70  Signal level=-50 dBm
                    Encryption key:on
          Cell 02 - Address: AA:BB:CC:DD:EE:02
                    ESSID:"CoffeeShop"
                    Quality=35/70  Signal level=-75 dBm
                    Encryption key:off
          Cell 03 - Address: AA:BB:CC:DD:EE:03
                    Quality=10/70  Signal level=-90 dBm
                    Encryption key:on
`

func TestParseScan(t *testing.T) {
	networks := parseScan(scanOutput)

	// Cell 03 has no ESSID and must be skipped
	if len(networks) != 2 {
		t.Fatalf("parsed %d networks, want 2", len(networks))
	}

	if networks[0].SSID != "HomeNet" || !networks[0].Secured {
		t.Errorf("first network = %+v, want secured HomeNet", networks[0])
	}
	if networks[0].Signal != 60*100/70 {
		t.Errorf("first network signal = %d, want %d", networks[0].Signal, 60*100/70)
	}

	if networks[1].SSID != "CoffeeShop" || networks[1].Secured {
		t.Errorf("second network = %+v, want open CoffeeShop", networks[1])
	}
}

func TestParseScanEmpty(t *testing.T) {
	if networks := parseScan(""); len(networks) != 0 {
		t.Errorf("parsed %d networks from empty output, want 0", len(networks))
	}
}
