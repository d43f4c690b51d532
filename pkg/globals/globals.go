package globals

// FirmwareVersion is set at build time via -ldflags
var FirmwareVersion = "dev"

// Writable data partition
var DataDir = "/data"

// Firmware data
var FirmwareDataDir = DataDir + "/.outpost-data"

// Config
var ConfigPath = FirmwareDataDir + "/config.json"

// Logs
var LogsPath = FirmwareDataDir + "/logs.json"

// Counters (boot counter and friends)
var CountersPath = FirmwareDataDir + "/counters.db"

// ResetCausePath is written by the boot stage before this process runs.
// It holds the platform reset cause code for the current boot.
var ResetCausePath = "/boot/firmware/resetcause.txt"

// Network interfaces
var WifiInterface = "wlan0"
var EthernetInterface = "eth0"

// Setup API
var SetupAPIPort = "8080"

// Status LED GPIO pin name (empty disables the LED)
var StatusLEDPin = "GPIO17"

// Counter store namespace and key used for boot tracking
const (
	BootNamespace  = "outpost"
	BootCounterKey = "bootcounter"
)

// Reset cause codes as recorded by the boot stage
const (
	ResetCodePowerOn = 1
	ResetCodeButton  = 16
)
