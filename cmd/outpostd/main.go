package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"outpost-firmware/pkg/bootstrap"
	"outpost-firmware/pkg/config"
	"outpost-firmware/pkg/logger"
)

func main() {
	// Initialize logger first to capture all logs
	logger.Init()

	ethernet := flag.Bool("ethernet", false, "use the wired interface instead of wifi")
	openAP := flag.Bool("open-ap", false, "start the setup access point without WPA2")
	setupAlways := flag.Bool("setup-always", false, "serve the setup API in client mode too")
	fixedSecret := flag.String("ap-secret", "", "fixed access point secret (min 8 chars)")
	flag.Parse()

	log.Println("Starting")

	if err := config.Init(); err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}

	opts := bootstrap.Options{
		OpenAccessPoint: *openAP,
		FixedAPSecret:   *fixedSecret,
	}
	if *ethernet {
		opts.Link = bootstrap.LinkEthernet
	}
	if *setupAlways {
		opts.SetupUI = bootstrap.SetupUIAlways
	}

	// May not return: the boot guard restarts the device on a forced
	// config or factory reset.
	if _, err := bootstrap.Begin(opts); err != nil {
		log.Fatalf("Failed to bootstrap: %v", err)
	}

	// Wait for interrupt signal, keep everything alive until then
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
}
