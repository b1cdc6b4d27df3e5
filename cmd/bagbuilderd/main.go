// bagbuilderd runs the bag builder REST service.
//
// Configuration is read from a TOML file given with -config, with a few
// overrides available as flags. A minimal config:
//
//	Port = "14000"
//	RegistryPath = "/var/lib/bagbuilder/registry.ql"
//	TokenFile = "/etc/bagbuilder/tokens"
//	SweepDirs = ["/archive/staging"]
//
// On startup any stale staging directories left by interrupted builds in
// the SweepDirs directories are removed.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	raven "github.com/getsentry/raven-go"

	"github.com/archivelib/bagbuilder/fileutil"
	"github.com/archivelib/bagbuilder/server"
)

type config struct {
	Port                  string
	PProfPort             string
	MySQL                 string
	RegistryPath          string
	TokenFile             string
	SentryDSN             string
	ManifestAlgorithms    []string
	TagManifestAlgorithms []string
	SweepDirs             []string
	SweepAgeHours         int
}

func main() {
	var (
		configFile = flag.String("config", "", "path to configuration file")
		port       = flag.String("port", "", "port to listen on (overrides config)")
		pprofPort  = flag.String("pprof", "", "port for pprof (overrides config)")
	)
	flag.Parse()

	var c config
	if *configFile != "" {
		if _, err := toml.DecodeFile(*configFile, &c); err != nil {
			log.Fatalf("Error reading configuration file: %s", err)
		}
	}
	if *port != "" {
		c.Port = *port
	}
	if *pprofPort != "" {
		c.PProfPort = *pprofPort
	}
	if c.SweepAgeHours == 0 {
		c.SweepAgeHours = 24
	}

	if c.SentryDSN != "" {
		if err := raven.SetDSN(c.SentryDSN); err != nil {
			log.Printf("Sentry: %s", err)
		}
	}

	for _, dir := range c.SweepDirs {
		removed, err := fileutil.SweepStaging(dir, time.Duration(c.SweepAgeHours)*time.Hour)
		if err != nil {
			log.Printf("Sweeping %s: %s", dir, err)
		}
		for _, path := range removed {
			log.Printf("Removed stale staging directory %s", path)
		}
	}

	var validator server.TokenDecoder
	if c.TokenFile != "" {
		var err error
		validator, err = server.NewListDecoderFile(c.TokenFile)
		if err != nil {
			log.Fatalf("Error loading token file: %s", err)
		}
	} else {
		log.Println("No token file given. Authentication is disabled.")
		validator = server.NewNobodyDecoder()
	}

	s := &server.RESTServer{
		PortNumber:            c.Port,
		PProfPort:             c.PProfPort,
		Validator:             validator,
		MySQL:                 c.MySQL,
		RegistryPath:          c.RegistryPath,
		ManifestAlgorithms:    c.ManifestAlgorithms,
		TagManifestAlgorithms: c.TagManifestAlgorithms,
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		n := <-sig
		log.Printf("Received signal %s, shutting down", n)
		s.Stop()
	}()

	if err := s.Run(); err != nil {
		log.Fatal(err)
	}
}
