// Command mdnsd is a demo harness: it starts the responder with one
// registered service instance and runs until interrupted, matching the
// teacher's examples/*/main.go style of a small, flag-configured program
// with no config file.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gmondada/mdnsd/internal/registry"
	"github.com/gmondada/mdnsd/server"
)

func main() {
	var (
		hostName    = flag.String("host", "", "host name advertised under .local (defaults to the OS hostname)")
		instance    = flag.String("name", "mdnsd demo", "service instance name to advertise")
		serviceType = flag.String("service", "_http._tcp", "service type to advertise, e.g. _http._tcp")
		port        = flag.Int("port", 8080, "service port to advertise")
		verbose     = flag.Bool("verbose", false, "enable debug logging")
	)
	flag.Parse()

	if *hostName == "" {
		h, err := os.Hostname()
		if err != nil {
			fmt.Fprintf(os.Stderr, "mdnsd: could not determine host name: %v\n", err)
			os.Exit(1)
		}
		*hostName = h
	}

	level := zapcore.InfoLevel
	if *verbose {
		level = zapcore.DebugLevel
	}
	log := zap.New(zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.Lock(os.Stderr),
		level,
	))
	defer log.Sync()

	manager := registry.NewManager(*hostName)
	if err := manager.Register(registry.Instance{
		Name:        *instance,
		ServiceType: *serviceType,
		Port:        uint16(*port),
	}); err != nil {
		log.Fatal("could not register service", zap.Error(err))
	}

	s := server.New(manager, server.WithLogger(log))
	if err := s.Start(); err != nil {
		log.Fatal("could not start responder", zap.Error(err))
	}
	defer s.Stop()

	log.Info("mdnsd responder running",
		zap.String("host", *hostName+".local"),
		zap.String("instance", *instance),
		zap.String("service", *serviceType),
		zap.Int("port", *port),
	)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Info("shutting down")
}
