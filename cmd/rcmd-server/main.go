// Command rcmd-server is the remote command-execution server: it accepts
// mTLS connections, authenticates each client by the Common Name on its
// certificate, and dispatches job submissions to that client's own pool.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	stdlog "log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ardanlabs/conf/v3"
	"go.uber.org/zap"

	"github.com/dustinevan/rcmd/internal/rcmdhttp"
	"github.com/dustinevan/rcmd/internal/rcmdlog"
	"github.com/dustinevan/rcmd/internal/registry"
)

func main() {
	log, err := rcmdlog.New("rcmd-server")
	if err != nil {
		stdlog.Fatalf("setting up logger: %v", err)
	}
	defer log.Sync()
	if err := run(log); err != nil {
		log.Fatalf("running: %v", err)
	}
	log.Info("stopping service")
}

func run(log *zap.SugaredLogger) error {
	log.Infow("starting service", "configuration", "initializing")
	cfg := struct {
		CertDir string `conf:"default:certs,help:directory containing server.crt, server.pkcs8.key, rootCA.crt"`
		Port    int    `conf:"env:RCMD_SERVER_PORT,default:8000"`
	}{}

	help, err := conf.Parse("RCMD", &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}
	cfgString, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("config to string: %w", err)
	}
	log.Infow("starting service", "configuration\n", cfgString)

	log.Infow("starting service", "configuration", "loading server credentials")
	serverCert, err := tls.LoadX509KeyPair(
		filepath.Join(cfg.CertDir, "server.crt"),
		filepath.Join(cfg.CertDir, "server.pkcs8.key"),
	)
	if err != nil {
		return fmt.Errorf("loading server key pair: %w", err)
	}

	certPool := x509.NewCertPool()
	caCertBytes, err := os.ReadFile(filepath.Join(cfg.CertDir, "rootCA.crt"))
	if err != nil {
		return fmt.Errorf("reading ca cert file: %w", err)
	}
	if !certPool.AppendCertsFromPEM(caCertBytes) {
		return fmt.Errorf("loading cert pool: failed to append ca cert")
	}

	tlsConfig := &tls.Config{
		ClientAuth:   tls.RequireAndVerifyClientCert,
		Certificates: []tls.Certificate{serverCert},
		ClientCAs:    certPool,
		MinVersion:   tls.VersionTLS13,
	}
	log.Infow("starting service", "configuration", "done")

	// jobCtx bounds every spawned job's lifetime. Canceling it (on
	// shutdown) delivers a SIGTERM to every running child via
	// exec.Cmd.Cancel, giving each one a chance to exit gracefully before
	// the process itself goes away.
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()

	reg := registry.New(jobCtx, log)
	handler := rcmdhttp.NewServer(reg, log)

	server := &http.Server{
		Addr:      fmt.Sprintf(":%d", cfg.Port),
		Handler:   handler,
		TLSConfig: tlsConfig,
	}

	lis, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", server.Addr, err)
	}
	tlsListener := tls.NewListener(lis, tlsConfig)

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("starting service", "listening", server.Addr)
		serverErr <- server.Serve(tlsListener)
	}()

	terminate := make(chan os.Signal, 1)
	signal.Notify(terminate, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-terminate:
		log.Infow("stopping service", "signal", sig)
	case err = <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Infow("stopping service", "error", err)
		}
	}

	cancelJobs()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Infow("stopping service", "status", "forced shutdown", "error", err)
		return nil
	}
	log.Infow("stopping service", "status", "graceful shutdown complete")
	return nil
}
