package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/awnumar/memguard"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/jmcleod/sslinker/api"
)

var (
	listenAddr string
	tlsCert    string
	tlsKey     string
	noBoot     bool
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the SSLinker API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if listenAddr != "" {
			cfg.Server.Listen = listenAddr
		}
		if tlsCert != "" {
			cfg.Server.TLSCert = tlsCert
		}
		if tlsKey != "" {
			cfg.Server.TLSKey = tlsKey
		}

		memguard.CatchInterrupt()
		defer memguard.Purge()

		s, err := openServices(cfg, time.Second)
		if err != nil {
			return err
		}
		defer s.Close()

		if !noBoot {
			res, err := s.svc.Bootstrap(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to bootstrap CA: %w", err)
			}
			logger.Info(res.Message, "cert", res.CertPath)
		}

		a := api.New(s.svc,
			api.WithLogger(logger),
			api.WithMaxUploadBytes(cfg.Server.MaxUploadBytes))

		r := chi.NewRouter()
		r.Use(middleware.Logger)
		r.Use(middleware.Recoverer)
		r.Use(api.SecurityHeaders)
		if cfg.Metrics.Enabled {
			r.Use(s.metrics.Middleware)
			r.Handle(cfg.Metrics.Path, s.metrics.Handler())
		}

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		})

		r.Mount("/api", a.Router())

		server := &http.Server{
			Addr:              cfg.Server.Listen,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       cfg.Server.ReadTimeout,
			WriteTimeout:      cfg.Server.WriteTimeout,
			IdleTimeout:       cfg.Server.IdleTimeout,
		}
		if cfg.Server.TLSEnabled() {
			cert, err := tls.LoadX509KeyPair(cfg.Server.TLSCert, cfg.Server.TLSKey)
			if err != nil {
				return fmt.Errorf("failed to load TLS key pair: %w", err)
			}
			server.TLSConfig = &tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS12,
			}
		}

		// Graceful shutdown on SIGINT/SIGTERM.
		done := make(chan error, 1)
		go func() {
			var err error
			if server.TLSConfig != nil {
				err = server.ListenAndServeTLS("", "")
			} else {
				err = server.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		printBanner(cmd.OutOrStdout())
		logger.Info("starting server",
			"listen", cfg.Server.Listen,
			"tls", server.TLSConfig != nil,
			"cert_dir", cfg.Paths.CertDir,
			"proxy_conf_dir", cfg.Paths.ProxyConfDir)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("shutting down", "signal", sig.String())
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "Address to listen on (default from server.listen)")
	serverCmd.Flags().StringVar(&tlsCert, "tls-cert", "", "Path to TLS certificate file")
	serverCmd.Flags().StringVar(&tlsKey, "tls-key", "", "Path to TLS key file")
	serverCmd.Flags().BoolVar(&noBoot, "no-bootstrap", false, "Do not create the CA on startup")
}
