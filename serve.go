package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	golog "log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"slices"
	"syscall"
	"time"

	"golang.org/x/crypto/acme"
	"golang.org/x/sync/errgroup"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mjl-/autocert"

	"github.com/mjl-/regdomain/config"
	"github.com/mjl-/regdomain/metrics"
	"github.com/mjl-/regdomain/mlog"
	"github.com/mjl-/regdomain/orgdomain"
	"github.com/mjl-/regdomain/pslstore"
	"github.com/mjl-/regdomain/pslupdate"
	"github.com/mjl-/regdomain/regvar"
	"github.com/mjl-/regdomain/webapi"
)

func cmdServe(c *cmd) {
	c.help = `Start regdomain, serving the HTTP API for registrable domain lookups.

At startup, the public suffix list index from the latest snapshot in the
database is loaded. If there is no snapshot, the LocalFile from the
configuration file is loaded, if configured. Until an index is loaded, lookups
fail and /readyz returns 503. The list is fetched again periodically, new
versions are stored as snapshot and used for lookups.

Regdomain stops on SIGINT and SIGTERM, waiting at most 3 seconds for running
requests to finish.
`
	args := c.Parse()
	if len(args) != 0 {
		c.Usage()
	}

	conf := mustLoadConfig(true)
	log := mlog.New("serve", nil)
	log.Print("starting regdomain", slog.String("version", regvar.Version), slog.String("config", configPath), slog.Any("loglevels", mlog.Config()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := serve(ctx, log, conf)
	xcheckf(err, "serve")
	log.Print("stopped")
}

func serve(ctx context.Context, log mlog.Log, conf *config.Config) error {
	store, err := pslstore.Open(ctx, log.Logger, conf.DataDirPath("psl.db"))
	if err != nil {
		return err
	}
	defer func() {
		err := store.Close()
		log.Check(err, "closing snapshot database")
	}()

	resolver := &orgdomain.Resolver{}
	updater := &pslupdate.Updater{Config: conf.Updater(), Resolver: resolver, Store: store}

	handler, err := webapi.Handler(log.Logger, resolver, webapi.Options{Store: store, Metrics: conf.Static.MetricsListen == ""})
	if err != nil {
		return err
	}
	errorLog := golog.New(mlog.ErrWriter(log, mlog.LevelInfo, "http server error"), "", 0)

	apiServer := &http.Server{
		Addr:              conf.Static.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 30 * time.Second,
		ErrorLog:          errorLog,
	}
	if conf.Static.ACME != nil {
		apiServer.TLSConfig = acmeTLSConfig(log, conf)
	}
	servers := []*http.Server{apiServer}
	if conf.Static.MetricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		servers = append(servers, &http.Server{
			Addr:              conf.Static.MetricsListen,
			Handler:           mux,
			ReadHeaderTimeout: 30 * time.Second,
			ErrorLog:          errorLog,
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer recoverPanic(log, "updater")
		err := updater.Start(gctx, log.Logger)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	for _, srv := range servers {
		srv := srv
		g.Go(func() error {
			log.Print("listening for http", slog.String("addr", srv.Addr), slog.Bool("tls", srv.TLSConfig != nil))
			var err error
			if srv.TLSConfig != nil {
				err = srv.ListenAndServeTLS("", "")
			} else {
				err = srv.ListenAndServe()
			}
			if err == http.ErrServerClosed {
				return nil
			}
			return fmt.Errorf("http server at %s: %w", srv.Addr, err)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Print("shutting down, waiting max 3s for existing connections")
		sctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		for _, srv := range servers {
			err := srv.Shutdown(sctx)
			log.Check(err, "shutting down http server", slog.String("addr", srv.Addr))
		}
		return nil
	})
	return g.Wait()
}

func recoverPanic(log mlog.Log, what string) {
	x := recover()
	if x == nil {
		return
	}
	log.Error("unhandled panic", slog.String("goroutine", what), slog.Any("panic", x))
	debug.PrintStack()
	metrics.PanicInc(metrics.Serve)
}

// acmeTLSConfig returns a TLS config that requests certificates with ACME for
// the configured hostnames.
func acmeTLSConfig(log mlog.Log, conf *config.Config) *tls.Config {
	acmeConf := conf.Static.ACME
	hostPolicy := func(ctx context.Context, host string) (rerr error) {
		defer func() {
			log.WithContext(ctx).Debugx("acme hostpolicy result", rerr, slog.String("host", host))
		}()
		if !slices.Contains(acmeConf.Hostnames, host) {
			return fmt.Errorf("host %q not configured for acme", host)
		}
		return nil
	}
	m := &autocert.Manager{
		Cache:      autocert.DirCache(conf.DataDirPath(acmeConf.CacheDir)),
		Prompt:     autocert.AcceptTOS,
		Email:      acmeConf.ContactEmail,
		HostPolicy: hostPolicy,
		Client: &acme.Client{
			DirectoryURL: acme.LetsEncryptURL,
			UserAgent:    regvar.UserAgent(),
		},
	}
	tlsConfig := m.TLSConfig()
	getCertificate := tlsConfig.GetCertificate
	tlsConfig.GetCertificate = func(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
		if hello.ServerName == "" {
			log.Debug("tls request without sni servername, rejecting")
			return nil, fmt.Errorf("sni server name required")
		}
		cert, err := getCertificate(hello)
		log.Check(err, "requesting certificate", slog.String("host", hello.ServerName))
		return cert, err
	}
	return tlsConfig
}
