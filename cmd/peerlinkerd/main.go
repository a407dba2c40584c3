// Command peerlinkerd runs the Peer-Linker broker (C5) behind the server
// runtime shell (C10).
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/p2psignal/peerlink/cmn"
	"github.com/p2psignal/peerlink/cmn/nlog"
	"github.com/p2psignal/peerlink/config"
	"github.com/p2psignal/peerlink/metrics"
	"github.com/p2psignal/peerlink/padlink"
	"github.com/p2psignal/peerlink/server"
	"github.com/p2psignal/peerlink/transport"
)

const (
	svcName     = "peerlinkerd"
	defaultAddr = ":9999"
)

var (
	build string
	cfg   config.Config
)

func init() {
	config.RegisterFlags(flag.CommandLine, &cfg, defaultAddr)
}

func main() {
	if len(os.Args) == 2 && os.Args[1] == "version" {
		printVer()
		os.Exit(0)
	}
	if len(os.Args) == 2 && (os.Args[1] == "-h" || os.Args[1] == "--help") {
		printVer()
		flag.PrintDefaults()
		os.Exit(0)
	}
	flag.Parse()
	nlog.SetTitle(svcName)

	activate, err := buildVerifier(&cfg)
	if err != nil {
		cmn.ExitLogf("%v", err)
	}

	ln, err := listen(&cfg)
	if err != nil {
		cmn.ExitLogf("%v", err)
	}

	broker := padlink.NewBroker()
	shell := &server.Shell{
		Broker:   server.NewPadlinkBroker(broker),
		Listener: ln,
		Verify:   activate,
	}

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	nlog.Infof("%s listening on %s (build %s)", svcName, cfg.ListenAddr, build)
	if err := shell.Run(ctx); err != nil {
		cmn.ExitLogf("%s: %v", svcName, err)
	}
}

func listen(cfg *config.Config) (interface {
	Accept() (transport.Conn, error)
	Close() error
}, error) {
	if cfg.UseWS {
		l := transport.ListenWS(cfg.ListenAddr, transport.SubprotocolPeerLinker)
		go l.Serve()
		return l, nil
	}
	if cfg.TLSCertPath != "" && cfg.TLSKeyPath != "" {
		return transport.ListenTLS(cfg.ListenAddr, cfg.TLSCertPath, cfg.TLSKeyPath)
	}
	return transport.ListenTCP(cfg.ListenAddr)
}

func buildVerifier(cfg *config.Config) (func([]byte) bool, error) {
	secret, err := cfg.LoadKey()
	if err != nil {
		return nil, err
	}
	if len(secret) == 0 {
		return nil, nil
	}
	return server.NewCertVerifier(secret, cfg.VerifierPath).Verify, nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		nlog.Warningf("%s: metrics endpoint stopped: %v", svcName, err)
	}
}

func printVer() {
	fmt.Printf("%s version (build %s)\n", svcName, build)
}
