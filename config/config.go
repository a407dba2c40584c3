// Package config implements process configuration (C13): flags and
// environment variables shared by both server binaries, matching the
// teacher's habit of one flag.FlagSet wired up in main and a plain struct
// carried through the rest of the process.
package config

import (
	"bytes"
	"flag"
	"fmt"
	"os"

	"github.com/p2psignal/peerlink/cmn/nlog"
)

// Config bundles everything a server binary needs to start listening and
// (optionally) authenticate connections and export metrics.
type Config struct {
	ListenAddr string // -p, e.g. ":9999"
	UseWS      bool   // -ws: serve WebSocket instead of plain TCP

	KeyPath      string // -k/--key: HMAC-SHA256 key file for ActivateSession
	VerifierPath string // -c/--cert-verifier: optional external cert-verifier executable

	TLSCertPath string // -sc/--ssl-cert: TLS certificate file (plain TCP only)
	TLSKeyPath  string // -sk/--ssl-key: TLS key file (plain TCP only)

	MetricsAddr string // -metrics-addr, empty disables the endpoint
	DumpPackets bool   // -dump-packets: parsed, but no package reads it; no frames are logged
}

// RegisterFlags wires cfg's fields onto flset, so cmd/peerlinkerd and
// cmd/channelhubd can share this one function with only their default
// listen address differing. Flag names and short/long pairing follow §6's
// CLI surface (-p, -k/--key, -c/--cert-verifier, -sc/--ssl-cert,
// -sk/--ssl-key) plus this repo's own additions for WebSocket transport,
// metrics, and packet-dump logging.
func RegisterFlags(flset *flag.FlagSet, cfg *Config, defaultAddr string) {
	flset.StringVar(&cfg.ListenAddr, "p", defaultAddr, "listen address")
	flset.BoolVar(&cfg.UseWS, "ws", false, "serve WebSocket instead of plain TCP")

	flset.StringVar(&cfg.KeyPath, "k", "", "HMAC-SHA256 key file for certificate verification")
	flset.StringVar(&cfg.KeyPath, "key", "", "HMAC-SHA256 key file for certificate verification")

	flset.StringVar(&cfg.VerifierPath, "c", "", "external certificate-verifier executable")
	flset.StringVar(&cfg.VerifierPath, "cert-verifier", "", "external certificate-verifier executable")

	flset.StringVar(&cfg.TLSCertPath, "sc", "", "TLS certificate file (plain TCP only)")
	flset.StringVar(&cfg.TLSCertPath, "ssl-cert", "", "TLS certificate file (plain TCP only)")

	flset.StringVar(&cfg.TLSKeyPath, "sk", "", "TLS key file (plain TCP only)")
	flset.StringVar(&cfg.TLSKeyPath, "ssl-key", "", "TLS key file (plain TCP only)")

	flset.StringVar(&cfg.MetricsAddr, "metrics-addr", "", "Prometheus /metrics listen address, empty disables it")
	flset.BoolVar(&cfg.DumpPackets, "dump-packets", false, "accepted, but has no effect")
	nlog.InitFlags(flset)
}

// LoadKey resolves the HMAC-SHA256 secret for ActivateSession verification:
// -k names a file to read, PEERLINK_KEY (checked when -k is empty) supplies
// the secret value directly, and when neither is set it returns a nil
// secret with no error, meaning "activation is optional" per §4.10. This
// mirrors the teacher's env-over-flag fallback for secrets operators
// prefer not to put on a command line, without conflating "a path" and
// "a value" behind one return type the way returning a string alone would.
func (c *Config) LoadKey() ([]byte, error) {
	if c.KeyPath != "" {
		secret, err := os.ReadFile(c.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("config: read key file %q: %w", c.KeyPath, err)
		}
		return bytes.TrimSpace(secret), nil
	}
	if v := os.Getenv("PEERLINK_KEY"); v != "" {
		return bytes.TrimSpace([]byte(v)), nil
	}
	return nil, nil
}
