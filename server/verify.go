package server

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"os/exec"

	"github.com/p2psignal/peerlink/cmn/nlog"
)

// CertVerifier implements the ActivateSession predicate described in
// spec.md §4.10: the payload is `base64(HMAC-SHA256(secret, content))\n
// content`, content is opaque to the broker, and an optional external
// verifier executable gets content as its only argument and must exit 0.
type CertVerifier struct {
	secret       []byte
	verifierPath string
}

// NewCertVerifier builds a verifier from an already-resolved secret (see
// config.Config.LoadKey, which handles the -k-file-vs-PEERLINK_KEY-value
// distinction). A nil/empty secret means no key is configured; callers
// should skip constructing a CertVerifier entirely in that case and
// activate every session unconditionally, per §4.10's "activation is
// optional".
func NewCertVerifier(secret []byte, verifierPath string) *CertVerifier {
	return &CertVerifier{secret: secret, verifierPath: verifierPath}
}

// Verify is the activate predicate handed to padlink.Broker.NewSession and
// channelhub.Broker.NewSession.
func (v *CertVerifier) Verify(payload []byte) bool {
	nl := bytes.IndexByte(payload, '\n')
	if nl < 0 {
		return false
	}
	sig, content := payload[:nl], payload[nl+1:]

	want, err := base64.StdEncoding.DecodeString(string(sig))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(content)
	if !hmac.Equal(want, mac.Sum(nil)) {
		return false
	}

	if v.verifierPath == "" {
		return true
	}
	cmd := exec.Command(v.verifierPath, string(content))
	if err := cmd.Run(); err != nil {
		nlog.Warningf("server: cert verifier rejected content: %v", err)
		return false
	}
	return true
}
