package reap

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// defaultKeyservers is the fallback chain tried in order for key
// receive operations.
var defaultKeyservers = []string{
	"hkps://keys.openpgp.org",
	"hkps://keyserver.ubuntu.com",
	"hkps://pgp.mit.edu",
}

// GpgClient shells out to gpg for key management and verification.
type GpgClient struct {
	Exec      *Executor
	Log       *LogPane
	Keyserver string // preferred server, tried before the fallbacks
}

func NewGpgClient(ex *Executor, log *LogPane, cfg *GlobalConfig) *GpgClient {
	return &GpgClient{Exec: ex, Log: log, Keyserver: cfg.GPGKeyserver}
}

func (g *GpgClient) servers() []string {
	if g.Keyserver == "" {
		return defaultKeyservers
	}
	out := []string{g.Keyserver}
	for _, s := range defaultKeyservers {
		if s != g.Keyserver {
			out = append(out, s)
		}
	}
	return out
}

// ImportKey fetches keyID, walking the keyserver chain until one
// succeeds.
func (g *GpgClient) ImportKey(keyID string) error {
	var lastErr error
	for _, server := range g.servers() {
		g.Log.Infof("", StepGpg, "receiving key %s from %s", keyID, server)
		cmd := exec.Command("gpg", "--keyserver", server, "--recv-keys", keyID)
		if _, err := g.Exec.Output(cmd); err != nil {
			g.Log.Warnf("", StepGpg, "keyserver %s failed: %v", server, err)
			lastErr = err
			continue
		}
		colSuccess.Printf("Imported key %s\n", keyID)
		return nil
	}
	return stepError(KindFetchFailed, StepGpg, "", fmt.Errorf("recv-keys %s: all keyservers failed: %w", keyID, lastErr))
}

// HaveKey reports whether keyID is in the local keyring.
func (g *GpgClient) HaveKey(keyID string) bool {
	_, err := g.Exec.Output(exec.Command("gpg", "--list-keys", keyID))
	return err == nil
}

// ShowKey prints the local keyring entry for keyID.
func (g *GpgClient) ShowKey(keyID string) error {
	out, err := g.Exec.Output(exec.Command("gpg", "--list-keys", "--fingerprint", keyID))
	if err != nil {
		return stepError(KindNotFound, StepGpg, "", fmt.Errorf("key %s not in keyring", keyID))
	}
	fmt.Print(string(out))
	return nil
}

// RefreshKeys updates all local keys from the keyserver chain.
func (g *GpgClient) RefreshKeys() error {
	var lastErr error
	for _, server := range g.servers() {
		cmd := exec.Command("gpg", "--keyserver", server, "--refresh-keys")
		if err := g.Exec.RunStreamed(cmd, g.Log, "", StepGpg); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return stepError(KindFetchFailed, StepGpg, "", fmt.Errorf("refresh-keys: all keyservers failed: %w", lastErr))
}

// VerifyDetached checks a detached signature over content. Both are
// written to a scratch dir because gpg wants files.
func (g *GpgClient) VerifyDetached(content, sig []byte, pkg string) error {
	dir, err := os.MkdirTemp("", "reap-gpg-")
	if err != nil {
		return stepError(KindIO, StepGpg, pkg, err)
	}
	defer os.RemoveAll(dir)

	dataPath := filepath.Join(dir, "data")
	sigPath := filepath.Join(dir, "data.sig")
	if err := os.WriteFile(dataPath, content, 0o600); err != nil {
		return stepError(KindIO, StepGpg, pkg, err)
	}
	if err := os.WriteFile(sigPath, sig, 0o600); err != nil {
		return stepError(KindIO, StepGpg, pkg, err)
	}
	out, err := g.Exec.Output(exec.Command("gpg", "--verify", sigPath, dataPath))
	if err != nil {
		return stepError(KindSignatureInvalid, StepGpg, pkg,
			fmt.Errorf("signature verification failed: %s", strings.TrimSpace(string(out))))
	}
	g.Log.Infof(pkg, StepGpg, "signature OK")
	return nil
}

// VerifyPkgbuild enforces the signature gate for pkg from src. An
// invalid signature always fails. A missing one only fails under
// strict_signatures, and even then --insecure downgrades it to a
// warning; outside strict mode most AUR packages publish no detached
// signature, so absence is a warning.
func (g *GpgClient) VerifyPkgbuild(pkg string, src Source, raw string, sigFor func() ([]byte, error), strict, insecure bool) error {
	sig, err := sigFor()
	if err != nil {
		return stepError(KindFetchFailed, StepGpg, pkg, err)
	}
	if sig == nil {
		if strict && !insecure {
			return stepError(KindSignatureMissing, StepGpg, pkg,
				fmt.Errorf("no PKGBUILD signature published for %s (use --insecure to override)", pkg))
		}
		colWarn.Printf("WARNING: no signature for %s, proceeding\n", pkg)
		g.Log.Warnf(pkg, StepGpg, "no signature published")
		return nil
	}
	return g.VerifyDetached([]byte(raw), sig, pkg)
}

// ListKeys prints the whole public keyring.
func (g *GpgClient) ListKeys() error {
	out, err := g.Exec.Output(exec.Command("gpg", "--list-keys"))
	if err != nil {
		return stepError(KindIO, StepGpg, "", err)
	}
	fmt.Print(string(out))
	return nil
}

// RemoveKey deletes keyID from the local keyring.
func (g *GpgClient) RemoveKey(keyID string) error {
	cmd := exec.Command("gpg", "--batch", "--yes", "--delete-keys", keyID)
	if _, err := g.Exec.Output(cmd); err != nil {
		return stepError(KindNotFound, StepGpg, "", fmt.Errorf("delete key %s: %w", keyID, err))
	}
	return nil
}
