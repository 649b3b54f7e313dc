package sossh

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// HostKey is the only key the ssh tunnel accepts from the server host.
type HostKey struct {
	key ssh.PublicKey
}

// ParseHostKey parses a key in authorized_keys format, e.g. the content of
// /etc/ssh/ssh_host_ed25519_key.pub.
func ParseHostKey(authorizedKey string) (*HostKey, error) {
	key, _, _, _, err := ssh.ParseAuthorizedKey([]byte(authorizedKey))
	if err != nil {
		return nil, fmt.Errorf("invalid ssh host key: %w", err)
	}
	return &HostKey{key: key}, nil
}

func (k *HostKey) Fingerprint() string {
	return ssh.FingerprintSHA256(k.key)
}

// writeKnownHosts writes a known_hosts file trusting this key, and only this key, for host:port.
// The caller removes the file.
func (k *HostKey) writeKnownHosts(host, port string) (string, error) {
	file, err := os.CreateTemp("", "hqalloc-known-hosts-")
	if err != nil {
		return "", fmt.Errorf("failed to create known_hosts file: %w", err)
	}

	line := knownhosts.Line([]string{knownhosts.Normalize(net.JoinHostPort(host, port))}, k.key)
	if _, err := fmt.Fprintln(file, line); err != nil {
		_ = file.Close()
		_ = os.Remove(file.Name())
		return "", fmt.Errorf("failed to write known_hosts file: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(file.Name())
		return "", fmt.Errorf("failed to write known_hosts file: %w", err)
	}
	return file.Name(), nil
}
