// Package sshdevice opens SSH sessions against network devices for the
// backup and run_commands executors. Grounded on
// original_source/backend/services/network/configs/backup_service.py
// (connect, send command, collect output); golang.org/x/crypto/ssh is
// already part of the teacher's dependency surface (golang.org/x/crypto)
// and is the ecosystem-standard SSH client, so no additional dependency is
// introduced for this concern.
package sshdevice

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/crypto/ssh"
)

const (
	dialTimeout = 10 * time.Second
	cmdTimeout  = 30 * time.Second
)

// Credentials is the minimal auth material an executor needs to open a
// session, sourced from a decrypted pkg/vault credential.
type Credentials struct {
	Username   string
	Password   string
	PrivateKey string // PEM-encoded, optional
	Passphrase string
}

// Client wraps one SSH connection to a device.
type Client struct {
	conn *ssh.Client
}

// Dial opens an SSH connection to host:22 using creds, preferring key auth
// when a private key is present.
func Dial(ctx context.Context, host string, creds Credentials) (*Client, error) {
	authMethods, err := authMethodsFor(creds)
	if err != nil {
		return nil, err
	}

	config := &ssh.ClientConfig{
		User:            creds.Username,
		Auth:            authMethods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint: the original service trusts device fingerprints out of band
		Timeout:         dialTimeout,
	}

	addr := net.JoinHostPort(host, "22")
	conn, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, fmt.Errorf("sshdevice: dial %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

func authMethodsFor(creds Credentials) ([]ssh.AuthMethod, error) {
	if creds.PrivateKey != "" {
		var signer ssh.Signer
		var err error
		if creds.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase([]byte(creds.PrivateKey), []byte(creds.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey([]byte(creds.PrivateKey))
		}
		if err != nil {
			return nil, fmt.Errorf("sshdevice: parse private key: %w", err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}
	return []ssh.AuthMethod{ssh.Password(creds.Password)}, nil
}

// RunCommand executes cmd in a fresh session and returns combined stdout.
func (c *Client) RunCommand(ctx context.Context, cmd string) (string, error) {
	session, err := c.conn.NewSession()
	if err != nil {
		return "", fmt.Errorf("sshdevice: new session: %w", err)
	}
	defer session.Close()

	type result struct {
		output []byte
		err    error
	}
	done := make(chan result, 1)
	go func() {
		out, err := session.CombinedOutput(cmd)
		done <- result{output: out, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return "", fmt.Errorf("sshdevice: run %q: %w", cmd, r.err)
		}
		return string(r.output), nil
	case <-time.After(cmdTimeout):
		return "", fmt.Errorf("sshdevice: command %q timed out", cmd)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Client) Close() error { return c.conn.Close() }

// StripBanner normalises device output by removing the trailing/leading
// command-prompt banner lines the original backup_service.py strips before
// persisting config text.
func StripBanner(output string) string {
	lines := splitLines(output)
	start, end := 0, len(lines)
	for start < end && isBannerLine(lines[start]) {
		start++
	}
	for end > start && isBannerLine(lines[end-1]) {
		end--
	}
	out := ""
	for i := start; i < end; i++ {
		out += lines[i] + "\n"
	}
	return out
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func isBannerLine(line string) bool {
	trimmed := trimSpace(line)
	return trimmed == "" || len(trimmed) > 0 && (trimmed[len(trimmed)-1] == '#' || trimmed[len(trimmed)-1] == '>')
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && (s[start] == ' ' || s[start] == '\t' || s[start] == '\r') {
		start++
	}
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t' || s[end-1] == '\r') {
		end--
	}
	return s[start:end]
}
