package transport

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SSHTransport, verilen host'a açılmış bir SSH + SFTP bağlantısıdır.
type SSHTransport struct {
	client *ssh.Client
	sftp   *sftp.Client
	host   HostConfig
}

var _ Transport = (*SSHTransport)(nil)

// Dial opens a verified SSH connection to the host and an SFTP subsystem on
// top of it. The server identity is checked against ~/.ssh/known_hosts; no
// insecure fallback is offered.
func Dial(ctx context.Context, h HostConfig) (Transport, error) {
	var authMethods []ssh.AuthMethod

	if h.KeyPath != "" {
		key, err := os.ReadFile(h.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("ssh anahtarı okunamadı (%s): %w", h.KeyPath, err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("ssh anahtarı çözümlenemedi: %w", err)
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))
	}
	if h.Password != "" {
		authMethods = append(authMethods, ssh.Password(h.Password))
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("ana dizin bulunamadı: %w", err)
	}
	knownHostsPath := filepath.Join(homeDir, ".ssh", "known_hosts")

	hostKeyCallback, err := knownhosts.New(knownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("known_hosts dosyası yüklenemedi (%s): %w. Lütfen sunucuya önce manuel ssh ile bağlanıp anahtarı kaydedin", knownHostsPath, err)
	}

	clientConfig := &ssh.ClientConfig{
		User:            h.User,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         15 * time.Second,
	}

	port := h.Port
	if port == 0 {
		port = 22
	}

	addr := fmt.Sprintf("%s:%d", h.Address, port)

	type dialResult struct {
		client *ssh.Client
		err    error
	}
	ch := make(chan dialResult, 1)
	go func() {
		client, derr := ssh.Dial("tcp", addr, clientConfig)
		ch <- dialResult{client, derr}
	}()

	var client *ssh.Client
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("SSH bağlantısı kurulamadı (%s): %w", addr, res.err)
		}
		client = res.client
	}

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("sftp oturumu açılamadı: %w", err)
	}

	return &SSHTransport{client: client, sftp: sftpClient, host: h}, nil
}

// Execute runs a command on the remote host and returns combined output.
func (t *SSHTransport) Execute(ctx context.Context, cmd string) (string, error) {
	session, err := t.client.NewSession()
	if err != nil {
		return "", err
	}
	defer session.Close()

	var out bytes.Buffer
	session.Stdout = &out
	session.Stderr = &out

	done := make(chan error, 1)
	if err := session.Start(cmd); err != nil {
		return "", err
	}
	go func() { done <- session.Wait() }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return out.String(), ctx.Err()
	case err := <-done:
		return out.String(), err
	}
}

func (t *SSHTransport) ReadFile(_ context.Context, p string) ([]byte, error) {
	f, err := t.sftp.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (t *SSHTransport) WriteFile(_ context.Context, p string, data []byte, perm os.FileMode) error {
	if err := t.sftp.MkdirAll(path.Dir(p)); err != nil {
		return err
	}
	f, err := t.sftp.Create(p)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return t.sftp.Chmod(p, perm)
}

func (t *SSHTransport) Remove(_ context.Context, p string) error {
	err := t.sftp.Remove(p)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// Close, SSH bağlantısını güvenli bir şekilde kapatır.
func (t *SSHTransport) Close() error {
	if t.sftp != nil {
		_ = t.sftp.Close()
	}
	if t.client != nil {
		return t.client.Close()
	}
	return nil
}
