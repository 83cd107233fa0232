package transport

import (
	"context"
	"os"
)

// HostConfig carries everything needed to reach a single remote host.
type HostConfig struct {
	Name     string
	Address  string
	User     string
	Port     int
	KeyPath  string
	Password string
}

// Transport, uzak sunucu ile tüm iletişimi yöneten soyutlamadır.
// Host oturumları ve kilit defteri yalnızca bu arayüzü kullanır.
type Transport interface {
	// Execute runs a shell command and returns its combined output.
	Execute(ctx context.Context, cmd string) (string, error)

	// ReadFile returns the content of a remote file.
	ReadFile(ctx context.Context, path string) ([]byte, error)

	// WriteFile writes data to a remote file, creating parent directories.
	WriteFile(ctx context.Context, path string, data []byte, perm os.FileMode) error

	// Remove deletes a remote file. Removing a missing file is not an error.
	Remove(ctx context.Context, path string) error

	Close() error
}

// DialFunc opens a Transport to the given host. Injected so the batch and
// session layers can be tested against a mock.
type DialFunc func(ctx context.Context, host HostConfig) (Transport, error)
