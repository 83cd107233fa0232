package transport

import (
	"context"
	"fmt"
	"os"
	"sync"
)

// MockTransport simulates a transport layer for testing.
type MockTransport struct {
	mu          sync.Mutex
	Responses   map[string]string // Command -> Output
	Errors      map[string]error  // Command -> Error
	FileContent map[string]string // FilePath -> Content
	Executed    []string          // Record of executed commands
	Written     map[string]string // FilePath -> Content written
	Removed     []string          // Record of removed paths
}

var _ Transport = (*MockTransport)(nil)

func NewMockTransport() *MockTransport {
	return &MockTransport{
		Responses:   make(map[string]string),
		Errors:      make(map[string]error),
		FileContent: make(map[string]string),
		Written:     make(map[string]string),
	}
}

// AddResponse registers a canned response for a command.
func (m *MockTransport) AddResponse(cmd, output string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses[cmd] = output
}

// AddError registers a canned error for a command.
func (m *MockTransport) AddError(cmd string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errors[cmd] = err
}

func (m *MockTransport) Execute(_ context.Context, cmd string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Executed = append(m.Executed, cmd)

	if err, ok := m.Errors[cmd]; ok {
		return "", err
	}
	if output, ok := m.Responses[cmd]; ok {
		return output, nil
	}
	return "", fmt.Errorf("mock: command not mocked: %s", cmd)
}

func (m *MockTransport) ReadFile(_ context.Context, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if content, ok := m.Written[path]; ok {
		return []byte(content), nil
	}
	if content, ok := m.FileContent[path]; ok {
		return []byte(content), nil
	}
	return nil, os.ErrNotExist
}

func (m *MockTransport) WriteFile(_ context.Context, path string, data []byte, _ os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Written[path] = string(data)
	return nil
}

func (m *MockTransport) Remove(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Removed = append(m.Removed, path)
	delete(m.Written, path)
	delete(m.FileContent, path)
	return nil
}

func (m *MockTransport) Close() error { return nil }
