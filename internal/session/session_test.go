package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/melih-ucgun/saucier/internal/config"
	"github.com/melih-ucgun/saucier/internal/lock"
	"github.com/melih-ucgun/saucier/internal/transport"
)

const (
	claimCmd   = "mkdir '/var/lock/saucier' 2>/dev/null && echo CLAIMED || echo HELD"
	releaseCmd = "rm -rf '/var/lock/saucier'"
	linkTest   = "ln -sf 'client-saucier.rb' '/etc/chef/client.rb'"
	linkProd   = "ln -sf 'client-prod.rb' '/etc/chef/client.rb'"

	testConfPath = "/etc/chef/client-saucier.rb"
	ownerPath    = "/var/lock/saucier/owner.json"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.User = "alice"
	cfg.ServerAddr = "workstation"
	cfg.RemoteConfDir = "/etc/chef"
	cfg.RemoteLockDir = "/var/lock/saucier"
	cfg.TestingTime = config.Duration(45 * time.Minute)
	return cfg
}

func dialMock(mock *transport.MockTransport) transport.DialFunc {
	return func(_ context.Context, _ transport.HostConfig) (transport.Transport, error) {
		return mock, nil
	}
}

func TestTestLinksHostToLocalServer(t *testing.T) {
	mock := transport.NewMockTransport()
	mock.AddResponse(claimCmd, "CLAIMED\n")
	mock.AddResponse(linkTest, "")

	s := New(testConfig(), dialMock(mock), 4242, false)
	out := s.Test(context.Background(), "web1")

	assert.Equal(t, StatusOK, out.Status)

	// Agent config points at the operator's server under the host's name.
	conf := mock.Written[testConfPath]
	assert.Contains(t, conf, `chef_server_url  "http://workstation:4242"`)
	assert.Contains(t, conf, `node_name        "web1"`)

	// The lock records who took the host.
	var l lock.Lock
	assert.NoError(t, json.Unmarshal([]byte(mock.Written[ownerPath]), &l))
	assert.Equal(t, "alice", l.Owner)
	assert.Equal(t, "web1", l.Hostname)

	assert.Contains(t, mock.Executed, linkTest)
}

func TestTestConflictLeavesHostUntouched(t *testing.T) {
	mock := transport.NewMockTransport()
	mock.AddResponse(claimCmd, "HELD\n")
	held, _ := json.Marshal(&lock.Lock{
		Hostname:  "web1",
		Owner:     "bob",
		ExpiresAt: time.Now().Add(time.Hour),
	})
	mock.FileContent[ownerPath] = string(held)

	s := New(testConfig(), dialMock(mock), 4242, false)
	out := s.Test(context.Background(), "web1")

	assert.Equal(t, StatusConflict, out.Status)
	assert.Equal(t, "bob", out.Owner)
	assert.NotContains(t, mock.Written, testConfPath)
	assert.NotContains(t, mock.Executed, linkTest)
}

func TestTestDryRunMutatesNothing(t *testing.T) {
	mock := transport.NewMockTransport()

	s := New(testConfig(), dialMock(mock), 4242, true)
	out := s.Test(context.Background(), "web1")

	assert.Equal(t, StatusOK, out.Status)
	assert.Empty(t, mock.Executed)
	assert.Empty(t, mock.Written)
}

func TestTestDryRunStillReportsConflicts(t *testing.T) {
	mock := transport.NewMockTransport()
	held, _ := json.Marshal(&lock.Lock{
		Hostname:  "web1",
		Owner:     "bob",
		ExpiresAt: time.Now().Add(time.Hour),
	})
	mock.FileContent[ownerPath] = string(held)

	s := New(testConfig(), dialMock(mock), 4242, true)
	out := s.Test(context.Background(), "web1")

	assert.Equal(t, StatusConflict, out.Status)
	assert.Equal(t, "bob", out.Owner)
}

func TestTestDialFailure(t *testing.T) {
	dial := func(_ context.Context, _ transport.HostConfig) (transport.Transport, error) {
		return nil, errors.New("ssh: handshake failed")
	}

	s := New(testConfig(), dial, 4242, false)
	out := s.Test(context.Background(), "web1")

	assert.Equal(t, StatusFailed, out.Status)
	assert.Error(t, out.Err)
}

func TestUntestRestoresProduction(t *testing.T) {
	mock := transport.NewMockTransport()
	mock.AddResponse(linkProd, "")
	mock.AddResponse(releaseCmd, "")
	mock.Written[testConfPath] = "leftover"

	s := New(testConfig(), dialMock(mock), 4242, false)
	out := s.Untest(context.Background(), "web1")

	assert.Equal(t, StatusOK, out.Status)
	assert.Contains(t, mock.Executed, linkProd)
	assert.Contains(t, mock.Executed, releaseCmd)
	assert.Contains(t, mock.Removed, testConfPath)
}

func TestUntestIsIdempotent(t *testing.T) {
	// Untesting a host that was never under test succeeds quietly.
	mock := transport.NewMockTransport()
	mock.AddResponse(linkProd, "")
	mock.AddResponse(releaseCmd, "")

	s := New(testConfig(), dialMock(mock), 4242, false)
	assert.Equal(t, StatusOK, s.Untest(context.Background(), "web1").Status)
	assert.Equal(t, StatusOK, s.Untest(context.Background(), "web1").Status)
}

func TestRunStreamsAgentOutput(t *testing.T) {
	mock := transport.NewMockTransport()
	mock.AddResponse("chef-client", "INFO: Run list is [role[web]]\nINFO: Chef Run complete\n")

	s := New(testConfig(), dialMock(mock), 4242, false)
	out := s.Run(context.Background(), "web1")

	assert.Equal(t, StatusOK, out.Status)
	assert.Contains(t, mock.Executed, "chef-client")
}

func TestRunReportsAgentFailure(t *testing.T) {
	mock := transport.NewMockTransport()
	mock.AddError("chef-client", errors.New("exit status 1"))

	s := New(testConfig(), dialMock(mock), 4242, false)
	out := s.Run(context.Background(), "web1")

	assert.Equal(t, StatusFailed, out.Status)
	assert.ErrorContains(t, out.Err, "convergence run failed")
}

func TestKeepTestingExtendsOwnLock(t *testing.T) {
	mock := transport.NewMockTransport()
	mock.AddResponse(claimCmd, "HELD\n")
	held, _ := json.Marshal(&lock.Lock{
		Hostname:  "web1",
		Owner:     "alice",
		ExpiresAt: time.Now().Add(time.Minute),
	})
	mock.FileContent[ownerPath] = string(held)

	s := New(testConfig(), dialMock(mock), 4242, false)
	out := s.KeepTesting(context.Background(), "web1")

	assert.Equal(t, StatusOK, out.Status)

	var l lock.Lock
	assert.NoError(t, json.Unmarshal([]byte(mock.Written[ownerPath]), &l))
	assert.Equal(t, "alice", l.Owner)
	assert.True(t, l.ExpiresAt.After(time.Now().Add(30*time.Minute)))
}

func TestKeepTestingRequiresActiveSession(t *testing.T) {
	// No lock on the host: there is no session to extend, and none may be
	// started as a side effect.
	mock := transport.NewMockTransport()

	s := New(testConfig(), dialMock(mock), 4242, false)
	out := s.KeepTesting(context.Background(), "web1")

	assert.Equal(t, StatusFailed, out.Status)
	assert.ErrorContains(t, out.Err, "no active test session")
	assert.Empty(t, mock.Executed)
	assert.Empty(t, mock.Written)
}

func TestKeepTestingConflictsOnForeignLock(t *testing.T) {
	mock := transport.NewMockTransport()
	mock.AddResponse(claimCmd, "HELD\n")
	held, _ := json.Marshal(&lock.Lock{
		Hostname:  "web1",
		Owner:     "bob",
		ExpiresAt: time.Now().Add(time.Hour),
	})
	mock.FileContent[ownerPath] = string(held)

	s := New(testConfig(), dialMock(mock), 4242, false)
	out := s.KeepTesting(context.Background(), "web1")

	assert.Equal(t, StatusConflict, out.Status)
	assert.Equal(t, "bob", out.Owner)
}
