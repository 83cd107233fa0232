package transport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDialMissingKeyFile(t *testing.T) {
	_, err := Dial(context.Background(), HostConfig{
		Address: "web1",
		User:    "deploy",
		KeyPath: "/does/not/exist",
	})
	assert.Error(t, err)
}

func TestMockTransportRecordsActivity(t *testing.T) {
	mock := NewMockTransport()
	mock.AddResponse("hostname", "web1")
	ctx := context.Background()

	out, err := mock.Execute(ctx, "hostname")
	assert.NoError(t, err)
	assert.Equal(t, "web1", out)

	_, err = mock.Execute(ctx, "not-mocked")
	assert.Error(t, err)

	assert.NoError(t, mock.WriteFile(ctx, "/etc/chef/client.rb", []byte("x"), 0644))
	data, err := mock.ReadFile(ctx, "/etc/chef/client.rb")
	assert.NoError(t, err)
	assert.Equal(t, "x", string(data))

	assert.NoError(t, mock.Remove(ctx, "/etc/chef/client.rb"))
	_, err = mock.ReadFile(ctx, "/etc/chef/client.rb")
	assert.Error(t, err)

	assert.Equal(t, []string{"hostname", "not-mocked"}, mock.Executed)
	assert.Equal(t, []string{"/etc/chef/client.rb"}, mock.Removed)
}
