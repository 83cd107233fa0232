package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateDiff(t *testing.T) {
	current := "log_level :info\nchef_server_url \"https://prod\"\n"
	desired := "log_level :info\nchef_server_url \"http://workstation:4242\"\n"

	diff := generateDiff(current, desired)

	assert.Contains(t, diff, "- chef_server_url \"https://prod\"")
	assert.Contains(t, diff, "+ chef_server_url \"http://workstation:4242\"")
	// Unchanged lines keep their context prefix.
	assert.Contains(t, diff, "  log_level :info")
}

func TestGenerateDiffFromEmpty(t *testing.T) {
	diff := generateDiff("", "node_name \"web1\"\n")
	assert.Contains(t, diff, "+ node_name \"web1\"")
}
