package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommandSubstitutes(t *testing.T) {
	out, err := Command("chef-zero --port {{.Port}}", map[string]interface{}{"Port": 4242})

	assert.NoError(t, err)
	assert.Equal(t, "chef-zero --port 4242", out)
}

func TestCommandSprigFunctions(t *testing.T) {
	out, err := Command("{{.Name | upper }}", map[string]interface{}{"Name": "web1"})

	assert.NoError(t, err)
	assert.Equal(t, "WEB1", out)
}

func TestCommandBadTemplate(t *testing.T) {
	_, err := Command("{{.Port", nil)
	assert.Error(t, err)
}
