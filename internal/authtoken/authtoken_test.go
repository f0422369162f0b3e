package authtoken

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisabledWhenEmpty(t *testing.T) {
	c := New("")
	assert.False(t, c.Enabled())
	assert.NoError(t, c.Check("anything"))
}

func TestCheckRejectsWrongToken(t *testing.T) {
	c := New("correct-horse")
	assert.True(t, c.Enabled())
	assert.NoError(t, c.Check("correct-horse"))
	assert.Error(t, c.Check("wrong"))
	assert.Error(t, c.Check(""))
}
