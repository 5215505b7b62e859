package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultMatchesDocumentedValues(t *testing.T) {
	c := Default()
	assert.EqualValues(t, 6379, c.Port)
	assert.Equal(t, "data/", c.Dir)
	assert.Equal(t, "dump.rdb", c.DBFilename)
}

func TestLookupIsCaseInsensitive(t *testing.T) {
	c := Default()

	v, ok := c.Lookup("DIR")
	assert.True(t, ok)
	assert.Equal(t, "data/", v)

	v, ok = c.Lookup("dbFileName")
	assert.True(t, ok)
	assert.Equal(t, "dump.rdb", v)
}

func TestLookupUnknownKeyMisses(t *testing.T) {
	c := Default()
	_, ok := c.Lookup("maxmemory")
	assert.False(t, ok)
}
