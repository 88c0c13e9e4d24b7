package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseOrigins_DefaultsToWildcard(t *testing.T) {
	assert.Equal(t, []string{"*"}, ParseOrigins(""))
	assert.Equal(t, []string{"*"}, ParseOrigins("*"))
}

func TestParseOrigins_SplitsAndTrims(t *testing.T) {
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, ParseOrigins(" https://a.example , https://b.example "))
}
