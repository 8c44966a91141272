package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClipCountsRunes(t *testing.T) {
	assert.Equal(t, "Müller Stra", clip("Müller Straße", 11))
	assert.Equal(t, "Müller Straße", clip("Müller Straße", 13))
	assert.Equal(t, "short", clip("short", 40))
	assert.Equal(t, "", clip("", 5))
}
