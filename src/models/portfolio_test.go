package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSymbolFromTicker(t *testing.T) {
	assert.Equal(t, "VODl", SymbolFromTicker("VODl_EQ"))
	assert.Equal(t, "AAPL", SymbolFromTicker("AAPL_US_EQ"))
	assert.Equal(t, "BT", SymbolFromTicker("BT"))
	assert.Equal(t, "", SymbolFromTicker(""))
}
