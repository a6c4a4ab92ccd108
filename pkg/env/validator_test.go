package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidEthAddress(t *testing.T) {
	tests := []struct {
		address string
		valid   bool
	}{
		{"0x31A4c9b78422295d4c44b2E30783d3e26E1D5771", true},
		{"0x0000000000000000000000000000000000000000", true},
		{"31A4c9b78422295d4c44b2E30783d3e26E1D5771", false},
		{"0x31A4c9b78422295d4c44b2E30783d3e26E1D577", false},
		{"0xZZA4c9b78422295d4c44b2E30783d3e26E1D5771", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			assert.Equal(t, tt.valid, IsValidEthAddress(tt.address))
		})
	}
}

func TestIsValidPrivateKey(t *testing.T) {
	key := "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	assert.True(t, IsValidPrivateKey(key))
	assert.True(t, IsValidPrivateKey("0x"+key))
	assert.False(t, IsValidPrivateKey(key[:63]))
	assert.False(t, IsValidPrivateKey("0x"+key+"00"))
}

func TestIsValidPort(t *testing.T) {
	assert.True(t, IsValidPort("9010"))
	assert.True(t, IsValidPort("65535"))
	assert.False(t, IsValidPort("80"))
	assert.False(t, IsValidPort("70000"))
	assert.False(t, IsValidPort("port"))
}

func TestIsValidRPCURL(t *testing.T) {
	assert.True(t, IsValidRPCURL("https://sepolia.base.org"))
	assert.True(t, IsValidRPCURL("wss://base-sepolia.example/ws"))
	assert.False(t, IsValidRPCURL("sepolia.base.org"))
	assert.False(t, IsValidRPCURL("ftp://sepolia.base.org"))
	assert.False(t, IsValidRPCURL(""))
	assert.True(t, IsEmpty("  "))
}
