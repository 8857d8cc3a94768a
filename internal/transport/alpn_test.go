package transport

import "testing"

func TestALPNProtocolWithoutNetwork(t *testing.T) {
	if got := ALPNProtocol(2, ""); got != "rad/2" {
		t.Errorf("ALPNProtocol(2, \"\") = %q, want %q", got, "rad/2")
	}
}

func TestALPNProtocolWithNetwork(t *testing.T) {
	if got := ALPNProtocol(2, "testnet"); got != "rad/2/testnet" {
		t.Errorf("ALPNProtocol(2, \"testnet\") = %q, want %q", got, "rad/2/testnet")
	}
}
