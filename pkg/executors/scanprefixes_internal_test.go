package executors

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHostAddressesExcludesNetworkAndBroadcast(t *testing.T) {
	_, ipNet, err := net.ParseCIDR("192.0.2.0/30")
	if err != nil {
		t.Fatal(err)
	}
	hosts := hostAddresses(ipNet)
	assert.Equal(t, []string{"192.0.2.1", "192.0.2.2"}, hosts)
}

func TestHostAddressesPointToPointIncludesBothEndpoints(t *testing.T) {
	_, ipNet, err := net.ParseCIDR("192.0.2.4/31")
	if err != nil {
		t.Fatal(err)
	}
	hosts := hostAddresses(ipNet)
	assert.Equal(t, []string{"192.0.2.4", "192.0.2.5"}, hosts)
}

func TestIncrementIPCarries(t *testing.T) {
	ip := net.ParseIP("192.0.2.255").To4()
	incrementIP(ip)
	assert.Equal(t, "192.0.3.0", ip.String())
}
