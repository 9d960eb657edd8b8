package subscription

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildIDRoundTrip(t *testing.T) {
	id := BuildID("farm-7", "AgriParcel")
	require.Equal(t, "urn:ngsi-ld:Subscription:nkz-odoo-farm-7-agriparcel", id)

	tenant, ok := ParseTenant(id)
	require.True(t, ok)
	require.Equal(t, "farm-7", tenant)
}

func TestParseTenantSingleSegmentTenant(t *testing.T) {
	tenant, ok := ParseTenant(BuildID("acme", "Device"))
	require.True(t, ok)
	require.Equal(t, "acme", tenant)
}

func TestParseTenantRejectsForeignIDs(t *testing.T) {
	for _, id := range []string{
		"",
		"urn:ngsi-ld:Subscription:nkz-odoo",
		"urn:ngsi-ld:Subscription:nkz-odoo-device",
		"urn:ngsi-ld:Subscription:other-system-acme-device",
		"not-a-urn",
	} {
		_, ok := ParseTenant(id)
		require.False(t, ok, "expected no tenant for %q", id)
	}
}
