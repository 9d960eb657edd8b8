// Package subscription derives subscription identifiers from tenant and
// entity type, and parses them back. The naming is deterministic so an
// inbound notification can be routed to its tenant without a lookup table.
package subscription

import "strings"

const (
	urnPrefix  = "urn:ngsi-ld:Subscription:"
	namePrefix = "nkz-odoo"
)

// BuildID returns the subscription identifier for a (tenant, entity type)
// pair: urn:ngsi-ld:Subscription:nkz-odoo-{tenant}-{type}. The type is
// lowercased; tenant ids pass through untouched and may contain hyphens.
func BuildID(tenantID, entityType string) string {
	return urnPrefix + namePrefix + "-" + tenantID + "-" + strings.ToLower(entityType)
}

// ParseTenant extracts the tenant id from a subscription identifier built by
// BuildID. The second return is false for identifiers that do not follow the
// convention; callers treat those notifications as not ours and drop them.
func ParseTenant(subscriptionID string) (string, bool) {
	idx := strings.LastIndex(subscriptionID, ":")
	if idx < 0 {
		return "", false
	}

	name := subscriptionID[idx+1:]
	parts := strings.Split(name, "-")
	// nkz-odoo-{tenant...}-{type}: at least four segments, tenant may span several.
	if len(parts) < 4 || parts[0] != "nkz" || parts[1] != "odoo" {
		return "", false
	}

	tenant := strings.Join(parts[2:len(parts)-1], "-")
	if tenant == "" {
		return "", false
	}
	return tenant, true
}
