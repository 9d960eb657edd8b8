package sqlassets

import _ "embed"

//go:embed schema/tenants.sql
var TenantsSQL string

//go:embed schema/entity_mappings.sql
var EntityMappingsSQL string

//go:embed schema/sync_status.sql
var SyncStatusSQL string
