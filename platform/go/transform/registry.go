// Package transform maps context-graph entities onto ERP record field values.
// Everything here is pure: no I/O, no clocks, no stored state.
package transform

import (
	"errors"
	"fmt"

	"github.com/robotika-cloud/nekazari-erp-bridge/platform/go/contextgraph"
)

// ErrUnsupportedType is returned when a declared entity type has no routing
// entry. Callers report it; there is nothing to retry.
var ErrUnsupportedType = errors.New("unsupported entity type")

// RecordKind identifies the ERP schema a declared entity type maps to.
type RecordKind string

const (
	KindProduct      RecordKind = "product"
	KindEquipment    RecordKind = "equipment"
	KindMeter        RecordKind = "meter"
	KindInstallation RecordKind = "installation"
	KindPartner      RecordKind = "partner"
)

// Model returns the ERP model name backing the record kind.
func (k RecordKind) Model() string {
	switch k {
	case KindProduct:
		return "product.template"
	case KindEquipment:
		return "maintenance.equipment"
	case KindMeter:
		return "energy.meter"
	case KindInstallation:
		return "energy.installation"
	case KindPartner:
		return "res.partner"
	default:
		return ""
	}
}

// routing is the closed table of declared entity types handled by the bridge.
var routing = map[string]RecordKind{
	"AgriParcel":     KindProduct,
	"Device":         KindEquipment,
	"WeatherStation": KindEquipment,
	"EnergyMeter":    KindMeter,
	"SolarPanel":     KindInstallation,
	"Building":       KindPartner,
}

// EntityTypes returns every declared type in the routing table, in a stable
// order usable for full-sync sweeps and subscription registration.
func EntityTypes() []string {
	return []string{"AgriParcel", "Device", "WeatherStation", "EnergyMeter", "SolarPanel", "Building"}
}

// Classify resolves a declared entity type to its record kind.
func Classify(entityType string) (RecordKind, error) {
	kind, ok := routing[entityType]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, entityType)
	}
	return kind, nil
}

// Fields holds ERP record field values keyed by field name.
type Fields map[string]any

// DisplayName returns the record name field.
func (f Fields) DisplayName() string {
	name, _ := f["name"].(string)
	return name
}

// Transform derives the ERP field values for an entity. The base pair
// (name, x_ngsi_id) is always present; the name falls back to the entity id
// when the entity carries no name property. Absent properties are simply
// omitted from the result.
func Transform(e contextgraph.Entity, kind RecordKind) (Fields, error) {
	name, ok := e.Property("name").String()
	if !ok || name == "" {
		name = e.ID
	}

	fields := Fields{
		"name":      name,
		"x_ngsi_id": e.ID,
	}

	switch kind {
	case KindProduct:
		transformParcel(e, fields)
	case KindEquipment:
		transformDevice(e, fields)
	case KindMeter:
		transformMeter(e, fields)
	case KindInstallation:
		transformPanel(e, fields)
	case KindPartner:
		transformBuilding(e, fields)
	default:
		return nil, fmt.Errorf("%w: record kind %q", ErrUnsupportedType, kind)
	}

	return fields, nil
}

func transformParcel(e contextgraph.Entity, fields Fields) {
	fields["type"] = "product"
	fields["categ_id"] = 1
	putString(fields, "description", e.Property("description"))
	putFloat(fields, "x_area", e.Property("area"))
	putString(fields, "x_crop_type", e.Property("cropType"))
	if loc, ok := e.Property("location").Value(); ok {
		fields["x_location"] = fmt.Sprintf("%v", loc)
	}
}

func transformDevice(e contextgraph.Entity, fields Fields) {
	putString(fields, "serial_no", e.Property("serialNumber"))
	putString(fields, "note", e.Property("description"))
	putString(fields, "x_device_type", e.Property("deviceType"))
	putString(fields, "x_status", e.Property("status"))
}

func transformMeter(e contextgraph.Entity, fields Fields) {
	putString(fields, "code", e.Property("meterCode"))
	if meterType, ok := e.Property("meterType").String(); ok {
		fields["meter_type"] = meterType
	} else {
		fields["meter_type"] = "production"
	}
	putString(fields, "x_cups", e.Property("cups"))
}

func transformPanel(e contextgraph.Entity, fields Fields) {
	fields["installation_type"] = "solar"
	putFloat(fields, "power_peak", e.Property("peakPower"))
	putString(fields, "x_orientation", e.Property("orientation"))
	putFloat(fields, "x_tilt", e.Property("tilt"))
}

// transformBuilding decomposes the address sub-object into its known parts;
// anything else inside it is dropped.
func transformBuilding(e contextgraph.Entity, fields Fields) {
	fields["is_company"] = true
	address, ok := e.Property("address").Object()
	if !ok {
		return
	}
	if street, ok := address["streetAddress"].(string); ok {
		fields["street"] = street
	}
	if city, ok := address["addressLocality"].(string); ok {
		fields["city"] = city
	}
	if zip, ok := address["postalCode"].(string); ok {
		fields["zip"] = zip
	}
}

func putString(fields Fields, key string, prop contextgraph.Property) {
	if v, ok := prop.String(); ok {
		fields[key] = v
	}
}

func putFloat(fields Fields, key string, prop contextgraph.Property) {
	if v, ok := prop.Float(); ok {
		fields[key] = v
	}
}
