package transform

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotika-cloud/nekazari-erp-bridge/platform/go/contextgraph"
)

func entity(t *testing.T, raw string) contextgraph.Entity {
	t.Helper()
	var e contextgraph.Entity
	require.NoError(t, json.Unmarshal([]byte(raw), &e))
	return e
}

func TestClassifyRoutingTable(t *testing.T) {
	cases := map[string]RecordKind{
		"AgriParcel":     KindProduct,
		"Device":         KindEquipment,
		"WeatherStation": KindEquipment,
		"EnergyMeter":    KindMeter,
		"SolarPanel":     KindInstallation,
		"Building":       KindPartner,
	}
	for entityType, want := range cases {
		kind, err := Classify(entityType)
		require.NoError(t, err)
		require.Equal(t, want, kind)
	}
}

func TestClassifyUnknownType(t *testing.T) {
	_, err := Classify("Spaceship")
	require.ErrorIs(t, err, ErrUnsupportedType)
}

func TestRecordKindModels(t *testing.T) {
	require.Equal(t, "product.template", KindProduct.Model())
	require.Equal(t, "maintenance.equipment", KindEquipment.Model())
	require.Equal(t, "energy.meter", KindMeter.Model())
	require.Equal(t, "energy.installation", KindInstallation.Model())
	require.Equal(t, "res.partner", KindPartner.Model())
	require.Equal(t, "", RecordKind("bogus").Model())
}

func TestTransformParcelUnwrapsWrappedProperties(t *testing.T) {
	e := entity(t, `{
		"id": "urn:ngsi-ld:AgriParcel:1",
		"type": "AgriParcel",
		"name": {"value": "North Field"},
		"area": {"value": 3.5},
		"cropType": "wheat"
	}`)

	fields, err := Transform(e, KindProduct)
	require.NoError(t, err)
	require.Equal(t, "North Field", fields.DisplayName())
	require.Equal(t, "urn:ngsi-ld:AgriParcel:1", fields["x_ngsi_id"])
	require.Equal(t, 3.5, fields["x_area"])
	require.Equal(t, "wheat", fields["x_crop_type"])
	require.Equal(t, "product", fields["type"])
	require.NotContains(t, fields, "description")
}

func TestTransformNameDefaultsToEntityID(t *testing.T) {
	e := entity(t, `{"id": "urn:ngsi-ld:Device:9", "type": "Device"}`)

	fields, err := Transform(e, KindEquipment)
	require.NoError(t, err)
	require.Equal(t, "urn:ngsi-ld:Device:9", fields.DisplayName())
}

func TestTransformDevice(t *testing.T) {
	e := entity(t, `{
		"id": "urn:ngsi-ld:Device:9",
		"type": "Device",
		"serialNumber": {"value": "SN-1234"},
		"status": "ok"
	}`)

	fields, err := Transform(e, KindEquipment)
	require.NoError(t, err)
	require.Equal(t, "SN-1234", fields["serial_no"])
	require.Equal(t, "ok", fields["x_status"])
	require.NotContains(t, fields, "x_device_type")
}

func TestTransformMeterDefaultsMeterType(t *testing.T) {
	e := entity(t, `{
		"id": "urn:ngsi-ld:EnergyMeter:2",
		"type": "EnergyMeter",
		"meterCode": "M-2"
	}`)

	fields, err := Transform(e, KindMeter)
	require.NoError(t, err)
	require.Equal(t, "M-2", fields["code"])
	require.Equal(t, "production", fields["meter_type"])
}

func TestTransformPanel(t *testing.T) {
	e := entity(t, `{
		"id": "urn:ngsi-ld:SolarPanel:3",
		"type": "SolarPanel",
		"peakPower": {"value": 450},
		"orientation": "south",
		"tilt": 30
	}`)

	fields, err := Transform(e, KindInstallation)
	require.NoError(t, err)
	require.Equal(t, "solar", fields["installation_type"])
	require.Equal(t, float64(450), fields["power_peak"])
	require.Equal(t, "south", fields["x_orientation"])
	require.Equal(t, float64(30), fields["x_tilt"])
}

func TestTransformBuildingDecomposesAddress(t *testing.T) {
	e := entity(t, `{
		"id": "urn:ngsi-ld:Building:4",
		"type": "Building",
		"address": {"value": {
			"streetAddress": "Calle Mayor 1",
			"addressLocality": "Bilbao",
			"postalCode": "48001",
			"addressRegion": "ignored"
		}}
	}`)

	fields, err := Transform(e, KindPartner)
	require.NoError(t, err)
	require.Equal(t, true, fields["is_company"])
	require.Equal(t, "Calle Mayor 1", fields["street"])
	require.Equal(t, "Bilbao", fields["city"])
	require.Equal(t, "48001", fields["zip"])
	require.NotContains(t, fields, "addressRegion")
}

func TestTransformBuildingWithoutAddress(t *testing.T) {
	e := entity(t, `{"id": "urn:ngsi-ld:Building:5", "type": "Building"}`)

	fields, err := Transform(e, KindPartner)
	require.NoError(t, err)
	require.Equal(t, true, fields["is_company"])
	require.NotContains(t, fields, "street")
}
