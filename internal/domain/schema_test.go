package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMissingPayloadKey_CompletePayloadReturnsEmpty(t *testing.T) {
	payload := map[string]any{
		"in_strIDSolicitudAseguradora": "abc123",
		"in_strNumDoc":                 "1",
		"in_strPlaca":                  "ABC123",
	}
	assert.Empty(t, MissingPayloadKey(VendorHDI, payload))
}

func TestMissingPayloadKey_MissingKeyReported(t *testing.T) {
	payload := map[string]any{"in_strNumDoc": "1"}
	assert.Equal(t, "in_strIDSolicitudAseguradora", MissingPayloadKey(VendorHDI, payload))
}

func TestMissingPayloadKey_EmptyStringCountsAsMissing(t *testing.T) {
	payload := map[string]any{
		"in_strIDSolicitudAseguradora": "abc123",
		"in_strNumDoc":                 "",
		"in_strPlaca":                  "ABC123",
	}
	assert.Equal(t, "in_strNumDoc", MissingPayloadKey(VendorHDI, payload))
}

func TestMissingPayloadKey_WrongTypeCountsAsMissing(t *testing.T) {
	payload := map[string]any{
		"in_strIDSolicitudAseguradora": "abc123",
		"in_strNumDoc":                 42,
		"in_strPlaca":                  "ABC123",
	}
	assert.Equal(t, "in_strNumDoc", MissingPayloadKey(VendorHDI, payload))
}

func TestMissingPayloadKey_UnknownVendorHasNoRequiredKeys(t *testing.T) {
	assert.Empty(t, MissingPayloadKey(Vendor("unknown"), map[string]any{}))
}

func TestMissingPayloadKey_ExtraKeysAllowed(t *testing.T) {
	payload := map[string]any{
		"in_strNumDoc":    "1",
		"in_strPlaca":     "ABC123",
		"in_strSomeExtra": "whatever",
	}
	assert.Empty(t, MissingPayloadKey(VendorAXA, payload))
}

func TestRequiredPayloadKeys_RUNTMatchesFourFieldSchema(t *testing.T) {
	assert.ElementsMatch(t, []string{
		"in_strIDSolicitudCotizadora", "in_strTipoDoc", "in_strNumDoc", "in_strPlaca",
	}, RequiredPayloadKeys(VendorRUNT))
}
