package domain

// requiredPayloadKeys is the per-vendor registry of required string keys a
// cotizar payload must carry, ported from the upstream per-vendor payload
// schemas. Every one of those schemas lists the document number and plate
// fields as required regardless of vendor, so those two are universal here;
// hdi additionally requires the solicitud identifier named in its sample
// payload. Keys not listed are passed through unvalidated (forward-compat),
// mirroring the upstream schemas' "extra fields allowed" behavior.
var requiredPayloadKeys = map[Vendor][]string{
	VendorHDI:       {"in_strIDSolicitudAseguradora", "in_strNumDoc", "in_strPlaca"},
	VendorRUNT:      {"in_strIDSolicitudCotizadora", "in_strTipoDoc", "in_strNumDoc", "in_strPlaca"},
	VendorAXA:       {"in_strNumDoc", "in_strPlaca"},
	VendorSURA:      {"in_strNumDoc", "in_strPlaca"},
	VendorSolidaria: {"in_strNumDoc", "in_strPlaca"},
	VendorEquidad:   {"in_strNumDoc", "in_strPlaca"},
	VendorMundial:   {"in_strNumDoc", "in_strPlaca"},
	VendorAllianz:   {"in_strNumDoc", "in_strPlaca"},
	VendorBolivar:   {"in_strNumDoc", "in_strPlaca"},
	VendorSBS:       {"in_strNumDoc", "in_strPlaca"},
}

// RequiredPayloadKeys returns the required string keys for vendor's cotizar
// payload. An unknown vendor gets nil.
func RequiredPayloadKeys(v Vendor) []string {
	return requiredPayloadKeys[v]
}

// MissingPayloadKey returns the first required key missing from payload, or
// "" if payload carries every key vendor's schema requires. A key present
// but not holding a non-empty string counts as missing, matching the
// upstream schemas' required-string semantics.
func MissingPayloadKey(v Vendor, payload map[string]any) string {
	for _, key := range requiredPayloadKeys[v] {
		val, present := payload[key]
		if !present {
			return key
		}
		s, isString := val.(string)
		if !isString || s == "" {
			return key
		}
	}
	return ""
}
