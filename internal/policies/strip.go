package policies

// serverAssignedFieldNames lists top-level fields the creation endpoints
// reject or assign themselves.
var serverAssignedFieldNames = []string{
	"id",
	"createdDateTime",
	"lastModifiedDateTime",
	"version",
	"supportsScopeTags",
	"secretReferenceValueId",
}

// StripServerAssignedFields returns a copy of the record without
// server-assigned fields, leaving every other field untouched.
func StripServerAssignedFields(record map[string]any) map[string]any {
	strippedRecord := make(map[string]any, len(record))
	for fieldName, fieldValue := range record {
		strippedRecord[fieldName] = fieldValue
	}
	for _, serverFieldName := range serverAssignedFieldNames {
		delete(strippedRecord, serverFieldName)
	}
	return strippedRecord
}
