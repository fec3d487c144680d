// Package protocol defines the wire vocabulary of the filter socket API:
// status codes, status messages and the filter-list request format.
//
// A client submits a filter list as a JSON text message:
//
//	[{"name": "bright", "params": {"coefficient": 1.4}}, {"name": "sepia", "params": {}}]
//
// ParseFilterList decodes and validates it against Schema, returning
// INVALID_JSON for malformed JSON and INVALID_JSON_FORMAT when the document
// does not match the schema.
package protocol
