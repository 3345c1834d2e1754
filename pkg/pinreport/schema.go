// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package pinreport

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// reportSchema is the JSON Schema every incoming report must satisfy
// before it reaches the sink. Unknown top-level fields are rejected so
// malformed senders fail loudly instead of silently losing data.
const reportSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "pin validation failure report",
  "type": "object",
  "required": ["date-time", "hostname", "mode", "reason"],
  "additionalProperties": false,
  "properties": {
    "report-id": {"type": "string"},
    "date-time": {"type": "string", "format": "date-time"},
    "hostname": {"type": "string", "minLength": 1},
    "port": {"type": "integer", "minimum": 0, "maximum": 65535},
    "mode": {"type": "string", "enum": ["none", "public-key", "certificate"]},
    "reason": {"type": "string", "minLength": 1},
    "served-certificate-chain": {
      "type": "array",
      "items": {"type": "string"}
    },
    "known-pins": {
      "type": "array",
      "items": {"type": "string"}
    }
  }
}`

var reportSchemaLoader = gojsonschema.NewStringLoader(reportSchema)

// validateReport checks a raw report document against the report schema.
func validateReport(data []byte) error {
	result, err := gojsonschema.Validate(reportSchemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidReport, err)
	}
	if !result.Valid() {
		issues := make([]string, 0, len(result.Errors()))
		for _, issue := range result.Errors() {
			issues = append(issues, issue.String())
		}
		return fmt.Errorf("%w: %s", ErrInvalidReport, strings.Join(issues, "; "))
	}
	return nil
}
