// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package contract

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/kaptinlin/jsonschema"
)

//go:embed schemas/session-mechanism.v1.json
var sessionSchemaJSON []byte

//go:embed schemas/incremental-mechanism.v1.json
var incrementalSchemaJSON []byte

var (
	compileOnce       sync.Once
	sessionSchema     *jsonschema.Schema
	incrementalSchema *jsonschema.Schema
	compileErr        error
)

// compileSchemas compiles the embedded schemas exactly once. The schemas
// ship with the binary, so a compile failure is a programming error and is
// surfaced as a shape violation on every validation call rather than a
// panic.
func compileSchemas() {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true

	sessionSchema, compileErr = compiler.Compile(sessionSchemaJSON)
	if compileErr != nil {
		compileErr = fmt.Errorf("compile session schema: %w", compileErr)
		return
	}
	incrementalSchema, compileErr = compiler.Compile(incrementalSchemaJSON)
	if compileErr != nil {
		compileErr = fmt.Errorf("compile incremental schema: %w", compileErr)
	}
}

// checkShape runs the JSON Schema stage and appends one violation per
// schema error. It reports whether the document may proceed to decoding.
func checkShape(schema *jsonschema.Schema, raw []byte, res *Result) bool {
	if compileErr != nil {
		res.add(CodeShape, "", "schema unavailable: %v", compileErr)
		return false
	}
	result := schema.ValidateJSON(raw)
	if result.IsValid() {
		return true
	}
	for keyword, evalErr := range result.Errors {
		res.add(CodeShape, "", "%s: %s", keyword, evalErr.Message)
	}
	if len(result.Errors) == 0 {
		res.add(CodeShape, "", "document does not match schema")
	}
	return false
}
