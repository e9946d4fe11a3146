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
	"fmt"
	"strings"
)

// Violation codes. Codes classify violations for callers; Path and Message
// carry the specifics.
const (
	CodeShape         = "shape"
	CodeSchemaVersion = "schema-version"
	CodeMissingField  = "missing-field"
	CodeEvidence      = "evidence"
	CodeProvenance    = "provenance"
	CodeDimension     = "unknown-dimension"
	CodeLayer         = "layer-mismatch"
	CodeDuplicateKey  = "duplicate-key"
	CodeCoverage      = "coverage-bound"
	CodeDetailCap     = "detail-cap"
	CodeEvidenceDump  = "evidence-dump"
)

// Violation is one contract failure at a specific document path.
type Violation struct {
	Code    string `json:"code"`
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	if v.Path == "" {
		return fmt.Sprintf("%s: %s", v.Code, v.Message)
	}
	return fmt.Sprintf("%s at %s: %s", v.Code, v.Path, v.Message)
}

// Result accumulates every violation found across all validation stages. A
// document passes only when the result is empty; callers decide whether a
// non-empty result aborts the run (strict) or is recorded and skipped
// (partial).
type Result struct {
	Violations []Violation
}

// Valid reports whether no violation was recorded.
func (r *Result) Valid() bool {
	return r == nil || len(r.Violations) == 0
}

func (r *Result) add(code, path, format string, args ...any) {
	r.Violations = append(r.Violations, Violation{
		Code:    code,
		Path:    path,
		Message: fmt.Sprintf(format, args...),
	})
}

// Err converts a failed result into a ViolationError, or nil when valid.
func (r *Result) Err() error {
	if r.Valid() {
		return nil
	}
	return &ViolationError{Violations: r.Violations}
}

// ViolationError is the error form of a failed validation. It wraps the full
// violation set so partial-mode callers can record individual failures.
type ViolationError struct {
	Violations []Violation
}

func (e *ViolationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.String())
	}
	return fmt.Sprintf("contract violation: %s", strings.Join(parts, "; "))
}

// ProvenanceError marks a document rejected by the provenance gate. It is a
// distinct type because provenance rejections are never retried and never
// count as transient.
type ProvenanceError struct {
	Reason string
}

func (e *ProvenanceError) Error() string {
	return fmt.Sprintf("provenance rejected: %s", e.Reason)
}
