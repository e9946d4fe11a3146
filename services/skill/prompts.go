// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package skill

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Prompt size limits. The incremental prompt is composed from the base
// skill plus extension skills, and the composite has to stay small because
// the period payload itself can be large.
const (
	maxBaseIncrementalChars = 1400
	maxExtensionChars       = 180
)

// incrementalExtensionFiles are required companions of the incremental base
// skill. A missing extension is a configuration error, not a soft skip.
var incrementalExtensionFiles = []string{"coach.md"}

// PromptSet holds the loaded skill prompt texts used by the gateway.
type PromptSet struct {
	Session     string
	Incremental string
	// UsedFiles lists the skill files composed into Incremental, for run
	// provenance logging.
	UsedFiles []string
}

// LoadPromptSet reads all skill prompt files from skillsRoot. Any missing
// file is a ConfigurationError.
func LoadPromptSet(skillsRoot string) (*PromptSet, error) {
	session, err := readSkillFile(skillsRoot, "diagnose-session.md")
	if err != nil {
		return nil, err
	}
	incremental, usedFiles, err := loadIncrementalBundle(skillsRoot)
	if err != nil {
		return nil, err
	}
	return &PromptSet{
		Session:     session,
		Incremental: incremental,
		UsedFiles:   usedFiles,
	}, nil
}

// loadIncrementalBundle composes the base incremental skill with every
// required extension skill, each compacted to its size limit.
func loadIncrementalBundle(skillsRoot string) (string, []string, error) {
	base, err := readSkillFile(skillsRoot, "diagnose-incremental.md")
	if err != nil {
		return "", nil, err
	}
	usedFiles := []string{"diagnose-incremental.md"}
	sections := []string{
		compactSkillText(strings.TrimSpace(base), maxBaseIncrementalChars),
		"## 组合执行约束",
		"在满足 diagnose-incremental 主契约的前提下，必须同时遵循以下扩展技能约束：",
	}

	for _, filename := range incrementalExtensionFiles {
		text, err := readSkillFile(skillsRoot, filename)
		if err != nil {
			return "", nil, err
		}
		usedFiles = append(usedFiles, filename)
		sections = append(sections, fmt.Sprintf("## 扩展技能约束（%s）\n%s",
			filename, compactSkillText(strings.TrimSpace(text), maxExtensionChars)))
	}

	return strings.TrimSpace(strings.Join(sections, "\n\n")), usedFiles, nil
}

func readSkillFile(skillsRoot, filename string) (string, error) {
	path := filepath.Join(skillsRoot, filename)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &ConfigurationError{
			Field:  "skills",
			Reason: fmt.Sprintf("skill prompt missing: %s", path),
		}
	}
	return string(data), nil
}

// compactSkillText drops blank lines and truncates to limitChars, keeping
// the leading constraints intact.
func compactSkillText(text string, limitChars int) string {
	if text == "" {
		return ""
	}
	kept := make([]string, 0, 32)
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		kept = append(kept, strings.TrimRight(line, " \t"))
	}
	compact := strings.Join(kept, "\n")
	runes := []rune(compact)
	if len(runes) <= limitChars {
		return compact
	}
	return strings.TrimRight(string(runes[:limitChars]), " \t\n") + "\n...（运行时已截断，仅保留关键约束）"
}
