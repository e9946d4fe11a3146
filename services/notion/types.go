// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package notion

import "strings"

// Page is a database row as the API returns it. Properties are decoded just
// far enough to read titles, selects and rich text; everything else stays
// opaque.
type Page struct {
	ID             string                   `json:"id"`
	CreatedTime    string                   `json:"created_time,omitempty"`
	LastEditedTime string                   `json:"last_edited_time,omitempty"`
	Archived       bool                     `json:"archived,omitempty"`
	Properties     map[string]PropertyValue `json:"properties,omitempty"`
}

// PropertyValue is one decoded page property. Only the variants the sync
// engine reads are mapped.
type PropertyValue struct {
	Type     string        `json:"type,omitempty"`
	Title    []RichText    `json:"title,omitempty"`
	RichText []RichText    `json:"rich_text,omitempty"`
	Select   *SelectOption `json:"select,omitempty"`
	Number   *float64      `json:"number,omitempty"`
	Date     *DateValue    `json:"date,omitempty"`
}

// RichText is one rich-text element.
type RichText struct {
	Type      string      `json:"type,omitempty"`
	Text      TextContent `json:"text,omitempty"`
	PlainText string      `json:"plain_text,omitempty"`
}

type TextContent struct {
	Content string `json:"content"`
}

type SelectOption struct {
	Name string `json:"name"`
}

type DateValue struct {
	Start string `json:"start"`
	End   string `json:"end,omitempty"`
}

// BlockRef identifies one existing block child, enough to delete it.
type BlockRef struct {
	ID   string `json:"id"`
	Type string `json:"type,omitempty"`
}

// PlainText flattens a rich-text array, preferring plain_text when the API
// provides it.
func PlainText(parts []RichText) string {
	var builder strings.Builder
	for _, part := range parts {
		if part.PlainText != "" {
			builder.WriteString(part.PlainText)
		} else {
			builder.WriteString(part.Text.Content)
		}
	}
	return builder.String()
}

// SelectName reads the select value of a named property, or "".
func (p Page) SelectName(property string) string {
	if value, ok := p.Properties[property]; ok && value.Select != nil {
		return value.Select.Name
	}
	return ""
}

// TitleText reads the title text of a named property, or "".
func (p Page) TitleText(property string) string {
	if value, ok := p.Properties[property]; ok {
		return PlainText(value.Title)
	}
	return ""
}

// RichTextValue reads the rich-text content of a named property, or "".
func (p Page) RichTextValue(property string) string {
	if value, ok := p.Properties[property]; ok {
		return PlainText(value.RichText)
	}
	return ""
}
