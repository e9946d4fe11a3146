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

import (
	"context"
	"fmt"
	"net/http"
)

type queryResponse struct {
	Results    []Page `json:"results"`
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor"`
}

type blockListResponse struct {
	Results    []BlockRef `json:"results"`
	HasMore    bool       `json:"has_more"`
	NextCursor string     `json:"next_cursor"`
}

// QueryDatabase returns every page of a database matching filter, following
// pagination. A nil filter returns all pages.
func (c *Client) QueryDatabase(ctx context.Context, databaseID string, filter map[string]any) ([]Page, error) {
	var pages []Page
	cursor := ""
	for {
		payload := map[string]any{"page_size": 100}
		if filter != nil {
			payload["filter"] = filter
		}
		if cursor != "" {
			payload["start_cursor"] = cursor
		}
		var resp queryResponse
		err := c.request(ctx, http.MethodPost, fmt.Sprintf("/databases/%s/query", databaseID), payload, &resp)
		if err != nil {
			return nil, err
		}
		pages = append(pages, resp.Results...)
		if !resp.HasMore || resp.NextCursor == "" {
			return pages, nil
		}
		cursor = resp.NextCursor
	}
}

// CreatePage creates a database row with properties and optional body
// blocks. Notion allows at most 100 children at creation; the overflow is
// appended afterwards.
func (c *Client) CreatePage(ctx context.Context, databaseID string, properties map[string]any, children []Block) (Page, error) {
	payload := map[string]any{
		"parent":     map[string]any{"database_id": databaseID},
		"properties": properties,
	}
	var overflow []Block
	if len(children) > 0 {
		initial := children
		if len(initial) > maxBlocksPerAppend {
			initial = children[:maxBlocksPerAppend]
			overflow = children[maxBlocksPerAppend:]
		}
		payload["children"] = initial
	}

	var page Page
	if err := c.request(ctx, http.MethodPost, "/pages", payload, &page); err != nil {
		return Page{}, err
	}
	if len(overflow) > 0 {
		if err := c.AppendBlocks(ctx, page.ID, overflow); err != nil {
			return page, err
		}
	}
	return page, nil
}

// UpdatePage patches page properties.
func (c *Client) UpdatePage(ctx context.Context, pageID string, properties map[string]any) error {
	payload := map[string]any{"properties": properties}
	return c.request(ctx, http.MethodPatch, "/pages/"+pageID, payload, nil)
}

// ArchivePage marks a page archived. Notion has no hard delete over the
// API; archived pages drop out of database queries.
func (c *Client) ArchivePage(ctx context.Context, pageID string) error {
	payload := map[string]any{"archived": true}
	return c.request(ctx, http.MethodPatch, "/pages/"+pageID, payload, nil)
}

// GetBlocks lists the direct block children of a page or block, following
// pagination.
func (c *Client) GetBlocks(ctx context.Context, blockID string) ([]BlockRef, error) {
	var blocks []BlockRef
	cursor := ""
	for {
		path := fmt.Sprintf("/blocks/%s/children?page_size=100", blockID)
		if cursor != "" {
			path += "&start_cursor=" + cursor
		}
		var resp blockListResponse
		if err := c.request(ctx, http.MethodGet, path, nil, &resp); err != nil {
			return nil, err
		}
		blocks = append(blocks, resp.Results...)
		if !resp.HasMore || resp.NextCursor == "" {
			return blocks, nil
		}
		cursor = resp.NextCursor
	}
}

// AppendBlocks appends body blocks in batches of at most 100 per request.
func (c *Client) AppendBlocks(ctx context.Context, blockID string, blocks []Block) error {
	for start := 0; start < len(blocks); start += maxBlocksPerAppend {
		end := start + maxBlocksPerAppend
		if end > len(blocks) {
			end = len(blocks)
		}
		payload := map[string]any{"children": blocks[start:end]}
		if err := c.request(ctx, http.MethodPatch, fmt.Sprintf("/blocks/%s/children", blockID), payload, nil); err != nil {
			return err
		}
	}
	return nil
}

// DeleteBlock removes one block.
func (c *Client) DeleteBlock(ctx context.Context, blockID string) error {
	return c.request(ctx, http.MethodDelete, "/blocks/"+blockID, nil, nil)
}

// ClearPage deletes every direct child block of a page, leaving the page
// row and its properties intact.
func (c *Client) ClearPage(ctx context.Context, pageID string) error {
	blocks, err := c.GetBlocks(ctx, pageID)
	if err != nil {
		return err
	}
	for _, block := range blocks {
		if err := c.DeleteBlock(ctx, block.ID); err != nil {
			return err
		}
	}
	return nil
}
