package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Sumatoshi-tech/codemerge/internal/api"
)

// Tool names.
const (
	ToolNameDiff   = "codemerge_diff"
	ToolNameMerge  = "codemerge_merge"
	ToolNameMerge3 = "codemerge_merge3"
)

// MergeInput is the input schema for the codemerge_merge tool.
type MergeInput struct {
	Left        string `json:"left"                   jsonschema:"original text"`
	Right       string `json:"right"                  jsonschema:"new text"`
	LeftName    string `json:"left_name,omitempty"    jsonschema:"optional file name of left"`
	RightName   string `json:"right_name,omitempty"   jsonschema:"optional file name of right"`
	IncludeTree bool   `json:"include_tree,omitempty" jsonschema:"return the merge tree snapshot"`
}

// ToolOutput is a generic wrapper for tool results.
type ToolOutput struct {
	Data any `json:"data"`
}

func (s *Server) handleDiff(ctx context.Context, _ *mcpsdk.CallToolRequest, input api.DiffRequest) (*mcpsdk.CallToolResult, ToolOutput, error) {
	resp, err := s.api.Diff(ctx, input)
	if err != nil {
		return errorResult(err)
	}

	return jsonResult(resp)
}

func (s *Server) handleMerge(ctx context.Context, _ *mcpsdk.CallToolRequest, input MergeInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	resp, err := s.api.Merge(ctx, api.MergeRequest{
		DiffRequest: api.DiffRequest{
			Left:      input.Left,
			Right:     input.Right,
			LeftName:  input.LeftName,
			RightName: input.RightName,
		},
		IncludeTree: input.IncludeTree,
	})
	if err != nil {
		return errorResult(err)
	}

	return jsonResult(resp)
}

func (s *Server) handleMerge3(ctx context.Context, _ *mcpsdk.CallToolRequest, input api.Merge3Request) (*mcpsdk.CallToolResult, ToolOutput, error) {
	resp, err := s.api.Merge3(ctx, input)
	if err != nil {
		return errorResult(err)
	}

	return jsonResult(resp)
}

// errorResult builds a CallToolResult with isError set.
func errorResult(err error) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: err.Error()},
		},
		IsError: true,
	}, ToolOutput{}, nil
}

// jsonResult builds a CallToolResult with JSON-encoded content.
func jsonResult(value any) (*mcpsdk.CallToolResult, ToolOutput, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errorResult(fmt.Errorf("encode result: %w", err))
	}

	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: string(data)},
		},
	}, ToolOutput{Data: value}, nil
}
