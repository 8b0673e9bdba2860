package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerKendraTools() {
	s.addTool(mcp.Tool{
		Name:        "KendraListIndexesTool",
		Description: "List all Amazon Kendra indexes in the specified region.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"region": map[string]interface{}{
					"type":        "string",
					"description": "The AWS region to list Kendra indexes from.",
				},
			},
		},
	}, s.handleKendraListIndexes)

	s.addTool(mcp.Tool{
		Name:        "KendraQueryTool",
		Description: "Query an Amazon Kendra index with the provided search query. The index is either passed as a parameter or taken from the configuration.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "The search query to send to Amazon Kendra.",
				},
				"region": map[string]interface{}{
					"type":        "string",
					"description": "The region of the Kendra index to query.",
				},
				"indexId": map[string]interface{}{
					"type":        "string",
					"description": "The ID of the Kendra index to query.",
				},
			},
			Required: []string{"query"},
		},
	}, s.handleKendraQuery)

	s.addTool(mcp.Tool{
		Name:        "MeowExampleTool",
		Description: "Query the Amazon Kendra index from the configuration with the provided search query.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "The search query to send to Amazon Kendra.",
				},
			},
			Required: []string{"query"},
		},
	}, s.handleMeowExample)
}

func (s *Server) handleKendraListIndexes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	region := request.GetString("region", "")

	list, err := s.kendra.ListIndexes(ctx, region)
	if err != nil {
		return jsonError(map[string]interface{}{
			"error":  err.Error(),
			"region": s.kendra.ResolveRegion(region),
		}), nil
	}
	return jsonResult(list), nil
}

func (s *Server) handleKendraQuery(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("Missing or invalid 'query' argument"), nil
	}
	region := request.GetString("region", "")
	indexID := request.GetString("indexId", "")
	if indexID == "" {
		indexID = s.cfg.Kendra.IndexID
	}

	result, errQuery := s.kendra.Query(ctx, region, indexID, query)
	if errQuery != nil {
		return jsonError(map[string]interface{}{
			"error":    errQuery.Error(),
			"query":    query,
			"index_id": indexID,
		}), nil
	}
	return jsonResult(result), nil
}

func (s *Server) handleMeowExample(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("Missing or invalid 'query' argument"), nil
	}

	result, errQuery := s.kendra.Query(ctx, "", s.cfg.Kendra.IndexID, query)
	if errQuery != nil {
		return jsonError(map[string]interface{}{
			"error":    errQuery.Error(),
			"query":    query,
			"index_id": s.cfg.Kendra.IndexID,
		}), nil
	}
	return jsonResult(result), nil
}
