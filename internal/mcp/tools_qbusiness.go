package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/qbridge-dev/qbridge/internal/auth/salesforce"
	"github.com/qbridge-dev/qbridge/internal/aws/qbusiness"
	"github.com/qbridge-dev/qbridge/internal/constant"
)

func (s *Server) registerQBusinessTools() {
	s.addTool(mcp.Tool{
		Name:        "QBusinessListApplicationsTool",
		Description: "List the Amazon Q Business applications in the account, including each application's retrievers.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"region": map[string]interface{}{
					"type":        "string",
					"description": "The AWS region where the Amazon Q Business applications are located.",
				},
				"maxResults": map[string]interface{}{
					"type":        "number",
					"description": "The maximum number of results to return.",
				},
				"nextToken": map[string]interface{}{
					"type":        "string",
					"description": "The token for the next set of results from a previous call.",
				},
			},
		},
	}, s.handleQBusinessListApplications)

	s.addTool(mcp.Tool{
		Name:        "QBusinessSearchRelevantContentTool",
		Description: "Search an Amazon Q Business application for content relevant to a query.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"queryText": map[string]interface{}{
					"type":        "string",
					"description": "The text to search for.",
				},
				"applicationId": map[string]interface{}{
					"type":        "string",
					"description": "The Amazon Q Business application to search. Defaults to the configured application.",
				},
				"retrieverId": map[string]interface{}{
					"type":        "string",
					"description": "The retriever to use as the content source. Defaults to the configured retriever.",
				},
				"region": map[string]interface{}{
					"type":        "string",
					"description": "The AWS region where the application is located.",
				},
				"maxResults": map[string]interface{}{
					"type":        "number",
					"description": "The maximum number of results to return.",
				},
				"nextToken": map[string]interface{}{
					"type":        "string",
					"description": "The token for the next set of results from a previous call.",
				},
			},
			Required: []string{"queryText"},
		},
	}, s.handleQBusinessSearch)

	s.addTool(mcp.Tool{
		Name:        "QBusinessChatSyncTool",
		Description: "Send a message to the Amazon Q Business ChatSync API through the configured plugin. The stored Salesforce credential answers the plugin's auth challenge.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"userMessage": map[string]interface{}{
					"type":        "string",
					"description": "The message from the user to send to Amazon Q Business.",
				},
				"region": map[string]interface{}{
					"type":        "string",
					"description": "The AWS region where the application is located.",
				},
				"conversationId": map[string]interface{}{
					"type":        "string",
					"description": "The identifier of an existing conversation to continue.",
				},
				"parentMessageId": map[string]interface{}{
					"type":        "string",
					"description": "The identifier of the previous system message when continuing a conversation.",
				},
			},
			Required: []string{"userMessage"},
		},
	}, s.handleQBusinessChat)
}

func (s *Server) handleQBusinessListApplications(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	region := request.GetString("region", "")
	maxResults := request.GetInt("maxResults", 0)
	nextToken := request.GetString("nextToken", "")

	list, err := s.qbusiness.ListApplications(ctx, region, int32(maxResults), nextToken)
	if err != nil {
		return jsonError(map[string]interface{}{
			"error":  err.Error(),
			"region": s.qbusiness.ResolveRegion(region),
		}), nil
	}
	return jsonResult(list), nil
}

func (s *Server) handleQBusinessSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	queryText, err := request.RequireString("queryText")
	if err != nil {
		return mcp.NewToolResultError("Missing or invalid 'queryText' argument"), nil
	}
	applicationID := request.GetString("applicationId", "")
	if applicationID == "" {
		applicationID = s.cfg.QBusiness.ApplicationID
	}
	retrieverID := request.GetString("retrieverId", "")
	if retrieverID == "" {
		retrieverID = s.cfg.QBusiness.RetrieverID
	}
	region := request.GetString("region", "")
	maxResults := request.GetInt("maxResults", 0)
	nextToken := request.GetString("nextToken", "")

	result, errSearch := s.qbusiness.SearchRelevantContent(ctx, region, applicationID, retrieverID, queryText, int32(maxResults), nextToken)
	if errSearch != nil {
		return jsonError(map[string]interface{}{
			"error":         errSearch.Error(),
			"query":         queryText,
			"applicationId": applicationID,
			"retrieverId":   retrieverID,
		}), nil
	}
	return jsonResult(result), nil
}

func (s *Server) handleQBusinessChat(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userMessage, err := request.RequireString("userMessage")
	if err != nil {
		return mcp.NewToolResultError("Missing or invalid 'userMessage' argument"), nil
	}

	chatRequest := qbusiness.ChatRequest{
		Region:          request.GetString("region", ""),
		ApplicationID:   s.cfg.QBusiness.ApplicationID,
		PluginID:        s.cfg.QBusiness.PluginID,
		UserMessage:     userMessage,
		ConversationID:  request.GetString("conversationId", ""),
		ParentMessageID: request.GetString("parentMessageId", ""),
		AuthResponse:    s.salesforceAuthResponse(),
	}

	result, errChat := s.qbusiness.ChatSync(ctx, chatRequest)
	if errChat != nil {
		return jsonError(map[string]interface{}{
			"error":         errChat.Error(),
			"applicationId": chatRequest.ApplicationID,
			"userMessage":   userMessage,
			"pluginId":      chatRequest.PluginID,
		}), nil
	}
	return jsonResult(result), nil
}

// salesforceAuthResponse builds the auth challenge response from the
// most recent stored Salesforce credential, or nil when none exists.
func (s *Server) salesforceAuthResponse() map[string]string {
	if s.store == nil {
		return nil
	}
	record, err := s.store.Latest(constant.Salesforce)
	if err != nil {
		return nil
	}
	token, err := salesforce.LoadTokenFromFile(record.Path)
	if err != nil || token.AccessToken == "" || token.InstanceURL == "" {
		return nil
	}
	return map[string]string{
		"access_token": token.AccessToken,
		"instance_url": token.InstanceURL,
	}
}
