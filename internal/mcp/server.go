// Package mcp exposes the Kendra, Q Business and example tools over
// the Model Context Protocol, on either the stdio or the SSE
// transport.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	log "github.com/sirupsen/logrus"

	"github.com/qbridge-dev/qbridge/internal/auth"
	"github.com/qbridge-dev/qbridge/internal/aws/kendra"
	"github.com/qbridge-dev/qbridge/internal/aws/qbusiness"
	"github.com/qbridge-dev/qbridge/internal/config"
	"github.com/qbridge-dev/qbridge/internal/logging"
	"github.com/qbridge-dev/qbridge/internal/usage"
)

// kendraService is what the Kendra tools need from the AWS layer.
type kendraService interface {
	ResolveRegion(override string) string
	ListIndexes(ctx context.Context, region string) (*kendra.IndexList, error)
	Query(ctx context.Context, region, indexID, query string) (*kendra.QueryResult, error)
}

// qbusinessService is what the Q Business tools need from the AWS layer.
type qbusinessService interface {
	ResolveRegion(override string) string
	ListApplications(ctx context.Context, region string, maxResults int32, nextToken string) (*qbusiness.ApplicationList, error)
	SearchRelevantContent(ctx context.Context, region, applicationID, retrieverID, queryText string, maxResults int32, nextToken string) (*qbusiness.SearchResult, error)
	ChatSync(ctx context.Context, req qbusiness.ChatRequest) (*qbusiness.ChatResult, error)
}

// Options carries the services the tools call into.
type Options struct {
	// Kendra serves the index listing and query tools.
	Kendra kendraService

	// QBusiness serves the application, search and chat tools.
	QBusiness qbusinessService

	// Store resolves stored credentials, used to answer plugin auth
	// challenges with the Salesforce token.
	Store *auth.Store

	// Usage receives a record per tool invocation. Optional.
	Usage *usage.Manager
}

// Server wires the tools into an MCP server.
type Server struct {
	cfg       *config.Config
	mcpServer *server.MCPServer
	kendra    kendraService
	qbusiness qbusinessService
	store     *auth.Store
	usage     *usage.Manager
}

// NewServer builds the MCP server and registers all tools.
func NewServer(cfg *config.Config, version string, opts Options) *Server {
	s := &Server{
		cfg:       cfg,
		mcpServer: server.NewMCPServer("qbridge", version),
		kendra:    opts.Kendra,
		qbusiness: opts.QBusiness,
		store:     opts.Store,
		usage:     opts.Usage,
	}
	s.registerMathTools()
	s.registerKendraTools()
	s.registerQBusinessTools()
	return s
}

// Run serves MCP on the configured transport until the context is
// cancelled (SSE) or stdin closes (stdio).
func (s *Server) Run(ctx context.Context) error {
	if s.cfg.MCP.Transport == "sse" {
		sseServer := server.NewSSEServer(s.mcpServer)
		addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.MCP.SSEPort)
		log.Infof("MCP SSE server listening on %s", addr)

		errChan := make(chan error, 1)
		go func() {
			errChan <- sseServer.Start(addr)
		}()
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return sseServer.Shutdown(shutdownCtx)
		case err := <-errChan:
			return err
		}
	}

	// The stdio transport owns stdout, so logs must move to stderr
	// before the first frame is written.
	logging.RedirectToStderr()
	log.Info("MCP server serving on stdio")
	return server.ServeStdio(s.mcpServer)
}

// addTool registers a tool with usage instrumentation around its
// handler.
func (s *Server) addTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.mcpServer.AddTool(tool, s.instrument(tool.Name, handler))
}

// jsonResult renders a tool result as indented JSON text.
func jsonResult(v interface{}) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err))
	}
	return mcp.NewToolResultText(string(data))
}

// jsonError renders a structured error payload as a tool error result.
func jsonError(v interface{}) *mcp.CallToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode error: %v", err))
	}
	return mcp.NewToolResultError(string(data))
}

func (s *Server) instrument(name string, handler server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		result, err := handler(ctx, request)
		if s.usage != nil {
			s.usage.Publish(ctx, usage.Record{
				Kind:        usage.KindTool,
				Name:        name,
				Success:     err == nil && (result == nil || !result.IsError),
				Duration:    time.Since(start),
				RequestedAt: start,
			})
		}
		return result, err
	}
}
