package mcp

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerMathTools() {
	s.addTool(mcp.Tool{
		Name:        "MathTool",
		Description: "Perform basic arithmetic. Supported operations: add, subtract, multiply, divide.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"operation": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"add", "subtract", "multiply", "divide"},
					"description": "The operation to perform.",
				},
				"a": map[string]interface{}{
					"type":        "number",
					"description": "The first number.",
				},
				"b": map[string]interface{}{
					"type":        "number",
					"description": "The second number.",
				},
			},
			Required: []string{"operation", "a", "b"},
		},
	}, s.handleMath)
}

func (s *Server) handleMath(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	operation, err := request.RequireString("operation")
	if err != nil {
		return mcp.NewToolResultError("Missing or invalid 'operation' argument"), nil
	}
	a, err := request.RequireFloat("a")
	if err != nil {
		return mcp.NewToolResultError("Missing or invalid 'a' argument"), nil
	}
	b, err := request.RequireFloat("b")
	if err != nil {
		return mcp.NewToolResultError("Missing or invalid 'b' argument"), nil
	}

	var result float64
	switch operation {
	case "add":
		result = a + b
	case "subtract":
		result = a - b
	case "multiply":
		result = a * b
	case "divide":
		if b == 0 {
			return mcp.NewToolResultError(fmt.Sprintf("The denominator %v cannot be zero.", b)), nil
		}
		result = a / b
	default:
		return mcp.NewToolResultError(fmt.Sprintf("Invalid operation: %s (must be one of: add, subtract, multiply, divide)", operation)), nil
	}

	return mcp.NewToolResultText(strconv.FormatFloat(result, 'f', -1, 64)), nil
}
