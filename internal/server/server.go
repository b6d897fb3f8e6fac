// Package server provides the MCP server implementation for Terrain.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cyverse-de/terrain-mcp/internal/terrain"
	"github.com/cyverse-de/terrain-mcp/internal/workflows"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// TerrainMCPServer wraps the MCP server with Terrain-specific functionality.
type TerrainMCPServer struct {
	server    *server.MCPServer
	workflows *workflows.TerrainWorkflows
	client    *terrain.Client
}

// NewTerrainMCPServer creates a new Terrain MCP server.
func NewTerrainMCPServer(workflows *workflows.TerrainWorkflows, c *terrain.Client) *TerrainMCPServer {
	mcpServer := server.NewMCPServer(
		"terrain-mcp",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s := &TerrainMCPServer{
		server:    mcpServer,
		workflows: workflows,
		client:    c,
	}

	s.registerTools()

	return s
}

// Server returns the underlying MCP server.
func (s *TerrainMCPServer) Server() *server.MCPServer {
	return s.server
}

// registerTools registers all Terrain MCP tools.
func (s *TerrainMCPServer) registerTools() {
	// App discovery tools
	s.server.AddTool(s.searchAppsTool(), s.handleSearchApps)
	s.server.AddTool(s.getAppParametersTool(), s.handleGetAppParameters)

	// Submission tools
	s.server.AddTool(s.submitAnalysisTool(), s.handleSubmitAnalysis)
	s.server.AddTool(s.submitParameterSweepTool(), s.handleSubmitParameterSweep)

	// Analysis management tools
	s.server.AddTool(s.listAnalysesTool(), s.handleListAnalyses)
	s.server.AddTool(s.getAnalysisTool(), s.handleGetAnalysis)
	s.server.AddTool(s.stopAnalysisTool(), s.handleStopAnalysis)

	// Data store tools
	s.server.AddTool(s.listDirectoryTool(), s.handleListDirectory)
	s.server.AddTool(s.savePathListTool(), s.handleSavePathList)
}

// Tool definitions

func (s *TerrainMCPServer) searchAppsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_apps",
		Description: "Search the Terrain app catalog by name or keyword",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"search": map[string]interface{}{
					"type":        "string",
					"description": "The search term",
				},
				"exact_name": map[string]interface{}{
					"type":        "string",
					"description": "Optional exact app name to disambiguate multiple matches",
				},
			},
			Required: []string{"search"},
		},
	}
}

func (s *TerrainMCPServer) getAppParametersTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_app_parameters",
		Description: "Get the parameter groups for an application, optionally version-scoped",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"app_id": map[string]interface{}{
					"type":        "string",
					"description": "The application ID",
				},
				"system_id": map[string]interface{}{
					"type":        "string",
					"description": "The system ID (default: de)",
					"default":     "de",
				},
				"app_version_id": map[string]interface{}{
					"type":        "string",
					"description": "Optional app version ID",
				},
			},
			Required: []string{"app_id"},
		},
	}
}

func (s *TerrainMCPServer) submitAnalysisTool() mcp.Tool {
	return mcp.Tool{
		Name:        "submit_analysis",
		Description: "Submit an analysis. Parameters are given by their human-readable labels and resolved to parameter IDs from the app's metadata. For interactive (VICE) apps, optionally waits until the analysis exposes its URL.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"app_id": map[string]interface{}{
					"type":        "string",
					"description": "The application ID",
				},
				"system_id": map[string]interface{}{
					"type":        "string",
					"description": "The system ID (default: de)",
					"default":     "de",
				},
				"app_version_id": map[string]interface{}{
					"type":        "string",
					"description": "Optional app version ID",
				},
				"name": map[string]interface{}{
					"type":        "string",
					"description": "Name for the analysis",
				},
				"params": map[string]interface{}{
					"type":        "object",
					"description": "Parameter values keyed by parameter label",
				},
				"output_dir": map[string]interface{}{
					"type":        "string",
					"description": "Data store directory for the analysis outputs",
				},
				"notify": map[string]interface{}{
					"type":        "boolean",
					"description": "Send a notification when the analysis finishes (default true)",
					"default":     true,
				},
				"debug": map[string]interface{}{
					"type":        "boolean",
					"description": "Retain debug output (default false)",
					"default":     false,
				},
				"requirements": map[string]interface{}{
					"type":        "array",
					"description": "Optional per-step resource requirements: step_number, min_cpu_cores, max_cpu_cores, min_memory_limit, min_disk_space",
				},
				"interactive": map[string]interface{}{
					"type":        "boolean",
					"description": "Wait for the interactive (VICE) URL to become available (default false)",
					"default":     false,
				},
				"max_wait": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum time to wait for an interactive URL in seconds (default 300)",
					"default":     300,
				},
			},
			Required: []string{"app_id", "name", "output_dir"},
		},
	}
}

func (s *TerrainMCPServer) submitParameterSweepTool() mcp.Tool {
	return mcp.Tool{
		Name:        "submit_parameter_sweep",
		Description: "Submit one analysis per value, varying a single labeled parameter across the values while everything else stays fixed. Submissions run one at a time; a failed value is reported without stopping the sweep.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"app_id": map[string]interface{}{
					"type":        "string",
					"description": "The application ID",
				},
				"system_id": map[string]interface{}{
					"type":        "string",
					"description": "The system ID (default: de)",
					"default":     "de",
				},
				"app_version_id": map[string]interface{}{
					"type":        "string",
					"description": "Optional app version ID",
				},
				"name": map[string]interface{}{
					"type":        "string",
					"description": "Base name for the analyses; each gets the swept value appended",
				},
				"params": map[string]interface{}{
					"type":        "object",
					"description": "Fixed parameter values keyed by parameter label",
				},
				"sweep_label": map[string]interface{}{
					"type":        "string",
					"description": "Label of the parameter to vary",
				},
				"values": map[string]interface{}{
					"type":        "array",
					"description": "The values to sweep over, one submission each",
				},
				"output_dir": map[string]interface{}{
					"type":        "string",
					"description": "Data store directory for the analysis outputs",
				},
				"notify": map[string]interface{}{
					"type":        "boolean",
					"description": "Send a notification per analysis (default true)",
					"default":     true,
				},
				"debug": map[string]interface{}{
					"type":        "boolean",
					"description": "Retain debug output (default false)",
					"default":     false,
				},
			},
			Required: []string{"app_id", "name", "sweep_label", "values", "output_dir"},
		},
	}
}

func (s *TerrainMCPServer) listAnalysesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_analyses",
		Description: "List analyses, optionally filtered by an exact field match (e.g. id, parent_id, status)",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"field": map[string]interface{}{
					"type":        "string",
					"description": "Optional filter field (e.g. id, parent_id, status)",
				},
				"value": map[string]interface{}{
					"type":        "string",
					"description": "Exact value the filter field must match",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of analyses to return (default 10)",
					"default":     10,
				},
			},
		},
	}
}

func (s *TerrainMCPServer) getAnalysisTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_analysis",
		Description: "Get one analysis by its ID",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"analysis_id": map[string]interface{}{
					"type":        "string",
					"description": "The analysis ID",
				},
			},
			Required: []string{"analysis_id"},
		},
	}
}

func (s *TerrainMCPServer) stopAnalysisTool() mcp.Tool {
	return mcp.Tool{
		Name:        "stop_analysis",
		Description: "Request termination of a running analysis",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"analysis_id": map[string]interface{}{
					"type":        "string",
					"description": "The analysis ID to stop",
				},
			},
			Required: []string{"analysis_id"},
		},
	}
}

func (s *TerrainMCPServer) listDirectoryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_directory",
		Description: "List the files in a data store directory",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "The directory path",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of entries to return (default 100)",
					"default":     100,
				},
			},
			Required: []string{"path"},
		},
	}
}

func (s *TerrainMCPServer) savePathListTool() mcp.Tool {
	return mcp.Tool{
		Name:        "save_path_list",
		Description: "Write a DE path-list file to the data store from a list of paths, for apps that consume HT path lists",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"paths": map[string]interface{}{
					"type":        "array",
					"description": "The data store paths to include",
				},
				"dest": map[string]interface{}{
					"type":        "string",
					"description": "Destination path for the path-list file",
				},
			},
			Required: []string{"paths", "dest"},
		},
	}
}

// Tool handlers

// unmarshalParams is a helper function to unmarshal tool request arguments.
func unmarshalParams(request mcp.CallToolRequest, params interface{}) error {
	argsBytes, err := json.Marshal(request.Params.Arguments)
	if err != nil {
		return fmt.Errorf("failed to marshal arguments: %w", err)
	}
	if err := json.Unmarshal(argsBytes, params); err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}
	return nil
}

// writeAnalysis appends one analysis as markdown bullets.
func writeAnalysis(builder *strings.Builder, analysis *terrain.Analysis) {
	builder.WriteString(fmt.Sprintf("- **ID**: `%s`\n", analysis.ID))
	if analysis.Name != "" {
		builder.WriteString(fmt.Sprintf("- **Name**: %s\n", analysis.Name))
	}
	if analysis.AppID != "" {
		builder.WriteString(fmt.Sprintf("- **App**: `%s` on `%s`\n", analysis.AppID, analysis.SystemID))
	}
	if analysis.Status != "" {
		builder.WriteString(fmt.Sprintf("- **Status**: %s\n", analysis.Status))
	}
	if analysis.ParentID != "" {
		builder.WriteString(fmt.Sprintf("- **Parent**: `%s`\n", analysis.ParentID))
	}
	for _, u := range analysis.InteractiveURLs {
		builder.WriteString(fmt.Sprintf("- **URL**: %s\n", u))
	}
}

func (s *TerrainMCPServer) handleSearchApps(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params struct {
		Search    string `json:"search"`
		ExactName string `json:"exact_name"`
	}

	if err := unmarshalParams(request, &params); err != nil {
		return nil, err
	}

	slog.Info("searching apps", "search", params.Search, "exact_name", params.ExactName)

	var builder strings.Builder
	if params.ExactName != "" {
		app, err := s.workflows.ResolveApp(ctx, params.Search, params.ExactName)
		if err != nil {
			return nil, err
		}
		builder.WriteString("## Resolved Application\n\n")
		builder.WriteString(fmt.Sprintf("### %s\n", app.Name))
		builder.WriteString(fmt.Sprintf("- **ID**: `%s`\n", app.ID))
		builder.WriteString(fmt.Sprintf("- **System**: `%s`\n", app.SystemID))
		if app.VersionID != "" {
			builder.WriteString(fmt.Sprintf("- **Version**: %s (`%s`)\n", app.Version, app.VersionID))
		}
		builder.WriteString(fmt.Sprintf("- **Description**: %s\n", app.Description))
		return mcp.NewToolResultText(builder.String()), nil
	}

	apps, err := s.client.SearchApps(ctx, params.Search)
	if err != nil {
		return nil, err
	}

	builder.WriteString(fmt.Sprintf("## Matching Applications (%d)\n\n", len(apps)))
	for _, app := range apps {
		builder.WriteString(fmt.Sprintf("### %s\n", app.Name))
		builder.WriteString(fmt.Sprintf("- **ID**: `%s`\n", app.ID))
		builder.WriteString(fmt.Sprintf("- **System**: `%s`\n", app.SystemID))
		if app.VersionID != "" {
			builder.WriteString(fmt.Sprintf("- **Version**: %s (`%s`)\n", app.Version, app.VersionID))
		}
		builder.WriteString(fmt.Sprintf("- **Description**: %s\n\n", app.Description))
	}

	return mcp.NewToolResultText(builder.String()), nil
}

func (s *TerrainMCPServer) handleGetAppParameters(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params struct {
		AppID        string `json:"app_id"`
		SystemID     string `json:"system_id"`
		AppVersionID string `json:"app_version_id"`
	}
	params.SystemID = "de" // default

	if err := unmarshalParams(request, &params); err != nil {
		return nil, err
	}

	slog.Info("getting app parameters", "app_id", params.AppID, "system_id", params.SystemID, "version_id", params.AppVersionID)

	detail, err := s.client.GetApp(ctx, terrain.AppRef{
		SystemID:  params.SystemID,
		AppID:     params.AppID,
		VersionID: params.AppVersionID,
	})
	if err != nil {
		return nil, err
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("## %s\n\n", detail.Name))

	for _, group := range detail.Groups {
		builder.WriteString(fmt.Sprintf("### %s\n\n", group.Label))
		for _, param := range group.Parameters {
			required := ""
			if param.Required {
				required = " (required)"
			}
			builder.WriteString(fmt.Sprintf("- **%s**%s: %s\n", param.Label, required, param.Description))
			builder.WriteString(fmt.Sprintf("  - ID: `%s`\n", param.ID))
			builder.WriteString(fmt.Sprintf("  - Type: `%s`\n", param.Type))
			if param.DefaultValue != nil {
				builder.WriteString(fmt.Sprintf("  - Default: `%v`\n", param.DefaultValue))
			}
		}
		builder.WriteString("\n")
	}

	return mcp.NewToolResultText(builder.String()), nil
}

func (s *TerrainMCPServer) handleSubmitAnalysis(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params struct {
		AppID        string                 `json:"app_id"`
		SystemID     string                 `json:"system_id"`
		AppVersionID string                 `json:"app_version_id"`
		Name         string                 `json:"name"`
		Params       map[string]interface{} `json:"params"`
		OutputDir    string                 `json:"output_dir"`
		Notify       *bool                  `json:"notify"`
		Debug        bool                   `json:"debug"`
		Requirements []terrain.Requirement  `json:"requirements"`
		Interactive  bool                   `json:"interactive"`
		MaxWait      int                    `json:"max_wait"`
	}
	params.SystemID = "de" // default
	params.MaxWait = 300   // default

	if err := unmarshalParams(request, &params); err != nil {
		return nil, err
	}

	if params.Params == nil {
		params.Params = make(map[string]interface{})
	}
	notify := true
	if params.Notify != nil {
		notify = *params.Notify
	}

	ref := terrain.AppRef{
		SystemID:  params.SystemID,
		AppID:     params.AppID,
		VersionID: params.AppVersionID,
	}

	slog.Info("submitting analysis", "app_id", params.AppID, "system_id", params.SystemID, "name", params.Name)

	detail, err := s.client.GetApp(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to get app parameters: %w", err)
	}

	req, err := terrain.BuildSubmission(terrain.NewParameterIndex(detail), ref, params.Params, terrain.SubmissionOptions{
		Name:         params.Name,
		OutputDir:    params.OutputDir,
		Notify:       notify,
		Debug:        params.Debug,
		Requirements: params.Requirements,
	})
	if err != nil {
		return nil, err
	}

	result, err := s.workflows.SubmitAndWait(ctx, req, params.Interactive, time.Duration(params.MaxWait)*time.Second)
	if err != nil {
		return nil, err
	}

	var builder strings.Builder
	if params.Interactive {
		builder.WriteString("✅ **Interactive Analysis Submitted**\n\n")
	} else {
		builder.WriteString("✅ **Analysis Submitted**\n\n")
	}
	writeAnalysis(&builder, result.Analysis)
	for _, u := range result.InteractiveURLs {
		builder.WriteString(fmt.Sprintf("- **URL**: %s\n", u))
	}

	return mcp.NewToolResultText(builder.String()), nil
}

func (s *TerrainMCPServer) handleSubmitParameterSweep(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params struct {
		AppID        string                 `json:"app_id"`
		SystemID     string                 `json:"system_id"`
		AppVersionID string                 `json:"app_version_id"`
		Name         string                 `json:"name"`
		Params       map[string]interface{} `json:"params"`
		SweepLabel   string                 `json:"sweep_label"`
		Values       []interface{}          `json:"values"`
		OutputDir    string                 `json:"output_dir"`
		Notify       *bool                  `json:"notify"`
		Debug        bool                   `json:"debug"`
	}
	params.SystemID = "de" // default

	if err := unmarshalParams(request, &params); err != nil {
		return nil, err
	}

	if len(params.Values) == 0 {
		return nil, fmt.Errorf("values must not be empty")
	}
	if params.Params == nil {
		params.Params = make(map[string]interface{})
	}
	notify := true
	if params.Notify != nil {
		notify = *params.Notify
	}

	ref := terrain.AppRef{
		SystemID:  params.SystemID,
		AppID:     params.AppID,
		VersionID: params.AppVersionID,
	}

	slog.Info("submitting parameter sweep", "app_id", params.AppID, "label", params.SweepLabel, "values", len(params.Values))

	detail, err := s.client.GetApp(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to get app parameters: %w", err)
	}

	results := s.workflows.ParameterSweep(ctx, terrain.NewParameterIndex(detail), ref, params.Params, params.SweepLabel, params.Values, terrain.SubmissionOptions{
		Name:      params.Name,
		OutputDir: params.OutputDir,
		Notify:    notify,
		Debug:     params.Debug,
	})

	succeeded := 0
	for _, r := range results {
		if r.Err == nil {
			succeeded++
		}
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("## Parameter Sweep: %d/%d submitted\n\n", succeeded, len(results)))
	for i, r := range results {
		value := params.Values[i]
		if r.Err != nil {
			if terrain.IsAuthentication(r.Err) {
				builder.WriteString(fmt.Sprintf("- ❌ `%v`: authentication failed, re-authenticate before retrying the rest: %v\n", value, r.Err))
			} else {
				builder.WriteString(fmt.Sprintf("- ❌ `%v`: %v\n", value, r.Err))
			}
			continue
		}
		builder.WriteString(fmt.Sprintf("- ✅ `%v`: analysis `%s`\n", value, r.Analysis.ID))
	}

	return mcp.NewToolResultText(builder.String()), nil
}

func (s *TerrainMCPServer) handleListAnalyses(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params struct {
		Field string `json:"field"`
		Value string `json:"value"`
		Limit int    `json:"limit"`
	}
	params.Limit = 10 // default

	if err := unmarshalParams(request, &params); err != nil {
		return nil, err
	}

	var filters []terrain.Filter
	if params.Field != "" {
		filters = append(filters, terrain.Filter{Field: params.Field, Value: params.Value})
	}

	slog.Info("listing analyses", "field", params.Field, "value", params.Value, "limit", params.Limit)

	analyses, err := s.client.ListAnalyses(ctx, filters, params.Limit)
	if err != nil {
		return nil, err
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("## Analyses (%d)\n\n", len(analyses)))
	if len(analyses) == 0 {
		builder.WriteString("No analyses found.")
	} else {
		for i := range analyses {
			builder.WriteString(fmt.Sprintf("### Analysis `%s`\n", analyses[i].ID))
			writeAnalysis(&builder, &analyses[i])
			builder.WriteString("\n")
		}
	}

	return mcp.NewToolResultText(builder.String()), nil
}

func (s *TerrainMCPServer) handleGetAnalysis(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params struct {
		AnalysisID string `json:"analysis_id"`
	}

	if err := unmarshalParams(request, &params); err != nil {
		return nil, err
	}

	slog.Info("getting analysis", "analysis_id", params.AnalysisID)

	analysis, err := s.workflows.GetAnalysis(ctx, params.AnalysisID)
	if err != nil {
		return nil, err
	}

	var builder strings.Builder
	builder.WriteString("## Analysis\n\n")
	writeAnalysis(&builder, analysis)

	return mcp.NewToolResultText(builder.String()), nil
}

func (s *TerrainMCPServer) handleStopAnalysis(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params struct {
		AnalysisID string `json:"analysis_id"`
	}

	if err := unmarshalParams(request, &params); err != nil {
		return nil, err
	}

	slog.Info("stopping analysis", "analysis_id", params.AnalysisID)

	analysis, err := s.client.StopAnalysis(ctx, params.AnalysisID)
	if err != nil {
		return nil, err
	}

	var builder strings.Builder
	builder.WriteString("✅ **Stop Requested**\n\n")
	writeAnalysis(&builder, analysis)

	return mcp.NewToolResultText(builder.String()), nil
}

func (s *TerrainMCPServer) handleListDirectory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params struct {
		Path  string `json:"path"`
		Limit int    `json:"limit"`
	}
	params.Limit = 100 // default

	if err := unmarshalParams(request, &params); err != nil {
		return nil, err
	}

	slog.Info("listing directory", "path", params.Path, "limit", params.Limit)

	listing, err := s.client.ListDirectory(ctx, params.Path, params.Limit)
	if err != nil {
		return nil, err
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("## Directory: %s\n\n", params.Path))
	if len(listing.Files) == 0 {
		builder.WriteString("*Empty directory*\n")
	} else {
		for _, file := range listing.Files {
			builder.WriteString(fmt.Sprintf("- %s\n", file.Path))
		}
	}

	return mcp.NewToolResultText(builder.String()), nil
}

func (s *TerrainMCPServer) handleSavePathList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params struct {
		Paths []string `json:"paths"`
		Dest  string   `json:"dest"`
	}

	if err := unmarshalParams(request, &params); err != nil {
		return nil, err
	}

	if len(params.Paths) == 0 {
		return nil, fmt.Errorf("paths must not be empty")
	}

	slog.Info("saving path list", "dest", params.Dest, "paths", len(params.Paths))

	saved, err := s.workflows.SavePathList(ctx, params.Paths, params.Dest)
	if err != nil {
		return nil, err
	}

	return mcp.NewToolResultText(fmt.Sprintf("✅ Saved path list with %d paths to %s", len(params.Paths), saved)), nil
}
