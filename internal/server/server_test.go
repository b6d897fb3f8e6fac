package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cyverse-de/terrain-mcp/internal/terrain"
	"github.com/cyverse-de/terrain-mcp/internal/workflows"
	"github.com/mark3labs/mcp-go/mcp"
)

// newTestServer builds a TerrainMCPServer backed by a mock Terrain service.
func newTestServer(t *testing.T, handler http.HandlerFunc) (*TerrainMCPServer, func()) {
	t.Helper()

	mock := httptest.NewServer(handler)
	client := terrain.NewClient(mock.URL, terrain.Credentials{}, nil)
	client.SetToken("test-token")
	w := workflows.NewTerrainWorkflows(client, 10*time.Millisecond, 0)

	return NewTerrainMCPServer(w, client), mock.Close
}

func callRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()

	if result == nil {
		t.Fatal("handler returned nil result")
	}
	if len(result.Content) == 0 {
		t.Fatal("handler returned empty content")
	}
	textContent, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatal("handler result is not text content")
	}
	return textContent.Text
}

// wordCountDetail is the app detail served by most submission tests.
var wordCountDetail = terrain.AppDetail{
	ID:       "app-1",
	SystemID: "de",
	Name:     "Word Count",
	Groups: []terrain.ParameterGroup{
		{
			ID:    "group-1",
			Label: "Input",
			Parameters: []terrain.Parameter{
				{ID: "p1", Label: "Input File", Type: "FileInput", Required: true},
				{ID: "p2", Label: "Error Rate", Type: "Double"},
			},
		},
	},
}

// TestHandleSearchApps tests the search_apps handler
func TestHandleSearchApps(t *testing.T) {
	apps := []terrain.App{
		{ID: "app-1", SystemID: "de", Name: "Word Count", Description: "Counts words"},
		{ID: "app-2", SystemID: "de", Name: "Word Count Plus", Description: "Counts more words"},
	}

	server, closeMock := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(terrain.AppListResponse{Apps: apps})
	})
	defer closeMock()

	result, err := server.handleSearchApps(context.Background(), callRequest("search_apps", map[string]interface{}{
		"search": "word",
	}))
	if err != nil {
		t.Fatalf("handleSearchApps() unexpected error = %v", err)
	}

	content := resultText(t, result)
	if !strings.Contains(content, "Word Count") {
		t.Error("handleSearchApps() result doesn't contain app name")
	}
	if !strings.Contains(content, "app-1") {
		t.Error("handleSearchApps() result doesn't contain app ID")
	}
}

// TestHandleSearchAppsExactName tests exact-name resolution
func TestHandleSearchAppsExactName(t *testing.T) {
	apps := []terrain.App{
		{ID: "app-1", SystemID: "de", Name: "Word Count"},
		{ID: "app-2", SystemID: "de", Name: "Word Count Plus"},
	}

	server, closeMock := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(terrain.AppListResponse{Apps: apps})
	})
	defer closeMock()

	result, err := server.handleSearchApps(context.Background(), callRequest("search_apps", map[string]interface{}{
		"search":     "word",
		"exact_name": "Word Count",
	}))
	if err != nil {
		t.Fatalf("handleSearchApps() unexpected error = %v", err)
	}

	content := resultText(t, result)
	if !strings.Contains(content, "Resolved Application") {
		t.Error("handleSearchApps() should report a resolved app")
	}
	if strings.Contains(content, "app-2") {
		t.Error("handleSearchApps() resolved result should not include other matches")
	}
}

// TestHandleGetAppParameters tests the get_app_parameters handler
func TestHandleGetAppParameters(t *testing.T) {
	server, closeMock := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/apps/de/app-1" {
			t.Errorf("Unexpected path: %v", r.URL.Path)
		}
		json.NewEncoder(w).Encode(wordCountDetail)
	})
	defer closeMock()

	result, err := server.handleGetAppParameters(context.Background(), callRequest("get_app_parameters", map[string]interface{}{
		"app_id": "app-1",
	}))
	if err != nil {
		t.Fatalf("handleGetAppParameters() unexpected error = %v", err)
	}

	content := resultText(t, result)
	if !strings.Contains(content, "Input File") {
		t.Error("handleGetAppParameters() result doesn't contain parameter label")
	}
	if !strings.Contains(content, "p1") {
		t.Error("handleGetAppParameters() result doesn't contain parameter ID")
	}
	if !strings.Contains(content, "(required)") {
		t.Error("handleGetAppParameters() result doesn't flag required parameters")
	}
}

// TestHandleGetAppParametersVersioned tests the version-scoped path
func TestHandleGetAppParametersVersioned(t *testing.T) {
	server, closeMock := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/apps/de/app-1/versions/version-7" {
			t.Errorf("Unexpected path: %v", r.URL.Path)
		}
		json.NewEncoder(w).Encode(wordCountDetail)
	})
	defer closeMock()

	_, err := server.handleGetAppParameters(context.Background(), callRequest("get_app_parameters", map[string]interface{}{
		"app_id":         "app-1",
		"app_version_id": "version-7",
	}))
	if err != nil {
		t.Fatalf("handleGetAppParameters() unexpected error = %v", err)
	}
}

// TestHandleSubmitAnalysis tests the submit_analysis handler end to end:
// detail fetch, label resolution, submission.
func TestHandleSubmitAnalysis(t *testing.T) {
	server, closeMock := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/apps/"):
			json.NewEncoder(w).Encode(wordCountDetail)
		case r.Method == "POST" && r.URL.Path == "/analyses":
			var req terrain.SubmissionRequest
			json.NewDecoder(r.Body).Decode(&req)
			if req.Config["p1"] != "/a/b.txt" {
				t.Errorf("Expected resolved param p1, got config %v", req.Config)
			}
			if !req.Notify {
				t.Error("Expected notify to default to true")
			}
			json.NewEncoder(w).Encode(terrain.Analysis{ID: "analysis-123", Name: req.Name, Status: "Submitted"})
		default:
			t.Errorf("Unexpected request: %v %v", r.Method, r.URL.Path)
		}
	})
	defer closeMock()

	result, err := server.handleSubmitAnalysis(context.Background(), callRequest("submit_analysis", map[string]interface{}{
		"app_id":     "app-1",
		"name":       "wc-run",
		"output_dir": "/out",
		"params": map[string]interface{}{
			"Input File": "/a/b.txt",
		},
	}))
	if err != nil {
		t.Fatalf("handleSubmitAnalysis() unexpected error = %v", err)
	}

	content := resultText(t, result)
	if !strings.Contains(content, "analysis-123") {
		t.Error("handleSubmitAnalysis() result doesn't contain the analysis ID")
	}
}

// TestHandleSubmitAnalysisUnknownLabel tests the unknown-label error path
func TestHandleSubmitAnalysisUnknownLabel(t *testing.T) {
	server, closeMock := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/apps/") {
			json.NewEncoder(w).Encode(wordCountDetail)
			return
		}
		t.Errorf("No submission should be sent, got %v %v", r.Method, r.URL.Path)
	})
	defer closeMock()

	_, err := server.handleSubmitAnalysis(context.Background(), callRequest("submit_analysis", map[string]interface{}{
		"app_id":     "app-1",
		"name":       "wc-run",
		"output_dir": "/out",
		"params": map[string]interface{}{
			"No Such Parameter": "x",
		},
	}))
	if err == nil {
		t.Fatal("handleSubmitAnalysis() expected error for unknown label")
	}
	var unknownErr *terrain.UnknownParameterError
	if !errors.As(err, &unknownErr) {
		t.Errorf("handleSubmitAnalysis() error = %v, want UnknownParameterError", err)
	}
}

// TestHandleSubmitParameterSweep tests the sweep handler
func TestHandleSubmitParameterSweep(t *testing.T) {
	submissions := 0

	server, closeMock := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/apps/"):
			json.NewEncoder(w).Encode(wordCountDetail)
		case r.Method == "POST" && r.URL.Path == "/analyses":
			submissions++
			var req terrain.SubmissionRequest
			json.NewDecoder(r.Body).Decode(&req)
			json.NewEncoder(w).Encode(terrain.Analysis{ID: fmt.Sprintf("analysis-%d", submissions), Name: req.Name, Status: "Submitted"})
		}
	})
	defer closeMock()

	result, err := server.handleSubmitParameterSweep(context.Background(), callRequest("submit_parameter_sweep", map[string]interface{}{
		"app_id":      "app-1",
		"name":        "sweep",
		"output_dir":  "/out",
		"sweep_label": "Error Rate",
		"values":      []interface{}{0.01, 0.02, 0.03, 0.04},
		"params": map[string]interface{}{
			"Input File": "/a/b.txt",
		},
	}))
	if err != nil {
		t.Fatalf("handleSubmitParameterSweep() unexpected error = %v", err)
	}

	if submissions != 4 {
		t.Errorf("handleSubmitParameterSweep() issued %d submissions, want 4", submissions)
	}

	content := resultText(t, result)
	if !strings.Contains(content, "4/4 submitted") {
		t.Errorf("handleSubmitParameterSweep() result = %v, want 4/4 submitted", content)
	}
}

// TestHandleSubmitParameterSweepEmptyValues tests the empty-values guard
func TestHandleSubmitParameterSweepEmptyValues(t *testing.T) {
	server, closeMock := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("No request should be sent, got %v %v", r.Method, r.URL.Path)
	})
	defer closeMock()

	_, err := server.handleSubmitParameterSweep(context.Background(), callRequest("submit_parameter_sweep", map[string]interface{}{
		"app_id":      "app-1",
		"name":        "sweep",
		"output_dir":  "/out",
		"sweep_label": "Error Rate",
		"values":      []interface{}{},
	}))
	if err == nil {
		t.Fatal("handleSubmitParameterSweep() expected error for empty values")
	}
}

// TestHandleListAnalyses tests the list_analyses handler
func TestHandleListAnalyses(t *testing.T) {
	server, closeMock := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("filter"); got != `[{"field":"status","value":"Running"}]` {
			t.Errorf("Unexpected filter: %v", got)
		}
		json.NewEncoder(w).Encode(terrain.AnalysisListResponse{
			Analyses: []terrain.Analysis{
				{ID: "analysis-1", AppID: "app-1", SystemID: "de", Status: "Running"},
				{ID: "analysis-2", AppID: "app-2", SystemID: "de", Status: "Running"},
			},
		})
	})
	defer closeMock()

	result, err := server.handleListAnalyses(context.Background(), callRequest("list_analyses", map[string]interface{}{
		"field": "status",
		"value": "Running",
	}))
	if err != nil {
		t.Fatalf("handleListAnalyses() unexpected error = %v", err)
	}

	content := resultText(t, result)
	if !strings.Contains(content, "analysis-1") || !strings.Contains(content, "analysis-2") {
		t.Error("handleListAnalyses() result doesn't contain the analyses")
	}
}

// TestHandleGetAnalysis tests the get_analysis handler
func TestHandleGetAnalysis(t *testing.T) {
	server, closeMock := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(terrain.AnalysisListResponse{
			Analyses: []terrain.Analysis{
				{ID: "analysis-1", Status: "Running", InteractiveURLs: []string{"https://a1.cyverse.run"}},
			},
		})
	})
	defer closeMock()

	result, err := server.handleGetAnalysis(context.Background(), callRequest("get_analysis", map[string]interface{}{
		"analysis_id": "analysis-1",
	}))
	if err != nil {
		t.Fatalf("handleGetAnalysis() unexpected error = %v", err)
	}

	content := resultText(t, result)
	if !strings.Contains(content, "https://a1.cyverse.run") {
		t.Error("handleGetAnalysis() result doesn't contain the interactive URL")
	}
}

// TestHandleStopAnalysis tests the stop_analysis handler
func TestHandleStopAnalysis(t *testing.T) {
	server, closeMock := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" || r.URL.Path != "/analyses/analysis-1/stop" {
			t.Errorf("Unexpected request: %v %v", r.Method, r.URL.Path)
		}
		json.NewEncoder(w).Encode(terrain.Analysis{ID: "analysis-1", Status: "Canceled"})
	})
	defer closeMock()

	result, err := server.handleStopAnalysis(context.Background(), callRequest("stop_analysis", map[string]interface{}{
		"analysis_id": "analysis-1",
	}))
	if err != nil {
		t.Fatalf("handleStopAnalysis() unexpected error = %v", err)
	}

	content := resultText(t, result)
	if !strings.Contains(content, "Canceled") {
		t.Error("handleStopAnalysis() result doesn't contain the new status")
	}
}

// TestHandleListDirectory tests the list_directory handler
func TestHandleListDirectory(t *testing.T) {
	server, closeMock := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(terrain.DirectoryListing{
			Path: "/cyverse/home/testuser",
			Files: []terrain.DirectoryFile{
				{Path: "/cyverse/home/testuser/a.fastq"},
				{Path: "/cyverse/home/testuser/b.fastq"},
			},
		})
	})
	defer closeMock()

	result, err := server.handleListDirectory(context.Background(), callRequest("list_directory", map[string]interface{}{
		"path": "/cyverse/home/testuser",
	}))
	if err != nil {
		t.Fatalf("handleListDirectory() unexpected error = %v", err)
	}

	content := resultText(t, result)
	if !strings.Contains(content, "a.fastq") {
		t.Error("handleListDirectory() result doesn't contain the files")
	}
}

// TestHandleSavePathList tests the save_path_list handler
func TestHandleSavePathList(t *testing.T) {
	server, closeMock := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req terrain.SaveFileRequest
		json.NewDecoder(r.Body).Decode(&req)
		if !strings.HasPrefix(req.Content, "# application/vnd.de.path-list+csv") {
			t.Errorf("Missing path-list header in content: %q", req.Content)
		}
		resp := terrain.SaveFileResponse{}
		resp.File.Path = req.Dest
		json.NewEncoder(w).Encode(resp)
	})
	defer closeMock()

	result, err := server.handleSavePathList(context.Background(), callRequest("save_path_list", map[string]interface{}{
		"paths": []interface{}{"/cyverse/home/u/a.fastq", "/cyverse/home/u/b.fastq"},
		"dest":  "/cyverse/home/u/paths.txt",
	}))
	if err != nil {
		t.Fatalf("handleSavePathList() unexpected error = %v", err)
	}

	content := resultText(t, result)
	if !strings.Contains(content, "2 paths") {
		t.Errorf("handleSavePathList() result = %v", content)
	}
}

// TestHandleSavePathListEmpty tests the empty-paths guard
func TestHandleSavePathListEmpty(t *testing.T) {
	server, closeMock := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("No request should be sent, got %v %v", r.Method, r.URL.Path)
	})
	defer closeMock()

	_, err := server.handleSavePathList(context.Background(), callRequest("save_path_list", map[string]interface{}{
		"paths": []interface{}{},
		"dest":  "/cyverse/home/u/paths.txt",
	}))
	if err == nil {
		t.Fatal("handleSavePathList() expected error for empty paths")
	}
}

// TestServerRegistersTools verifies construction wires the tool set
func TestServerRegistersTools(t *testing.T) {
	server, closeMock := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})
	defer closeMock()

	if server.Server() == nil {
		t.Fatal("Server() returned nil")
	}
}
