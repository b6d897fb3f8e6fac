// Package workflows provides high-level submission sequences composed from
// the Terrain client.
package workflows

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cyverse-de/terrain-mcp/internal/terrain"
)

// pathListHeader is the first line of a Discovery Environment path-list
// file; apps that accept HT path lists require it.
const pathListHeader = "# application/vnd.de.path-list+csv; version=1"

// terminalStatuses are analysis statuses after which no interactive URL
// will ever appear.
var terminalStatuses = map[string]bool{
	"Failed":    true,
	"Canceled":  true,
	"Completed": true,
}

// TerrainWorkflows provides high-level workflow operations.
type TerrainWorkflows struct {
	client       *terrain.Client
	pollInterval time.Duration
	submitPause  time.Duration
}

// NewTerrainWorkflows creates a new workflows instance.
func NewTerrainWorkflows(c *terrain.Client, pollInterval, submitPause time.Duration) *TerrainWorkflows {
	return &TerrainWorkflows{
		client:       c,
		pollInterval: pollInterval,
		submitPause:  submitPause,
	}
}

// ResolveApp searches the catalog and narrows the results to the single app
// whose name matches exactly. Search ordering and fuzziness belong to the
// service, so exact-match disambiguation happens here on the caller side.
func (w *TerrainWorkflows) ResolveApp(ctx context.Context, searchTerm, exactName string) (*terrain.App, error) {
	apps, err := w.client.SearchApps(ctx, searchTerm)
	if err != nil {
		return nil, fmt.Errorf("app search failed: %w", err)
	}

	var matches []terrain.App
	for _, app := range apps {
		if app.Name == exactName {
			matches = append(matches, app)
		}
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("no app named %q among %d search results for %q", exactName, len(apps), searchTerm)
	case 1:
		return &matches[0], nil
	default:
		ids := make([]string, len(matches))
		for i, m := range matches {
			ids[i] = m.ID
		}
		return nil, fmt.Errorf("app name %q is ambiguous: %s", exactName, strings.Join(ids, ", "))
	}
}

// GetAnalysis fetches one analysis through the listing endpoint's id filter.
func (w *TerrainWorkflows) GetAnalysis(ctx context.Context, analysisID string) (*terrain.Analysis, error) {
	analyses, err := w.client.ListAnalyses(ctx, []terrain.Filter{{Field: "id", Value: analysisID}}, 1)
	if err != nil {
		return nil, err
	}
	if len(analyses) == 0 {
		return nil, fmt.Errorf("analysis %s not found", analysisID)
	}
	return &analyses[0], nil
}

// SubmitResult represents the outcome of SubmitAndWait.
type SubmitResult struct {
	Analysis        *terrain.Analysis
	InteractiveURLs []string
}

// SubmitAndWait submits an analysis. For non-interactive submissions it
// returns as soon as the service accepts the request. When interactive is
// true it polls the analysis until its interactive URLs appear, a terminal
// status is reached, or maxWait elapses.
func (w *TerrainWorkflows) SubmitAndWait(ctx context.Context, req *terrain.SubmissionRequest, interactive bool, maxWait time.Duration) (*SubmitResult, error) {
	analysis, err := w.client.Submit(ctx, req)
	if err != nil {
		return nil, err
	}

	result := &SubmitResult{Analysis: analysis}
	if !interactive {
		return result, nil
	}

	slog.Info("waiting for interactive analysis", "id", analysis.ID, "max_wait", maxWait)

	deadline := time.Now().Add(maxWait)
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-ticker.C:
			if time.Now().After(deadline) {
				return result, fmt.Errorf("timeout waiting for analysis %s after %v", analysis.ID, maxWait)
			}

			current, err := w.GetAnalysis(ctx, analysis.ID)
			if err != nil {
				slog.Warn("failed to poll analysis", "id", analysis.ID, "error", err)
				continue
			}

			result.Analysis = current
			slog.Debug("analysis status", "id", current.ID, "status", current.Status, "urls", len(current.InteractiveURLs))

			if len(current.InteractiveURLs) > 0 {
				result.InteractiveURLs = current.InteractiveURLs
				slog.Info("interactive analysis ready", "id", current.ID, "url", current.InteractiveURLs[0])
				return result, nil
			}
			if terminalStatuses[current.Status] {
				return result, fmt.Errorf("analysis %s ended with status %s before exposing a URL", current.ID, current.Status)
			}
		}
	}
}

// ParameterSweep submits one analysis per value, varying exactly one labeled
// parameter over the given values while every other field stays fixed. Each
// submission is named "<base name>-<value>" so the resulting analyses can be
// told apart. Submissions run strictly one at a time; per-value failures are
// captured in that value's slot without stopping the sweep.
func (w *TerrainWorkflows) ParameterSweep(ctx context.Context, idx *terrain.ParameterIndex, ref terrain.AppRef, base map[string]interface{}, sweepLabel string, values []interface{}, opts terrain.SubmissionOptions) []terrain.BatchResult {
	build := func(value interface{}) (*terrain.SubmissionRequest, error) {
		params := make(map[string]interface{}, len(base)+1)
		for k, v := range base {
			params[k] = v
		}
		params[sweepLabel] = value

		perValue := opts
		perValue.Name = fmt.Sprintf("%s-%v", opts.Name, value)
		return terrain.BuildSubmission(idx, ref, params, perValue)
	}

	slog.Info("starting parameter sweep", "app_id", ref.AppID, "label", sweepLabel, "values", len(values))
	return terrain.SubmitBatch(ctx, w.client, build, values, w.submitPause)
}

// SavePathList materializes a path-list file in the data store from a list
// of paths, for apps that consume HT path lists.
func (w *TerrainWorkflows) SavePathList(ctx context.Context, paths []string, dest string) (string, error) {
	lines := append([]string{pathListHeader}, paths...)
	content := strings.Join(lines, "\n") + "\n"

	resp, err := w.client.SaveFile(ctx, content, dest)
	if err != nil {
		return "", fmt.Errorf("failed to save path list: %w", err)
	}

	saved := resp.File.Path
	if saved == "" {
		saved = dest
	}
	slog.Info("path list saved", "dest", saved, "paths", len(paths))
	return saved, nil
}

// ListBatchChildren lists the analyses spawned by a batch parent.
func (w *TerrainWorkflows) ListBatchChildren(ctx context.Context, parentID string, limit int) ([]terrain.Analysis, error) {
	return w.client.ListAnalyses(ctx, []terrain.Filter{{Field: "parent_id", Value: parentID}}, limit)
}
