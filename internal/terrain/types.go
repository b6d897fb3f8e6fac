package terrain

// Credentials holds a username/password pair for the token exchange.
// They are held only long enough to obtain a token and are never persisted.
type Credentials struct {
	Username string
	Password string
}

// TokenResponse represents the response from the token endpoint.
// This matches the Keycloak token response format.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
	Scope       string `json:"scope"`
}

// AppRef identifies an executable app on the Terrain service, optionally
// pinned to a specific version.
type AppRef struct {
	SystemID  string
	AppID     string
	VersionID string
}

// App represents one app summary returned by an app search.
type App struct {
	ID          string `json:"id"`
	SystemID    string `json:"system_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	VersionID   string `json:"version_id,omitempty"`
	Version     string `json:"version,omitempty"`
}

// AppListResponse represents the response from searching apps.
type AppListResponse struct {
	Apps  []App `json:"apps"`
	Total int   `json:"total,omitempty"`
}

// Parameter represents one configurable input of an app.
type Parameter struct {
	ID           string      `json:"id"`
	Name         string      `json:"name,omitempty"`
	Label        string      `json:"label"`
	Description  string      `json:"description,omitempty"`
	Type         string      `json:"type"`
	Required     bool        `json:"required"`
	DefaultValue interface{} `json:"defaultValue,omitempty"`
}

// ParameterGroup represents a group of parameters.
type ParameterGroup struct {
	ID         string      `json:"id"`
	Name       string      `json:"name,omitempty"`
	Label      string      `json:"label"`
	Parameters []Parameter `json:"parameters"`
}

// AppDetail represents the full parameter metadata for a specific app,
// as returned by the app detail endpoints.
type AppDetail struct {
	ID        string           `json:"id"`
	SystemID  string           `json:"system_id"`
	Name      string           `json:"name"`
	VersionID string           `json:"version_id,omitempty"`
	Groups    []ParameterGroup `json:"groups"`
}

// Requirement describes the resources requested for one pipeline step.
// Step numbers are contiguous starting at zero and must match the app's
// declared step count.
type Requirement struct {
	StepNumber     int     `json:"step_number"`
	MinCPUCores    float64 `json:"min_cpu_cores,omitempty"`
	MaxCPUCores    float64 `json:"max_cpu_cores,omitempty"`
	MinMemoryLimit int64   `json:"min_memory_limit,omitempty"`
	MinDiskSpace   int64   `json:"min_disk_space,omitempty"`
}

// SubmissionConfig maps parameter IDs to their values.
type SubmissionConfig map[string]interface{}

// SubmissionRequest is the request body for POST /analyses. It is
// constructed once by BuildSubmission and never mutated after send.
type SubmissionRequest struct {
	Config       SubmissionConfig `json:"config"`
	Name         string           `json:"name"`
	AppID        string           `json:"app_id"`
	SystemID     string           `json:"system_id"`
	AppVersionID string           `json:"app_version_id,omitempty"`
	Debug        bool             `json:"debug"`
	OutputDir    string           `json:"output_dir"`
	Notify       bool             `json:"notify"`
	Requirements []Requirement    `json:"requirements"`
}

// Analysis represents one execution instance of an app. The service owns
// its lifecycle; the client only observes it.
type Analysis struct {
	ID              string   `json:"id"`
	ParentID        string   `json:"parent_id,omitempty"`
	Name            string   `json:"name,omitempty"`
	AppID           string   `json:"app_id,omitempty"`
	SystemID        string   `json:"system_id,omitempty"`
	Status          string   `json:"status,omitempty"`
	InteractiveURLs []string `json:"interactive_urls,omitempty"`
}

// AnalysisListResponse represents the response from listing analyses.
type AnalysisListResponse struct {
	Analyses []Analysis `json:"analyses"`
	Total    int        `json:"total,omitempty"`
}

// Filter is one exact-match term for the analysis listing endpoint. The
// filter query parameter is a JSON-encoded array of these.
type Filter struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// SaveFileRequest is the request body for POST /fileio/saveas.
type SaveFileRequest struct {
	Content string `json:"content"`
	Dest    string `json:"dest"`
}

// SaveFileResponse represents the response from saving a file.
type SaveFileResponse struct {
	File struct {
		Path string `json:"path"`
	} `json:"file"`
}

// DirectoryFile represents one entry in a paged directory listing.
type DirectoryFile struct {
	Path         string `json:"path"`
	Label        string `json:"label,omitempty"`
	FileSize     int64  `json:"file-size,omitempty"`
	DateModified int64  `json:"date-modified,omitempty"`
}

// DirectoryListing represents the response from the paged directory
// listing endpoint.
type DirectoryListing struct {
	Path  string          `json:"path,omitempty"`
	Files []DirectoryFile `json:"files"`
	Total int             `json:"total,omitempty"`
}
