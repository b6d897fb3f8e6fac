package terrain

// ParameterIndex maps human-readable parameter labels to their descriptors.
// It is built once per AppDetail fetch so repeated lookups, and ambiguity
// between parameters sharing a label, do not require rescanning the groups.
type ParameterIndex struct {
	byLabel map[string][]Parameter
}

// NewParameterIndex builds a label index over the app's parameter groups.
func NewParameterIndex(detail *AppDetail) *ParameterIndex {
	idx := &ParameterIndex{byLabel: make(map[string][]Parameter)}
	for _, group := range detail.Groups {
		for _, param := range group.Parameters {
			idx.byLabel[param.Label] = append(idx.byLabel[param.Label], param)
		}
	}
	return idx
}

// Resolve returns the single parameter with the given label. It fails with
// UnknownParameterError when no parameter carries the label and with
// AmbiguousParameterError when more than one does, rather than silently
// taking the first match.
func (idx *ParameterIndex) Resolve(label string) (*Parameter, error) {
	params := idx.byLabel[label]
	switch len(params) {
	case 0:
		return nil, &UnknownParameterError{Label: label}
	case 1:
		return &params[0], nil
	default:
		ids := make([]string, len(params))
		for i, p := range params {
			ids[i] = p.ID
		}
		return nil, &AmbiguousParameterError{Label: label, IDs: ids}
	}
}

// SubmissionOptions carries the non-parameter fields of a submission.
type SubmissionOptions struct {
	Name         string
	OutputDir    string
	Notify       bool
	Debug        bool
	Requirements []Requirement
}

// BuildSubmission assembles a submission request from label-keyed parameter
// values, resolving each label to its parameter ID through the index. It is
// pure and deterministic; it does not touch the network. The same detail and
// inputs produce byte-identical request JSON on every call.
func BuildSubmission(idx *ParameterIndex, ref AppRef, paramValues map[string]interface{}, opts SubmissionOptions) (*SubmissionRequest, error) {
	config := make(SubmissionConfig, len(paramValues))
	for label, value := range paramValues {
		param, err := idx.Resolve(label)
		if err != nil {
			return nil, err
		}
		config[param.ID] = value
	}

	reqs := opts.Requirements
	if reqs == nil {
		reqs = []Requirement{}
	}

	return &SubmissionRequest{
		Config:       config,
		Name:         opts.Name,
		AppID:        ref.AppID,
		SystemID:     ref.SystemID,
		AppVersionID: ref.VersionID,
		Debug:        opts.Debug,
		OutputDir:    opts.OutputDir,
		Notify:       opts.Notify,
		Requirements: reqs,
	}, nil
}
