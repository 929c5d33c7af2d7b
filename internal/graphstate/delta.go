package graphstate

// Delta is the partial-state update a node handler returns instead of
// mutating GraphState directly — the Coordinator applies it. This mirrors
// the teacher's runtime.Outcome "handler returns a value, caller applies it"
// discipline (internal/attractor/runtime/status.go in the retrieval pack),
// generalized from a single Status+ContextUpdates pair to the richer
// GraphState this spec requires.
type Delta struct {
	// CurrentNode, when non-nil, routes the Coordinator's next dispatch.
	// A nil value means "stay on the present node" (§4.6 in-place retry).
	CurrentNode *NodeName

	Status *Status

	Diagnosis               *Diagnosis
	Classification          *Classification
	RefinedProblemStatement *string

	// ReplaceFileReservations, when non-nil, replaces FileReservations wholesale.
	ReplaceFileReservations []string
	ReserveFiles            []string
	ReleaseFiles            []string

	MergeFiles       map[string]FileChange
	ActiveFileChange *FileChange

	AppendFeedback []string

	// AppendComplexity, when non-nil, is pushed onto ComplexityHistory and
	// becomes the new ProblemComplexity — keeping I7 (complexityHistory.length
	// == iteration at every tick boundary) satisfied by construction.
	AppendComplexity *int

	ErrorDAG      *ErrorDAG
	CurrentNodeID *string
	SolveNodes    []string

	ReproductionCommandMissing *bool

	Message       *string
	FailureReason *string
}

// Apply merges d into s. Handlers never mutate GraphState themselves; the
// Coordinator is the only caller of Apply, keeping every transition
// inspectable (§9 Design Notes: "State updates as deltas").
func (s *GraphState) Apply(d Delta) {
	if d.CurrentNode != nil {
		s.CurrentNode = *d.CurrentNode
	}
	if d.Status != nil {
		s.Status = *d.Status
	}
	if d.Diagnosis != nil {
		s.Diagnosis = d.Diagnosis
	}
	if d.Classification != nil {
		s.Classification = d.Classification
	}
	if d.RefinedProblemStatement != nil {
		s.RefinedProblemStatement = *d.RefinedProblemStatement
	}
	if d.ReplaceFileReservations != nil {
		s.FileReservations = append([]string{}, d.ReplaceFileReservations...)
	}
	for _, p := range d.ReserveFiles {
		s.ReserveFile(p)
	}
	for _, p := range d.ReleaseFiles {
		s.ReleaseFile(p)
	}
	if d.MergeFiles != nil {
		if s.Files == nil {
			s.Files = map[string]FileChange{}
		}
		for path, fc := range d.MergeFiles {
			s.Files[path] = fc
		}
	}
	if d.ActiveFileChange != nil {
		s.ActiveFileChange = d.ActiveFileChange
	}
	if len(d.AppendFeedback) > 0 {
		s.Feedback = append(s.Feedback, d.AppendFeedback...)
	}
	if d.AppendComplexity != nil {
		s.ComplexityHistory = append(s.ComplexityHistory, *d.AppendComplexity)
		s.ProblemComplexity = *d.AppendComplexity
	}
	if d.ErrorDAG != nil {
		s.ErrorDAG = d.ErrorDAG
	}
	if d.CurrentNodeID != nil {
		s.CurrentNodeID = *d.CurrentNodeID
	}
	for _, id := range d.SolveNodes {
		if s.SolvedNodes == nil {
			s.SolvedNodes = map[string]bool{}
		}
		s.SolvedNodes[id] = true
	}
	if d.ReproductionCommandMissing != nil {
		s.ReproductionCommandMissing = *d.ReproductionCommandMissing
	}
	if d.Message != nil {
		s.Message = *d.Message
	}
	if d.FailureReason != nil {
		s.FailureReason = *d.FailureReason
	}
}

// StrPtr / BoolPtr / IntPtr / NodePtr / StatusPtr are small literal-to-pointer
// helpers handlers use when building a Delta.
func StrPtr(s string) *string       { return &s }
func BoolPtr(b bool) *bool          { return &b }
func IntPtr(i int) *int             { return &i }
func NodePtr(n NodeName) *NodeName  { return &n }
func StatusPtr(s Status) *Status    { return &s }
