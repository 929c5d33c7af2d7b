package diagnosis

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/cirepair/orchestrator/internal/contextmgr"
	"github.com/cirepair/orchestrator/internal/graphstate"
	"github.com/cirepair/orchestrator/internal/ports"
)

// Deps bundles everything the pipeline needs from the outside world.
type Deps struct {
	LanguageModel        ports.LanguageModel
	Sandbox              ports.Sandbox
	WorkflowFileContent  string
	RepoManifest         string
	FaultLocalization    bool
	ReproductionStrategies []ReproductionStrategy
}

// stackFrameRE recognizes a conservative subset of stack-frame shapes
// across ecosystems: "  at foo (file.js:12:3)", "File \"a.py\", line 12",
// "file.go:42".
var stackFrameRE = regexp.MustCompile(`(?m)(?:at .+\(([^():]+):(\d+)(?::\d+)?\)|File "([^"]+)", line (\d+)|^\s*([\w./\-]+\.go):(\d+))`)

type stackFrame struct {
	file string
	line string
}

func parseStackFrames(log string) []stackFrame {
	matches := stackFrameRE.FindAllStringSubmatch(log, -1)
	var frames []stackFrame
	for _, m := range matches {
		switch {
		case m[1] != "":
			frames = append(frames, stackFrame{file: m[1], line: m[2]})
		case m[3] != "":
			frames = append(frames, stackFrame{file: m[3], line: m[4]})
		case m[5] != "":
			frames = append(frames, stackFrame{file: m[5], line: m[6]})
		}
	}
	return frames
}

// lmDiagnosisJSON is the strict-JSON shape stage 4 demands from the model.
type lmDiagnosisJSON struct {
	Summary             string  `json:"summary"`
	FilePath            string  `json:"filePath"`
	FixAction           string  `json:"fixAction"`
	SuggestedCommand    string  `json:"suggestedCommand"`
	ReproductionCommand string  `json:"reproductionCommand"`
	Confidence          float64 `json:"confidence"`
}

// Diagnose runs the full seven-stage pipeline. Any panic inside is
// recovered and converted into the spec's mandated fallback Diagnosis, per
// §4.3 failure semantics.
func Diagnose(ctx context.Context, deps Deps, rawLog string) (result graphstate.Diagnosis, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = fallbackDiagnosis()
			err = nil
		}
	}()

	filtered := FilterLogs(rawLog)
	summary := Summarize(filtered)

	diag := graphstate.Diagnosis{
		Summary:   summary,
		FixAction: graphstate.FixEdit,
	}

	if deps.FaultLocalization {
		if loc, ok := localize(ctx, deps, filtered); ok && loc.confidence > 0.7 {
			diag.FilePath = loc.file
		}
	}

	if deps.LanguageModel != nil {
		lm, lmErr := lmDiagnose(ctx, deps, filtered, summary)
		if lmErr == nil {
			if diag.FilePath == "" {
				diag.FilePath = lm.FilePath
			}
			diag.FixAction = fixActionFromString(lm.FixAction)
			diag.SuggestedCommand = lm.SuggestedCommand
			diag.ReproductionCommand = lm.ReproductionCommand
			diag.Confidence = lm.Confidence
		}
	}

	if diag.SuggestedCommand != "" {
		diag.SuggestedCommand = CleanSuggestedCommand(diag.SuggestedCommand)
	}

	diag.FilePath = CleanFilePath(diag.FilePath)

	if diag.ReproductionCommand == "" {
		strategies := deps.ReproductionStrategies
		if strategies == nil {
			strategies = DefaultReproductionStrategies()
		}
		res := InferReproductionCommand(ctx, ReproductionDeps{
			WorkflowFileContent: deps.WorkflowFileContent,
			FilteredLog:         filtered,
			Sandbox:             deps.Sandbox,
			LanguageModel:       deps.LanguageModel,
			RepoManifest:        deps.RepoManifest,
		}, strategies)
		diag.ReproductionCommand = res.Command
	}

	return diag, nil
}

func fallbackDiagnosis() graphstate.Diagnosis {
	return graphstate.Diagnosis{
		Summary:    "Diagnosis Failed",
		FixAction:  graphstate.FixEdit,
		Confidence: 0,
	}
}

func fixActionFromString(s string) graphstate.FixAction {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "command":
		return graphstate.FixCommand
	case "create":
		return graphstate.FixCreate
	default:
		return graphstate.FixEdit
	}
}

type localization struct {
	file       string
	line       string
	confidence float64
}

// localize is stage 3: parse stack frames from the filtered log; if >=1
// frame, ask the LanguageModel to refine to {file, line, confidence}.
func localize(ctx context.Context, deps Deps, filtered string) (localization, bool) {
	frames := parseStackFrames(filtered)
	if len(frames) == 0 || deps.LanguageModel == nil {
		return localization{}, false
	}

	cm := contextmgr.New(4000)
	cm.Add(contextmgr.Item{ID: "log", Type: contextmgr.ItemLog, Priority: contextmgr.PriorityHigh, Content: filtered})
	res, err := deps.LanguageModel.Generate(ctx, ports.PromptBundle{
		Contents:       "Given this failing log, identify the most likely faulting file and line as strict JSON {\"file\":...,\"line\":...,\"confidence\":...}:\n" + cm.Compile(),
		ResponseFormat: ports.ResponseFormatJSON,
	})
	if err != nil {
		return localization{file: frames[0].file, line: frames[0].line, confidence: 0.5}, true
	}

	var parsed struct {
		File       string  `json:"file"`
		Line       string  `json:"line"`
		Confidence float64 `json:"confidence"`
	}
	if jsonErr := json.Unmarshal([]byte(res.Text), &parsed); jsonErr != nil || parsed.File == "" {
		return localization{file: frames[0].file, line: frames[0].line, confidence: 0.5}, true
	}
	return localization{file: parsed.File, line: parsed.Line, confidence: parsed.Confidence}, true
}

// lmDiagnose is stage 4: assemble a structured prompt demanding a strict
// JSON diagnosis object.
func lmDiagnose(ctx context.Context, deps Deps, filtered, summary string) (lmDiagnosisJSON, error) {
	cm := contextmgr.New(8000)
	cm.Add(contextmgr.Item{ID: "summary", Type: contextmgr.ItemText, Priority: contextmgr.PriorityCritical, Content: summary})
	cm.Add(contextmgr.Item{ID: "log", Type: contextmgr.ItemLog, Priority: contextmgr.PriorityHigh, Content: filtered})

	prompt := "Diagnose this CI failure. Respond with strict JSON only, matching exactly " +
		`{"summary":string,"filePath":string,"fixAction":"edit"|"command"|"create","suggestedCommand":string,"reproductionCommand":string,"confidence":number}` +
		":\n" + cm.Compile()

	res, err := deps.LanguageModel.Generate(ctx, ports.PromptBundle{
		Contents:       prompt,
		ResponseFormat: ports.ResponseFormatJSON,
		Validate:       ValidateDiagnosisJSON,
	})
	if err != nil {
		return lmDiagnosisJSON{}, err
	}

	var parsed lmDiagnosisJSON
	if jsonErr := json.Unmarshal([]byte(res.Text), &parsed); jsonErr != nil {
		return lmDiagnosisJSON{}, jsonErr
	}
	return parsed, nil
}

// CleanFilePath is stage 6: strip leading "./" and "/" from filePath.
func CleanFilePath(path string) string {
	path = strings.TrimPrefix(path, "./")
	path = strings.TrimPrefix(path, "/")
	return path
}
