package experience

// StageResult records how one best-effort pipeline stage ended. Skipped
// stages carry the reason so callers and tests can inspect why a request
// completed without, say, a cutout or an embedding.
type StageResult struct {
	Name   string
	OK     bool
	Reason string
}

func stageOK(name string) StageResult {
	return StageResult{Name: name, OK: true}
}

func stageSkipped(name, reason string) StageResult {
	return StageResult{Name: name, Reason: reason}
}
