package processor

import (
	"context"
	"encoding/json"
)

// IdentityResult is the stable result shape of identity verification jobs.
type IdentityResult struct {
	Verified   bool     `json:"verified"`
	MatchScore *float64 `json:"match_score"`
	Note       string   `json:"note,omitempty"`
}

// identityPlaceholderNote marks results produced without a verification engine.
const identityPlaceholderNote = "face_verify not implemented: no verification engine is configured"

// IdentityProcessor is a placeholder that always reports "not verified, no score".
// It keeps the face_verify job type and its result shape stable until a real
// verification engine is wired in.
type IdentityProcessor struct{}

func (IdentityProcessor) Process(ctx context.Context, _ string) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return json.Marshal(IdentityResult{
		Verified:   false,
		MatchScore: nil,
		Note:       identityPlaceholderNote,
	})
}
