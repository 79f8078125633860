package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/phrazzld/adforge/internal/task"
)

// Generator produces one image for one task.
// This interface is the only way the batch processor reaches the provider.
type Generator interface {
	// Generate runs the request and returns a reference to the stored asset.
	// It returns a *RateLimitError when the provider rejects the call on quota
	// grounds and any other error for content, network or format failures.
	Generate(ctx context.Context, req Request) (string, error)
}

// Params are the payload fields a generator understands. Unknown payload keys
// are ignored so producers can carry their own bookkeeping.
type Params struct {
	Prompt           string   `json:"prompt"`
	Style            string   `json:"style,omitempty"`
	NegativePrompt   string   `json:"negative_prompt,omitempty"`
	AspectRatio      string   `json:"aspect_ratio,omitempty"`
	ReferenceAssets  []string `json:"reference_assets,omitempty"`
	LeaderResultPath string   `json:"leader_result_path,omitempty"`
}

// Request is what a generator receives for one task.
type Request struct {
	TaskID string
	JobID  string
	Params Params
}

// NewRequest decodes a task payload into a request.
func NewRequest(t *task.Task) (Request, error) {
	req := Request{TaskID: t.ID, JobID: t.JobID}

	if len(t.Payload) > 0 {
		raw, err := json.Marshal(t.Payload)
		if err != nil {
			return Request{}, fmt.Errorf("%w: encode payload: %v", ErrInvalidRequest, err)
		}
		if err := json.Unmarshal(raw, &req.Params); err != nil {
			return Request{}, fmt.Errorf("%w: decode payload: %v", ErrInvalidRequest, err)
		}
	}

	if req.Params.LeaderResultPath == "" {
		req.Params.LeaderResultPath = t.LeaderResultPath
	}
	req.Params.Prompt = strings.TrimSpace(req.Params.Prompt)
	if req.Params.Prompt == "" {
		return Request{}, fmt.Errorf("%w: prompt is required", ErrInvalidRequest)
	}

	return req, nil
}

// References returns every asset the model should condition on, the leader
// result first so variants inherit its identity.
func (r Request) References() []string {
	refs := make([]string, 0, len(r.Params.ReferenceAssets)+1)
	if r.Params.LeaderResultPath != "" {
		refs = append(refs, r.Params.LeaderResultPath)
	}
	for _, ref := range r.Params.ReferenceAssets {
		if ref != "" && ref != r.Params.LeaderResultPath {
			refs = append(refs, ref)
		}
	}
	return refs
}
