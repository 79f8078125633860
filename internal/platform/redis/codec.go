package redis

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/phrazzld/adforge/internal/task"
)

func encodePayload(payload map[string]any) (string, error) {
	if len(payload) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%w: payload is not JSON encodable: %v", task.ErrInvalidTask, err)
	}
	return string(b), nil
}

func millis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseMillis(v string) *time.Time {
	if v == "" {
		return nil
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}

// decodeTask maps a task hash to a Task. A follower released by GetBatch
// carries leader_result_path, which is also injected into its payload.
func decodeTask(m map[string]string) (*task.Task, error) {
	if len(m) == 0 || m["task_id"] == "" {
		return nil, task.ErrTaskNotFound
	}

	retryCount, _ := strconv.Atoi(m["retry_count"]) //nolint:errcheck // written by our own scripts

	t := &task.Task{
		ID:               m["task_id"],
		JobID:            m["job_id"],
		DependencyGroup:  m["dependency_group"],
		DependencyType:   task.DependencyType(m["dependency_type"]),
		Status:           task.Status(m["status"]),
		RetryCount:       retryCount,
		LastError:        m["last_error"],
		Result:           m["result"],
		LeaderResultPath: m["leader_result_path"],
		Cancelled:        m["cancelled"] == "1",
		StartedAt:        parseMillis(m["started_at"]),
		CompletedAt:      parseMillis(m["completed_at"]),
		LeaseExpiresAt:   parseMillis(m["lease_expires_at"]),
	}
	if created := parseMillis(m["created_at"]); created != nil {
		t.CreatedAt = *created
	}

	if raw := m["payload"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &t.Payload); err != nil {
			return nil, fmt.Errorf("decode payload of task %s: %w", t.ID, err)
		}
	}
	if t.LeaderResultPath != "" {
		if t.Payload == nil {
			t.Payload = make(map[string]any, 1)
		}
		t.Payload[task.LeaderResultPathKey] = t.LeaderResultPath
	}

	return t, nil
}

// scriptResult is the generic reply of the transition scripts.
type scriptResult []any

func (r scriptResult) int(i int) int64 {
	if i >= len(r) {
		return 0
	}
	switch v := r[i].(type) {
	case int64:
		return v
	case string:
		n, _ := strconv.ParseInt(v, 10, 64) //nolint:errcheck // zero on garbage
		return n
	}
	return 0
}

func (r scriptResult) str(i int) string {
	if i >= len(r) {
		return ""
	}
	if s, ok := r[i].(string); ok {
		return s
	}
	return ""
}

func (r scriptResult) strings(i int) []string {
	if i >= len(r) {
		return nil
	}
	items, ok := r[i].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func toScriptResult(v any) (scriptResult, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected script reply type %T", v)
	}
	return scriptResult(items), nil
}
