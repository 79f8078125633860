package task

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		task    *Task
		wantErr string
	}{
		{name: "plain task", task: NewTask("t1", "j1", map[string]any{"prompt": "x"})},
		{name: "leader", task: NewTask("t1", "j1", nil).AsLeader("hero")},
		{name: "follower", task: NewTask("t2", "j1", nil).AsFollower("hero")},
		{name: "missing id", task: NewTask("", "j1", nil), wantErr: "task_id is required"},
		{name: "missing job", task: NewTask("t1", "", nil), wantErr: "job_id is required"},
		{name: "whitespace id", task: NewTask("t 1", "j1", nil), wantErr: "contains whitespace"},
		{name: "whitespace job", task: NewTask("t1", "j\t1", nil), wantErr: "contains whitespace"},
		{name: "leader without group", task: NewTask("t1", "j1", nil).AsLeader(""), wantErr: "requires a dependency_group"},
		{
			name:    "group without type",
			task:    &Task{ID: "t1", JobID: "j1", DependencyType: DependencyNone, DependencyGroup: "hero"},
			wantErr: "without a dependency_type",
		},
		{
			name:    "unknown type",
			task:    &Task{ID: "t1", JobID: "j1", DependencyType: "captain", DependencyGroup: "hero"},
			wantErr: "unknown dependency_type",
		},
		{
			name:    "reserved payload key",
			task:    NewTask("t1", "j1", map[string]any{LeaderResultPathKey: "jobs/x.png"}),
			wantErr: "is reserved",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.task.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidTask)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestTaskNormalize(t *testing.T) {
	t.Parallel()

	tk := &Task{ID: " t1 ", JobID: "j1\n", DependencyGroup: " hero "}
	tk.Normalize()

	assert.Equal(t, "t1", tk.ID)
	assert.Equal(t, "j1", tk.JobID)
	assert.Equal(t, "hero", tk.DependencyGroup)
	assert.Equal(t, DependencyNone, tk.DependencyType)
}

func TestStatusIsTerminal(t *testing.T) {
	t.Parallel()

	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	for _, s := range []Status{StatusPending, StatusRetrying, StatusProcessing} {
		assert.False(t, s.IsTerminal(), s)
	}
}

func TestJobStatusAdd(t *testing.T) {
	t.Parallel()

	withStatus := func(id string, s Status) *Task {
		tk := NewTask(id, "j1", nil)
		tk.Status = s
		return tk
	}

	done := withStatus("a", StatusCompleted)
	done.Result = "jobs/j1/a.png"
	cancelled := withStatus("b", StatusFailed)
	cancelled.Cancelled = true

	st := JobStatus{JobID: "j1"}
	st.Add(done)
	st.Add(cancelled)
	st.Add(withStatus("c", StatusFailed))
	assert.True(t, st.IsComplete)
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, 2, st.Failed)
	assert.Equal(t, 1, st.Cancelled)
	assert.Equal(t, []string{"jobs/j1/a.png"}, st.Results)

	st.Add(withStatus("d", StatusRetrying))
	assert.False(t, st.IsComplete)
	assert.Equal(t, 1, st.Retrying)
}

func TestLimiterStatusJSON(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(LimiterStatus{Current: 3, Limit: 10, Window: 90 * time.Second, Available: 7})
	require.NoError(t, err)
	assert.JSONEq(t, `{"current":3,"limit":10,"window":90,"available":7}`, string(data))
}
