package redis

// DefaultKeyPrefix keeps every key in a single cluster slot.
const DefaultKeyPrefix = "{adforge}:"

type keyspace struct {
	prefix string
}

func (k keyspace) task(id string) string { return k.prefix + "task:" + id }
func (k keyspace) dep(group string) string { return k.prefix + "dep:" + group }
func (k keyspace) jobTasks(job string) string { return k.prefix + "job:" + job + ":tasks" }
func (k keyspace) pending() string { return k.prefix + "pending" }
func (k keyspace) retry() string { return k.prefix + "retry" }
func (k keyspace) processing() string { return k.prefix + "processing" }
func (k keyspace) completed() string { return k.prefix + "completed" }
func (k keyspace) failed() string { return k.prefix + "failed" }
func (k keyspace) jobs() string { return k.prefix + "jobs" }
func (k keyspace) completions() string { return k.prefix + "completions" }
func (k keyspace) window(name string) string { return k.prefix + "ratelimit:" + name }
