// Package redis implements the task queue and the admission limiter on top
// of Redis. Every state transition is a single Lua script, so concurrent
// producers and workers in different processes never interleave inside a
// read-check-write decision.
//
// Layout, relative to the configured key prefix:
//
//	task:<id>          hash of one task record
//	pending            zset, score = submission time in seconds
//	retry              zset, score = time of the failed attempt
//	processing         zset, score = lease deadline in milliseconds
//	completed, failed  zset, score = resolution time in milliseconds
//	job:<id>:tasks     zset of the job's task ids in submission order
//	job:<id>:done      set once when the job first completes
//	jobs               set of known job ids
//	dep:<group>        hash {leader_task_id, completed, failed, result_path}
//	ratelimit:<name>   zset of admission tokens, score = grant time
package redis
