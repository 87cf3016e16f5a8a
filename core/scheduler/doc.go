// Package scheduler drives the poll cycle: fetch yesterday's readings,
// publish them, and decide when to run next. Consecutive failures past a
// threshold stretch the interval geometrically up to a cap.
package scheduler
