// Package scheduler runs named periodic jobs on a bounded worker pool.
//
// Jobs come from cron specs (5/6-field or @every descriptors) and are
// executed off the cron goroutine via a queue. A job that is still
// running when its next tick fires is skipped, never stacked.
// Schedules are upserted by name, so re-registering (e.g. after a plugin
// config change) replaces the old definition in place.
package scheduler
