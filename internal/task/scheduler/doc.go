// Package scheduler triggers fixed-interval jobs on top of robfig/cron.
//
// Each registration is keyed by name; registering the same name again
// replaces the previous job. A job never overlaps itself: a trigger that
// fires while the previous run is still in flight is skipped.
package scheduler
