// Package schedule stores deferred device commands and fires them when due.
//
// Service creates, lists and cancels schedules. Each new schedule is written
// together with a "scheduled" command log snapshot so the audit trail shows
// it before it runs.
//
// Runner polls on a cron interval. A tick claims due schedules by moving
// them from "scheduled" to "running" in one statement, dispatches each with
// origin "schedule" and settles it as "executed" or "failed". Rows left
// "running" by a crash go back to "scheduled" when the runner starts, so a
// schedule fires at least once.
package schedule
