// Package status is the status and observability sink of Imperium Core.
//
// Every recoverable and fatal error the engine handles is passed to
// Reporter.ReportItem. The reporter logs the item at its severity, persists
// it to the status_reports table when a Store is configured, and returns the
// item's correlation id so callers can attach it to their own logs or API
// responses. Persistence failures are logged and never returned: callers do
// not depend on the sink's storage guarantees.
package status
