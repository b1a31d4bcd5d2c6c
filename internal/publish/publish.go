package publish

import "compsheet/internal"

// ReportWriter is implemented by every publication target for report comps.
type ReportWriter interface {
	Write(report internal.Report) error
	Close() error
}
