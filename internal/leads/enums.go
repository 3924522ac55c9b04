package leads

import (
	"fmt"
	"strings"
)

// Category is the closed set of trade categories a project is normalized into.
type Category string

const (
	CategoryHistoricRestoration Category = "historic-restoration"
	CategoryMasonry             Category = "masonry"
	CategoryStructural          Category = "structural"
	CategoryGovernment          Category = "government"
	CategoryCommercial          Category = "commercial"
	CategoryResidential         Category = "residential"
)

// Categories lists every known category in display order.
var Categories = []Category{
	CategoryHistoricRestoration,
	CategoryMasonry,
	CategoryStructural,
	CategoryGovernment,
	CategoryCommercial,
	CategoryResidential,
}

func ParseCategory(s string) (Category, error) {
	c := Category(s)
	switch c {
	case CategoryHistoricRestoration, CategoryMasonry, CategoryStructural,
		CategoryGovernment, CategoryCommercial, CategoryResidential:
		return c, nil
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// Status is the normalized lifecycle state reported by a source.
type Status string

const (
	StatusOpen      Status = "Open"
	StatusActive    Status = "Active"
	StatusPending   Status = "Pending"
	StatusIssued    Status = "Issued"
	StatusAwarded   Status = "Awarded"
	StatusClosed    Status = "Closed"
	StatusCancelled Status = "Cancelled"
)

var Statuses = []Status{
	StatusOpen,
	StatusActive,
	StatusPending,
	StatusIssued,
	StatusAwarded,
	StatusClosed,
	StatusCancelled,
}

// ParseStatus matches case-insensitively and returns the canonical spelling.
func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses {
		if strings.EqualFold(string(st), strings.TrimSpace(s)) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Source identifies the upstream system a project was ingested from.
type Source string

const (
	SourceSAMGov         Source = "sam-gov"
	SourceNYCDOB         Source = "nyc-dob"
	SourceChicagoPermits Source = "chicago-permits"
	SourceSFPermits      Source = "sf-permits"
	SourceBidNet         Source = "bidnet"
)

var Sources = []Source{
	SourceSAMGov,
	SourceNYCDOB,
	SourceChicagoPermits,
	SourceSFPermits,
	SourceBidNet,
}

func ParseSource(s string) (Source, error) {
	src := Source(s)
	switch src {
	case SourceSAMGov, SourceNYCDOB, SourceChicagoPermits, SourceSFPermits, SourceBidNet:
		return src, nil
	}
	return "", fmt.Errorf("unknown source %q", s)
}

// ScanStatus is the state of a scan ledger record.
type ScanStatus string

const (
	ScanRunning ScanStatus = "running"
	ScanSuccess ScanStatus = "success"
	ScanError   ScanStatus = "error"
	ScanPartial ScanStatus = "partial"
)

// ParseFinalScanStatus accepts only the statuses a finished scan may carry.
func ParseFinalScanStatus(s string) (ScanStatus, error) {
	st := ScanStatus(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case ScanSuccess, ScanError, ScanPartial:
		return st, nil
	}
	return "", fmt.Errorf("unknown final scan status %q", s)
}
