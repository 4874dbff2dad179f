package models

import "time"

// SubjectKind tags what a search log entry refers to.
type SubjectKind string

const (
	// SubjectCompany is a lookup of one company or service by name.
	SubjectCompany SubjectKind = "company"
	// SubjectListAll records that every record was listed.
	SubjectListAll SubjectKind = "list_all"
)

// Subject is the target of an audited read. A company literally named
// "list_all" stays a SubjectCompany.
type Subject struct {
	Kind SubjectKind `json:"kind"`
	Name string      `json:"name,omitempty"`
}

// CompanySubject returns the subject for a lookup of name.
func CompanySubject(name string) Subject {
	return Subject{Kind: SubjectCompany, Name: name}
}

// ListAllSubject returns the subject for an unconditioned listing.
func ListAllSubject() Subject {
	return Subject{Kind: SubjectListAll}
}

// SearchLogEntry is one append-only audit row.
type SearchLogEntry struct {
	UserID     string    `json:"user_id"`
	Subject    Subject   `json:"subject"`
	SearchedAt time.Time `json:"searched_at"`
}

// RecentSearch is one deduplicated subject with its latest timestamp.
type RecentSearch struct {
	Subject      string    `json:"subject"`
	LastSearched time.Time `json:"last_searched"`
}
