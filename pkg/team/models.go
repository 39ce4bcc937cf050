// Package team implements the team administration operations on top of the
// team API client: member listing and provisioning, Paper document export,
// audit events, file listing and download, and team folder management.
//
// Listings are exposed as pagination.Source implementations so they can be
// driven by pkg/aggregate; the Service type composes them into the commands
// the CLI runs.
package team

import (
	"time"
)

// Member statuses reported by the provider.
const (
	StatusActive    = "active"
	StatusInvited   = "invited"
	StatusSuspended = "suspended"
	StatusRemoved   = "removed"
)

// Member roles accepted by member provisioning.
const (
	RoleMemberOnly   = "member_only"
	RoleSupportAdmin = "support_admin"
	RoleUserMgmt     = "user_management_admin"
	RoleTeamAdmin    = "team_admin"
)

// Member is a team member.
type Member struct {
	TeamMemberID string
	AccountID    string
	Email        string
	GivenName    string
	Surname      string
	DisplayName  string
	Status       string
	Role         string
	JoinedOn     time.Time
}

// Key implements aggregate.Keyed.
func (m Member) Key() string { return m.TeamMemberID }

// EmailPrefix is the local part of the member's email.
func (m Member) EmailPrefix() string {
	return emailPrefix(m.Email)
}

// PaperDoc is a Paper document owned by a team member. Metadata fields are
// empty until the document has been enriched.
type PaperDoc struct {
	DocID string
	// MemberID is the team member the document was listed for.
	MemberID    string
	MemberEmail string

	Title           string
	Owner           string
	Status          string
	Revision        int64
	CreatedDate     time.Time
	LastUpdatedDate time.Time
	LastEditor      string
}

// Key implements aggregate.Keyed.
func (d PaperDoc) Key() string { return d.DocID }

// Enriched reports whether metadata has been merged into the document.
func (d PaperDoc) Enriched() bool { return d.Status != "" }

// PaperMetadata is the per-document metadata returned by get_metadata.
type PaperMetadata struct {
	DocID           string    `json:"doc_id"`
	Owner           string    `json:"owner"`
	Title           string    `json:"title"`
	Status          string    `json:"status"`
	Revision        int64     `json:"revision"`
	CreatedDate     time.Time `json:"created_date"`
	LastUpdatedDate time.Time `json:"last_updated_date"`
	LastEditor      string    `json:"last_editor"`
}

// Apply merges metadata into d.
func (m PaperMetadata) Apply(d PaperDoc) PaperDoc {
	d.Title = m.Title
	d.Owner = m.Owner
	d.Status = m.Status
	d.Revision = m.Revision
	d.CreatedDate = m.CreatedDate
	d.LastUpdatedDate = m.LastUpdatedDate
	d.LastEditor = m.LastEditor
	return d
}

// AuditEvent is one team activity log entry.
type AuditEvent struct {
	Timestamp   time.Time
	Category    string
	EventType   string
	Description string
	ActorEmail  string
	ActorName   string
	// Raw is the undecoded event, kept for export of provider-specific details.
	Raw []byte
}

// Key implements aggregate.Keyed.
func (e AuditEvent) Key() string {
	return e.Timestamp.Format(time.RFC3339) + "/" + e.EventType
}

// FolderEntry is a file or folder in a member's namespace.
type FolderEntry struct {
	Tag         string
	ID          string
	Name        string
	PathLower   string
	PathDisplay string
	Size        int64
	Modified    time.Time
}

// Key implements aggregate.Keyed.
func (e FolderEntry) Key() string { return e.ID }

// IsFile reports whether the entry is a file.
func (e FolderEntry) IsFile() bool { return e.Tag == "file" }

// TeamFolder is a team-owned shared folder.
type TeamFolder struct {
	ID     string
	Name   string
	Status string
}

// Key implements aggregate.Keyed.
func (f TeamFolder) Key() string { return f.ID }

// NewMember is one provisioning request.
type NewMember struct {
	Email            string
	GivenName        string
	Surname          string
	Role             string
	SendWelcomeEmail bool
}

// Key implements aggregate.Keyed.
func (m NewMember) Key() string { return m.Email }

// AddResult is the outcome of provisioning one member.
type AddResult struct {
	Email string
	// Status is "success" or the provider's failure tag
	// (e.g. "user_already_on_team").
	Status string
	Member *Member
}

// OK reports whether the member was added.
func (r AddResult) OK() bool { return r.Status == "success" }
