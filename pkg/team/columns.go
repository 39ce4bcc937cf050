package team

import (
	"strconv"
	"time"

	"github.com/Sternrassler/teamadmin/pkg/export"
)

// MemberColumns is the CSV layout of a member listing.
var MemberColumns = []export.Column[Member]{
	{Header: "Email", Value: func(m Member) string { return m.Email }},
	{Header: "FirstName", Value: func(m Member) string { return m.GivenName }},
	{Header: "LastName", Value: func(m Member) string { return m.Surname }},
	{Header: "Status", Value: func(m Member) string { return m.Status }},
	{Header: "Role", Value: func(m Member) string { return m.Role }},
	{Header: "TeamMemberId", Value: func(m Member) string { return m.TeamMemberID }},
	{Header: "JoinedOn", Value: func(m Member) string { return formatTime(m.JoinedOn) }},
}

// PaperColumns is the CSV layout of a Paper document export. Name, id and
// status come first.
var PaperColumns = []export.Column[PaperDoc]{
	{Header: "PaperName", Value: func(d PaperDoc) string { return d.Title }},
	{Header: "PaperId", Value: func(d PaperDoc) string { return d.DocID }},
	{Header: "Status", Value: func(d PaperDoc) string { return d.Status }},
	{Header: "Owner", Value: func(d PaperDoc) string { return d.Owner }},
	{Header: "MemberEmail", Value: func(d PaperDoc) string { return d.MemberEmail }},
	{Header: "Revision", Value: func(d PaperDoc) string {
		if !d.Enriched() {
			return ""
		}
		return strconv.FormatInt(d.Revision, 10)
	}},
	{Header: "CreatedDate", Value: func(d PaperDoc) string { return formatTime(d.CreatedDate) }},
	{Header: "LastUpdatedDate", Value: func(d PaperDoc) string { return formatTime(d.LastUpdatedDate) }},
	{Header: "LastEditor", Value: func(d PaperDoc) string { return d.LastEditor }},
}

// AuditColumns is the CSV layout of an audit event export.
var AuditColumns = []export.Column[AuditEvent]{
	{Header: "Timestamp", Value: func(e AuditEvent) string { return formatTime(e.Timestamp) }},
	{Header: "Category", Value: func(e AuditEvent) string { return e.Category }},
	{Header: "EventType", Value: func(e AuditEvent) string { return e.EventType }},
	{Header: "Description", Value: func(e AuditEvent) string { return e.Description }},
	{Header: "ActorEmail", Value: func(e AuditEvent) string { return e.ActorEmail }},
	{Header: "ActorName", Value: func(e AuditEvent) string { return e.ActorName }},
	{Header: "Details", Value: func(e AuditEvent) string { return string(e.Raw) }},
}

// FolderColumns is the CSV layout of a folder listing.
var FolderColumns = []export.Column[FolderEntry]{
	{Header: "Type", Value: func(e FolderEntry) string { return e.Tag }},
	{Header: "Path", Value: func(e FolderEntry) string { return e.PathDisplay }},
	{Header: "Name", Value: func(e FolderEntry) string { return e.Name }},
	{Header: "Size", Value: func(e FolderEntry) string {
		if !e.IsFile() {
			return ""
		}
		return strconv.FormatInt(e.Size, 10)
	}},
	{Header: "Modified", Value: func(e FolderEntry) string { return formatTime(e.Modified) }},
	{Header: "Id", Value: func(e FolderEntry) string { return e.ID }},
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
