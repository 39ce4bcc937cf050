package team

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Sternrassler/teamadmin/pkg/client"
	"github.com/Sternrassler/teamadmin/pkg/pagination"
)

// Wire shapes of the provider responses. Required fields are pointers or
// slices so a missing field can be told apart from a zero value.

type tag struct {
	Tag string `json:".tag"`
}

func (t *tag) value() string {
	if t == nil {
		return ""
	}
	return t.Tag
}

type wireName struct {
	GivenName   string `json:"given_name"`
	Surname     string `json:"surname"`
	DisplayName string `json:"display_name"`
}

type wireProfile struct {
	TeamMemberID string     `json:"team_member_id"`
	AccountID    string     `json:"account_id"`
	Email        string     `json:"email"`
	Status       *tag       `json:"status"`
	Name         wireName   `json:"name"`
	JoinedOn     *time.Time `json:"joined_on"`
}

type wireMember struct {
	Profile *wireProfile `json:"profile"`
	Role    *tag         `json:"role"`
}

func (w wireMember) member(endpoint string, i int) (Member, error) {
	p := w.Profile
	if p == nil {
		return Member{}, parseError(endpoint, "members[%d]: missing profile", i)
	}
	if p.TeamMemberID == "" {
		return Member{}, parseError(endpoint, "members[%d]: missing team_member_id", i)
	}
	if p.Status == nil {
		return Member{}, parseError(endpoint, "members[%d]: missing status", i)
	}
	m := Member{
		TeamMemberID: p.TeamMemberID,
		AccountID:    p.AccountID,
		Email:        p.Email,
		GivenName:    p.Name.GivenName,
		Surname:      p.Name.Surname,
		DisplayName:  p.Name.DisplayName,
		Status:       p.Status.Tag,
		Role:         w.Role.value(),
	}
	if p.JoinedOn != nil {
		m.JoinedOn = *p.JoinedOn
	}
	return m, nil
}

type wireMembersPage struct {
	Members []wireMember `json:"members"`
	Cursor  string       `json:"cursor"`
	HasMore *bool        `json:"has_more"`
}

func (w *wireMembersPage) page(endpoint string) (*pagination.Page[Member], error) {
	if w.Members == nil {
		return nil, parseError(endpoint, "missing members")
	}
	if w.HasMore == nil {
		return nil, parseError(endpoint, "missing has_more")
	}
	items := make([]Member, 0, len(w.Members))
	for i, wm := range w.Members {
		m, err := wm.member(endpoint, i)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return &pagination.Page[Member]{Items: items, Cursor: w.Cursor, HasMore: *w.HasMore}, nil
}

type wirePaperCursor struct {
	Value      string `json:"value"`
	Expiration string `json:"expiration"`
}

type wirePaperDocsPage struct {
	DocIDs  []string         `json:"doc_ids"`
	Cursor  *wirePaperCursor `json:"cursor"`
	HasMore *bool            `json:"has_more"`
}

func (w *wirePaperDocsPage) page(endpoint string, member Member) (*pagination.Page[PaperDoc], error) {
	if w.DocIDs == nil {
		return nil, parseError(endpoint, "missing doc_ids")
	}
	if w.HasMore == nil {
		return nil, parseError(endpoint, "missing has_more")
	}
	items := make([]PaperDoc, 0, len(w.DocIDs))
	for _, id := range w.DocIDs {
		items = append(items, PaperDoc{DocID: id, MemberID: member.TeamMemberID, MemberEmail: member.Email})
	}
	var cursor string
	if w.Cursor != nil {
		cursor = w.Cursor.Value
	}
	return &pagination.Page[PaperDoc]{Items: items, Cursor: cursor, HasMore: *w.HasMore}, nil
}

type wirePaperMetadata struct {
	DocID           string     `json:"doc_id"`
	Owner           string     `json:"owner"`
	Title           string     `json:"title"`
	CreatedDate     *time.Time `json:"created_date"`
	Status          *tag       `json:"status"`
	Revision        int64      `json:"revision"`
	LastUpdatedDate *time.Time `json:"last_updated_date"`
	LastEditor      string     `json:"last_editor"`
}

func (w *wirePaperMetadata) metadata(endpoint string) (PaperMetadata, error) {
	if w.DocID == "" {
		return PaperMetadata{}, parseError(endpoint, "missing doc_id")
	}
	if w.Status == nil {
		return PaperMetadata{}, parseError(endpoint, "missing status")
	}
	m := PaperMetadata{
		DocID:      w.DocID,
		Owner:      w.Owner,
		Title:      w.Title,
		Status:     w.Status.Tag,
		Revision:   w.Revision,
		LastEditor: w.LastEditor,
	}
	if w.CreatedDate != nil {
		m.CreatedDate = *w.CreatedDate
	}
	if w.LastUpdatedDate != nil {
		m.LastUpdatedDate = *w.LastUpdatedDate
	}
	return m, nil
}

type wireActorUser struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

type wireActor struct {
	Tag   string         `json:".tag"`
	User  *wireActorUser `json:"user"`
	Admin *wireActorUser `json:"admin"`
}

type wireEvent struct {
	Timestamp     *time.Time `json:"timestamp"`
	EventCategory *tag       `json:"event_category"`
	EventType     *struct {
		Tag         string `json:".tag"`
		Description string `json:"description"`
	} `json:"event_type"`
	Actor *wireActor `json:"actor"`
}

type wireEventsPage struct {
	Events  []json.RawMessage `json:"events"`
	Cursor  string            `json:"cursor"`
	HasMore *bool             `json:"has_more"`
}

func (w *wireEventsPage) page(endpoint string) (*pagination.Page[AuditEvent], error) {
	if w.Events == nil {
		return nil, parseError(endpoint, "missing events")
	}
	if w.HasMore == nil {
		return nil, parseError(endpoint, "missing has_more")
	}
	items := make([]AuditEvent, 0, len(w.Events))
	for i, raw := range w.Events {
		var we wireEvent
		if err := json.Unmarshal(raw, &we); err != nil {
			return nil, client.NewParseError(endpoint, fmt.Sprintf("events[%d]", i), err)
		}
		if we.Timestamp == nil {
			return nil, parseError(endpoint, "events[%d]: missing timestamp", i)
		}
		ev := AuditEvent{
			Timestamp: *we.Timestamp,
			Category:  we.EventCategory.value(),
			Raw:       raw,
		}
		if we.EventType != nil {
			ev.EventType = we.EventType.Tag
			ev.Description = we.EventType.Description
		}
		if a := we.Actor; a != nil {
			u := a.User
			if u == nil {
				u = a.Admin
			}
			if u != nil {
				ev.ActorEmail = u.Email
				ev.ActorName = u.DisplayName
			}
		}
		items = append(items, ev)
	}
	return &pagination.Page[AuditEvent]{Items: items, Cursor: w.Cursor, HasMore: *w.HasMore}, nil
}

type wireEntry struct {
	Tag            string     `json:".tag"`
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	PathLower      string     `json:"path_lower"`
	PathDisplay    string     `json:"path_display"`
	Size           int64      `json:"size"`
	ServerModified *time.Time `json:"server_modified"`
}

type wireFolderPage struct {
	Entries []wireEntry `json:"entries"`
	Cursor  string      `json:"cursor"`
	HasMore *bool       `json:"has_more"`
}

func (w *wireFolderPage) page(endpoint string) (*pagination.Page[FolderEntry], error) {
	if w.Entries == nil {
		return nil, parseError(endpoint, "missing entries")
	}
	if w.HasMore == nil {
		return nil, parseError(endpoint, "missing has_more")
	}
	items := make([]FolderEntry, 0, len(w.Entries))
	for i, we := range w.Entries {
		if we.Tag == "" || we.Name == "" {
			return nil, parseError(endpoint, "entries[%d]: missing .tag or name", i)
		}
		e := FolderEntry{
			Tag:         we.Tag,
			ID:          we.ID,
			Name:        we.Name,
			PathLower:   we.PathLower,
			PathDisplay: we.PathDisplay,
			Size:        we.Size,
		}
		if we.ServerModified != nil {
			e.Modified = *we.ServerModified
		}
		items = append(items, e)
	}
	return &pagination.Page[FolderEntry]{Items: items, Cursor: w.Cursor, HasMore: *w.HasMore}, nil
}

type wireTeamFolder struct {
	TeamFolderID string `json:"team_folder_id"`
	Name         string `json:"name"`
	Status       *tag   `json:"status"`
}

func (w *wireTeamFolder) folder(endpoint string) (TeamFolder, error) {
	if w.TeamFolderID == "" {
		return TeamFolder{}, parseError(endpoint, "missing team_folder_id")
	}
	return TeamFolder{ID: w.TeamFolderID, Name: w.Name, Status: w.Status.value()}, nil
}

// wireArchiveLaunch is either {".tag": "complete", <team folder fields>} or
// {".tag": "async_job_id", "async_job_id": "..."}.
type wireArchiveLaunch struct {
	Tag        string `json:".tag"`
	AsyncJobID string `json:"async_job_id"`
	wireTeamFolder
}

type wireAddMembers struct {
	Tag      string            `json:".tag"`
	Complete []json.RawMessage `json:"complete"`
}

func (w *wireAddMembers) results(endpoint string) ([]AddResult, error) {
	if w.Tag != "complete" {
		return nil, parseError(endpoint, "unexpected launch tag %q", w.Tag)
	}
	out := make([]AddResult, 0, len(w.Complete))
	for i, raw := range w.Complete {
		var head struct {
			Tag string `json:".tag"`
		}
		if err := json.Unmarshal(raw, &head); err != nil || head.Tag == "" {
			return nil, parseError(endpoint, "complete[%d]: missing .tag", i)
		}

		if head.Tag == "success" {
			var wm wireMember
			if err := json.Unmarshal(raw, &wm); err != nil {
				return nil, client.NewParseError(endpoint, fmt.Sprintf("complete[%d]", i), err)
			}
			m, err := wm.member(endpoint, i)
			if err != nil {
				return nil, err
			}
			out = append(out, AddResult{Email: m.Email, Status: head.Tag, Member: &m})
			continue
		}

		// Failures carry the email under a key named after the tag.
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, client.NewParseError(endpoint, fmt.Sprintf("complete[%d]", i), err)
		}
		var email string
		if v, ok := fields[head.Tag]; ok {
			if err := json.Unmarshal(v, &email); err != nil {
				return nil, client.NewParseError(endpoint, fmt.Sprintf("complete[%d].%s", i, head.Tag), err)
			}
		}
		out = append(out, AddResult{Email: email, Status: head.Tag})
	}
	return out, nil
}

func parseError(endpoint, format string, args ...any) error {
	return client.NewParseError(endpoint, fmt.Sprintf(format, args...), nil)
}

func emailPrefix(email string) string {
	if i := strings.Index(email, "@"); i >= 0 {
		return email[:i]
	}
	return email
}
