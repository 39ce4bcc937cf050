package team

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Sternrassler/teamadmin/pkg/client"
	"github.com/Sternrassler/teamadmin/pkg/pagination"
)

// Member endpoints.
const (
	EndpointMembersList         = "team/members/list"
	EndpointMembersListContinue = "team/members/list/continue"
	EndpointMembersAdd          = "team/members/add"
)

// DefaultPageLimit is the page size requested from list endpoints.
const DefaultPageLimit = 1000

// API is the subset of *client.Client used by this package.
type API interface {
	Call(ctx context.Context, endpoint string, body any, out any, opts ...client.CallOption) error
	Download(ctx context.Context, endpoint string, arg any, w io.Writer, opts ...client.CallOption) (int64, error)
}

// MemberSource lists team members.
type MemberSource struct {
	API            API
	Limit          int
	IncludeRemoved bool
}

var _ pagination.Source[Member] = (*MemberSource)(nil)

// FetchFirst implements pagination.Source.
func (s *MemberSource) FetchFirst(ctx context.Context) (*pagination.Page[Member], error) {
	limit := s.Limit
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	body := map[string]any{"limit": limit, "include_removed": s.IncludeRemoved}

	var w wireMembersPage
	if err := s.API.Call(ctx, EndpointMembersList, body, &w); err != nil {
		return nil, err
	}
	return w.page(EndpointMembersList)
}

// FetchNext implements pagination.Source.
func (s *MemberSource) FetchNext(ctx context.Context, cursor string) (*pagination.Page[Member], error) {
	var w wireMembersPage
	if err := s.API.Call(ctx, EndpointMembersListContinue, map[string]string{"cursor": cursor}, &w); err != nil {
		return nil, err
	}
	return w.page(EndpointMembersListContinue)
}

// ActiveOrSuspended keeps members whose status is active or suspended.
func ActiveOrSuspended(m Member) bool {
	return m.Status == StatusActive || m.Status == StatusSuspended
}

// WithEmails keeps members whose email is in emails (case-insensitive).
// No emails keeps everyone.
func WithEmails(emails ...string) func(Member) bool {
	set := emailSet(emails)
	return func(m Member) bool {
		return len(set) == 0 || set[strings.ToLower(m.Email)]
	}
}

type wireNewMember struct {
	MemberEmail      string `json:"member_email"`
	MemberGivenName  string `json:"member_given_name"`
	MemberSurname    string `json:"member_surname"`
	SendWelcomeEmail bool   `json:"send_welcome_email"`
	Role             tag    `json:"role"`
}

// AddMembers provisions members in one call and returns one result per member.
// Provider-side per-member failures are results, not errors.
func AddMembers(ctx context.Context, api API, members []NewMember) ([]AddResult, error) {
	if len(members) == 0 {
		return nil, nil
	}

	wire := make([]wireNewMember, 0, len(members))
	for _, m := range members {
		if m.Email == "" {
			return nil, client.NewConfigError("new member without email")
		}
		role := m.Role
		if role == "" {
			role = RoleMemberOnly
		}
		wire = append(wire, wireNewMember{
			MemberEmail:      m.Email,
			MemberGivenName:  m.GivenName,
			MemberSurname:    m.Surname,
			SendWelcomeEmail: m.SendWelcomeEmail,
			Role:             tag{Tag: role},
		})
	}

	body := map[string]any{"new_members": wire, "force_async": false}
	var w wireAddMembers
	if err := api.Call(ctx, EndpointMembersAdd, body, &w); err != nil {
		return nil, err
	}
	return w.results(EndpointMembersAdd)
}

// ReadNewMembers reads provisioning input: one member per line as
// email,given name,surname. A header row starting with "email" is skipped.
// role and welcome apply to every member.
func ReadNewMembers(r io.Reader, role string, welcome bool) ([]NewMember, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var out []NewMember
	for first := true; ; first = false {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read members input: %w", err)
		}
		if len(rec) == 0 || strings.TrimSpace(rec[0]) == "" {
			continue
		}
		if first && strings.EqualFold(strings.TrimSpace(rec[0]), "email") {
			continue
		}
		m := NewMember{
			Email:            strings.TrimSpace(rec[0]),
			Role:             role,
			SendWelcomeEmail: welcome,
		}
		if !strings.Contains(m.Email, "@") {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("read members input: line %d: invalid email %q", line, m.Email)
		}
		if len(rec) > 1 {
			m.GivenName = strings.TrimSpace(rec[1])
		}
		if len(rec) > 2 {
			m.Surname = strings.TrimSpace(rec[2])
		}
		out = append(out, m)
	}
	return out, nil
}

// ReadEmails reads the first column of every non-empty line as an email.
// A header row starting with "email" is skipped.
func ReadEmails(r io.Reader) ([]string, error) {
	members, err := ReadNewMembers(r, "", false)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(members))
	for _, m := range members {
		out = append(out, m.Email)
	}
	return out, nil
}

func emailSet(emails []string) map[string]bool {
	set := make(map[string]bool, len(emails))
	for _, e := range emails {
		if e = strings.TrimSpace(e); e != "" {
			set[strings.ToLower(e)] = true
		}
	}
	return set
}
