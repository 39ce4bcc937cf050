package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/teamadmin/pkg/export"
	"github.com/Sternrassler/teamadmin/pkg/progress"
	"github.com/Sternrassler/teamadmin/pkg/team"
)

// exportFlags are shared by every listing command.
type exportFlags struct {
	csvPath string
	columns []string
}

func (f *exportFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.csvPath, "csv", "", "write CSV to this file (relative to output_dir) instead of stdout")
	cmd.Flags().StringSliceVar(&f.columns, "columns", nil, "columns to export, in order (default: all)")
}

// exportItems writes items; the export reports as its own progress run.
func exportItems[T any](a *app, cmd *cobra.Command, f *exportFlags, columns []export.Column[T], items []T, sink progress.Sink) error {
	return writeItems(a, cmd, columns, f.columns, items, f.csvPath, sink, uuid.NewString())
}

func newMembersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "members",
		Short: "List and provision team members",
	}
	cmd.AddCommand(newMembersListCmd(a), newMembersAddCmd(a))
	return cmd
}

func newMembersListCmd(a *app) *cobra.Command {
	var (
		emails []string
		out    exportFlags
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active and suspended members",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			return a.withProgress(cmd, func(sink progress.Sink) error {
				res, err := svc.ListMembers(cmd.Context(), sink, emails...)
				if err != nil {
					return err
				}
				return exportItems(a, cmd, &out, team.MemberColumns, res.Items, sink)
			})
		},
	}
	cmd.Flags().StringSliceVar(&emails, "email", nil, "only list these member emails")
	out.register(cmd)
	return cmd
}

func newMembersAddCmd(a *app) *cobra.Command {
	var (
		input   string
		role    string
		welcome bool
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Provision members from a CSV file of email,first name,last name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := os.Open(input)
			if err != nil {
				return fmt.Errorf("open input: %w", err)
			}
			defer f.Close()

			members, err := team.ReadNewMembers(f, role, welcome)
			if err != nil {
				return err
			}
			if len(members) == 0 {
				return fmt.Errorf("no members in %s", input)
			}

			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			results, err := svc.AddMembers(cmd.Context(), members)
			if err != nil {
				return err
			}

			added := 0
			for _, r := range results {
				if r.OK() {
					added++
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s,%s\n", r.Email, r.Status)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Added %d of %d member(s).\n", added, len(members))
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "CSV file with one member per line")
	cmd.Flags().StringVar(&role, "role", team.RoleMemberOnly, "role of the new members")
	cmd.Flags().BoolVar(&welcome, "welcome", false, "send a welcome email")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func newPaperCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "paper",
		Short: "Export Paper documents",
	}

	var (
		metadata bool
		owners   []string
		out      exportFlags
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List the Paper documents of every active or suspended member",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			return a.withProgress(cmd, func(sink progress.Sink) error {
				res, err := svc.ListPaperDocs(cmd.Context(), sink, metadata, owners...)
				if err != nil {
					return err
				}
				for _, se := range res.SoftErrors {
					a.logger.Warn().Err(se.Err).Str("doc_id", se.Key).Msg("Document skipped")
				}
				return exportItems(a, cmd, &out, team.PaperColumns, res.Items, sink)
			})
		},
	}
	list.Flags().BoolVar(&metadata, "metadata", false, "fetch title, status and dates of every document")
	list.Flags().StringSliceVar(&owners, "member", nil, "only documents of these member emails")
	out.register(list)

	cmd.AddCommand(list)
	return cmd
}

func newAuditCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Export team audit events",
	}

	var (
		start, end string
		category   string
		actors     []string
		actorsFile string
		limit      int
		out        exportFlags
	)
	events := &cobra.Command{
		Use:   "events",
		Short: "List audit events in a time range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := team.EventQuery{Category: category, Limit: limit}
			var err error
			if q.Start, err = parseTime(start); err != nil {
				return fmt.Errorf("--start: %w", err)
			}
			if q.End, err = parseTime(end); err != nil {
				return fmt.Errorf("--end: %w", err)
			}
			if !q.Start.IsZero() && !q.End.IsZero() && q.End.Before(q.Start) {
				return fmt.Errorf("--end is before --start")
			}

			if actorsFile != "" {
				f, err := os.Open(actorsFile)
				if err != nil {
					return fmt.Errorf("open members file: %w", err)
				}
				emails, err := team.ReadEmails(f)
				f.Close()
				if err != nil {
					return err
				}
				actors = append(actors, emails...)
			}

			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			return a.withProgress(cmd, func(sink progress.Sink) error {
				res, err := svc.AuditEvents(cmd.Context(), sink, q, actors...)
				if err != nil {
					return err
				}
				return exportItems(a, cmd, &out, team.AuditColumns, res.Items, sink)
			})
		},
	}
	events.Flags().StringVar(&start, "start", "", "start of the range (YYYY-MM-DD or RFC 3339)")
	events.Flags().StringVar(&end, "end", "", "end of the range (YYYY-MM-DD or RFC 3339)")
	events.Flags().StringVar(&category, "category", "", "event category, e.g. logins, sharing, members")
	events.Flags().StringSliceVar(&actors, "member", nil, "only events by these member emails")
	events.Flags().StringVar(&actorsFile, "members-file", "", "file with one member email per line")
	events.Flags().IntVar(&limit, "limit", 0, "page size (default: aggregation.page_limit)")
	out.register(events)

	cmd.AddCommand(events)
	return cmd
}

func newFoldersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "folders",
		Short: "Browse member folders",
	}

	var (
		member string
		path   string
		out    exportFlags
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List a member's folder recursively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			id, _, err := resolveMember(cmd, svc, member)
			if err != nil {
				return err
			}
			return a.withProgress(cmd, func(sink progress.Sink) error {
				res, err := svc.ListFolder(cmd.Context(), sink, id, path)
				if err != nil {
					return err
				}
				return exportItems(a, cmd, &out, team.FolderColumns, res.Items, sink)
			})
		},
	}
	list.Flags().StringVar(&member, "member", "", "team member id or email to act as")
	list.Flags().StringVar(&path, "path", "", "folder to list (default: root)")
	_ = list.MarkFlagRequired("member")
	out.register(list)

	cmd.AddCommand(list)
	return cmd
}

func newFilesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files",
		Short: "Download member files",
	}

	var (
		req    team.DumpRequest
		outDir string
	)
	dump := &cobra.Command{
		Use:   "dump",
		Short: "Download one file into <out>/<email prefix>/<folder>/<name>",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if outDir == "" {
				outDir = a.cfg.OutputDir
			}
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			id, email, err := resolveMember(cmd, svc, req.MemberID)
			if err != nil {
				return err
			}
			req.MemberID = id
			if req.Email == "" {
				req.Email = email
			}
			local, n, err := svc.DumpFile(cmd.Context(), req, outDir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%d bytes)\n", local, n)
			return nil
		},
	}
	dump.Flags().StringVar(&req.MemberID, "member", "", "team member id or email to act as")
	dump.Flags().StringVar(&req.Email, "email", "", "member email, names the local folder (default: --member when it is an email)")
	dump.Flags().StringVar(&req.Path, "path", "", "path of the file to download")
	dump.Flags().StringVar(&req.FileName, "name", "", "local file name (default: base of --path)")
	dump.Flags().StringVar(&outDir, "out", "", "output directory (default: output_dir)")
	for _, name := range []string{"member", "path"} {
		_ = dump.MarkFlagRequired(name)
	}

	cmd.AddCommand(dump)
	return cmd
}

func newTeamFoldersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "teamfolders",
		Short: "Manage team folders",
	}

	printFolder := func(cmd *cobra.Command, f team.TeamFolder) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s,%s,%s\n", f.ID, f.Name, f.Status)
	}
	run := func(op func(cmd *cobra.Command, svc *team.Service, arg string) (team.TeamFolder, error)) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			f, err := op(cmd, svc, args[0])
			if err != nil {
				return err
			}
			printFolder(cmd, f)
			return nil
		}
	}

	create := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a team folder",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(cmd *cobra.Command, svc *team.Service, name string) (team.TeamFolder, error) {
			return svc.CreateTeamFolder(cmd.Context(), name)
		}),
	}
	activate := &cobra.Command{
		Use:   "activate ID",
		Short: "Reactivate an archived team folder",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(cmd *cobra.Command, svc *team.Service, id string) (team.TeamFolder, error) {
			return svc.SetTeamFolderStatus(cmd.Context(), id, true)
		}),
	}
	archive := &cobra.Command{
		Use:   "archive ID",
		Short: "Archive a team folder",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(cmd *cobra.Command, svc *team.Service, id string) (team.TeamFolder, error) {
			return svc.SetTeamFolderStatus(cmd.Context(), id, false)
		}),
	}

	var enabled bool
	sync := &cobra.Command{
		Use:   "sync ID",
		Short: "Set whether a team folder syncs to members' devices by default",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(cmd *cobra.Command, svc *team.Service, id string) (team.TeamFolder, error) {
			return svc.SetTeamFolderSync(cmd.Context(), id, enabled)
		}),
	}
	sync.Flags().BoolVar(&enabled, "enabled", false, "sync by default (false: not_synced)")

	cmd.AddCommand(create, activate, archive, sync)
	return cmd
}

// resolveMember returns the team member id for member, looking it up when
// member is an email. email is empty when member is already an id.
func resolveMember(cmd *cobra.Command, svc *team.Service, member string) (id, email string, err error) {
	if !strings.Contains(member, "@") {
		return member, "", nil
	}
	m, err := svc.MemberByEmail(cmd.Context(), member)
	if err != nil {
		return "", "", err
	}
	return m.TeamMemberID, m.Email, nil
}

// parseTime accepts a date (YYYY-MM-DD, UTC midnight) or an RFC 3339 timestamp.
// An empty value is the zero time.
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: want YYYY-MM-DD or RFC 3339", s)
	}
	return t, nil
}
