package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/trk-project/trk/internal/models"
	"github.com/trk-project/trk/internal/output"
	"github.com/trk-project/trk/internal/tracker"
)

var (
	issueTitle    string
	issueDesc     string
	issuePriority string
	issueStatus   string
	issueAssignee string
	issueReporter string
	issueSearch   string
	issueOrderBy  string
	issueArchived bool
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Manage issues",
	Long:  "Create, list, assign, progress, and archive issues.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun()
	},
}

var issueAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Report a new issue",
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueAddRun()
	},
}

var issueListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List issues",
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun()
	},
}

var issueShowCmd = &cobra.Command{
	Use:   "show <issue-id>",
	Short: "Show issue details with comments",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueShowRun(args[0])
	},
}

var issueUpdateCmd = &cobra.Command{
	Use:   "update <issue-id>",
	Short: "Edit title, description, or priority (reporter only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueUpdateRun(args[0])
	},
}

var issueAssignCmd = &cobra.Command{
	Use:   "assign <issue-id> [handle]",
	Short: "Assign an issue to a user, or clear the assignee (reporter only)",
	Long: `Assign an issue to a user by handle. Without a handle the assignee is
cleared, which also clears the issue's status.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		handle := ""
		if len(args) > 1 {
			handle = args[1]
		}
		return issueAssignRun(args[0], handle)
	},
}

var issueStatusCmd = &cobra.Command{
	Use:   "status <issue-id> <status>",
	Short: "Set issue status: open, in_progress, resolved (assignee only)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueStatusRun(args[0], args[1])
	},
}

var issueArchiveCmd = &cobra.Command{
	Use:   "archive <issue-id>",
	Short: "Archive an issue, freezing it and its comments (reporter only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueArchiveRun(args[0], true)
	},
}

var issueUnarchiveCmd = &cobra.Command{
	Use:   "unarchive <issue-id>",
	Short: "Reverse the archive freeze (reporter only, if policy allows)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueArchiveRun(args[0], false)
	},
}

var issueDeleteCmd = &cobra.Command{
	Use:     "delete <issue-id>",
	Aliases: []string{"rm"},
	Short:   "Delete an issue and its comments (reporter only)",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueDeleteRun(args[0])
	},
}

func init() {
	issueAddCmd.Flags().StringVar(&issueTitle, "title", "", "Issue title (required)")
	issueAddCmd.Flags().StringVar(&issueDesc, "desc", "", "Issue description")
	issueAddCmd.Flags().StringVar(&issuePriority, "priority", "", "Priority: low, medium, high (default medium)")
	_ = issueAddCmd.MarkFlagRequired("title")

	issueListCmd.Flags().StringVar(&issueStatus, "status", "", "Filter by status: open, in_progress, resolved")
	issueListCmd.Flags().StringVar(&issuePriority, "priority", "", "Filter by priority")
	issueListCmd.Flags().StringVar(&issueAssignee, "assignee", "", "Filter by assignee handle")
	issueListCmd.Flags().StringVar(&issueReporter, "reporter", "", "Filter by reporter handle")
	issueListCmd.Flags().StringVar(&issueSearch, "search", "", "Free-text search over title and description")
	issueListCmd.Flags().StringVar(&issueOrderBy, "order-by", "", "Order: created_at, updated_at, priority")
	issueListCmd.Flags().BoolVar(&issueArchived, "archived", false, "Show archived issues only")

	issueUpdateCmd.Flags().StringVar(&issueTitle, "title", "", "New title")
	issueUpdateCmd.Flags().StringVar(&issueDesc, "desc", "", "New description")
	issueUpdateCmd.Flags().StringVar(&issuePriority, "priority", "", "New priority")

	issueCmd.AddCommand(issueAddCmd)
	issueCmd.AddCommand(issueListCmd)
	issueCmd.AddCommand(issueShowCmd)
	issueCmd.AddCommand(issueUpdateCmd)
	issueCmd.AddCommand(issueAssignCmd)
	issueCmd.AddCommand(issueStatusCmd)
	issueCmd.AddCommand(issueArchiveCmd)
	issueCmd.AddCommand(issueUnarchiveCmd)
	issueCmd.AddCommand(issueDeleteCmd)
	rootCmd.AddCommand(issueCmd)
}

func issueAddRun() error {
	svc, err := getService()
	if err != nil {
		return err
	}
	ctx := context.Background()

	actor, err := currentActor(ctx)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would create issue: %s [%s]", issueTitle, issuePriority)
		return nil
	}

	issue, err := svc.CreateIssue(ctx, actor, tracker.CreateIssueParams{
		Title:       issueTitle,
		Description: issueDesc,
		Priority:    models.IssuePriority(issuePriority),
	})
	if err != nil {
		return err
	}

	ui.Success("Created issue %s: %s", output.Cyan(shortID(issue.ID)), issue.Title)
	return nil
}

// handleToID resolves a user handle to its id for filter flags.
func handleToID(ctx context.Context, svc *tracker.Service, handle string) (string, error) {
	if handle == "" {
		return "", nil
	}
	u, err := svc.GetUserByHandle(ctx, handle)
	if err != nil {
		return "", fmt.Errorf("unknown user %q: %w", handle, err)
	}
	return u.ID, nil
}

func issueListRun() error {
	svc, err := getService()
	if err != nil {
		return err
	}
	ctx := context.Background()

	actor, err := currentActor(ctx)
	if err != nil {
		return err
	}

	assigneeID, err := handleToID(ctx, svc, issueAssignee)
	if err != nil {
		return err
	}
	reporterID, err := handleToID(ctx, svc, issueReporter)
	if err != nil {
		return err
	}

	filter := tracker.IssueFilter{
		Status:     issueStatus,
		Priority:   issuePriority,
		AssigneeID: assigneeID,
		ReporterID: reporterID,
		Search:     issueSearch,
		OrderBy:    issueOrderBy,
	}
	if issueArchived {
		archived := true
		filter.Archived = &archived
	}

	issues, err := svc.ListIssues(ctx, actor, filter)
	if err != nil {
		return err
	}

	if len(issues) == 0 {
		ui.Info("No issues found.")
		return nil
	}

	// Cache id -> handle lookups for display
	handles := make(map[string]string)
	handleOf := func(id string) string {
		if id == "" {
			return "-"
		}
		if h, ok := handles[id]; ok {
			return h
		}
		h := shortID(id)
		if s, err := getStore(); err == nil {
			if u, err := s.GetUser(ctx, id); err == nil {
				h = u.Handle
			}
		}
		handles[id] = h
		return h
	}

	table := ui.Table([]string{"ID", "Title", "Reporter", "Assignee", "Status", "Priority", "Archived"})
	for _, issue := range issues {
		archived := ""
		if issue.Archived {
			archived = output.Red("yes")
		}
		_ = table.Append([]string{
			shortID(issue.ID),
			issue.Title,
			handleOf(issue.ReporterID),
			handleOf(issue.AssigneeID),
			output.StatusColor(string(issue.Status)),
			output.PriorityColor(string(issue.Priority)),
			archived,
		})
	}
	_ = table.Render()
	return nil
}

func issueShowRun(id string) error {
	svc, err := getService()
	if err != nil {
		return err
	}
	ctx := context.Background()

	actor, err := currentActor(ctx)
	if err != nil {
		return err
	}

	issue, err := svc.GetIssue(ctx, actor, id)
	if err != nil {
		return err
	}

	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(shortID(issue.ID)), issue.Title)
	fmt.Fprintf(ui.Out, "  Status:     %s\n", output.StatusColor(string(issue.Status)))
	fmt.Fprintf(ui.Out, "  Priority:   %s\n", output.PriorityColor(string(issue.Priority)))
	fmt.Fprintf(ui.Out, "  Reporter:   %s\n", issue.ReporterID)
	if issue.AssigneeID != "" {
		fmt.Fprintf(ui.Out, "  Assignee:   %s\n", issue.AssigneeID)
	}
	if issue.Archived {
		fmt.Fprintf(ui.Out, "  Archived:   %s\n", output.Red("yes"))
	}
	if issue.Description != "" {
		fmt.Fprintf(ui.Out, "  Desc:       %s\n", issue.Description)
	}
	fmt.Fprintf(ui.Out, "  Created:    %s\n", issue.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(ui.Out, "  Updated:    %s\n", issue.UpdatedAt.Format(time.RFC3339))
	fmt.Fprintf(ui.Out, "  Full ID:    %s\n", issue.ID)

	comments, err := svc.ListComments(ctx, actor, issue.ID, 0, 0)
	if err == nil && len(comments) > 0 {
		fmt.Fprintln(ui.Out)
		for _, c := range comments {
			fmt.Fprintf(ui.Out, "  %s %s %s\n",
				output.Yellow(shortID(c.ID)),
				c.CreatedAt.Format("2006-01-02 15:04"),
				strings.TrimSpace(c.Body))
		}
	}
	return nil
}

func issueUpdateRun(id string) error {
	svc, err := getService()
	if err != nil {
		return err
	}
	ctx := context.Background()

	actor, err := currentActor(ctx)
	if err != nil {
		return err
	}

	var patch tracker.IssuePatch
	if issueTitle != "" {
		patch.Title = &issueTitle
	}
	if issueDesc != "" {
		patch.Description = &issueDesc
	}
	if issuePriority != "" {
		p := models.IssuePriority(issuePriority)
		patch.Priority = &p
	}
	if patch.Title == nil && patch.Description == nil && patch.Priority == nil {
		ui.Warning("Nothing to update (use --title, --desc, or --priority)")
		return nil
	}

	if dryRun {
		ui.DryRunMsg("Would update issue %s", shortID(id))
		return nil
	}

	issue, err := svc.UpdateIssue(ctx, actor, id, patch)
	if err != nil {
		return err
	}
	ui.Success("Updated issue %s", output.Cyan(shortID(issue.ID)))
	return nil
}

func issueAssignRun(id, handle string) error {
	svc, err := getService()
	if err != nil {
		return err
	}
	ctx := context.Background()

	actor, err := currentActor(ctx)
	if err != nil {
		return err
	}

	assigneeID := ""
	if handle != "" {
		u, err := svc.GetUserByHandle(ctx, handle)
		if err != nil {
			return fmt.Errorf("unknown user %q: %w", handle, err)
		}
		assigneeID = u.ID
	}

	if dryRun {
		if handle == "" {
			ui.DryRunMsg("Would clear assignee of issue %s", shortID(id))
		} else {
			ui.DryRunMsg("Would assign issue %s to %s", shortID(id), handle)
		}
		return nil
	}

	issue, err := svc.SetAssignee(ctx, actor, id, assigneeID)
	if err != nil {
		return err
	}

	if handle == "" {
		ui.Success("Cleared assignee of issue %s (status reset)", output.Cyan(shortID(issue.ID)))
	} else {
		ui.Success("Assigned issue %s to %s", output.Cyan(shortID(issue.ID)), handle)
	}
	return nil
}

func issueStatusRun(id, status string) error {
	svc, err := getService()
	if err != nil {
		return err
	}
	ctx := context.Background()

	actor, err := currentActor(ctx)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would set issue %s status to %s", shortID(id), status)
		return nil
	}

	issue, err := svc.SetStatus(ctx, actor, id, models.IssueStatus(status))
	if err != nil {
		return err
	}
	ui.Success("Issue %s is now %s", output.Cyan(shortID(issue.ID)), output.StatusColor(string(issue.Status)))
	return nil
}

func issueArchiveRun(id string, archived bool) error {
	svc, err := getService()
	if err != nil {
		return err
	}
	ctx := context.Background()

	actor, err := currentActor(ctx)
	if err != nil {
		return err
	}

	if dryRun {
		verb := "archive"
		if !archived {
			verb = "unarchive"
		}
		ui.DryRunMsg("Would %s issue %s", verb, shortID(id))
		return nil
	}

	issue, err := svc.SetArchived(ctx, actor, id, archived)
	if err != nil {
		return err
	}
	if archived {
		ui.Success("Archived issue %s", output.Cyan(shortID(issue.ID)))
	} else {
		ui.Success("Unarchived issue %s", output.Cyan(shortID(issue.ID)))
	}
	return nil
}

func issueDeleteRun(id string) error {
	svc, err := getService()
	if err != nil {
		return err
	}
	ctx := context.Background()

	actor, err := currentActor(ctx)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would delete issue %s and its comments", shortID(id))
		return nil
	}

	if err := svc.DeleteIssue(ctx, actor, id); err != nil {
		return err
	}
	ui.Success("Deleted issue %s", shortID(id))
	return nil
}
