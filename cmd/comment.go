package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/trk-project/trk/internal/output"
)

var commentCmd = &cobra.Command{
	Use:   "comment",
	Short: "Manage comments on issues",
}

var commentAddCmd = &cobra.Command{
	Use:   "add <issue-id> <body>",
	Short: "Add a comment to an issue",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return commentAddRun(args[0], strings.Join(args[1:], " "))
	},
}

var commentListCmd = &cobra.Command{
	Use:     "list <issue-id>",
	Aliases: []string{"ls"},
	Short:   "List comments on an issue",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return commentListRun(args[0])
	},
}

var commentEditCmd = &cobra.Command{
	Use:   "edit <comment-id> <body>",
	Short: "Replace the body of your own comment",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return commentEditRun(args[0], strings.Join(args[1:], " "))
	},
}

var commentDeleteCmd = &cobra.Command{
	Use:     "delete <comment-id>",
	Aliases: []string{"rm"},
	Short:   "Delete your own comment",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return commentDeleteRun(args[0])
	},
}

func init() {
	commentCmd.AddCommand(commentAddCmd)
	commentCmd.AddCommand(commentListCmd)
	commentCmd.AddCommand(commentEditCmd)
	commentCmd.AddCommand(commentDeleteCmd)
	rootCmd.AddCommand(commentCmd)
}

func commentAddRun(issueID, body string) error {
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
		ui.DryRunMsg("Would comment on issue %s", shortID(issueID))
		return nil
	}

	comment, err := svc.CreateComment(ctx, actor, issueID, body)
	if err != nil {
		return err
	}
	ui.Success("Added comment %s to issue %s", output.Yellow(shortID(comment.ID)), output.Cyan(shortID(comment.IssueID)))
	return nil
}

func commentListRun(issueID string) error {
	svc, err := getService()
	if err != nil {
		return err
	}
	ctx := context.Background()

	actor, err := currentActor(ctx)
	if err != nil {
		return err
	}

	comments, err := svc.ListComments(ctx, actor, issueID, 0, 0)
	if err != nil {
		return err
	}

	if len(comments) == 0 {
		ui.Info("No comments.")
		return nil
	}

	table := ui.Table([]string{"ID", "Author", "Created", "Body"})
	for _, c := range comments {
		author := shortID(c.AuthorID)
		if s, err := getStore(); err == nil {
			if u, err := s.GetUser(ctx, c.AuthorID); err == nil {
				author = u.Handle
			}
		}
		_ = table.Append([]string{
			shortID(c.ID),
			author,
			c.CreatedAt.Format("2006-01-02 15:04"),
			c.Body,
		})
	}
	_ = table.Render()
	return nil
}

func commentEditRun(id, body string) error {
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
		ui.DryRunMsg("Would edit comment %s", shortID(id))
		return nil
	}

	comment, err := svc.UpdateComment(ctx, actor, id, body)
	if err != nil {
		return err
	}
	ui.Success("Updated comment %s", output.Yellow(shortID(comment.ID)))
	return nil
}

func commentDeleteRun(id string) error {
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
		ui.DryRunMsg("Would delete comment %s", shortID(id))
		return nil
	}

	if err := svc.DeleteComment(ctx, actor, id); err != nil {
		return err
	}
	ui.Success("Deleted comment %s", shortID(id))
	return nil
}
