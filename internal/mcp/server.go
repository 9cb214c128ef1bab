// Package mcp exposes the tracker as MCP tools. Tools go through the
// same tracker service as the HTTP API and CLI, so the permission
// model cannot be bypassed: every tool resolves an acting user from
// its "actor" argument (or the configured default handle).
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/trk-project/trk/internal/models"
	"github.com/trk-project/trk/internal/policy"
	"github.com/trk-project/trk/internal/tracker"
)

// Server wraps the tracker service and exposes it as MCP tools.
type Server struct {
	svc          *tracker.Service
	defaultActor string // handle used when a tool omits "actor"
}

// NewServer creates the MCP server wrapper.
func NewServer(svc *tracker.Service, defaultActor string) *Server {
	return &Server{svc: svc, defaultActor: defaultActor}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("trk", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.listIssuesTool())
	srv.AddTool(s.createIssueTool())
	srv.AddTool(s.updateIssueTool())
	srv.AddTool(s.assignIssueTool())
	srv.AddTool(s.setStatusTool())
	srv.AddTool(s.archiveIssueTool())
	srv.AddTool(s.addCommentTool())
	srv.AddTool(s.listUsersTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// resolveActor maps a tool's actor handle to a policy actor. An
// empty handle with no configured default yields the anonymous
// actor, which the tracker denies on every operation.
func (s *Server) resolveActor(ctx context.Context, handle string) (policy.Actor, error) {
	if handle == "" {
		handle = s.defaultActor
	}
	if handle == "" {
		return policy.Actor{}, nil
	}
	u, err := s.svc.GetUserByHandle(ctx, handle)
	if err != nil {
		return policy.Actor{}, fmt.Errorf("unknown actor %q: %w", handle, err)
	}
	return policy.Actor{ID: u.ID, Superuser: u.Superuser}, nil
}

func actorArg() mcp.ToolOption {
	return mcp.WithString("actor", mcp.Description("Handle of the user to act as (defaults to the configured actor)"))
}

type issueOut struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	ReporterID string `json:"reporter_id"`
	AssigneeID string `json:"assignee_id,omitempty"`
	Status     string `json:"status,omitempty"`
	Priority   string `json:"priority"`
	Archived   bool   `json:"archived"`
}

func toIssueOut(i *models.Issue) issueOut {
	return issueOut{
		ID:         i.ID,
		Title:      i.Title,
		ReporterID: i.ReporterID,
		AssigneeID: i.AssigneeID,
		Status:     string(i.Status),
		Priority:   string(i.Priority),
		Archived:   i.Archived,
	}
}

func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err))
	}
	return mcp.NewToolResultText(string(data))
}

// trk_list_issues
func (s *Server) listIssuesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("trk_list_issues",
		mcp.WithDescription("List issues. Returns a JSON array with id, title, reporter, assignee, status, priority, and archived flag."),
		actorArg(),
		mcp.WithString("status", mcp.Description("Filter by status: open, in_progress, resolved")),
		mcp.WithString("priority", mcp.Description("Filter by priority: low, medium, high")),
		mcp.WithString("search", mcp.Description("Free-text search over title and description")),
	)
	return tool, s.handleListIssues
}

func (s *Server) handleListIssues(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actor, err := s.resolveActor(ctx, request.GetString("actor", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	issues, err := s.svc.ListIssues(ctx, actor, tracker.IssueFilter{
		Status:   request.GetString("status", ""),
		Priority: request.GetString("priority", ""),
		Search:   request.GetString("search", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list issues: %v", err)), nil
	}

	out := make([]issueOut, len(issues))
	for i, issue := range issues {
		out[i] = toIssueOut(issue)
	}
	return jsonResult(out), nil
}

// trk_create_issue
func (s *Server) createIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("trk_create_issue",
		mcp.WithDescription("Create a new issue reported by the acting user."),
		actorArg(),
		mcp.WithString("title", mcp.Required(), mcp.Description("Issue title")),
		mcp.WithString("description", mcp.Description("Issue description")),
		mcp.WithString("priority", mcp.Description("Priority: low, medium, high (default medium)")),
	)
	return tool, s.handleCreateIssue
}

func (s *Server) handleCreateIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actor, err := s.resolveActor(ctx, request.GetString("actor", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	issue, err := s.svc.CreateIssue(ctx, actor, tracker.CreateIssueParams{
		Title:       request.GetString("title", ""),
		Description: request.GetString("description", ""),
		Priority:    models.IssuePriority(request.GetString("priority", "")),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create issue: %v", err)), nil
	}
	return jsonResult(toIssueOut(issue)), nil
}

// trk_update_issue
func (s *Server) updateIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("trk_update_issue",
		mcp.WithDescription("Update an issue's title, description, or priority. Reporter only."),
		actorArg(),
		mcp.WithString("issue_id", mcp.Required(), mcp.Description("Issue ID")),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("description", mcp.Description("New description")),
		mcp.WithString("priority", mcp.Description("New priority: low, medium, high")),
	)
	return tool, s.handleUpdateIssue
}

func (s *Server) handleUpdateIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actor, err := s.resolveActor(ctx, request.GetString("actor", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var patch tracker.IssuePatch
	if v := request.GetString("title", ""); v != "" {
		patch.Title = &v
	}
	if v := request.GetString("description", ""); v != "" {
		patch.Description = &v
	}
	if v := request.GetString("priority", ""); v != "" {
		p := models.IssuePriority(v)
		patch.Priority = &p
	}

	issue, err := s.svc.UpdateIssue(ctx, actor, request.GetString("issue_id", ""), patch)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to update issue: %v", err)), nil
	}
	return jsonResult(toIssueOut(issue)), nil
}

// trk_assign_issue
func (s *Server) assignIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("trk_assign_issue",
		mcp.WithDescription("Assign an issue to a user by handle, or clear the assignee (which also clears the status). Reporter only."),
		actorArg(),
		mcp.WithString("issue_id", mcp.Required(), mcp.Description("Issue ID")),
		mcp.WithString("assignee", mcp.Description("Handle of the new assignee; omit to clear")),
	)
	return tool, s.handleAssignIssue
}

func (s *Server) handleAssignIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actor, err := s.resolveActor(ctx, request.GetString("actor", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	assigneeID := ""
	if handle := request.GetString("assignee", ""); handle != "" {
		u, err := s.svc.GetUserByHandle(ctx, handle)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("unknown assignee %q", handle)), nil
		}
		assigneeID = u.ID
	}

	issue, err := s.svc.SetAssignee(ctx, actor, request.GetString("issue_id", ""), assigneeID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to assign issue: %v", err)), nil
	}
	return jsonResult(toIssueOut(issue)), nil
}

// trk_set_status
func (s *Server) setStatusTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("trk_set_status",
		mcp.WithDescription("Set an issue's status: open, in_progress, or resolved. Assignee only; fails while the issue is unassigned."),
		actorArg(),
		mcp.WithString("issue_id", mcp.Required(), mcp.Description("Issue ID")),
		mcp.WithString("status", mcp.Required(), mcp.Description("New status")),
	)
	return tool, s.handleSetStatus
}

func (s *Server) handleSetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actor, err := s.resolveActor(ctx, request.GetString("actor", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	issue, err := s.svc.SetStatus(ctx, actor,
		request.GetString("issue_id", ""),
		models.IssueStatus(request.GetString("status", "")))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to set status: %v", err)), nil
	}
	return jsonResult(toIssueOut(issue)), nil
}

// trk_archive_issue
func (s *Server) archiveIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("trk_archive_issue",
		mcp.WithDescription("Archive or unarchive an issue. Reporter only. Archived issues and their comments are read-only."),
		actorArg(),
		mcp.WithString("issue_id", mcp.Required(), mcp.Description("Issue ID")),
		mcp.WithBoolean("archived", mcp.Description("Target archived state (default true)")),
	)
	return tool, s.handleArchiveIssue
}

func (s *Server) handleArchiveIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actor, err := s.resolveActor(ctx, request.GetString("actor", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	issue, err := s.svc.SetArchived(ctx, actor,
		request.GetString("issue_id", ""),
		request.GetBool("archived", true))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to archive issue: %v", err)), nil
	}
	return jsonResult(toIssueOut(issue)), nil
}

// trk_add_comment
func (s *Server) addCommentTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("trk_add_comment",
		mcp.WithDescription("Add a comment to an issue. Denied while the issue is archived."),
		actorArg(),
		mcp.WithString("issue_id", mcp.Required(), mcp.Description("Issue ID")),
		mcp.WithString("body", mcp.Required(), mcp.Description("Comment body")),
	)
	return tool, s.handleAddComment
}

func (s *Server) handleAddComment(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actor, err := s.resolveActor(ctx, request.GetString("actor", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	comment, err := s.svc.CreateComment(ctx, actor,
		request.GetString("issue_id", ""),
		request.GetString("body", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to add comment: %v", err)), nil
	}
	return jsonResult(map[string]string{
		"id":       comment.ID,
		"issue_id": comment.IssueID,
		"body":     comment.Body,
	}), nil
}

// trk_list_users
func (s *Server) listUsersTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("trk_list_users",
		mcp.WithDescription("List registered users (handles and display names). Authenticated actors only."),
		actorArg(),
	)
	return tool, s.handleListUsers
}

func (s *Server) handleListUsers(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actor, err := s.resolveActor(ctx, request.GetString("actor", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	users, err := s.svc.ListUsers(ctx, actor, 0, 0)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list users: %v", err)), nil
	}

	type userOut struct {
		Handle      string `json:"handle"`
		DisplayName string `json:"display_name"`
	}
	out := make([]userOut, len(users))
	for i, u := range users {
		out[i] = userOut{Handle: u.Handle, DisplayName: u.DisplayName}
	}
	return jsonResult(out), nil
}
