// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes notemirror tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/notemirror/internal/apperr"
	"github.com/starford/notemirror/internal/models"
	"github.com/starford/notemirror/internal/noteservice"
)

// AnnotationFormatURI is the resource URI of the annotation contract.
const AnnotationFormatURI = "notemirror://annotation-format"

// Server wraps the MCP server with notemirror tools.
type Server struct {
	mcp *server.MCPServer
	svc *noteservice.Service
}

// New creates a new MCP server with all notemirror tools registered.
func New(svc *noteservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"notemirror",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List notes, newest first. Optionally filter by tag (use \"None\" for untagged notes)."),
		mcp.WithString("tag", mcp.Description("Optional tag bucket to filter by")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read a note by id, including its checksum and projected calendar event."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note UUID")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a note. To schedule it, embed a date annotation in the body; "+
			"read get_annotation_contract or the "+AnnotationFormatURI+" resource first."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Note title")),
		mcp.WithString("body", mcp.Description("Note body, may contain one date annotation")),
		mcp.WithString("tag", mcp.Description("Optional tag")),
		mcp.WithString("parent_id", mcp.Description("Optional parent note UUID")),
		mcp.WithString("color", mcp.Description("Optional #RRGGBB color")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("update_note",
		mcp.WithDescription("Update fields of a note. Omitted fields are left unchanged. "+
			"Pass the checksum from read_note to guard against concurrent edits."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note UUID")),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("body", mcp.Description("New body")),
		mcp.WithString("tag", mcp.Description("New tag")),
		mcp.WithString("parent_id", mcp.Description("New parent note UUID")),
		mcp.WithString("color", mcp.Description("New #RRGGBB color")),
		mcp.WithString("checksum", mcp.Description("Expected current checksum")),
	), s.updateNote)

	s.mcp.AddTool(mcp.NewTool("delete_note",
		mcp.WithDescription("Delete a note by id. Deleting an unknown id succeeds."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note UUID")),
	), s.deleteNote)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Fuzzy search through note titles and bodies."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("list_tags",
		mcp.WithDescription("List the tag index. \"None\" collects untagged notes."),
	), s.listTags)

	s.mcp.AddTool(mcp.NewTool("note_tree",
		mcp.WithDescription("Return notes as a parent/child forest."),
	), s.noteTree)

	s.mcp.AddTool(mcp.NewTool("calendar_events",
		mcp.WithDescription("Return all-day calendar events projected from dated notes."),
	), s.calendarEvents)

	s.mcp.AddTool(mcp.NewTool("list_reminders",
		mcp.WithDescription("Return reminders projected from dated notes, soonest first."),
	), s.listReminders)

	s.mcp.AddTool(mcp.NewTool("get_annotation_contract",
		mcp.WithDescription("Returns the date annotation format understood by notemirror. "+
			"Call this before writing note bodies that should appear on the calendar."),
	), s.getAnnotationContract)

	s.mcp.AddResource(
		mcp.NewResource(AnnotationFormatURI, "Annotation Format",
			mcp.WithResourceDescription("How to embed a date in a note body."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readAnnotationResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, err := s.svc.ListNotes(ctx, req.GetString("tag", ""), "")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(items)
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, errRes := requireID(req, "id")
	if errRes != nil {
		return errRes, nil
	}
	note, err := s.svc.GetNote(ctx, id)
	if err != nil {
		return toolError(id, err), nil
	}
	return jsonResult(note)
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	in := noteservice.CreateInput{
		Title: title,
		Body:  req.GetString("body", ""),
		Tag:   optional(req, "tag"),
		Color: optional(req, "color"),
	}
	if in.ParentID, err = optionalID(req, "parent_id"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.svc.CreateNote(ctx, in)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", note.ID)), nil
}

func (s *Server) updateNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, errRes := requireID(req, "id")
	if errRes != nil {
		return errRes, nil
	}
	p := models.NotePatch{
		ID:    id,
		Title: optional(req, "title"),
		Body:  optional(req, "body"),
		Tag:   optional(req, "tag"),
		Color: optional(req, "color"),
	}
	var err error
	if p.ParentID, err = optionalID(req, "parent_id"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.svc.UpdateNote(ctx, p, req.GetString("checksum", ""))
	if err != nil {
		return toolError(id, err), nil
	}
	return jsonResult(note)
}

func (s *Server) deleteNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, errRes := requireID(req, "id")
	if errRes != nil {
		return errRes, nil
	}
	if err := s.svc.DeleteNote(ctx, id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", id)), nil
}

func (s *Server) searchNotes(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(s.svc.Search(query))
}

func (s *Server) listTags(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.Tags())
}

func (s *Server) noteTree(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.Tree())
}

func (s *Server) calendarEvents(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.Events())
}

func (s *Server) listReminders(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.Reminders())
}

func (s *Server) getAnnotationContract(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(AnnotationContract), nil
}

func (s *Server) readAnnotationResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      AnnotationFormatURI,
			MIMEType: "text/markdown",
			Text:     AnnotationContract,
		},
	}, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func toolError(id uuid.UUID, err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id))
	case errors.Is(err, apperr.ErrConflict):
		return mcp.NewToolResultError("checksum mismatch: re-read the note and retry")
	}
	return mcp.NewToolResultError(err.Error())
}

func requireID(req mcp.CallToolRequest, key string) (uuid.UUID, *mcp.CallToolResult) {
	raw, err := req.RequireString(key)
	if err != nil {
		return uuid.Nil, mcp.NewToolResultError(err.Error())
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, mcp.NewToolResultError(fmt.Sprintf("%s must be a UUID", key))
	}
	return id, nil
}

// optional returns nil when key is absent so patches leave the field alone.
func optional(req mcp.CallToolRequest, key string) *string {
	v, err := req.RequireString(key)
	if err != nil {
		return nil
	}
	return &v
}

func optionalID(req mcp.CallToolRequest, key string) (*uuid.UUID, error) {
	v := optional(req, key)
	if v == nil || *v == "" {
		return nil, nil
	}
	id, err := uuid.Parse(*v)
	if err != nil {
		return nil, fmt.Errorf("%s must be a UUID", key)
	}
	return &id, nil
}
