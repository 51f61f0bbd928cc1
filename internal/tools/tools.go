// Package tools implements the MCP tool surface of the orchestrator:
// manage_container, manage_dependency, manage_template,
// request_transition, set_status, and the read tools. Every tool returns
// a JSON envelope {success, message, data?, error?, metadata?}; batch
// tools always answer success=true and report per-item outcomes in
// counts and failures.
package tools

import (
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/taskorchestrator/taskorchestrator/internal/cascade"
	"github.com/taskorchestrator/taskorchestrator/internal/lock"
	"github.com/taskorchestrator/taskorchestrator/internal/mcp"
	"github.com/taskorchestrator/taskorchestrator/internal/progression"
	"github.com/taskorchestrator/taskorchestrator/internal/repo"
	"github.com/taskorchestrator/taskorchestrator/internal/taskerr"
	"github.com/taskorchestrator/taskorchestrator/internal/template"
	"github.com/taskorchestrator/taskorchestrator/internal/validation"
)

// maxBatchSize bounds the containers/ids arrays of batch tools.
const maxBatchSize = 100

// Deps bundles the services the tools operate on.
type Deps struct {
	Repos     repo.Set
	Progress  *progression.Service
	Validate  *validation.Validator
	Cascades  *cascade.Service
	Templates *template.Engine
	Locks     *lock.KeyedLock
	Logger    *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

// Register wires every orchestrator tool into the MCP registry.
func Register(reg *mcp.Registry, deps Deps) {
	reg.Register(NewManageContainer(deps))
	reg.Register(NewManageDependency(deps))
	reg.Register(NewRequestTransition(deps))
	reg.Register(NewSetStatus(deps))
	reg.Register(NewQueryContainer(deps))
	reg.Register(NewGetNextTask(deps))
	reg.Register(NewGetBlockedTasks(deps))
	reg.Register(NewGetOverview(deps))
	reg.Register(NewManageTemplate(deps))
}

// Envelope is the JSON body every tool returns inside the MCP text block.
type Envelope struct {
	Success  bool           `json:"success"`
	Message  string         `json:"message"`
	Data     any            `json:"data,omitempty"`
	Error    *ErrorBody     `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ErrorBody carries the canonical error code and the longer context.
type ErrorBody struct {
	Code    taskerr.Code `json:"code"`
	Details string       `json:"details,omitempty"`
}

// ok wraps a success envelope in an MCP result.
func ok(message string, data any) (*mcp.ToolsCallResult, error) {
	return mcp.JSONResult(Envelope{Success: true, Message: message, Data: data})
}

// classify maps bare engine errors onto canonical codes. The validator
// reports through sentinel errors rather than structured ones; everything
// else unclassified stays INTERNAL_ERROR.
func classify(err error) error {
	if taskerr.AsError(err) != nil {
		return err
	}
	switch {
	case errors.Is(err, validation.ErrInvalidStatus), errors.Is(err, validation.ErrInvalidTransition):
		return taskerr.NewValidation(err.Error(), "")
	case errors.Is(err, validation.ErrBlocked):
		return taskerr.NewOperationFailed(err.Error(), nil)
	default:
		return err
	}
}

// fail converts err into a user-facing isError result carrying the
// envelope. Marshalling problems are the only internal faults here.
func fail(err error) (*mcp.ToolsCallResult, error) {
	err = classify(err)
	env := Envelope{Success: false}
	if te := taskerr.AsError(err); te != nil {
		env.Message = te.Message
		env.Error = &ErrorBody{Code: te.Code, Details: te.Details}
		if te.Details == "" && te.Cause != nil {
			env.Error.Details = te.Cause.Error()
		}
	} else {
		env.Message = err.Error()
		env.Error = &ErrorBody{Code: taskerr.CodeOf(err)}
	}

	b, mErr := json.MarshalIndent(env, "", "  ")
	if mErr != nil {
		return nil, mErr
	}
	return &mcp.ToolsCallResult{
		Content: []mcp.ContentBlock{mcp.TextContent(string(b))},
		IsError: true,
	}, nil
}

// failValidation is shorthand for a parameter-shape failure.
func failValidation(message, details string) (*mcp.ToolsCallResult, error) {
	return fail(taskerr.NewValidation(message, details))
}

// itemFailure is one per-item entry in a batch tool's failures array.
type itemFailure struct {
	Index   int          `json:"index"`
	ID      string       `json:"id,omitempty"`
	Code    taskerr.Code `json:"code"`
	Message string       `json:"message"`
	Details string       `json:"details,omitempty"`
}

func failureAt(index int, id string, err error) itemFailure {
	err = classify(err)
	f := itemFailure{Index: index, ID: id, Code: taskerr.CodeOf(err), Message: err.Error()}
	if te := taskerr.AsError(err); te != nil {
		f.Message = te.Message
		f.Details = te.Details
	}
	return f
}

// validUUID reports whether s is a well-formed UUID.
func validUUID(s string) bool {
	return uuid.Validate(s) == nil
}
