package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/localnerve/proposaldb/internal/services"
	"github.com/localnerve/proposaldb/internal/types"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Inconsistent stores, fallback identities
	ExitCommandError = 2 // Bad arguments, unreachable stores
)

// ExitError carries the process exit code for an error.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer
	Verbose   bool
}

// CLIResponse is the JSON envelope of every command.
type CLIResponse struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// Result writes data as JSON, or calls text to render it for humans.
func (f *OutputFormatter) Result(status string, data interface{}, text func(w io.Writer)) error {
	if f.Format == "json" {
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(CLIResponse{Status: status, Data: data})
	}
	text(f.Writer)
	return nil
}

// Fail reports err in the configured format and returns it with an exit code.
func (f *OutputFormatter) Fail(code int, message string, err error) error {
	if f.Format == "json" {
		_ = json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "error", Error: fmt.Sprintf("%s: %v", message, err)})
	}
	return WrapExitError(code, message, err)
}

// VerboseLog writes to ErrWriter only in verbose mode.
func (f *OutputFormatter) VerboseLog(format string, args ...interface{}) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func roleList(roles []string, count int) string {
	if len(roles) == 0 {
		return fmt.Sprintf("none (%d file(s))", count)
	}
	return fmt.Sprintf("%s (%d file(s))", strings.Join(roles, ", "), count)
}

// writeReport renders a consistency report as aligned text.
func writeReport(w io.Writer, r *services.ConsistencyReport) {
	fmt.Fprintf(w, "proposal %s\n", r.ProposalID)
	line := func(label, value string) {
		fmt.Fprintf(w, "  %-13s%s\n", label+":", value)
	}
	line("data source", string(r.DataSource))
	line("relational", yesNo(r.Presence.Relational))
	line("documents", yesNo(r.Presence.Documents))
	if r.Proposal != nil {
		line("status", string(r.Proposal.Status))
		line("section", string(r.Proposal.CurrentSection))
	}
	line("declared", roleList(r.DeclaredRoles, r.DeclaredFileCount))
	line("stored", roleList(r.StoredRoles, r.StoredFileCount))
	line("consistent", yesNo(r.Consistent))
	if len(r.Issues) == 0 {
		return
	}
	fmt.Fprintln(w, "  issues:")
	for _, issue := range r.Issues {
		fmt.Fprintf(w, "    - %s\n", formatIssue(issue))
	}
}

func formatIssue(issue types.ConsistencyIssue) string {
	if issue.Role != "" {
		return fmt.Sprintf("%s [%s]: %s", issue.Code, issue.Role, issue.Detail)
	}
	return fmt.Sprintf("%s: %s", issue.Code, issue.Detail)
}
