package executor

import (
	"context"
	"errors"

	"code-sandbox/internal/runner"
	"code-sandbox/internal/syntax"
)

// ValidateRequest asks for a syntax check, optionally saving accepted code
// into a session.
type ValidateRequest struct {
	SessionID string `json:"sessionId,omitempty"`
	Language  string `json:"language"`
	Code      string `json:"code"`
	Filename  string `json:"filename,omitempty"`
	Save      bool   `json:"save,omitempty"`
}

// Validation is the outcome of a syntax check.
type Validation struct {
	Language  string `json:"language"`
	Valid     bool   `json:"valid"`
	Message   string `json:"message"`
	Line      int    `json:"line,omitempty"`
	Column    int    `json:"column,omitempty"`
	Details   string `json:"details,omitempty"`
	SavedPath string `json:"savedPath,omitempty"`
}

// Validate checks req.Code and, when req.Save is set and the code is
// accepted, writes it into the session's data directory. Rejected code is
// reported in the Validation, not as an error; the error is reserved for
// unsupported languages, unusable session ids, toolchains that could not be
// launched and failed writes.
func (e *Executor) Validate(ctx context.Context, req ValidateRequest) (Validation, error) {
	out := Validation{Language: req.Language}
	if !e.runner.Languages().Supports(req.Language) {
		return out, &runner.UnsupportedLanguageError{Language: req.Language}
	}

	var err error
	if req.Save {
		out.SavedPath, err = e.Save(ctx, req.SessionID, req.Language, req.Code, req.Filename)
	} else if e.checker != nil {
		err = e.checker.Validate(ctx, req.Language, req.Code)
	}

	var verr *syntax.ValidationError
	switch {
	case errors.As(err, &verr):
		out.Message = verr.Message
		out.Line = verr.Line
		out.Column = verr.Column
		out.Details = verr.Details
		return out, nil
	case err != nil:
		return out, err
	}

	out.Valid = true
	out.Message = SuccessMessage(req.Filename, out.SavedPath)
	return out, nil
}

// SuccessMessage describes an accepted validation.
func SuccessMessage(filename, savedPath string) string {
	msg := "Syntax validation successful"
	if filename != "" {
		msg += " for " + filename
	}
	if savedPath != "" {
		msg += " (saved to " + savedPath + ")"
	}
	return msg
}
