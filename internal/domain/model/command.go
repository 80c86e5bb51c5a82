package model

import "github.com/okian/scoreline/internal/domain/breakdown"

// CommandKind selects the score operation a queued Command performs.
type CommandKind string

// Command kinds.
const (
	CommandSubmit CommandKind = "submit"
	CommandUpdate CommandKind = "update"
	CommandDelete CommandKind = "delete"
)

// Command is a judge action queued for asynchronous execution. Update and
// delete address the judge's record by (EntryID, JudgeID) because the score
// id is not known when the command is generated.
type Command struct {
	ID            string
	Kind          CommandKind
	ContestID     string
	EntryID       string
	JudgeID       string
	Breakdown     breakdown.Breakdown
	NotApplicable []string
	Notes         string
}
