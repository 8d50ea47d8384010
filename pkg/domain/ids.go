// Package domain holds the typed identifiers and fixed vocabularies shared by
// every service. Identity here is always composite: children of an assessment
// are addressed by their full key path, and every operation is scoped by the
// organization domain on the Assessment aggregate root.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "assessor/pkg/domain-errors"
)

// OrgDomain is the tenancy boundary. No store operation may cross it.
type OrgDomain string

// AssessmentID identifies one review run against a cloud account.
type AssessmentID string

// PillarID identifies a pillar within an assessment.
type PillarID string

// QuestionID identifies a question within a pillar.
type QuestionID string

// BestPracticeID identifies a best practice within a question.
type BestPracticeID string

// FindingID identifies a scan finding within an assessment. The value encodes
// the scanning tool and the tool-native identifier as "tool#nativeId".
type FindingID string

// FolderID identifies an organization-scoped folder.
type FolderID string

// CommentID identifies a finding comment. Fresh UUID per creation.
type CommentID uuid.UUID

// FileExportID identifies one export artifact request.
type FileExportID uuid.UUID

// MilestoneID addresses a snapshot held by the external review tool.
// Milestone numbers are assigned upstream; the core never mints them.
type MilestoneID int

func (o OrgDomain) String() string      { return string(o) }
func (a AssessmentID) String() string   { return string(a) }
func (p PillarID) String() string       { return string(p) }
func (q QuestionID) String() string     { return string(q) }
func (b BestPracticeID) String() string { return string(b) }
func (f FindingID) String() string      { return string(f) }
func (fd FolderID) String() string      { return string(fd) }

func (c CommentID) String() string    { return uuid.UUID(c).String() }
func (e FileExportID) String() string { return uuid.UUID(e).String() }

// MarshalText renders the id in canonical uuid form; a named uuid type does
// not inherit uuid.UUID's encoding methods.
func (e FileExportID) MarshalText() ([]byte, error) { return []byte(e.String()), nil }

// NewCommentID mints a fresh comment identity.
func NewCommentID() CommentID { return CommentID(uuid.New()) }

// NewFileExportID mints a fresh export identity.
func NewFileExportID() FileExportID { return FileExportID(uuid.New()) }

// ParseCommentID constructs a CommentID from external input.
func ParseCommentID(s string) (CommentID, error) {
	u, err := uuid.Parse(s)
	if err != nil || u == uuid.Nil {
		return CommentID{}, dErrors.New(dErrors.CodeBadRequest, "comment id must be a valid uuid")
	}
	return CommentID(u), nil
}

// ParseFileExportID constructs a FileExportID from external input.
func ParseFileExportID(s string) (FileExportID, error) {
	u, err := uuid.Parse(s)
	if err != nil || u == uuid.Nil {
		return FileExportID{}, dErrors.New(dErrors.CodeBadRequest, "file export id must be a valid uuid")
	}
	return FileExportID(u), nil
}

// ParseFindingID constructs a FindingID from external input, enforcing the
// "tool#nativeId" shape.
func ParseFindingID(s string) (FindingID, error) {
	tool, native, ok := strings.Cut(s, "#")
	if !ok || tool == "" || native == "" {
		return "", dErrors.New(dErrors.CodeBadRequest, "finding id must be of the form tool#nativeId")
	}
	return FindingID(s), nil
}

// ScanningTool returns the tool segment of the finding id, or "" when the id
// was constructed without ParseFindingID and is malformed.
func (f FindingID) ScanningTool() string {
	tool, _, ok := strings.Cut(string(f), "#")
	if !ok {
		return ""
	}
	return tool
}
