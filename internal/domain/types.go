package domain

import (
    "strings"
    "time"

    "github.com/google/uuid"
)

type TrackerKind string

const (
    KindJira   TrackerKind = "jira"
    KindLinear TrackerKind = "linear"
)

func ParseKind(s string) (TrackerKind, bool) {
    switch strings.ToLower(strings.TrimSpace(s)) {
    case "jira": return KindJira, true
    case "linear": return KindLinear, true
    }
    return "", false
}

// Status is the canonical workflow vocabulary every tracker maps into.
type Status string

const (
    StatusToDo       Status = "To Do"
    StatusInProgress Status = "In Progress"
    StatusDone       Status = "Done"
)

// ParseStatus maps local task status strings to the canonical vocabulary.
func ParseStatus(s string) Status {
    switch strings.ToLower(strings.TrimSpace(s)) {
    case "in progress", "in-progress":
        return StatusInProgress
    case "done", "completed":
        return StatusDone
    default:
        return StatusToDo
    }
}

type Priority string

const (
    PriorityLow    Priority = "low"
    PriorityMedium Priority = "medium"
    PriorityHigh   Priority = "high"
    PriorityUrgent Priority = "urgent"
)

func ParsePriority(s string) Priority {
    switch strings.ToLower(strings.TrimSpace(s)) {
    case "low": return PriorityLow
    case "high": return PriorityHigh
    case "urgent", "highest": return PriorityUrgent
    default: return PriorityMedium
    }
}

// ConnectedAccount is the stored OAuth link between a user and a tracker tenant.
// At most one active account exists per (UserID, Kind).
type ConnectedAccount struct {
    ID           int64
    UserID       string
    Kind         TrackerKind
    AccountEmail string
    AccessToken  string
    RefreshToken string
    ExpiresAt    *time.Time
    CloudID      string
    Active       bool
    CreatedAt    time.Time
    UpdatedAt    time.Time
}

// Expired reports whether the access token is past its expiry at the given instant.
func (a ConnectedAccount) Expired(now time.Time) bool {
    return a.ExpiresAt != nil && !now.Before(*a.ExpiresAt)
}

// Credentials is the resolved, ready-to-use view handed to tracker adapters.
type Credentials struct {
    UserID      string
    Kind        TrackerKind
    AccessToken string
    BaseURL     string
    Email       string
}

// Issue is the canonical local record of an external tracker issue.
type Issue struct {
    ID            int64
    Kind          TrackerKind
    IssueKey      string
    IssueID       string
    WorkspaceID   string
    Summary       string
    Description   string
    Status        string // tracker-native status name
    Priority      string
    IssueType     string
    ProjectKey    string
    ProjectName   string
    Labels        []string
    DueDate       *time.Time
    Resolution    string
    RemoteUpdated *time.Time
    LastSyncedAt  time.Time
}

type Participant struct {
    UserID string `json:"userId"`
    Status string `json:"status"`
}

type ReminderRule struct {
    MinutesBefore int `json:"minutesBefore"`
}

type PlannerEvent struct {
    ID           string
    WorkspaceID  string
    Title        string
    Description  string
    Start        time.Time
    End          *time.Time
    AllDay       bool
    CreatedBy    string
    Participants []Participant
    Reminders    []ReminderRule
    CreatedAt    time.Time
    UpdatedAt    time.Time
}

// Recipients returns the creator plus every participant, deduplicated,
// in first-seen order.
func (e PlannerEvent) Recipients() []string {
    seen := map[string]struct{}{}
    out := make([]string, 0, len(e.Participants)+1)
    add := func(id string) {
        if id == "" { return }
        if _, ok := seen[id]; ok { return }
        seen[id] = struct{}{}
        out = append(out, id)
    }
    add(e.CreatedBy)
    for _, p := range e.Participants { add(p.UserID) }
    return out
}

type TriggerType string

const (
    TriggerPreDeadline     TriggerType = "pre_deadline"
    TriggerDeadlineReached TriggerType = "deadline_reached"
)

// TriggerPayload carries everything the notification needs so the worker
// never re-reads the source entity.
type TriggerPayload struct {
    Title       string     `json:"title"`
    Description string     `json:"description,omitempty"`
    Start       *time.Time `json:"start,omitempty"`
    End         *time.Time `json:"end,omitempty"`
    Message     string     `json:"message,omitempty"`
}

// Trigger is one scheduled reminder fire.
type Trigger struct {
    ID            uuid.UUID
    EntityType    string
    EntityID      string
    WorkspaceID   string
    UserIDs       []string
    Type          TriggerType
    TriggerTime   time.Time
    Payload       TriggerPayload
    RepeatMinutes int
    CreatedAt     time.Time
}

// Notification is a rendered outbound message addressed by email.
type Notification struct {
    ID         uuid.UUID
    Recipients []string
    Subject    string
    Body       string
    CreatedAt  time.Time
}
