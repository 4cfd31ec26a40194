package jira

import (
    "encoding/json"
    "strings"
    "time"

    "github.com/sartthi/syncd/internal/domain"
    "github.com/sartthi/syncd/internal/tracker"
)

var searchFields = []string{
    "summary", "description", "status", "priority", "issuetype",
    "project", "labels", "duedate", "resolution", "updated",
}

// issuePayload is the wire shape of a Jira issue. Description may be a
// rich-text document or (on old deployments) a plain string, so it is
// kept raw until normalization.
type issuePayload struct {
    ID     string `json:"id"`
    Key    string `json:"key"`
    Fields struct {
        Summary     string          `json:"summary"`
        Description json.RawMessage `json:"description"`
        Status      struct {
            Name string `json:"name"`
        } `json:"status"`
        Priority struct {
            Name string `json:"name"`
        } `json:"priority"`
        Issuetype struct {
            Name string `json:"name"`
        } `json:"issuetype"`
        Project struct {
            Key  string `json:"key"`
            Name string `json:"name"`
        } `json:"project"`
        Labels     []string `json:"labels"`
        Duedate    string   `json:"duedate"`
        Resolution *struct {
            Name string `json:"name"`
        } `json:"resolution"`
        Updated string `json:"updated"`
    } `json:"fields"`
}

const jiraTime = "2006-01-02T15:04:05.000-0700"

func (p *issuePayload) toDomain() domain.Issue {
    iss := domain.Issue{
        Kind:        domain.KindJira,
        IssueKey:    p.Key,
        IssueID:     p.ID,
        Summary:     p.Fields.Summary,
        Description: flattenDescription(p.Fields.Description),
        Status:      p.Fields.Status.Name,
        Priority:    p.Fields.Priority.Name,
        IssueType:   p.Fields.Issuetype.Name,
        ProjectKey:  p.Fields.Project.Key,
        ProjectName: p.Fields.Project.Name,
        Labels:      p.Fields.Labels,
    }
    if p.Fields.Resolution != nil { iss.Resolution = p.Fields.Resolution.Name }
    if p.Fields.Duedate != "" {
        if d, err := time.Parse("2006-01-02", p.Fields.Duedate); err == nil { iss.DueDate = &d }
    }
    if p.Fields.Updated != "" {
        if u, err := time.Parse(jiraTime, p.Fields.Updated); err == nil { iss.RemoteUpdated = &u }
    }
    return iss
}

func flattenDescription(raw json.RawMessage) string {
    if len(raw) == 0 { return "" }
    var s string
    if err := json.Unmarshal(raw, &s); err == nil { return s }
    var doc tracker.DocNode
    if err := json.Unmarshal(raw, &doc); err == nil { return tracker.FlattenDoc(&doc) }
    return ""
}

func (c *Client) MapStatus(native string) domain.Status {
    switch strings.ToLower(strings.TrimSpace(native)) {
    case "in progress", "in development", "in review":
        return domain.StatusInProgress
    case "done", "completed", "closed", "resolved":
        return domain.StatusDone
    default:
        return domain.StatusToDo
    }
}

func (c *Client) StatusName(s domain.Status) string { return string(s) }

func (c *Client) MapPriority(native string) domain.Priority {
    switch strings.ToLower(strings.TrimSpace(native)) {
    case "highest":
        return domain.PriorityUrgent
    case "high":
        return domain.PriorityHigh
    case "low", "lowest":
        return domain.PriorityLow
    default:
        return domain.PriorityMedium
    }
}

func (c *Client) PriorityName(p domain.Priority) string { return priorityName(p) }

func priorityName(p domain.Priority) string {
    switch p {
    case domain.PriorityLow:
        return "Low"
    case domain.PriorityHigh:
        return "High"
    case domain.PriorityUrgent:
        return "Highest"
    default:
        return "Medium"
    }
}
