package linear

import (
    "strings"
    "time"

    "github.com/sartthi/syncd/internal/domain"
)

type issueNode struct {
    ID          string  `json:"id"`
    Identifier  string  `json:"identifier"`
    Title       string  `json:"title"`
    Description string  `json:"description"`
    Priority    float64 `json:"priority"`
    DueDate     string  `json:"dueDate"`
    UpdatedAt   string  `json:"updatedAt"`
    State       struct {
        Name string `json:"name"`
        Type string `json:"type"`
    } `json:"state"`
    Team struct {
        Key  string `json:"key"`
        Name string `json:"name"`
    } `json:"team"`
    Labels struct {
        Nodes []struct {
            Name string `json:"name"`
        } `json:"nodes"`
    } `json:"labels"`
}

func (n *issueNode) toDomain() domain.Issue {
    iss := domain.Issue{
        Kind:        domain.KindLinear,
        IssueKey:    n.Identifier,
        IssueID:     n.ID,
        Summary:     n.Title,
        Description: n.Description,
        Status:      n.State.Name,
        Priority:    priorityLabel(int(n.Priority)),
        IssueType:   "Issue",
        ProjectKey:  n.Team.Key,
        ProjectName: n.Team.Name,
    }
    for _, l := range n.Labels.Nodes { iss.Labels = append(iss.Labels, l.Name) }
    if n.DueDate != "" {
        if d, err := time.Parse("2006-01-02", n.DueDate); err == nil { iss.DueDate = &d }
    }
    if n.UpdatedAt != "" {
        if u, err := time.Parse(time.RFC3339, n.UpdatedAt); err == nil { iss.RemoteUpdated = &u }
    }
    if n.State.Type == "completed" { iss.Resolution = n.State.Name }
    return iss
}

// Linear encodes priority as a number: 0 none, 1 urgent, 2 high,
// 3 medium, 4 low.
func priorityNumber(p domain.Priority) int {
    switch p {
    case domain.PriorityUrgent:
        return 1
    case domain.PriorityHigh:
        return 2
    case domain.PriorityLow:
        return 4
    default:
        return 3
    }
}

func priorityLabel(n int) string {
    switch n {
    case 1:
        return "Urgent"
    case 2:
        return "High"
    case 4:
        return "Low"
    case 3:
        return "Medium"
    default:
        return "No priority"
    }
}

func (c *Client) MapStatus(native string) domain.Status {
    switch strings.ToLower(strings.TrimSpace(native)) {
    case "in progress", "started", "in review":
        return domain.StatusInProgress
    case "done", "completed", "canceled", "cancelled":
        return domain.StatusDone
    default:
        return domain.StatusToDo
    }
}

func (c *Client) StatusName(s domain.Status) string {
    switch s {
    case domain.StatusInProgress:
        return "In Progress"
    case domain.StatusDone:
        return "Done"
    default:
        return "Todo"
    }
}

func (c *Client) MapPriority(native string) domain.Priority {
    switch strings.ToLower(strings.TrimSpace(native)) {
    case "urgent":
        return domain.PriorityUrgent
    case "high":
        return domain.PriorityHigh
    case "low":
        return domain.PriorityLow
    default:
        return domain.PriorityMedium
    }
}

func (c *Client) PriorityName(p domain.Priority) string { return priorityLabel(priorityNumber(p)) }
