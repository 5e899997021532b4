package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/joescharf/trackflow/internal/models"
)

// DefaultRecentDays is the width of the recent activity window.
const DefaultRecentDays = 7

// Summary is the analytics view over an issue collection.
type Summary struct {
	Total         int                          `json:"total"`
	ByStatus      map[models.IssueStatus]int   `json:"byStatus"`
	ByPriority    map[models.IssuePriority]int `json:"byPriority"`
	PriorityShare map[models.IssuePriority]int `json:"priorityShare"` // whole percent of Total
	Recent        int                          `json:"recent"`
	RecentDays    int                          `json:"recentDays"`
	WindowStart   time.Time                    `json:"windowStart"`
	WindowEnd     time.Time                    `json:"windowEnd"`
	Users         []UserStats                  `json:"users"`
}

// UserStats holds per-assignee counts.
type UserStats struct {
	User           models.User `json:"user"`
	Total          int         `json:"total"`
	Closed         int         `json:"closed"`
	Open           int         `json:"open"` // everything not closed
	CompletionRate int         `json:"completionRate"`
}

// Aggregator computes analytics summaries.
type Aggregator struct {
	now        func() time.Time
	recentDays int
}

// NewAggregator returns an Aggregator using the wall clock and the given
// recency window. Non-positive days fall back to DefaultRecentDays.
func NewAggregator(recentDays int) *Aggregator {
	if recentDays <= 0 {
		recentDays = DefaultRecentDays
	}
	return &Aggregator{now: time.Now, recentDays: recentDays}
}

// Compute aggregates issues and users. Neither slice is modified.
func (a *Aggregator) Compute(issues []*models.Issue, users []*models.User) *Summary {
	s := &Summary{
		Total:         len(issues),
		ByStatus:      make(map[models.IssueStatus]int),
		ByPriority:    make(map[models.IssuePriority]int),
		PriorityShare: make(map[models.IssuePriority]int),
		RecentDays:    a.recentDays,
		Users:         []UserStats{},
	}
	for _, st := range models.Statuses() {
		s.ByStatus[st] = 0
	}
	for _, p := range models.Priorities() {
		s.ByPriority[p] = 0
	}

	s.WindowStart, s.WindowEnd = a.window()
	for _, issue := range issues {
		s.ByStatus[issue.Status]++
		s.ByPriority[issue.Priority]++
		if inWindow(issue.CreatedAt, s.WindowStart, s.WindowEnd) {
			s.Recent++
		}
	}
	for _, p := range models.Priorities() {
		s.PriorityShare[p] = Percent(s.ByPriority[p], s.Total)
	}

	for _, u := range users {
		s.Users = append(s.Users, userStats(u, issues))
	}
	sort.SliceStable(s.Users, func(i, j int) bool {
		return s.Users[i].Total > s.Users[j].Total
	})
	return s
}

// window spans from the start of the day recentDays ago to the end of today,
// in the clock's location.
func (a *Aggregator) window() (time.Time, time.Time) {
	now := a.now()
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	start := today.AddDate(0, 0, -a.recentDays)
	end := today.AddDate(0, 0, 1).Add(-time.Nanosecond)
	return start, end
}

func inWindow(t, start, end time.Time) bool {
	return !t.Before(start) && !t.After(end)
}

func userStats(u *models.User, issues []*models.Issue) UserStats {
	st := UserStats{User: *u}
	ref := u.Ref()
	for _, issue := range issues {
		if issue.Assignee != ref {
			continue
		}
		st.Total++
		if issue.Status == models.IssueStatusClosed {
			st.Closed++
		}
	}
	st.Open = st.Total - st.Closed
	st.CompletionRate = CompletionRate(st.Closed, st.Total)
	return st
}

// CompletionRate is closed/total as a whole percent, 0 when total is 0.
func CompletionRate(closed, total int) int {
	return Percent(closed, total)
}

// Percent returns n/total*100 rounded half up, or 0 when total is 0.
func Percent(n, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Floor(float64(n)/float64(total)*100 + 0.5))
}
