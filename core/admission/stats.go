package admission

import (
	"sort"
	"time"

	"github.com/qlass/backend/core"
)

const (
	maxCourseCounts = 6
	unknownCourse   = "Unknown"
)

type CourseCount struct {
	Course string `json:"course"`
	Count  int    `json:"count"`
}

// Stats is the admissions dashboard.
type Stats struct {
	Total    int           `json:"total"`
	Verified int           `json:"verified"`
	Approved int           `json:"approved"`
	Enrolled int           `json:"enrolled"`
	Rejected int           `json:"rejected"` // rejected at any stage
	ThisYear int           `json:"this_year"`
	ByCourse []CourseCount `json:"by_course"` // top 6, most applications first
}

func ComputeStats(apps []Application, now time.Time) Stats {
	stats := Stats{ByCourse: []CourseCount{}}
	counts := make(map[string]int)

	for _, app := range apps {
		stats.Total++

		s := app.Stages
		if s.Verification == StatusVerified {
			stats.Verified++
		}
		if s.Approval == StatusApproved {
			stats.Approved++
		}
		if s.Enrollment == StatusEnrolled {
			stats.Enrolled++
		}
		if s.Verification == StatusRejected || s.Approval == StatusRejected || s.Enrollment == StatusRejected {
			stats.Rejected++
		}

		if !app.SubmittedAt.IsZero() && app.SubmittedAt.In(now.Location()).Year() == now.Year() {
			stats.ThisYear++
		}

		course := app.Course
		if course == "" {
			course = unknownCourse
		}
		counts[course]++
	}

	for course, count := range counts {
		stats.ByCourse = append(stats.ByCourse, CourseCount{Course: course, Count: count})
	}
	sort.Slice(stats.ByCourse, func(i, j int) bool {
		ci, cj := stats.ByCourse[i], stats.ByCourse[j]
		if ci.Count != cj.Count {
			return ci.Count > cj.Count
		}
		return ci.Course < cj.Course
	})
	if len(stats.ByCourse) > maxCourseCounts {
		stats.ByCourse = stats.ByCourse[:maxCourseCounts]
	}
	return stats
}

// FilterHistory returns the applications matching filter, newest submission first.
// Search is a case-insensitive match on ID or Name; Course must match exactly.
func FilterHistory(apps []Application, filter HistoryFilter) []Application {
	filter.Clean()
	items := make([]Application, 0, len(apps))
	for i := len(apps) - 1; i >= 0; i-- {
		app := apps[i]
		if filter.Search != "" && !(core.ContainsFold(app.ID, filter.Search) || core.ContainsFold(app.Name, filter.Search)) {
			continue
		}
		if filter.Course != "" && app.Course != filter.Course {
			continue
		}
		items = append(items, app)
	}
	return items
}

// Enrolled returns the applications that completed enrollment, in submission order.
// This is the roster downstream modules (exams, finance) read.
func Enrolled(apps []Application) []Application {
	enrolled := make([]Application, 0)
	for _, app := range apps {
		if app.Stages.Enrollment == StatusEnrolled {
			enrolled = append(enrolled, app)
		}
	}
	return enrolled
}
