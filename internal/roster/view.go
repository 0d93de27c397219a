package roster

import (
	"sort"
	"strings"

	"checkin-sync/internal/domain"
)

// InterviewGroup lists the members of one department currently called to
// or sitting an interview.
type InterviewGroup struct {
	Department string
	Members    []domain.Member
}

const unknownDepartment = "Unknown"

// SortByLottery orders checked-in members by lottery number, followed by
// members without a number in name order. The input is not modified.
func SortByLottery(members []domain.Member) []domain.Member {
	out := append([]domain.Member(nil), members...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].LotteryNumber, out[j].LotteryNumber
		switch {
		case a != nil && b != nil:
			return *a < *b
		case a != nil:
			return true
		case b != nil:
			return false
		}
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

// InterviewBoard groups members in INTERVIEW_CALLED or
// INTERVIEW_IN_PROGRESS by department. Members in progress sort first.
func InterviewBoard(members []domain.Member) []InterviewGroup {
	byDept := make(map[string][]domain.Member)
	for _, m := range members {
		if !m.State.InInterview() {
			continue
		}
		dept := strings.TrimSpace(m.Department)
		if dept == "" {
			dept = unknownDepartment
		}
		byDept[dept] = append(byDept[dept], m)
	}

	groups := make([]InterviewGroup, 0, len(byDept))
	for dept, ms := range byDept {
		sort.SliceStable(ms, func(i, j int) bool {
			if ms[i].State != ms[j].State {
				return ms[i].State.Rank() > ms[j].State.Rank()
			}
			return ms[i].Name < ms[j].Name
		})
		groups = append(groups, InterviewGroup{Department: dept, Members: ms})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Department < groups[j].Department })
	return groups
}

// Filter keeps members whose name, display key, organization or
// department contains query, ignoring case. An empty query keeps all.
func Filter(members []domain.Member, query string) []domain.Member {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return members
	}
	var out []domain.Member
	for _, m := range members {
		for _, field := range []string{m.Name, m.DisplayKey, m.Organization, m.Department} {
			if strings.Contains(strings.ToLower(field), q) {
				out = append(out, m)
				break
			}
		}
	}
	return out
}
