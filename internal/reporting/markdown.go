package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString(fmt.Sprintf("# Relationship Report: %s\n\n", r.Account))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))

	// Summary
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Followers | %d |\n", r.Summary.Followers))
	sb.WriteString(fmt.Sprintf("| Following | %d |\n", r.Summary.Following))
	sb.WriteString(fmt.Sprintf("| Mutual | %d |\n", r.Summary.Mutual))
	sb.WriteString(fmt.Sprintf("| One-way followers | %d |\n", r.Summary.OneWayFollowers))
	sb.WriteString(fmt.Sprintf("| One-way following | %d |\n", r.Summary.OneWayFollowing))
	sb.WriteString(fmt.Sprintf("| Computed at | %s |\n", r.Summary.ComputedAt.Format(time.RFC3339)))
	sb.WriteString("\n")

	// Partitions
	sb.WriteString("## Relationships\n\n")
	if len(r.Relationships) > 0 {
		sb.WriteString("| Relation | Account |\n")
		sb.WriteString("|----------|---------|\n")
		for _, row := range r.Relationships {
			sb.WriteString(fmt.Sprintf("| %s | %s |\n", row.Relation, row.Account))
		}
	} else {
		sb.WriteString("No relationships.\n")
	}
	sb.WriteString("\n")

	// Recommendations
	sb.WriteString("## Recommendations\n\n")
	if len(r.Recommendations) > 0 {
		sb.WriteString("| Rank | Account | Name | Score | Mutual | Reason |\n")
		sb.WriteString("|------|---------|------|-------|--------|--------|\n")
		for _, row := range r.Recommendations {
			sb.WriteString(fmt.Sprintf("| %d | %s | %s | %d | %d | %s |\n",
				row.Rank, row.Account, escapePipes(row.DisplayName), row.Score, row.MutualCount, row.Reason))
		}
	} else {
		sb.WriteString("No recommendations available.\n")
	}
	sb.WriteString("\n")

	// History
	sb.WriteString("## History\n\n")
	if len(r.History) > 0 {
		sb.WriteString("| Date | Followers | Following | Mutual |\n")
		sb.WriteString("|------|-----------|-----------|--------|\n")
		for _, row := range r.History {
			sb.WriteString(fmt.Sprintf("| %s | %d | %d | %d |\n",
				row.Date, row.Followers, row.Following, row.Mutual))
		}
		if r.Trend != nil {
			sb.WriteString(fmt.Sprintf("\nTrend over %d days: followers %+d, following %+d, mutual %+d\n",
				r.Trend.Days, r.Trend.FollowerDelta, r.Trend.FollowingDelta, r.Trend.MutualDelta))
		}
	} else {
		sb.WriteString("No history available.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}

func escapePipes(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
