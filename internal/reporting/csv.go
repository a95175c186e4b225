package reporting

import (
	"encoding/csv"
	"strconv"
	"strings"
)

// RenderRelationshipsCSV renders partition membership as CSV.
func RenderRelationshipsCSV(rows []RelationshipRow) string {
	records := [][]string{{"relation", "account"}}
	for _, r := range rows {
		records = append(records, []string{r.Relation, r.Account})
	}
	return writeCSV(records)
}

// RenderRecommendationsCSV renders ranked candidates as CSV.
func RenderRecommendationsCSV(rows []RecommendationRow) string {
	records := [][]string{{"rank", "account", "display_name", "score", "mutual_count", "reason", "sources"}}
	for _, r := range rows {
		records = append(records, []string{
			strconv.Itoa(r.Rank),
			r.Account,
			r.DisplayName,
			strconv.Itoa(r.Score),
			strconv.Itoa(r.MutualCount),
			r.Reason,
			strconv.Itoa(r.Sources),
		})
	}
	return writeCSV(records)
}

// RenderHistoryCSV renders daily stats as CSV.
func RenderHistoryCSV(rows []HistoryRow) string {
	records := [][]string{{"date", "followers", "following", "mutual"}}
	for _, r := range rows {
		records = append(records, []string{
			r.Date,
			strconv.Itoa(r.Followers),
			strconv.Itoa(r.Following),
			strconv.Itoa(r.Mutual),
		})
	}
	return writeCSV(records)
}

func writeCSV(records [][]string) string {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	// WriteAll flushes; strings.Builder writes never fail.
	_ = w.WriteAll(records)
	return sb.String()
}
