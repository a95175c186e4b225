package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"social-graph-lab/internal/domain"
	"social-graph-lab/internal/history"
)

type relationshipsView struct {
	Account         domain.AccountID   `json:"account"`
	Followers       []domain.AccountID `json:"followers"`
	Following       []domain.AccountID `json:"following"`
	Mutual          []domain.AccountID `json:"mutual"`
	OneWayFollowers []domain.AccountID `json:"one_way_followers"`
	OneWayFollowing []domain.AccountID `json:"one_way_following"`
}

func (c *cli) relationshipsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "relationships <account>",
		Short: "Show followers, following, mutual and one-way sets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			acct, err := parseAccount(args[0])
			if err != nil {
				return err
			}
			snap, err := c.app.Aggregator.ComputeRelationships(cmd.Context(), acct)
			if err != nil {
				return err
			}
			view := relationshipsView{
				Account:         snap.Account,
				Followers:       snap.Followers(),
				Following:       snap.Following(),
				Mutual:          snap.Mutual(),
				OneWayFollowers: snap.OneWayFollowers(),
				OneWayFollowing: snap.OneWayFollowing(),
			}
			return c.emit(stdout(cmd), view, func(w io.Writer) {
				fmt.Fprintf(w, "Account:   %s\n", snap.Account)
				fmt.Fprintf(w, "Followers: %d  Following: %d  Mutual: %d\n",
					snap.FollowerCount(), snap.FollowingCount(), snap.MutualCount())
				printList(w, "Mutual", view.Mutual)
				printList(w, "Followers only", view.OneWayFollowers)
				printList(w, "Following only", view.OneWayFollowing)
			})
		},
	}
}

func printList(w io.Writer, title string, ids []domain.AccountID) {
	fmt.Fprintf(w, "\n%s (%d)\n", title, len(ids))
	for _, id := range ids {
		fmt.Fprintf(w, "  %s\n", id)
	}
}

func (c *cli) countsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "counts <account>",
		Short: "Show follower and following counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			acct, err := parseAccount(args[0])
			if err != nil {
				return err
			}
			counts, err := c.app.Aggregator.Counts(cmd.Context(), acct)
			if err != nil {
				return err
			}
			return c.emit(stdout(cmd), counts, func(w io.Writer) {
				fmt.Fprintf(w, "%s followers=%d following=%d\n", acct, counts.FollowerCount, counts.FollowingCount)
			})
		},
	}
}

type candidateView struct {
	Account     domain.AccountID `json:"account"`
	Name        string           `json:"name"`
	Score       int              `json:"score"`
	MutualCount int              `json:"mutual_count"`
	Reason      string           `json:"reason"`
}

func (c *cli) recommendCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "recommend <account>",
		Short: "Rank accounts to follow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			acct, err := parseAccount(args[0])
			if err != nil {
				return err
			}
			if limit <= 0 {
				limit = c.cfg.Recommend.TargetCount
			}
			res, err := c.app.Engine.Recommend(cmd.Context(), acct, limit)
			if err != nil {
				return err
			}
			views := make([]candidateView, len(res.Candidates))
			for i, cand := range res.Candidates {
				views[i] = candidateView{
					Account:     cand.Account,
					Name:        cand.Profile.DisplayName(cand.Account),
					Score:       cand.Score,
					MutualCount: cand.MutualCount,
					Reason:      cand.ReasonText(),
				}
			}
			return c.emit(stdout(cmd), views, func(w io.Writer) {
				if len(views) == 0 {
					fmt.Fprintln(w, "No recommendations.")
					return
				}
				for i, v := range views {
					fmt.Fprintf(w, "%2d. %s  %-20s score=%d  %s\n", i+1, v.Account, v.Name, v.Score, v.Reason)
				}
				if res.UsedFallback {
					fmt.Fprintln(w, "(includes trending accounts)")
				}
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Number of recommendations (default from config)")
	return cmd
}

func (c *cli) statsCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "stats <account>",
		Short: "Show stored daily counts and the trend over the window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			acct, err := parseAccount(args[0])
			if err != nil {
				return err
			}
			stats, err := c.app.Recorder.Stats(cmd.Context(), acct, days, c.now())
			if err != nil {
				return err
			}
			trend := history.ComputeTrend(acct, stats)
			return c.emit(stdout(cmd), map[string]interface{}{"stats": stats, "trend": trend}, func(w io.Writer) {
				if len(stats) == 0 {
					fmt.Fprintln(w, "No history.")
					return
				}
				for _, s := range stats {
					fmt.Fprintf(w, "%s followers=%d following=%d mutual=%d\n",
						s.Date.Format("2006-01-02"), s.FollowerCount, s.FollowingCount, s.MutualCount)
				}
				fmt.Fprintf(w, "%s\n", strings.Repeat("-", 40))
				fmt.Fprintf(w, "followers %+d  following %+d  mutual %+d\n",
					trend.FollowerDelta, trend.FollowingDelta, trend.MutualDelta)
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", history.DefaultLookbackDays, "Lookback window in days")
	return cmd
}
