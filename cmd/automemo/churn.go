package main

import (
	"fmt"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/on-the-ground/automemo/internal/configkeys"
	"github.com/on-the-ground/automemo/internal/log"
	"github.com/on-the-ground/automemo/purefn"
)

type churnKey struct {
	id  int
	pad [56]byte
}

func newChurnCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "churn",
		Short: "Memoize calls on short-lived keys and watch the cache drain",
		Long: `Memoize one call per freshly allocated key, drop every key, then collect
garbage until the cache is empty or the settle timeout expires.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			keys := a.v.GetInt(configkeys.ConfigChurnKeys)
			settle := a.v.GetDuration(configkeys.ConfigChurnSettle)

			m := purefn.New(func(args ...any) (int, error) {
				return args[0].(*churnKey).id, nil
			}, a.memoOptions("churn")...)

			for i := 0; i < keys; i++ {
				if _, err := m.Call(&churnKey{id: i}); err != nil {
					return err
				}
			}
			peak := m.Stats()

			start := time.Now()
			s := m.Stats()
			for (s.EntriesA > 0 || s.Tuples > 0) && time.Since(start) < settle {
				runtime.GC()
				time.Sleep(10 * time.Millisecond)
				s = m.Stats()
			}
			drained := s.EntriesA == 0 && s.Tuples == 0

			level := log.LogInfo
			if !drained {
				level = log.LogWarn
			}
			log.Log(a.logger, level, "churn settled", map[string]interface{}{
				"keys":      keys,
				"drained":   drained,
				"evictions": s.EvictionsA,
				"elapsed":   time.Since(start),
			})
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "keys=%d peak_entries=%d entries=%d tuples=%d evictions=%d drained=%t\n",
				keys, peak.EntriesA, s.EntriesA, s.Tuples, s.EvictionsA, drained)
			return a.report(out)
		},
	}

	cmd.Flags().Int("keys", 10_000, "number of short-lived keys")
	cmd.Flags().Duration("settle", 5*time.Second, "how long to wait for the cache to drain")
	_ = a.v.BindPFlag(configkeys.ConfigChurnKeys, cmd.Flags().Lookup("keys"))
	_ = a.v.BindPFlag(configkeys.ConfigChurnSettle, cmd.Flags().Lookup("settle"))
	return cmd
}
