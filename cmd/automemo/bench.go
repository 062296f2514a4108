package main

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/on-the-ground/automemo/internal/configkeys"
	"github.com/on-the-ground/automemo/internal/log"
	"github.com/on-the-ground/automemo/purefn"
)

var errNegativeCalls = errors.New("calls must not be negative")

func newBenchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Call a memoized x+1 repeatedly with one argument",
		Long: `Call a memoized x+1 repeatedly with the same argument and report how many
times the function itself ran. It should run exactly once.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			calls := a.v.GetInt(configkeys.ConfigBenchCalls)
			arg := a.v.GetInt(configkeys.ConfigBenchArg)
			if calls < 0 {
				return fmt.Errorf("%w: %d", errNegativeCalls, calls)
			}

			var invocations atomic.Int64
			m := purefn.New(func(args ...any) (int, error) {
				invocations.Add(1)
				return args[0].(int) + 1, nil
			}, a.memoOptions("bench")...)

			var result int
			start := time.Now()
			for i := 0; i < calls; i++ {
				v, err := m.Call(arg)
				if err != nil {
					return err
				}
				result = v
			}
			elapsed := time.Since(start)

			log.Log(a.logger, log.LogInfo, "bench finished", map[string]interface{}{
				"calls":       calls,
				"invocations": invocations.Load(),
				"elapsed":     elapsed,
			})
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "result=%d calls=%d invocations=%d elapsed=%s\n",
				result, calls, invocations.Load(), elapsed)
			return a.report(out)
		},
	}

	cmd.Flags().Int("calls", 1_000_000, "number of calls")
	cmd.Flags().Int("arg", 321, "argument of every call")
	_ = a.v.BindPFlag(configkeys.ConfigBenchCalls, cmd.Flags().Lookup("calls"))
	_ = a.v.BindPFlag(configkeys.ConfigBenchArg, cmd.Flags().Lookup("arg"))
	return cmd
}
