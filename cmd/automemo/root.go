package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/on-the-ground/automemo/internal/configkeys"
	"github.com/on-the-ground/automemo/internal/log"
	"github.com/on-the-ground/automemo/purefn"
)

// app is the state shared by the subcommands of one invocation.
type app struct {
	v       *viper.Viper
	cfgFile string
	logger  *zap.Logger
	reg     *prometheus.Registry
	metrics *purefn.Metrics
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	a := &app{v: v}
	root := &cobra.Command{
		Use:           "automemo",
		Short:         "Exercise reachability-based memoization.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.logger.Sync()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (yaml, json or toml)")
	flags.Bool("verbose", false, "log every cache operation")
	flags.Int("shards", 0, "trie shards per memo (0 for the default)")
	flags.Bool("single-flight", false, "coalesce concurrent first calls")
	_ = v.BindPFlag(configkeys.ConfigVerbose, flags.Lookup("verbose"))
	_ = v.BindPFlag(configkeys.ConfigMemoShards, flags.Lookup("shards"))
	_ = v.BindPFlag(configkeys.ConfigMemoSingleFlight, flags.Lookup("single-flight"))

	root.AddCommand(newBenchCmd(a), newChurnCmd(a))
	return root
}

func (a *app) init() error {
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	a.v.AutomaticEnv()
	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config %s: %w", a.cfgFile, err)
		}
	}

	logger, err := log.New(a.v.GetBool(configkeys.ConfigVerbose))
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	a.logger = logger
	if used := a.v.ConfigFileUsed(); used != "" {
		log.Log(a.logger, log.LogInfo, "using config file", map[string]interface{}{"path": used})
	}

	a.reg = prometheus.NewRegistry()
	a.metrics = purefn.NewMetrics(a.reg)
	return nil
}

func (a *app) memoOptions(name string) []purefn.Option {
	opts := []purefn.Option{
		purefn.WithName(name),
		purefn.WithLogger(a.logger),
		purefn.WithMetrics(a.metrics),
		purefn.WithShards(a.v.GetInt(configkeys.ConfigMemoShards)),
	}
	if a.v.GetBool(configkeys.ConfigMemoSingleFlight) {
		opts = append(opts, purefn.WithSingleFlight())
	}
	return opts
}

// report writes every non-zero counter of the run.
func (a *app) report(w io.Writer) error {
	families, err := a.reg.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, l := range m.GetLabel() {
				labels = append(labels, l.GetName()+"="+l.GetValue())
			}
			fmt.Fprintf(w, "%s{%s} %g\n", mf.GetName(), strings.Join(labels, ","), m.GetCounter().GetValue())
		}
	}
	return nil
}
