package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/costwatch/costwatch-dashboard/axis"
	"github.com/costwatch/costwatch-dashboard/secret"
	"github.com/costwatch/costwatch-dashboard/source"
	"github.com/costwatch/costwatch-dashboard/threshold"
)

func newProvidersCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "list registered source and secret providers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "source: %s\n", strings.Join(source.Providers(), ", "))
			fmt.Fprintf(out, "secret: %s\n", strings.Join(secret.Providers(), ", "))
			return nil
		},
	}
}

func newThresholdCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "threshold",
		Short: "manage alert thresholds",
	}

	var service, metric string
	set := &cobra.Command{
		Use:   "set VALUE",
		Short: "propose a threshold for a service and metric",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := threshold.ParseThreshold(args[0])
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), refreshTimeout)
			defer cancel()

			a, err := buildApp(ctx, g)
			if err != nil {
				return err
			}
			rule, err := a.thresholds.Propose(ctx, service, metric, value)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s / %s threshold set to %s\n", rule.Service, rule.Metric, axis.FormatCurrency(rule.Threshold))
			return nil
		},
	}
	set.Flags().StringVar(&service, "service", "", "service name")
	set.Flags().StringVar(&metric, "metric", "", "metric name")
	_ = set.MarkFlagRequired("service")
	_ = set.MarkFlagRequired("metric")

	list := &cobra.Command{
		Use:   "list",
		Short: "list thresholds from the upstream rule store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), refreshTimeout)
			defer cancel()

			a, err := buildApp(ctx, g)
			if err != nil {
				return err
			}
			rules, err := a.holder.AlertRules(ctx)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rules)
		},
	}

	cmd.AddCommand(set, list)
	return cmd
}

func newConfigCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "print the resolved configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *g.cfg
			if cfg.BearerToken != "" {
				cfg.BearerToken = "<redacted>"
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cfg)
		},
	}
}
