package main

import (
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/i474232898/geodata-aggregation/internal/aggregate"
	"github.com/i474232898/geodata-aggregation/internal/feature"
)

func newFetchCmd() *cobra.Command {
	var (
		year      int
		indicator string
	)
	cmd := &cobra.Command{
		Use:       "fetch <dataset>",
		Short:     "Compute one dataset without the cache and print it as GeoJSON",
		Args:      cobra.ExactArgs(1),
		ValidArgs: append(aggregate.DatasetNames(), aggregate.DatasetStatistics),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := buildApplication(ctx, prometheus.NewRegistry())
			if err != nil {
				return err
			}
			defer func() { _ = app.close() }()

			var c feature.Collection
			if name := args[0]; name == aggregate.DatasetStatistics {
				if indicator == "" {
					return fmt.Errorf("--indicator is required for %s", name)
				}
				c = app.service.ComputeMunicipalities(ctx, year, indicator)
			} else if c, err = app.service.Compute(ctx, name); err != nil {
				return err
			}

			out, err := json.MarshalIndent(c.GeoJSON(), "", "  ")
			if err != nil {
				return fmt.Errorf("encode collection: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}
	cmd.Flags().IntVar(&year, "year", time.Now().Year()-1, "statistics year")
	cmd.Flags().StringVar(&indicator, "indicator", "", "statistics indicator code")
	return cmd
}
