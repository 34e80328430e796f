package main

import (
	"context"
	"fmt"
	"time"

	"github.com/newthinker/sigalign/internal/storage/export"
	"github.com/spf13/cobra"
)

var exportsDay string

var exportsCmd = &cobra.Command{
	Use:   "exports",
	Short: "List exported alignment passes",
	Args:  cobra.NoArgs,
	RunE:  runExports,
}

func init() {
	exportsCmd.Flags().StringVar(&exportsDay, "day", "", "only passes exported on this day, YYYY-MM-DD")
	rootCmd.AddCommand(exportsCmd)
}

func runExports(cmd *cobra.Command, args []string) error {
	var day time.Time
	if exportsDay != "" {
		d, err := time.Parse("2006-01-02", exportsDay)
		if err != nil {
			return fmt.Errorf("invalid day format (expected YYYY-MM-DD): %w", err)
		}
		day = d
	}

	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()

	exporter, err := newExporter(e)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	paths, err := exporter.List(ctx, day)
	if err != nil {
		return err
	}
	for _, p := range paths {
		fmt.Fprintln(cmd.OutOrStdout(), p)
	}
	return nil
}

func newExporter(e *env) (*export.Exporter, error) {
	var store export.Storage
	var err error

	switch e.cfg.Export.Type {
	case "s3":
		s3 := e.cfg.Export.S3
		store, err = export.NewS3(export.S3Config{
			Bucket:    s3.Bucket,
			Endpoint:  s3.Endpoint,
			Region:    s3.Region,
			AccessKey: s3.AccessKey,
			SecretKey: s3.SecretKey,
			Prefix:    s3.Prefix,
		})
	default:
		path := e.cfg.Export.Path
		if path == "" {
			path = "export"
		}
		store, err = export.NewLocalFS(path)
	}
	if err != nil {
		return nil, fmt.Errorf("creating export storage: %w", err)
	}
	return export.NewExporter(store, e.log), nil
}
