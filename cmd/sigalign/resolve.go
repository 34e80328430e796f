package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/newthinker/sigalign/internal/core"
	"github.com/spf13/cobra"
)

var resolveProtocol string

var resolveCmd = &cobra.Command{
	Use:   "resolve [signal...]",
	Short: "Resolve signals to their historical access descriptors",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runResolve,
}

var connectionCmd = &cobra.Command{
	Use:   "connection [url]",
	Short: "Show the endpoint and credential kind registered for a connection",
	Args:  cobra.ExactArgs(1),
	RunE:  runConnection,
}

func init() {
	resolveCmd.Flags().StringVar(&resolveProtocol, "protocol", "", "only consider access of this protocol (opcua, influxdb)")

	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(connectionCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	for _, arg := range args {
		id := core.SignalID(arg)
		var desc core.AccessDescriptor
		if resolveProtocol != "" {
			desc, err = e.resolver.ResolveProtocol(ctx, id, core.Protocol(strings.ToLower(resolveProtocol)))
		} else {
			desc, err = e.resolver.Resolve(ctx, id)
		}
		e.metrics.RecordResolution(err)
		if err != nil {
			return err
		}
		printDescriptor(cmd.OutOrStdout(), desc)
	}
	return nil
}

func printDescriptor(w io.Writer, desc core.AccessDescriptor) {
	fmt.Fprintf(w, "%s\n", desc.Signal())
	fmt.Fprintf(w, "  protocol:  %s\n", desc.Protocol())
	fmt.Fprintf(w, "  endpoint:  %s\n", desc.Endpoint())
	fmt.Fprintf(w, "  type:      %s\n", desc.Type())

	switch d := desc.(type) {
	case core.OpcUaAccess:
		fmt.Fprintf(w, "  namespace: %s\n", d.NamespaceURI)
		fmt.Fprintf(w, "  node:      %s\n", d.Node.Format())
	case core.TimeSeriesAccess:
		fmt.Fprintf(w, "  bucket:    %s\n", d.Bucket)
		fmt.Fprintf(w, "  org:       %s\n", d.Organization)
		fmt.Fprintf(w, "  series:    %s.%s\n", d.Measurement, d.Field)
		for _, t := range d.Tags {
			fmt.Fprintf(w, "  tag:       %s=%s\n", t.Key, t.Value)
		}
	}
}

func runConnection(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	ep, err := e.resolver.ResolveConnection(ctx, args[0])
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s\n", ep.URL)
	fmt.Fprintf(w, "  protocol:    %s\n", ep.Protocol)
	if ep.Protocol == core.ProtocolInfluxDB {
		fmt.Fprintf(w, "  org:         %s\n", ep.Organization)
		fmt.Fprintf(w, "  bucket:      %s\n", ep.Bucket)
	}
	if ep.Security.Policy != "" || ep.Security.Mode != "" {
		fmt.Fprintf(w, "  security:    %s/%s\n", ep.Security.Policy, ep.Security.Mode)
	}
	creds := "anonymous"
	if ep.Credentials != nil {
		creds = fmt.Sprint(ep.Credentials)
	}
	fmt.Fprintf(w, "  credentials: %s\n", creds)
	return nil
}
