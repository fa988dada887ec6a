package handler

import (
	"context"
	"encoding/json"
	"fmt"

	"cloudimg/internal/core/domain"
	"cloudimg/internal/core/port"
	"cloudimg/internal/core/service"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type IngestOptions struct {
	Manifest string
	Output   string
	// Overwrite replaces the configured overwrite policy for assets that do not set their own.
	Overwrite *bool
}

// App is the set of operations exposed on the command line.
type App interface {
	Ingest(ctx context.Context, opts IngestOptions) (port.RunReport, error)
	Fixed(ctx context.Context, req service.FixedRequest) (domain.ImageDescriptor, error)
	Fluid(ctx context.Context, req service.FluidRequest) (domain.ImageDescriptor, error)
	Close() error
}

// AppFactory builds an App from the configuration file at configPath. Ingestion requires upload
// credentials, descriptor commands do not.
type AppFactory func(ctx context.Context, configPath string, ingest bool) (App, error)

func NewRootCommand(factory AppFactory) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "cloudimg",
		Short:         "Upload images to Cloudinary and build responsive image descriptors",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the TOML configuration file")

	open := func(cmd *cobra.Command, ingest bool) (App, error) {
		return factory(cmd.Context(), configPath, ingest)
	}

	root.AddCommand(newIngestCommand(open), newFixedCommand(open), newFluidCommand(open))

	return root
}

type opener func(cmd *cobra.Command, ingest bool) (App, error)

func newIngestCommand(open opener) *cobra.Command {
	var opts IngestOptions
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Upload every asset in the manifest and write derived nodes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("overwrite") {
				opts.Overwrite = &overwrite
			}

			app, err := open(cmd, true)
			if err != nil {
				return err
			}
			defer closeApp(app)

			report, err := app.Ingest(cmd.Context(), opts)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d assets: %d uploaded, %d skipped, %d failed\n",
				report.Total, report.Uploaded, report.Skipped, len(report.Failures))

			if report.Cancelled {
				return fmt.Errorf("run %s cancelled", report.RunID)
			}
			if len(report.Failures) > 0 {
				return fmt.Errorf("%d of %d assets failed", len(report.Failures), report.Total)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.Manifest, "manifest", "m", "", "asset manifest, overrides ingest.manifest")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "node output file, overrides ingest.output")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "re-upload assets that were uploaded before")

	return cmd
}

type assetFlags struct {
	publicID        string
	cloudName       string
	width           int
	height          int
	version         int64
	base64Width     int
	transformations []string
	chained         []string
	defaults        []string
}

func (f *assetFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.publicID, "public-id", "", "public id of the uploaded asset")
	cmd.Flags().StringVar(&f.cloudName, "cloud-name", "", "cloud name, overrides cloudinary.cloud_name")
	cmd.Flags().IntVar(&f.width, "original-width", 0, "width of the original asset")
	cmd.Flags().IntVar(&f.height, "original-height", 0, "height of the original asset")
	cmd.Flags().Int64Var(&f.version, "version", 0, "asset version, omitted from URLs when zero")
	cmd.Flags().IntVar(&f.base64Width, "base64-width", 0, "placeholder width")
	cmd.Flags().StringSliceVar(&f.transformations, "transformations", nil, "transformation directives")
	cmd.Flags().StringSliceVar(&f.chained, "chained", nil, "chained transformation stages")
	cmd.Flags().StringSliceVar(&f.defaults, "defaults", nil, "default directives, f_auto,q_auto when unset")

	_ = cmd.MarkFlagRequired("public-id")
	_ = cmd.MarkFlagRequired("original-width")
	_ = cmd.MarkFlagRequired("original-height")
}

func newFixedCommand(open opener) *cobra.Command {
	var asset assetFlags
	var width int

	cmd := &cobra.Command{
		Use:   "fixed",
		Short: "Print a fixed width descriptor for an uploaded asset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := open(cmd, false)
			if err != nil {
				return err
			}
			defer closeApp(app)

			desc, err := app.Fixed(cmd.Context(), service.FixedRequest{
				PublicID:        asset.publicID,
				CloudName:       asset.cloudName,
				OriginalWidth:   asset.width,
				OriginalHeight:  asset.height,
				Transformations: asset.transformations,
				Chained:         asset.chained,
				Defaults:        asset.defaults,
				Width:           width,
				Base64Width:     asset.base64Width,
				Version:         asset.version,
			})
			if err != nil {
				return err
			}

			return printJSON(cmd, desc)
		},
	}

	asset.register(cmd)
	cmd.Flags().IntVar(&width, "width", 0, "display width, 400 when unset")

	return cmd
}

func newFluidCommand(open opener) *cobra.Command {
	var asset assetFlags
	var maxWidth, minWidth, maxImages int
	var serviceBreakpoints bool

	cmd := &cobra.Command{
		Use:   "fluid",
		Short: "Print a fluid descriptor for an uploaded asset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := open(cmd, serviceBreakpoints)
			if err != nil {
				return err
			}
			defer closeApp(app)

			desc, err := app.Fluid(cmd.Context(), service.FluidRequest{
				PublicID:           asset.publicID,
				CloudName:          asset.cloudName,
				OriginalWidth:      asset.width,
				OriginalHeight:     asset.height,
				Transformations:    asset.transformations,
				Chained:            asset.chained,
				Defaults:           asset.defaults,
				MaxWidth:           maxWidth,
				MinWidth:           minWidth,
				MaxImages:          maxImages,
				ServiceBreakpoints: serviceBreakpoints,
				Base64Width:        asset.base64Width,
				Version:            asset.version,
			})
			if err != nil {
				return err
			}

			return printJSON(cmd, desc)
		},
	}

	asset.register(cmd)
	cmd.Flags().IntVar(&maxWidth, "max-width", 0, "largest rendered width, 1000 when unset")
	cmd.Flags().IntVar(&minWidth, "min-width", 0, "smallest rendered width, 50 when unset")
	cmd.Flags().IntVar(&maxImages, "max-images", 0, "maximum number of widths, 20 when unset")
	cmd.Flags().BoolVar(&serviceBreakpoints, "service-breakpoints", false, "let Cloudinary compute the widths")

	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	return encoder.Encode(v)
}

func closeApp(app App) {
	if err := app.Close(); err != nil {
		log.Warn().Err(err).Msg("error closing resources")
	}
}
