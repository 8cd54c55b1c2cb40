package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/stwalsh4118/siteplan/internal/geom"
	"github.com/stwalsh4118/siteplan/internal/ingest"
	"github.com/stwalsh4118/siteplan/internal/models"
	"github.com/stwalsh4118/siteplan/internal/repository"
	"github.com/stwalsh4118/siteplan/internal/store"
)

type syncOptions struct {
	layers      []string
	regions     []string
	file        string
	regionField string
	confirm     bool
	workers     int
}

func newSyncCmd() *cobra.Command {
	var opts syncOptions

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one ingestion cycle per region and layer",
		Long: `Fetch upstream geometry and reconcile it into the Geometry Store.

Records come from the configured ArcGIS endpoint, or from a GeoJSON
FeatureCollection with --file. A cycle whose record or delete count swings
past SYNC_ANOMALY_THRESHOLD is held back; pass --confirm to promote it anyway
after reviewing the report. A running server picks up promotions on its next
store refresh.`,
		Example: `  siteplan sync --layer parcel --region "SUNSHINE COAST"
  siteplan sync --layer zone --region "SUNSHINE COAST" --file zones.geojson --confirm`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, opts)
		},
	}

	cmd.Flags().StringSliceVar(&opts.layers, "layer", nil, "Layers to sync in order: parcel, address, zone, overlay (required)")
	cmd.Flags().StringSliceVar(&opts.regions, "region", nil, "Regions (LGAs) to sync; defaults to SYNC_REGIONS")
	cmd.Flags().StringVar(&opts.file, "file", "", "Read a GeoJSON FeatureCollection instead of the ArcGIS endpoint")
	cmd.Flags().StringVar(&opts.regionField, "region-field", "", "Feature property holding the region, to split --file by region")
	cmd.Flags().BoolVar(&opts.confirm, "confirm", false, "Promote cycles held back by an anomaly")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "Concurrent scopes; defaults to SYNC_WORKERS")
	_ = cmd.MarkFlagRequired("layer")

	return cmd
}

func parseLayers(names []string) ([]models.Layer, error) {
	layers := make([]models.Layer, 0, len(names))
	for _, n := range names {
		l, err := models.ParseLayer(n)
		if err != nil {
			return nil, err
		}
		layers = append(layers, l)
	}
	return layers, nil
}

func runSync(cmd *cobra.Command, opts syncOptions) error {
	layers, err := parseLayers(opts.layers)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	regions := opts.regions
	if len(regions) == 0 {
		regions = rt.cfg.Sync.Regions
	}
	if len(regions) == 0 {
		return errors.New("no regions given; pass --region or set SYNC_REGIONS")
	}
	workers := opts.workers
	if workers <= 0 {
		workers = rt.cfg.Sync.Workers
	}

	var source ingest.Source
	switch {
	case opts.file != "":
		source = &ingest.FileSource{Path: opts.file, RegionField: opts.regionField}
	case rt.cfg.Sync.SourceURL != "":
		source = ingest.NewArcGISSource(rt.cfg.Sync.SourceURL, rt.cfg.Sync.PageSize, nil, rt.log)
	default:
		return errors.New("no source; pass --file or set SYNC_SOURCE_URL")
	}

	st := store.New(repository.NewGeometryRepository(rt.db), rt.log)
	if err := st.Load(ctx); err != nil {
		return err
	}
	reconciler := ingest.NewReconciler(st, ingest.ReconcilerConfig{
		AnomalyThreshold: rt.cfg.Sync.AnomalyThreshold,
		Tolerance:        geom.NewTolerance(rt.cfg.Resolver.Epsilon),
	}, rt.log)
	runner := ingest.NewRunner(source, reconciler, workers, rt.log)

	reports, runErr := runner.RunLayers(ctx, layers, regions)
	if opts.confirm {
		runErr = confirmStaged(cmd, st, reports, runErr)
	}

	if err := printOutput(cmd.OutOrStdout(), outputFormat, reports); err != nil {
		return err
	}
	if runErr != nil && errors.Is(runErr, ingest.ErrSyncAnomaly) && !opts.confirm {
		return fmt.Errorf("%w; review the report and rerun with --confirm", runErr)
	}
	return runErr
}

// confirmStaged promotes every staged cycle in reports and updates the
// reports in place. Anomaly errors for confirmed cycles are dropped from
// runErr; anything else is kept.
func confirmStaged(cmd *cobra.Command, st *store.Store, reports []*ingest.CycleReport, runErr error) error {
	var errs []error
	for _, r := range reports {
		if r.Status != ingest.StatusStaged {
			continue
		}
		p, err := st.Confirm(cmd.Context(), r.Scope, r.CycleID)
		if err != nil {
			errs = append(errs, fmt.Errorf("confirm %s: %w", r.Scope, err))
			continue
		}
		r.Status = ingest.StatusPromoted
		r.Version = p.Version
		fmt.Fprintf(cmd.ErrOrStderr(), "confirmed %s cycle %s at version %d\n", r.Scope, r.CycleID, p.Version)
	}
	for _, e := range flatten(runErr) {
		if !errors.Is(e, ingest.ErrSyncAnomaly) {
			errs = append(errs, e)
		}
	}
	return errors.Join(errs...)
}

// flatten expands nested errors.Join results into their leaves.
func flatten(err error) []error {
	if err == nil {
		return nil
	}
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		var out []error
		for _, e := range j.Unwrap() {
			out = append(out, flatten(e)...)
		}
		return out
	}
	return []error{err}
}
