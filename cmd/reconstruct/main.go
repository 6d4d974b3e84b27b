// Command reconstruct runs direction reconstruction over a database of
// station events and coincidences, and can serve the stored results over
// HTTP afterwards.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/skyfront-data/shower.report/internal/api"
	"github.com/skyfront-data/shower.report/internal/cluster"
	"github.com/skyfront-data/shower.report/internal/config"
	"github.com/skyfront-data/shower.report/internal/monitoring"
	"github.com/skyfront-data/shower.report/internal/recon"
	"github.com/skyfront-data/shower.report/internal/recondb"
	"github.com/skyfront-data/shower.report/internal/stationdata"
	"github.com/skyfront-data/shower.report/internal/version"
)

var (
	dbFile      = flag.String("db", "shower_data.db", "Path to the sqlite database")
	mode        = flag.String("mode", "event", "Reconstruction mode: event or coincidence")
	station     = flag.Int("station", 0, "Station number (event mode)")
	clusterFile = flag.String("cluster", "", "Cluster geometry JSON file (coincidence mode)")
	stationList = flag.String("stations", "", "Comma-separated station numbers; geometry is fetched from the network API when no cluster file is given")
	configPath  = flag.String("config", "", "Reconstruction config JSON file")
	migrations  = flag.String("migrations", "", "Migrations directory to apply before running")
	overwrite   = flag.Bool("overwrite", false, "Replace existing reconstruction output")
	localOnly   = flag.Bool("local-only", false, "Use only cached station data, never the network")
	progressOn  = flag.Bool("progress", false, "Report progress while reconstructing")
	verbose     = flag.Bool("verbose", false, "Enable debug logging")
	listen      = flag.String("listen", "", "Serve the results API on this address after reconstructing")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()
	if *showVersion {
		log.Printf("reconstruct %s (%s, built %s)", version.Version, version.GitSHA, version.BuildTime)
		return
	}
	monitoring.SetVerbose(*verbose)

	cfg := config.DefaultReconConfig()
	if *configPath != "" {
		loaded, err := config.LoadReconConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		cfg = loaded
	}

	db, err := recondb.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("failed to open database %s: %v", *dbFile, err)
	}
	defer db.Close()

	if *migrations != "" {
		if err := db.MigrateUp(*migrations); err != nil {
			log.Fatalf("failed to apply migrations: %v", err)
		}
	}

	switch *mode {
	case "event":
		if *station <= 0 {
			log.Fatal("event mode requires -station")
		}
		if err := runEventMode(db, cfg); err != nil {
			fatalRunError(err)
		}
	case "coincidence":
		if err := runCoincidenceMode(db, cfg); err != nil {
			fatalRunError(err)
		}
	default:
		log.Fatalf("unknown mode %q (want event or coincidence)", *mode)
	}

	if *listen != "" {
		server := api.NewServer(db)
		log.Printf("serving results API on %s", *listen)
		if err := http.ListenAndServe(*listen, api.LoggingMiddleware(server.ServeMux())); err != nil {
			log.Fatalf("server error: %v", err)
		}
	}
}

func fatalRunError(err error) {
	if errors.Is(err, recon.ErrOutputExists) {
		log.Fatalf("%v; rerun with -overwrite to replace it", err)
	}
	log.Fatalf("reconstruction failed: %v", err)
}

func newCalibrator(cfg *config.ReconConfig) *recon.Calibrator {
	cal := recon.NewCalibrator()
	cal.ReferenceStation = cfg.GetReferenceStation()
	cal.ReferenceDetector = cfg.GetReferenceDetector()
	cal.DetectorEdges = cfg.DetectorEdges()
	cal.StationBins = cfg.GetStationBins()
	if dir := cfg.GetPlotDir(); dir != "" {
		cal.Plotter = &recon.OffsetPlotter{Dir: dir}
	}
	return cal
}

func runEventMode(db *recondb.DB, cfg *config.ReconConfig) error {
	geometry := stationGeometry(cfg, *station)

	store := recondb.NewEventStore(db, *station)
	r := recon.NewEventReconstructor(geometry, store, store)
	r.Calibrator = newCalibrator(cfg)
	r.Overwrite = *overwrite
	r.Progress = *progressOn
	return r.ReconstructAndStore()
}

func runCoincidenceMode(db *recondb.DB, cfg *config.ReconConfig) error {
	cl, err := loadCluster(cfg)
	if err != nil {
		return err
	}

	events := recondb.NewEventStore(db, 0)
	coincidences := recondb.NewCoincidenceStore(db)
	r := recon.NewCoincidenceReconstructor(cl, events, coincidences, coincidences)
	r.Calibrator = newCalibrator(cfg)
	r.Overwrite = *overwrite
	r.Progress = *progressOn
	return r.ReconstructAndStore()
}

// stationGeometry resolves the station layout for event mode: from the
// cluster file if one is given, otherwise the standard diamond at the frame
// origin. Single-station reconstruction only depends on relative detector
// positions.
func stationGeometry(cfg *config.ReconConfig, number int) cluster.Station {
	if *clusterFile != "" {
		cl, err := cluster.LoadFile(*clusterFile)
		if err != nil {
			log.Fatalf("failed to load cluster file: %v", err)
		}
		if s, ok := cl.Get(number); ok {
			return s
		}
		log.Fatalf("station %d not in cluster file %s", number, *clusterFile)
	}
	return cluster.DiamondStation(number, cluster.Position{}, 5)
}

// loadCluster builds the coincidence-mode cluster: from a local geometry
// file when given, otherwise from GPS positions fetched (and cached) from
// the network API for the stations named by -stations.
func loadCluster(cfg *config.ReconConfig) (*cluster.Cluster, error) {
	if *clusterFile != "" {
		return cluster.LoadFile(*clusterFile)
	}
	numbers, err := parseStationList(*stationList)
	if err != nil {
		return nil, err
	}

	source := stationdata.NewFileCache(
		stationdata.NewClient(cfg.GetAPIBaseURL(), cfg.GetAPITimeout()),
		cfg.GetCacheDir(),
	)
	source.LocalOnly = *localOnly
	ctx := context.Background()
	gps := make([]cluster.GPSStation, len(numbers))
	for i, n := range numbers {
		info, err := source.StationInfo(ctx, n)
		if err != nil {
			return nil, err
		}
		gps[i] = cluster.GPSStation{
			Number:    info.Number,
			Latitude:  info.Latitude,
			Longitude: info.Longitude,
			Altitude:  info.Altitude,
		}
	}
	return cluster.FromGPS("gps:"+*stationList, gps)
}

func parseStationList(list string) ([]int, error) {
	if list == "" {
		return nil, errors.New("coincidence mode requires -cluster or -stations")
	}
	var numbers []int
	for _, field := range strings.Split(list, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil {
			return nil, errors.New("invalid -stations list: " + list)
		}
		numbers = append(numbers, n)
	}
	return numbers, nil
}
