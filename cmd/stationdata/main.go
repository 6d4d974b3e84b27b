// Command stationdata prefetches station-network metadata into the local
// file cache, so later reconstruction runs work offline.
package main

import (
	"context"
	"flag"
	"log"

	"github.com/skyfront-data/shower.report/internal/config"
	"github.com/skyfront-data/shower.report/internal/monitoring"
	"github.com/skyfront-data/shower.report/internal/progress"
	"github.com/skyfront-data/shower.report/internal/stationdata"
	"github.com/skyfront-data/shower.report/internal/version"
)

var (
	configPath  = flag.String("config", "", "Reconstruction config JSON file")
	cacheDir    = flag.String("cache", "", "Cache directory (overrides config)")
	freshFlag   = flag.Bool("force-fresh", false, "Refetch even when a cached copy exists")
	verbose     = flag.Bool("verbose", false, "Enable debug logging")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()
	if *showVersion {
		log.Printf("stationdata %s (%s, built %s)", version.Version, version.GitSHA, version.BuildTime)
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
	dir := cfg.GetCacheDir()
	if *cacheDir != "" {
		dir = *cacheDir
	}

	cache := stationdata.NewFileCache(
		stationdata.NewClient(cfg.GetAPIBaseURL(), cfg.GetAPITimeout()),
		dir,
	)
	cache.ForceFresh = *freshFlag

	ctx := context.Background()
	numbers, err := cache.StationNumbers(ctx)
	if err != nil {
		log.Fatalf("failed to fetch station list: %v", err)
	}
	log.Printf("caching data for %d stations under %s", len(numbers), dir)

	reporter := progress.NewReporter("fetching station data", len(numbers))
	failed := 0
	for _, number := range numbers {
		if _, err := cache.StationInfo(ctx, number); err != nil {
			monitoring.Logf("station %d: info fetch failed: %v", number, err)
			failed++
			reporter.Increment()
			continue
		}
		if _, err := cache.DetectorTimingOffsets(ctx, number); err != nil {
			monitoring.Logf("station %d: offsets fetch failed: %v", number, err)
			failed++
		}
		reporter.Increment()
	}
	reporter.Finish()

	if failed > 0 {
		log.Printf("done with %d failures", failed)
	}
}
