package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"feeledger/config"
	"feeledger/native/fees"
	"feeledger/observability/logging"
	"feeledger/storage"
)

func main() {
	configPath := "feeledger.toml"
	level := slog.LevelInfo
	args := os.Args[1:]

	filtered := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "Error: --config requires a path.")
				os.Exit(1)
			}
			i++
			configPath = args[i]
		case "--debug":
			level = slog.LevelDebug
		default:
			filtered = append(filtered, args[i])
		}
	}
	args = filtered

	if len(args) < 1 {
		printUsage()
		return
	}

	logger := logging.Setup("feectl", "", level)

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: load config %s: %v\n", configPath, err)
		os.Exit(1)
	}

	cacheDB, err := storage.NewLevelDB(cfg.FeeCacheDir())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: open fee cache db: %v\n", err)
		os.Exit(1)
	}
	defer cacheDB.Close()
	historyDB, err := storage.NewLevelDB(cfg.FeeHistoryDir())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: open fee history db: %v\n", err)
		os.Exit(1)
	}
	defer historyDB.Close()

	history := fees.NewFeeHistory(historyDB, logger)
	// Diagnostics only touch the read paths, so the distribution
	// collaborators stay unset.
	cache := fees.NewFeeCache(cacheDB, history, nil, nil, nil, nil, fees.CacheConfig{
		ThresholdDivisor:       cfg.FeeThresholdDivisor,
		StateHistoryBlocks:     cfg.StateHistoryBlocks,
		OverrideForcedShutdown: cfg.OverrideForcedShutdown,
	}, logger)

	command := args[0]
	switch command {
	case "stats":
		showStats(cacheDB, history)
	case "cache":
		if len(args) < 2 {
			fmt.Println("Error: Please provide a property id.")
			printUsage()
			return
		}
		showCache(cache, parsePropertyID(args[1]))
	case "history":
		if len(args) < 2 {
			fmt.Println("Error: Please provide a distribution id.")
			printUsage()
			return
		}
		showDistribution(history, parseSequenceID(args[1]))
	case "distributions":
		if len(args) < 2 {
			fmt.Println("Error: Please provide a property id.")
			printUsage()
			return
		}
		showDistributions(history, parsePropertyID(args[1]))
	case "dump":
		if err := cache.DumpAll(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: dump fee cache: %v\n", err)
			os.Exit(1)
		}
		if err := history.DumpAll(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: dump fee history: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
	}
}

func showStats(cacheDB storage.Database, history *fees.FeeHistory) {
	properties := 0
	if err := cacheDB.Iterate(nil, func(key, value []byte) bool {
		properties++
		return true
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: scan fee cache: %v\n", err)
		os.Exit(1)
	}
	records, err := history.CountRecords()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: count fee history: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("fee cache:   %d properties with history\n", properties)
	fmt.Printf("fee history: %d distribution records\n", records)
}

func showCache(cache *fees.FeeCache, propertyID uint32) {
	amount, err := cache.GetCachedAmount(propertyID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: read cache for property %d: %v\n", propertyID, err)
		os.Exit(1)
	}
	entries, err := cache.GetCacheHistory(propertyID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: read cache history for property %d: %v\n", propertyID, err)
		os.Exit(1)
	}
	fmt.Printf("property %d: cached amount %d (%d history entries)\n", propertyID, amount, len(entries))
	for _, entry := range entries {
		fmt.Printf("  block %d: %d\n", entry.Block, entry.Amount)
	}
}

func showDistribution(history *fees.FeeHistory, id uint64) {
	data, ok, err := history.GetDistributionData(id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: read distribution %d: %v\n", id, err)
		os.Exit(1)
	}
	if !ok {
		fmt.Printf("distribution %d not found\n", id)
		return
	}
	recipients, err := history.GetFeeDistribution(id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: read distribution recipients %d: %v\n", id, err)
		os.Exit(1)
	}
	fmt.Printf("distribution %d: property %d block %d total %d\n", data.SequenceID, data.PropertyID, data.Block, data.Total)
	for _, r := range recipients {
		fmt.Printf("  %s received %d\n", r.Address, r.Amount)
	}
}

func showDistributions(history *fees.FeeHistory, propertyID uint32) {
	ids, err := history.GetDistributionsForProperty(propertyID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: scan distributions for property %d: %v\n", propertyID, err)
		os.Exit(1)
	}
	if len(ids) == 0 {
		fmt.Printf("no distributions recorded for property %d\n", propertyID)
		return
	}
	for _, id := range ids {
		data, ok, err := history.GetDistributionData(id)
		if err != nil || !ok {
			continue
		}
		fmt.Printf("distribution %d: block %d total %d\n", data.SequenceID, data.Block, data.Total)
	}
}

func parsePropertyID(raw string) uint32 {
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid property id %q\n", raw)
		os.Exit(1)
	}
	return uint32(id)
}

func parseSequenceID(raw string) uint64 {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid distribution id %q\n", raw)
		os.Exit(1)
	}
	return id
}

func printUsage() {
	fmt.Println("Usage: feectl [--config path] [--debug] <command>")
	fmt.Println("Commands:")
	fmt.Println("  stats                      Show record counts for both tables")
	fmt.Println("  cache <property>           Show the fee cache history for a property")
	fmt.Println("  history <id>               Show one recorded fee distribution")
	fmt.Println("  distributions <property>   List distributions recorded for a property")
	fmt.Println("  dump                       Dump both tables")
}
