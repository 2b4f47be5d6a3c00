// Package cmd provides the argus CLI subcommands.
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"argus/config"
	"argus/core"
	"argus/storage"
	"argus/threat"
)

// sampleIndicators is a small starter set of indicators for demo and test
// environments. Production deployments replace these with real feeds.
var sampleIndicators = []core.IOC{
	{Type: core.IOCTypeIP, Value: "192.168.100.1", ThreatType: "malware_c2", Confidence: 0.9, Source: "seed"},
	{Type: core.IOCTypeDomain, Value: "malicious.example.com", ThreatType: "phishing", Confidence: 0.85, Source: "seed"},
	{Type: core.IOCTypeHash, Value: "d41d8cd98f00b204e9800998ecf8427e", ThreatType: "ransomware", Confidence: 0.95, Source: "seed"},
	{Type: core.IOCTypeIP, Value: "10.0.0.100", ThreatType: "lateral_movement", Confidence: 0.7, Source: "seed"},
}

// NewSeedIntelCmd creates the 'seed-intel' command, which loads the sample
// threat intelligence indicators into the configured database.
func NewSeedIntelCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "seed-intel",
		Short: "Seed the threat intelligence store with sample indicators",
		Long: `Seed the threat intelligence store with a small set of sample indicators
(malware C2 addresses, a phishing domain, a ransomware file hash). Useful for
demo environments and for verifying the enrichment path end to end.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeedIntel(cmd.Context(), dbPath)
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "Database path (defaults to the configured database.path)")
	return cmd
}

func runSeedIntel(ctx context.Context, dbPath string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if dbPath == "" {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		dbPath = cfg.Database.Path
	}

	logger := zap.NewNop().Sugar()
	store, err := storage.NewSQLite(dbPath, logger)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	index := threat.NewIndex(store, nil, logger)

	now := time.Now().UTC()
	for i := range sampleIndicators {
		ioc := sampleIndicators[i]
		ioc.FirstSeen = now
		ioc.LastSeen = now
		ioc.IsActive = true
		if err := index.Upsert(ctx, &ioc); err != nil {
			return fmt.Errorf("failed to seed %s %s: %w", ioc.Type, ioc.Value, err)
		}
		fmt.Printf("seeded %s %s (%s, confidence %.2f)\n", ioc.Type, ioc.Value, ioc.ThreatType, ioc.Confidence)
	}

	fmt.Printf("seeded %d indicators into %s\n", len(sampleIndicators), dbPath)
	return nil
}
