// Package pipeline coordinates the engine steps over one import or one
// analysis snapshot.
//
// Two entry points exist:
//   - Importer turns statement exports into deduplicated normalized rows
//   - Analyzer runs categorization, transfer detection, recurring detection
//     and budget progress over an in-memory snapshot of records
//
// Example usage:
//
//	importer := pipeline.NewImporter(pipeline.DefaultConfig())
//	result, err := importer.Import(ctx, &pipeline.ImportRequest{
//		Source:      "dkb.csv",
//		Data:        data,
//		KnownHashes: known,
//	})
//
//	analyzer := pipeline.NewAnalyzer(pipeline.DefaultConfig())
//	analyzer.AddProgressCallback(func(p pipeline.Progress) {
//		fmt.Printf("%.0f%% %s\n", p.PercentComplete, p.CurrentStep)
//	})
//	analysis, err := analyzer.Run(ctx, &pipeline.Snapshot{Records: records})
//
// Engine functions stay synchronous; cancellation is honored between steps.
package pipeline

import (
	"fmt"

	"statement-engine/internal/matcher"
	"statement-engine/internal/parsers"
	"statement-engine/internal/recurring"
	"statement-engine/pkg/errors"
)

// Config holds configuration for the import and analysis pipelines
type Config struct {
	Parse     *parsers.ParseConfig    `json:"parse"`
	Transfers *matcher.TransferConfig `json:"transfers"`
	Recurring *recurring.Config       `json:"recurring"`

	MaxConcurrentFiles  int  `json:"max_concurrent_files"`
	OverwriteCategories bool `json:"overwrite_categories"`
	SkipTransfers       bool `json:"skip_transfers"`
	SkipRecurring       bool `json:"skip_recurring"`
}

// DefaultConfig returns a default pipeline configuration
func DefaultConfig() *Config {
	return &Config{
		Parse:              parsers.DefaultParseConfig(),
		Transfers:          matcher.DefaultTransferConfig(),
		Recurring:          recurring.DefaultConfig(),
		MaxConcurrentFiles: 4,
	}
}

// Validate validates the configuration and every nested engine config
func (c *Config) Validate() error {
	if c.MaxConcurrentFiles <= 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "max_concurrent_files", c.MaxConcurrentFiles,
			fmt.Errorf("max concurrent files must be positive, got %d", c.MaxConcurrentFiles))
	}
	if c.Parse != nil {
		if err := c.Parse.Validate(); err != nil {
			return err
		}
	}
	if c.Transfers != nil {
		if err := c.Transfers.Validate(); err != nil {
			return err
		}
	}
	if c.Recurring != nil {
		if err := c.Recurring.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) withDefaults() *Config {
	if c == nil {
		return DefaultConfig()
	}
	out := *c
	def := DefaultConfig()
	if out.Parse == nil {
		out.Parse = def.Parse
	}
	if out.Transfers == nil {
		out.Transfers = def.Transfers
	}
	if out.Recurring == nil {
		out.Recurring = def.Recurring
	}
	if out.MaxConcurrentFiles <= 0 {
		out.MaxConcurrentFiles = def.MaxConcurrentFiles
	}
	return &out
}
