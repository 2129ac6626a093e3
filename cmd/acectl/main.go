// acectl is the operational CLI for the playbook engine: inspect and mutate
// the playbook, and run feedback processing by hand.
package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/spf13/cobra"

	"github.com/XiaoConstantine/ace-go/pkg/chats"
	"github.com/XiaoConstantine/ace-go/pkg/config"
	"github.com/XiaoConstantine/ace-go/pkg/curator"
	"github.com/XiaoConstantine/ace-go/pkg/embedding"
	"github.com/XiaoConstantine/ace-go/pkg/feedback"
	"github.com/XiaoConstantine/ace-go/pkg/logging"
	"github.com/XiaoConstantine/ace-go/pkg/pipeline"
	"github.com/XiaoConstantine/ace-go/pkg/playbook"
	"github.com/XiaoConstantine/ace-go/pkg/reflection"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "acectl",
	Short: "Manage the self-improving playbook",
	Long: `acectl operates the feedback-driven playbook engine: a vector-indexed
store of strategy bullets that grows from user feedback on chat responses.

Inspect the playbook, search it the way the assistant does at prompt time,
deduplicate near-identical bullets, and run feedback processing manually.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config (defaults apply when omitted)")
	rootCmd.AddCommand(statsCmd(), searchCmd(), addCmd(), dedupCmd(), processCmd(), batchCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// app bundles everything a command needs, built fresh per invocation.
type app struct {
	cfg      *config.Config
	playbook *playbook.Store
	pipeline *pipeline.Pipeline
	feedback *feedback.Store
	chats    *chats.Store
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.DefaultConfig(), nil
	}
	return config.Load(configPath)
}

func setupLogging(cfg *config.Config) error {
	outputs := []logging.Output{logging.NewConsoleOutput(true)}
	if cfg.Logging.File != "" {
		fileOut, err := logging.NewFileOutput(cfg.Logging.File)
		if err != nil {
			return err
		}
		outputs = append(outputs, fileOut)
	}
	logging.SetLogger(logging.NewLogger(logging.Config{
		Severity: logging.ParseSeverity(cfg.Logging.Level),
		Outputs:  outputs,
	}))
	return nil
}

// newApp wires the stores and the pipeline from configuration. The caller
// must Close the app when done.
func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := setupLogging(cfg); err != nil {
		return nil, err
	}

	provider := embedding.NewOllamaProvider(cfg.Embedding.BaseURL, cfg.Embedding.Model, cfg.Embedding.Dimensions)
	pb, err := playbook.NewStore(cfg.Playbook.Dir, provider)
	if err != nil {
		return nil, err
	}

	fs, err := feedback.NewStore(cfg.Feedback.Dir)
	if err != nil {
		return nil, err
	}

	cs, err := chats.NewStore(cfg.Chats.Path)
	if err != nil {
		return nil, err
	}

	merger, err := curator.NewMerger(pb, cfg.Pipeline.UpdatesDir)
	if err != nil {
		_ = cs.Close()
		return nil, err
	}

	p, err := pipeline.New(pipeline.Deps{
		Playbook:  pb,
		Feedback:  fs,
		Chats:     cs,
		Reflector: buildReflector(cfg),
		Curator:   curator.New(pb),
		Merger:    merger,
		LogDir:    cfg.Pipeline.LogDir,
	})
	if err != nil {
		_ = cs.Close()
		return nil, err
	}

	return &app{cfg: cfg, playbook: pb, pipeline: p, feedback: fs, chats: cs}, nil
}

func buildReflector(cfg *config.Config) reflection.Reflector {
	if cfg.Reflection.Provider != "anthropic" {
		return reflection.NewHeuristicReflector()
	}
	apiKey := cfg.Reflection.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	model := anthropic.Model(cfg.Reflection.ModelID)
	if model == "" {
		model = anthropic.Model("claude-sonnet-4-5-20250929")
	}
	return reflection.NewAnthropicReflector(apiKey, model)
}

func (a *app) Close() {
	_ = a.chats.Close()
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show playbook statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			stats := a.playbook.Stats()
			fmt.Printf("bullets:        %d\n", stats.TotalBullets)
			fmt.Printf("helpful ratio:  %.2f\n", stats.HelpfulRatio)
			fmt.Printf("recent (7d):    %d\n", stats.RecentBullets)
			fmt.Printf("helpful votes:  %d\n", stats.TotalHelpful)
			fmt.Printf("harmful votes:  %d\n", stats.TotalHarmful)

			sections := make([]string, 0, len(stats.Sections))
			for s := range stats.Sections {
				sections = append(sections, s)
			}
			sort.Strings(sections)
			for _, s := range sections {
				fmt.Printf("  %-25s %d\n", s, stats.Sections[s])
			}
			return nil
		},
	}
}

func searchCmd() *cobra.Command {
	var topK int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search bullets the way prompt injection does",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			bullets, err := a.playbook.Search(context.Background(), args[0], topK)
			if err != nil {
				return err
			}
			if len(bullets) == 0 {
				fmt.Println("no matching bullets")
				return nil
			}
			for _, b := range bullets {
				fmt.Printf("%s\n    %s\n", b.String(), b.Content)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", 5, "number of results")
	return cmd
}

func addCmd() *cobra.Command {
	var section string
	cmd := &cobra.Command{
		Use:   "add <content>",
		Short: "Add a bullet by hand",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			id, err := a.playbook.Add(context.Background(), args[0], section)
			if err != nil {
				return err
			}
			fmt.Println("added", id)
			return nil
		},
	}
	cmd.Flags().StringVarP(&section, "section", "s", playbook.DefaultSection, "playbook section")
	return cmd
}

func dedupCmd() *cobra.Command {
	var threshold float64
	cmd := &cobra.Command{
		Use:   "dedup",
		Short: "Merge near-duplicate bullets",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if threshold == 0 {
				threshold = a.cfg.Playbook.DedupThreshold
			}
			removed, err := a.playbook.Deduplicate(context.Background(), threshold)
			if err != nil {
				return err
			}
			fmt.Printf("removed %d duplicate bullets (threshold %.2f)\n", removed, threshold)
			return nil
		},
	}
	cmd.Flags().Float64VarP(&threshold, "threshold", "t", 0, "similarity threshold (default from config)")
	return cmd
}

func processCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process <feedback-id>",
		Short: "Run the pipeline for one feedback id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			result := a.pipeline.Process(context.Background(), args[0])
			fmt.Printf("status:   %s\n", result.Status)
			fmt.Printf("added:    %d\n", result.BulletsAdded)
			fmt.Printf("updated:  %d\n", result.BulletsUpdated)
			fmt.Printf("elapsed:  %.2fs\n", result.ProcessingTime)
			if result.ErrorMessage != "" {
				fmt.Printf("error:    %s\n", result.ErrorMessage)
			}
			if !result.Succeeded() {
				return fmt.Errorf("processing failed for %s", args[0])
			}
			return nil
		},
	}
}

func batchCmd() *cobra.Command {
	var workers int
	cmd := &cobra.Command{
		Use:   "batch [feedback-id...]",
		Short: "Process many feedback ids; all stored feedback when none given",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ids := args
			if len(ids) == 0 {
				records, err := a.feedback.List()
				if err != nil {
					return err
				}
				for _, rec := range records {
					ids = append(ids, rec.FeedbackID)
				}
			}
			if len(ids) == 0 {
				fmt.Println("no feedback to process")
				return nil
			}

			if workers == 0 {
				workers = a.cfg.Pipeline.Workers
			}
			summary := a.pipeline.ProcessBatch(context.Background(), ids, workers)
			fmt.Printf("processed %d feedback ids: %d succeeded, %d failed\n",
				summary.Total, summary.Succeeded, summary.Failed)
			return nil
		},
	}
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "concurrent workers (default from config)")
	return cmd
}
