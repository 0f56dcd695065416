package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/taskweave/taskweave/internal/automation"
	"github.com/taskweave/taskweave/internal/config"
	"github.com/taskweave/taskweave/internal/diagnostics"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration and host resources",
	Long:  "Validate the configuration, rules file and checkpoint directory, and report host resource usage.",
	RunE:  runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(_ *cobra.Command, _ []string) error {
	fmt.Println("Checking configuration...")
	fmt.Println()

	allOk := true

	loader := config.NewLoader()
	if cfgFile != "" {
		loader = loader.WithConfigFile(cfgFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Printf("  ✗ cannot load config: %v\n", err)
		return fmt.Errorf("configuration check failed")
	}

	if err := config.ValidateConfig(cfg); err != nil {
		if verrs, ok := err.(config.ValidationErrors); ok {
			for _, verr := range verrs {
				fmt.Printf("  ✗ %s\n", verr.Error())
			}
		} else {
			fmt.Printf("  ✗ %s\n", err.Error())
		}
		allOk = false
	} else {
		fmt.Println("  ✓ configuration valid")
		if file := loader.ConfigFile(); file != "" {
			fmt.Printf("    using %s\n", file)
		} else {
			fmt.Println("    using defaults (no config file found)")
		}
	}

	fmt.Println()
	fmt.Println("Checking rules file...")
	fmt.Println()

	if _, err := os.Stat(cfg.Rules.Path); err != nil {
		fmt.Printf("  ○ %s not found (optional)\n", cfg.Rules.Path)
	} else if rules, err := automation.LoadRulesFile(cfg.Rules.Path); err != nil {
		fmt.Printf("  ✗ %v\n", err)
		allOk = false
	} else {
		fmt.Printf("  ✓ %d rules valid\n", len(rules))
	}

	fmt.Println()
	fmt.Println("Checking checkpoint directory...")
	fmt.Println()

	if !cfg.Checkpoint.Enabled {
		fmt.Println("  ○ checkpoints disabled")
	} else if err := checkWritableDir(cfg.Checkpoint.Dir); err != nil {
		fmt.Printf("  ✗ %s: %v\n", cfg.Checkpoint.Dir, err)
		allOk = false
	} else {
		fmt.Printf("  ✓ %s writable\n", cfg.Checkpoint.Dir)
	}

	fmt.Println()
	fmt.Println("Host resources:")
	fmt.Println()

	metrics := diagnostics.NewCollector().Collect()
	fmt.Printf("  cpu:    %s (%d cores / %d threads)\n", metrics.CPUModel, metrics.CPUCores, metrics.CPUThreads)
	fmt.Printf("  memory: %.0f / %.0f MB (%.1f%%)\n", metrics.MemUsedMB, metrics.MemTotalMB, metrics.MemPercent)
	fmt.Printf("  disk:   %.1f / %.1f GB (%.1f%%)\n", metrics.DiskUsedGB, metrics.DiskTotalGB, metrics.DiskPercent)
	fmt.Printf("  load:   %.2f %.2f %.2f\n", metrics.LoadAvg1, metrics.LoadAvg5, metrics.LoadAvg15)
	fmt.Printf("  default parallelism: %d\n", diagnostics.DefaultParallelism())

	fmt.Println()
	if !allOk {
		fmt.Println("Problems found. Fix the issues above before running workflows.")
		return fmt.Errorf("doctor check failed")
	}
	fmt.Println("All checks passed")
	return nil
}

func checkWritableDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	probe := filepath.Join(dir, ".doctor-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return err
	}
	return os.Remove(probe)
}
