package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/taskweave/taskweave/internal/automation"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect automation rules",
}

var rulesValidateCmd = &cobra.Command{
	Use:   "validate [rules-file]",
	Short: "Validate a rules file",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRulesValidate,
}

var rulesListCmd = &cobra.Command{
	Use:   "list [rules-file]",
	Short: "List the rules in a rules file",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRulesList,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesValidateCmd)
	rulesCmd.AddCommand(rulesListCmd)
}

func rulesPath(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	return cfg.Rules.Path, nil
}

func runRulesValidate(_ *cobra.Command, args []string) error {
	path, err := rulesPath(args)
	if err != nil {
		return err
	}
	rules, err := automation.LoadRulesFile(path)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d rules valid\n", path, len(rules))
	return nil
}

func runRulesList(_ *cobra.Command, args []string) error {
	path, err := rulesPath(args)
	if err != nil {
		return err
	}
	rules, err := automation.LoadRulesFile(path)
	if err != nil {
		return err
	}

	for _, rule := range rules {
		state := "enabled"
		if !rule.Enabled {
			state = "disabled"
		}
		fmt.Printf("%-24s %-10s on %-24s %d conditions, %d actions\n",
			rule.Label, state, rule.Trigger.Kind, len(rule.Conditions), len(rule.Actions))
	}
	return nil
}
