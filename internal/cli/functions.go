package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gridbase/gridbase/internal/formula"
)

var functionsCategory string

// functionsCmd represents the functions command
var functionsCmd = &cobra.Command{
	Use:   "functions",
	Short: "List the built-in function library",
	Long: `List every function in the engine's native library, with its
category and accepted argument counts.

Examples:
  gridbase functions
  gridbase functions --category math
  gridbase functions --output json`,
	Run: func(cmd *cobra.Command, args []string) {
		engine := formula.NewEngine()

		infos := engine.Functions()
		if functionsCategory != "" {
			filtered := infos[:0]
			for _, info := range infos {
				if string(info.Category) == functionsCategory {
					filtered = append(filtered, info)
				}
			}
			infos = filtered
		}

		switch viper.GetString("output") {
		case "json":
			printJSON(map[string]interface{}{"count": len(infos), "functions": infos})
		case "yaml":
			printYAML(map[string]interface{}{"count": len(infos), "functions": infos})
		default:
			rows := make([][]string, 0, len(infos))
			for _, info := range infos {
				rows = append(rows, []string{info.Name, string(info.Category), formatArity(info)})
			}
			printTable([]string{"NAME", "CATEGORY", "ARGS"}, rows)
			fmt.Printf("\n%d functions\n", len(infos))
		}
	},
}

func init() {
	rootCmd.AddCommand(functionsCmd)

	functionsCmd.Flags().StringVar(&functionsCategory, "category", "", "filter by category (data, text, logic, math, datetime, conversion, collection, validation)")
}

func formatArity(info formula.FunctionInfo) string {
	if info.MaxArgs == formula.ArityVariadic {
		return fmt.Sprintf("%d+", info.MinArgs)
	}
	if info.MinArgs == info.MaxArgs {
		return fmt.Sprintf("%d", info.MinArgs)
	}
	return fmt.Sprintf("%d-%d", info.MinArgs, info.MaxArgs)
}
