package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gridbase/gridbase/internal/formula"
	"github.com/gridbase/gridbase/internal/style"
)

// validateCmd represents the validate command
var validateCmd = &cobra.Command{
	Use:   "validate <formula>",
	Short: "Validate a formula without evaluating it",
	Long: `Parse a formula and report syntax and arity problems with their
source position. Nothing is evaluated.

Examples:
  gridbase validate 'If(age >= 18, "adult", "minor")'
  gridbase validate '1 + ' --output json`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		source := args[0]
		engine := formula.NewEngine()

		ferr := engine.Validate(source)
		if viper.GetString("output") == "json" {
			if ferr != nil {
				printJSON(map[string]interface{}{
					"valid":    false,
					"error":    string(ferr.Code),
					"message":  ferr.Message,
					"position": ferr.Position(),
					"span":     ferr.Span,
				})
				os.Exit(1)
			}
			printJSON(map[string]interface{}{"valid": true})
			return
		}

		if ferr != nil {
			style.Error(os.Stderr, fmt.Sprintf("%s: %s", ferr.Code, ferr.Message))
			if ferr.Span.End > ferr.Span.Start {
				fmt.Fprintf(os.Stderr, "\n  %s\n  %s\n", source,
					style.CaretLine(ferr.Span.Start+2, ferr.Span.End-ferr.Span.Start))
			}
			os.Exit(1)
		}
		style.Success(os.Stdout, "Formula is valid")
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
