package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gridbase/gridbase/internal/formula"
	"github.com/gridbase/gridbase/internal/style"
)

var (
	// Eval command flags
	evalContext     string
	evalCollections string
	evalMaxNodes    int
	evalTimeout     time.Duration
)

// evalCmd represents the eval command
var evalCmd = &cobra.Command{
	Use:   "eval <formula>",
	Short: "Evaluate a formula",
	Long: `Evaluate a formula against an optional context and collections.

Context and collections are JSON objects, given inline or as @file.

Examples:
  gridbase eval '1 + 2 * 3'
  gridbase eval 'If(age >= 18, "adult", "minor")' --context '{"age": 21}'
  gridbase eval 'Sum(orders.amount)' --collections @orders.json
  gridbase eval 'Filter(orders, amount > 10)' --collections '{"orders": [...]}' --output json`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		source := args[0]

		var values map[string]interface{}
		if err := decodeJSONFlag(evalContext, &values); err != nil {
			style.Error(os.Stderr, fmt.Sprintf("Invalid --context: %v", err))
			os.Exit(1)
		}
		var collections map[string][]map[string]interface{}
		if err := decodeJSONFlag(evalCollections, &collections); err != nil {
			style.Error(os.Stderr, fmt.Sprintf("Invalid --collections: %v", err))
			os.Exit(1)
		}

		budget := formula.DefaultBudget()
		if evalMaxNodes > 0 {
			budget.MaxNodes = evalMaxNodes
		}
		if evalTimeout > 0 {
			budget.MaxDuration = evalTimeout
		}
		engine := formula.NewEngineWith(formula.NewRegistry(), budget)

		start := time.Now()
		val, err := engine.Evaluate(source, formula.NewContext(values, collections, nil))
		elapsed := time.Since(start)
		if err != nil {
			printEvalError(source, err)
			os.Exit(1)
		}

		switch viper.GetString("output") {
		case "json":
			printJSON(map[string]interface{}{
				"success":     true,
				"result":      val.GoValue(),
				"type":        string(val.Kind()),
				"duration_ms": float64(elapsed.Microseconds()) / 1000.0,
			})
		case "yaml":
			printYAML(map[string]interface{}{
				"result": val.GoValue(),
				"type":   string(val.Kind()),
			})
		default:
			fmt.Println(val.String())
			if !viper.GetBool("quiet") {
				fmt.Fprintf(os.Stderr, "%s\n", style.MutedStyle.Render(
					fmt.Sprintf("%s, %s", val.Kind(), elapsed.Round(time.Microsecond))))
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(evalCmd)

	evalCmd.Flags().StringVarP(&evalContext, "context", "c", "", "context values as JSON or @file")
	evalCmd.Flags().StringVar(&evalCollections, "collections", "", "named collections as JSON or @file")
	evalCmd.Flags().IntVar(&evalMaxNodes, "max-nodes", 0, "evaluation node budget (0 = default)")
	evalCmd.Flags().DurationVar(&evalTimeout, "timeout", 0, "evaluation wall-clock budget (0 = default)")
}

// decodeJSONFlag decodes an inline JSON flag value, or the contents of
// a file when the value starts with @. Empty values decode to nil.
func decodeJSONFlag(raw string, out interface{}) error {
	if raw == "" {
		return nil
	}
	data := []byte(raw)
	if strings.HasPrefix(raw, "@") {
		fileData, err := os.ReadFile(raw[1:])
		if err != nil {
			return err
		}
		data = fileData
	}
	return json.Unmarshal(data, out)
}

// printEvalError renders an engine error with its source span.
func printEvalError(source string, err error) {
	var ferr *formula.Error
	if !errors.As(err, &ferr) {
		style.Error(os.Stderr, err.Error())
		return
	}

	if viper.GetString("output") == "json" {
		printJSON(map[string]interface{}{
			"success":  false,
			"error":    string(ferr.Code),
			"message":  ferr.Message,
			"position": ferr.Position(),
		})
		return
	}

	style.Error(os.Stderr, fmt.Sprintf("%s: %s", ferr.Code, ferr.Message))
	if ferr.Span.End > ferr.Span.Start {
		fmt.Fprintf(os.Stderr, "\n  %s\n  %s\n", source,
			style.CaretLine(ferr.Span.Start+2, ferr.Span.End-ferr.Span.Start))
	} else if ferr.Position() > 0 {
		fmt.Fprintf(os.Stderr, "  %s\n", style.FormatPosition(ferr.Position()))
	}
}
