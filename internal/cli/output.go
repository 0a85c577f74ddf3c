package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/gridbase/gridbase/internal/style"
)

// printJSON writes data to stdout as indented JSON.
func printJSON(data interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		style.Error(os.Stderr, fmt.Sprintf("Failed to encode JSON: %v", err))
		os.Exit(1)
	}
}

// printYAML writes data to stdout as YAML.
func printYAML(data interface{}) {
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(data); err != nil {
		style.Error(os.Stderr, fmt.Sprintf("Failed to encode YAML: %v", err))
		os.Exit(1)
	}
	enc.Close()
}

// printTable renders catalog rows in tab-aligned columns.
func printTable(headers []string, rows [][]string) {
	if len(rows) == 0 {
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(headers, "\t"))
	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	w.Flush()
}
