package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gridbase/gridbase/internal/server"
	"github.com/gridbase/gridbase/internal/style"
)

var (
	// Serve command flags
	servePort        int
	serveHost        string
	serveConcurrency int
	serveRulesDir    string
	serveDB          string
	serveMaxNodes    int
	serveTimeout     time.Duration
	serveMetrics     bool
	serveCORS        bool
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the formula engine HTTP server",
	Long: `Start an HTTP server exposing formula evaluation, business rules and
decision tables via REST API.

The server provides:
- REST API for evaluating and validating formulas
- Business rule and decision table execution
- WebSocket channel for live evaluation in the form designer
- Prometheus metrics endpoint

Examples:
  gridbase serve                                  # In-memory engine only
  gridbase serve --rules-dir ./rules              # Load rule and table artifacts
  gridbase serve --db gridbase.db                 # Enable saved queries
  gridbase serve --port 9090 --host 0.0.0.0       # Custom host and port
  gridbase serve --concurrency 16                 # Batch evaluation workers`,
	Run: func(cmd *cobra.Command, args []string) {
		config := server.DefaultConfig()
		config.Host = serveHost
		config.Port = servePort
		config.Concurrency = serveConcurrency
		config.RulesDir = serveRulesDir
		config.DBPath = serveDB
		config.EnableMetrics = serveMetrics
		config.EnableCORS = serveCORS
		if serveMaxNodes > 0 {
			config.MaxNodes = serveMaxNodes
		}
		if serveTimeout > 0 {
			config.EvalTimeout = serveTimeout
		}

		srv, err := server.New(config)
		if err != nil {
			style.Error(os.Stderr, fmt.Sprintf("Failed to create server: %v", err))
			os.Exit(1)
		}

		if err := srv.LoadArtifacts(); err != nil {
			style.Error(os.Stderr, fmt.Sprintf("Failed to load artifacts: %v", err))
			os.Exit(1)
		}

		if !viper.GetBool("quiet") {
			style.Success(os.Stdout, fmt.Sprintf("Gridbase server starting at http://%s", srv.GetAddr()))
			fmt.Printf("  API: http://%s/api/v1/formulas/evaluate\n", srv.GetAddr())
			if serveMetrics {
				fmt.Printf("  Metrics: http://%s/metrics\n", srv.GetAddr())
			}
		}

		if err := srv.StartWithGracefulShutdown(); err != nil {
			style.Error(os.Stderr, fmt.Sprintf("Server error: %v", err))
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	// Server configuration
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8080, "server port")
	serveCmd.Flags().StringVar(&serveHost, "host", "localhost", "server host")
	serveCmd.Flags().IntVar(&serveConcurrency, "concurrency", 8, "batch evaluation worker count")
	serveCmd.Flags().StringVar(&serveRulesDir, "rules-dir", "", "directory containing *.rules.yaml and *.tables.yaml artifacts")
	serveCmd.Flags().StringVar(&serveDB, "db", "", "sqlite database path (enables saved queries)")

	// Evaluation budget
	serveCmd.Flags().IntVar(&serveMaxNodes, "max-nodes", 0, "per-evaluation node budget (0 = default)")
	serveCmd.Flags().DurationVar(&serveTimeout, "timeout", 0, "per-evaluation wall-clock budget (0 = default)")

	// Features
	serveCmd.Flags().BoolVar(&serveMetrics, "metrics", true, "enable Prometheus metrics endpoint")
	serveCmd.Flags().BoolVar(&serveCORS, "cors", true, "enable CORS headers")
}
