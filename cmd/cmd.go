// cmd.go - Haupt-CLI Setup und Root Command
// Hauptfunktionen: NewCLI, appendEnvDocs
package cmd

import (
	"fmt"
	"log"
	"os"
	"runtime"

	"github.com/containerd/console"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/speedster/speedster/envconfig"
)

// appendEnvDocs - Fuegt Umgebungsvariablen-Dokumentation zum Command hinzu
func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-26s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// NewCLI - Erstellt das Haupt-CLI mit allen Commands
func NewCLI() *cobra.Command {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	cobra.EnableCommandSorting = false

	if runtime.GOOS == "windows" && term.IsTerminal(int(os.Stdout.Fd())) {
		console.ConsoleFromFile(os.Stdin) //nolint:errcheck
	}

	rootCmd := &cobra.Command{
		Use:           "speedster",
		Short:         "Inference optimizer for trained models",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Run: func(cmd *cobra.Command, args []string) {
			if version, _ := cmd.Flags().GetBool("version"); version {
				versionHandler(cmd, args)
				return
			}

			cmd.Print(cmd.UsageString())
		},
	}

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	// Commands erstellen
	optimizeCmd := newOptimizeCmd()
	runCmd := newRunCmd()
	benchCmd := newBenchCmd()
	runsCmd := newRunsCmd()
	serveCmd := newServeCmd()
	envCmd := newEnvCmd()

	// Environment-Dokumentation hinzufuegen
	envVars := envconfig.AsMap()
	benchEnvs := []envconfig.EnvVar{
		envVars["SPEEDSTER_WARMUP"],
		envVars["SPEEDSTER_ITERATIONS"],
		envVars["SPEEDSTER_DEVICE"],
	}

	for _, cmd := range []*cobra.Command{
		optimizeCmd,
		runCmd,
		benchCmd,
		runsCmd,
		serveCmd,
	} {
		switch cmd {
		case optimizeCmd:
			appendEnvDocs(cmd, append(benchEnvs,
				envVars["SPEEDSTER_DEBUG"],
				envVars["SPEEDSTER_HOST"],
				envVars["SPEEDSTER_HOME"],
				envVars["SPEEDSTER_TMPDIR"],
				envVars["SPEEDSTER_NUM_PARALLEL"],
				envVars["SPEEDSTER_STORE_LATENCIES"],
				envVars["SPEEDSTER_NO_DB"],
			))
		case benchCmd:
			appendEnvDocs(cmd, benchEnvs)
		case runsCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{envVars["SPEEDSTER_HOME"]})
		case serveCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{
				envVars["SPEEDSTER_DEBUG"],
				envVars["SPEEDSTER_HOST"],
				envVars["SPEEDSTER_HOME"],
				envVars["SPEEDSTER_TMPDIR"],
				envVars["SPEEDSTER_NUM_PARALLEL"],
				envVars["SPEEDSTER_NO_DB"],
				envVars["SPEEDSTER_ORIGINS"],
			})
		default:
			appendEnvDocs(cmd, []envconfig.EnvVar{envVars["SPEEDSTER_DEBUG"]})
		}
	}

	rootCmd.AddCommand(
		serveCmd,
		optimizeCmd,
		runCmd,
		benchCmd,
		runsCmd,
		envCmd,
	)

	return rootCmd
}
