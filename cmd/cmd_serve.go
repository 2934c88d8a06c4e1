// cmd_serve.go - Server, Version und Umgebung
// Hauptfunktionen: RunServer, checkServerHeartbeat, versionHandler, EnvHandler
package cmd

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/speedster/speedster/api"
	"github.com/speedster/speedster/envconfig"
	"github.com/speedster/speedster/server"
	"github.com/speedster/speedster/version"
)

// RunServer - Startet den Speedster-Server
func RunServer(_ *cobra.Command, _ []string) error {
	ln, err := net.Listen("tcp", envconfig.Host().Host)
	if err != nil {
		return err
	}

	err = server.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	return err
}

// checkServerHeartbeat - Prueft ob ein Server unter SPEEDSTER_HOST laeuft
func checkServerHeartbeat(cmd *cobra.Command, _ []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}
	if err := client.Heartbeat(cmd.Context()); err != nil {
		if strings.Contains(err.Error(), " refused") || strings.Contains(err.Error(), "could not connect") {
			return fmt.Errorf("speedster server not responding at %s, start it with 'speedster serve'", envconfig.Host())
		}
		return err
	}
	return nil
}

// versionHandler - Zeigt die Version an
func versionHandler(cmd *cobra.Command, _ []string) {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return
	}

	serverVersion, err := client.Version(cmd.Context())
	if err != nil {
		fmt.Fprintln(cmd.OutOrStdout(), "Warning: could not connect to a running speedster instance")
	}

	if serverVersion != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "speedster version is %s\n", serverVersion)
	}

	if serverVersion != version.Version {
		fmt.Fprintf(cmd.OutOrStdout(), "Warning: client version is %s\n", version.Version)
	}
}

// EnvHandler - Zeigt alle Umgebungsvariablen mit aktuellem Wert an
func EnvHandler(cmd *cobra.Command, _ []string) error {
	vars := envconfig.AsMap()
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	slices.Sort(names)

	table := newTable(cmd.OutOrStdout(), []string{"NAME", "VALUE", "DESCRIPTION"})
	for _, name := range names {
		v := vars[name]
		table.Append([]string{v.Name, fmt.Sprint(v.Value), v.Description})
	}
	table.Render()

	return nil
}
