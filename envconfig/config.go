// config.go - Haupt-Konfigurationsfunktionen fuer Speedster
//
// Dieses Modul enthaelt:
// - Host: Gibt Scheme und Host des API-Servers zurueck (SPEEDSTER_HOST)
// - AllowedOrigins: Gibt erlaubte Origins zurueck (SPEEDSTER_ORIGINS)
// - Home: Gibt das Daten-Verzeichnis zurueck (SPEEDSTER_HOME)
// - TmpDir: Gibt das Basis-Verzeichnis fuer Konvertierungen zurueck (SPEEDSTER_TMPDIR)
// - LogLevel: Gibt Log-Level zurueck (SPEEDSTER_DEBUG)
//
// Weitere Konfigurationen sind ausgelagert:
// - config_features.go: Benchmark- und Optimierungs-Einstellungen
// - config_utils.go: Utility-Funktionen und AsMap/Values
package envconfig

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Host gibt Scheme und Host zurueck
// Konfigurierbar via SPEEDSTER_HOST
// Default: http://127.0.0.1:8642
func Host() *url.URL {
	defaultPort := "8642"

	s := strings.TrimSpace(Var("SPEEDSTER_HOST"))
	scheme, hostport, ok := strings.Cut(s, "://")
	switch {
	case !ok:
		scheme, hostport = "http", s
	case scheme == "http":
		defaultPort = "80"
	case scheme == "https":
		defaultPort = "443"
	}

	hostport, path, _ := strings.Cut(hostport, "/")
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		host, port = "127.0.0.1", defaultPort
		if ip := net.ParseIP(strings.Trim(hostport, "[]")); ip != nil {
			host = ip.String()
		} else if hostport != "" {
			host = hostport
		}
	}

	if n, err := strconv.ParseInt(port, 10, 32); err != nil || n > 65535 || n < 0 {
		slog.Warn("invalid port, using default", "port", port, "default", defaultPort)
		port = defaultPort
	}

	return &url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(host, port),
		Path:   path,
	}
}

// AllowedOrigins gibt erlaubte Origins zurueck
// Konfigurierbar via SPEEDSTER_ORIGINS (komma-separiert)
// Enthaelt Standard-Origins fuer localhost
func AllowedOrigins() (origins []string) {
	if s := Var("SPEEDSTER_ORIGINS"); s != "" {
		origins = strings.Split(s, ",")
	}

	for _, origin := range []string{"localhost", "127.0.0.1", "0.0.0.0"} {
		origins = append(origins,
			fmt.Sprintf("http://%s", origin),
			fmt.Sprintf("https://%s", origin),
			fmt.Sprintf("http://%s", net.JoinHostPort(origin, "*")),
			fmt.Sprintf("https://%s", net.JoinHostPort(origin, "*")),
		)
	}

	return origins
}

// Home gibt das Daten-Verzeichnis zurueck (Telemetrie-DB, Latenz-Dateien)
// Konfigurierbar via SPEEDSTER_HOME
// Default: $HOME/.speedster
func Home() string {
	if s := Var("SPEEDSTER_HOME"); s != "" {
		return s
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".speedster")
	}

	return filepath.Join(home, ".speedster")
}

// TmpDir gibt das Basis-Verzeichnis fuer temporaere Konvertierungen zurueck
// Konfigurierbar via SPEEDSTER_TMPDIR
// Default: os.TempDir()
func TmpDir() string {
	if s := Var("SPEEDSTER_TMPDIR"); s != "" {
		return s
	}
	return os.TempDir()
}

// LogLevel gibt das Log-Level zurueck
// Konfigurierbar via SPEEDSTER_DEBUG
// Werte: 0/false = INFO (Default), 1/true = DEBUG, 2 = TRACE
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("SPEEDSTER_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}

	return level
}

// Var gibt eine Environment-Variable zurueck
// Entfernt fuehrende/trailing Quotes und Leerzeichen
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}
