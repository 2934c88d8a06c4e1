// Package server - Haupt-Router und Server-Setup fuer Speedster
// Beinhaltet: Server-Struct, Router-Registrierung, CORS, Host-Pruefung
package server

import (
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"os"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/semaphore"

	"github.com/speedster/speedster/backend"
	"github.com/speedster/speedster/envconfig"
	"github.com/speedster/speedster/feedback"
	"github.com/speedster/speedster/logutil"
	"github.com/speedster/speedster/speedster"
	"github.com/speedster/speedster/store"
	"github.com/speedster/speedster/version"
)

var mode string = gin.DebugMode

// Server verwaltet den HTTP-Server. Optimierungen laufen nacheinander,
// da jede die CPU fuer Benchmarks voll auslastet.
type Server struct {
	addr     net.Addr
	store    *store.Store
	registry *backend.Registry
	logger   *slog.Logger
	sem      *semaphore.Weighted
}

func init() {
	switch mode {
	case gin.DebugMode:
	case gin.ReleaseMode:
	case gin.TestMode:
	default:
		mode = gin.DebugMode
	}

	gin.SetMode(mode)
}

// New erstellt einen Server. st darf nil sein (keine Telemetrie-Routen).
func New(addr net.Addr, st *store.Store, reg *backend.Registry, logger *slog.Logger) *Server {
	if reg == nil {
		reg = backend.DefaultRegistry
	}
	return &Server{
		addr:     addr,
		store:    st,
		registry: reg,
		logger:   logutil.OrDefault(logger),
		sem:      semaphore.NewWeighted(1),
	}
}

// speedster erstellt pro Request einen Orchestrator, der in den Store schreibt.
func (s *Server) speedster() *speedster.Speedster {
	opts := []feedback.Option{feedback.WithLogger(s.logger)}
	if s.store != nil {
		opts = append(opts, feedback.WithSinks(s.store))
	}
	return speedster.New(
		speedster.WithRegistry(s.registry),
		speedster.WithLogger(s.logger),
		speedster.WithCollector(feedback.New(opts...)),
	)
}

// isLocalIP prueft ob die IP-Adresse zu einem lokalen Interface gehoert
func isLocalIP(ip netip.Addr) bool {
	if interfaces, err := net.Interfaces(); err == nil {
		for _, iface := range interfaces {
			addrs, err := iface.Addrs()
			if err != nil {
				continue
			}

			for _, a := range addrs {
				if parsed, _, err := net.ParseCIDR(a.String()); err == nil {
					if parsed.String() == ip.String() {
						return true
					}
				}
			}
		}
	}

	return false
}

// allowedHost prueft ob der Host erlaubt ist
func allowedHost(host string) bool {
	host = strings.ToLower(host)

	if host == "" || host == "localhost" {
		return true
	}

	if hostname, err := os.Hostname(); err == nil && host == strings.ToLower(hostname) {
		return true
	}

	for _, tld := range []string{"localhost", "local", "internal"} {
		if strings.HasSuffix(host, "."+tld) {
			return true
		}
	}

	return false
}

// allowedHostsMiddleware blockiert Anfragen von nicht erlaubten Hosts,
// solange der Server nur auf Loopback lauscht
func allowedHostsMiddleware(addr net.Addr) gin.HandlerFunc {
	return func(c *gin.Context) {
		if addr == nil {
			c.Next()
			return
		}

		if addr, err := netip.ParseAddrPort(addr.String()); err == nil && !addr.Addr().IsLoopback() {
			c.Next()
			return
		}

		host, _, err := net.SplitHostPort(c.Request.Host)
		if err != nil {
			host = c.Request.Host
		}

		if addr, err := netip.ParseAddr(host); err == nil {
			if addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() || isLocalIP(addr) {
				c.Next()
				return
			}
		}

		if allowedHost(host) {
			if c.Request.Method == http.MethodOptions {
				c.AbortWithStatus(http.StatusNoContent)
				return
			}

			c.Next()
			return
		}

		c.AbortWithStatus(http.StatusForbidden)
	}
}

// GenerateRoutes erstellt und konfiguriert den HTTP-Router
func (s *Server) GenerateRoutes() http.Handler {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowWildcard = true
	corsConfig.AllowBrowserExtensions = true
	corsConfig.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"User-Agent",
		"Accept",
		"X-Requested-With",
	}
	corsConfig.AllowOrigins = envconfig.AllowedOrigins()

	r := gin.Default()
	r.HandleMethodNotAllowed = true
	r.Use(
		cors.New(corsConfig),
		allowedHostsMiddleware(s.addr),
	)

	// General
	r.HEAD("/", func(c *gin.Context) { c.String(http.StatusOK, "Speedster is running") })
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "Speedster is running") })
	r.HEAD("/api/version", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"version": version.Version}) })
	r.GET("/api/version", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"version": version.Version}) })

	// Optimierung
	r.POST("/api/optimize", s.OptimizeHandler)

	// Telemetrie
	r.GET("/api/runs", s.ListRunsHandler)
	r.GET("/api/runs/:id", s.RunHandler)
	r.DELETE("/api/runs/:id", s.DeleteRunHandler)

	return r
}
