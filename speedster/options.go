// options.go - Optionen fuer Execute und Konfigurations-Dateien
//
// Hauptfunktionen:
// - Option / With*: Funktionale Optionen pro Lauf
// - FileConfig, LoadConfigFile: YAML-Konfiguration (gopkg.in/yaml.v2)
// - resolve: Optionen + Datei zu einem aufgeloesten Lauf zusammenfuehren

package speedster

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/speedster/speedster/backend"
	"github.com/speedster/speedster/envconfig"
	"github.com/speedster/speedster/metric"
	"github.com/speedster/speedster/model"
)

// Option konfiguriert einen einzelnen Execute-Aufruf.
type Option func(*options)

// options sammelt explizit gesetzte Werte; nil bzw. leer heisst "nicht gesetzt".
type options struct {
	threshold         *float64
	metric            string
	metricFunc        metric.Func
	optimizationTime  string
	dynamicInfo       *model.DynamicInfo
	ignoreCompilers   []string
	ignoreCompressors []string
	storeLatencies    *bool
	configFile        string
}

// WithMetricDropThs setzt den maximal erlaubten Metric-Drop. Werte <= 0
// deaktivieren die Schwelle.
func WithMetricDropThs(ths float64) Option {
	return func(o *options) { o.threshold = &ths }
}

// WithMetric waehlt eine Metrik per Name (numeric_precision, accuracy).
func WithMetric(name string) Option {
	return func(o *options) { o.metric = name }
}

// WithMetricFunc setzt eine eigene Metrik-Funktion.
func WithMetricFunc(name string, f metric.Func) Option {
	return func(o *options) {
		o.metric = name
		o.metricFunc = f
	}
}

// WithOptimizationTime setzt "constrained" oder "unconstrained".
func WithOptimizationTime(t string) Option {
	return func(o *options) { o.optimizationTime = t }
}

// WithDynamicInfo markiert dynamische Achsen der Ein- und Ausgaben.
func WithDynamicInfo(info *model.DynamicInfo) Option {
	return func(o *options) { o.dynamicInfo = info }
}

// WithIgnoreCompilers schliesst Compiler per Name aus.
func WithIgnoreCompilers(names ...string) Option {
	return func(o *options) { o.ignoreCompilers = append(o.ignoreCompilers, names...) }
}

// WithIgnoreCompressors schliesst Compressors per Name aus.
func WithIgnoreCompressors(names ...string) Option {
	return func(o *options) { o.ignoreCompressors = append(o.ignoreCompressors, names...) }
}

// WithStoreLatencies speichert die Latenz-Telemetrie des Laufs.
func WithStoreLatencies(store bool) Option {
	return func(o *options) { o.storeLatencies = &store }
}

// WithConfigFile liest weitere Einstellungen aus einer YAML-Datei.
// Explizit gesetzte Optionen haben Vorrang vor der Datei.
func WithConfigFile(path string) Option {
	return func(o *options) { o.configFile = path }
}

// ============================================================================
// Konfigurations-Datei
// ============================================================================

// FileConfig ist das Format der YAML-Konfiguration:
//
//	metric_drop_ths: 0.1
//	metric: numeric_precision
//	optimization_time: unconstrained
//	ignore_compilers: [parallel]
//	ignore_compressors: [prune]
//	store_latencies: true
//	dynamic_info:
//	  inputs:
//	    - {0: batch}
type FileConfig struct {
	MetricDropThs     *float64           `yaml:"metric_drop_ths"`
	Metric            string             `yaml:"metric"`
	OptimizationTime  string             `yaml:"optimization_time"`
	IgnoreCompilers   []string           `yaml:"ignore_compilers"`
	IgnoreCompressors []string           `yaml:"ignore_compressors"`
	StoreLatencies    *bool              `yaml:"store_latencies"`
	DynamicInfo       *model.DynamicInfo `yaml:"dynamic_info"`
}

// LoadConfigFile liest eine YAML-Konfiguration. Unbekannte Schluessel sind ein Fehler.
func LoadConfigFile(path string) (FileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, err
	}

	var fc FileConfig
	if err := yaml.UnmarshalStrict(b, &fc); err != nil {
		return FileConfig{}, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}
	return fc, nil
}

// Options wandelt die Datei in Optionen um (z.B. fuer die HTTP-API).
func (fc FileConfig) Options() []Option {
	var opts []Option
	if fc.MetricDropThs != nil {
		opts = append(opts, WithMetricDropThs(*fc.MetricDropThs))
	}
	if fc.Metric != "" {
		opts = append(opts, WithMetric(fc.Metric))
	}
	if fc.OptimizationTime != "" {
		opts = append(opts, WithOptimizationTime(fc.OptimizationTime))
	}
	if len(fc.IgnoreCompilers) > 0 {
		opts = append(opts, WithIgnoreCompilers(fc.IgnoreCompilers...))
	}
	if len(fc.IgnoreCompressors) > 0 {
		opts = append(opts, WithIgnoreCompressors(fc.IgnoreCompressors...))
	}
	if fc.StoreLatencies != nil {
		opts = append(opts, WithStoreLatencies(*fc.StoreLatencies))
	}
	if fc.DynamicInfo != nil {
		opts = append(opts, WithDynamicInfo(fc.DynamicInfo))
	}
	return opts
}

// fill uebernimmt Werte aus der Datei, die nicht explizit gesetzt wurden.
func (o *options) fill(fc FileConfig) {
	if o.threshold == nil {
		o.threshold = fc.MetricDropThs
	}
	if o.metric == "" {
		o.metric = fc.Metric
	}
	if o.optimizationTime == "" {
		o.optimizationTime = fc.OptimizationTime
	}
	if o.ignoreCompilers == nil {
		o.ignoreCompilers = fc.IgnoreCompilers
	}
	if o.ignoreCompressors == nil {
		o.ignoreCompressors = fc.IgnoreCompressors
	}
	if o.storeLatencies == nil {
		o.storeLatencies = fc.StoreLatencies
	}
	if o.dynamicInfo == nil {
		o.dynamicInfo = fc.DynamicInfo
	}
}

// ============================================================================
// Aufloesung
// ============================================================================

// settings sind die validierten Einstellungen eines Laufs.
type settings struct {
	threshold         *float64
	metricName        string
	metric            metric.Func
	optimizationTime  backend.OptimizationTime
	dynamicInfo       *model.DynamicInfo
	ignoreCompilers   []backend.CompilerName
	ignoreCompressors []backend.CompressorName
	storeLatencies    bool
}

// resolve wendet die Optionen an und validiert alle Namen, bevor
// irgendeine Arbeit beginnt.
func resolve(reg *backend.Registry, opts ...Option) (settings, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if o.configFile != "" {
		fc, err := LoadConfigFile(o.configFile)
		if err != nil {
			return settings{}, err
		}
		o.fill(fc)
	}

	s := settings{dynamicInfo: o.dynamicInfo}

	if o.threshold != nil && *o.threshold > 0 {
		ths := *o.threshold
		s.threshold = &ths
	}

	s.metricName = o.metric
	if s.metricName == "" {
		s.metricName = metric.NumericPrecision
	}
	s.metric = o.metricFunc
	if s.metric == nil {
		f, err := metric.Lookup(s.metricName)
		if err != nil {
			return settings{}, err
		}
		s.metric = f
	}

	var err error
	if s.optimizationTime, err = backend.ParseOptimizationTime(o.optimizationTime); err != nil {
		return settings{}, err
	}
	if s.ignoreCompilers, err = reg.ParseCompilers(o.ignoreCompilers); err != nil {
		return settings{}, err
	}
	if s.ignoreCompressors, err = reg.ParseCompressors(o.ignoreCompressors); err != nil {
		return settings{}, err
	}

	s.storeLatencies = envconfig.StoreLatencies()
	if o.storeLatencies != nil {
		s.storeLatencies = *o.storeLatencies
	}
	return s, nil
}
