// MODUL: device
// ZWECK: Erkennung des Compute-Geraets fuer Optimierungs-Laeufe (CPU/GPU)
// INPUT: Registrierte Detektoren, SPEEDSTER_DEVICE
// OUTPUT: Kind und Info des gewaehlten Geraets
// NEBENEFFEKTE: Keine
// ABHAENGIGKEITEN: envconfig
// HINWEISE: CPU ist immer verfuegbar; GPU nur wenn ein Detektor eines meldet

package device

import (
	"runtime"
	"strings"
	"sync"

	"github.com/speedster/speedster/envconfig"
)

// ============================================================================
// Geraete-Typ
// ============================================================================

// Kind ist die Geraete-Klasse.
type Kind string

const (
	CPU Kind = "cpu"
	GPU Kind = "gpu"
)

// Info beschreibt ein Compute-Geraet.
type Info struct {
	Kind  Kind   `json:"kind"`
	Name  string `json:"name"`
	Cores int    `json:"cores,omitempty"`
}

func (i Info) String() string { return string(i.Kind) }

// ============================================================================
// Detektoren
// ============================================================================

// Detector meldet ein Geraet, falls verfuegbar.
type Detector interface {
	Detect() (Info, bool)
}

// DetectorFunc ist ein Adapter fuer einfache Funktionen.
type DetectorFunc func() (Info, bool)

func (f DetectorFunc) Detect() (Info, bool) { return f() }

var (
	detectorsMu sync.RWMutex
	detectors   = map[Kind]Detector{}
)

// RegisterDetector registriert einen Detektor fuer eine Geraete-Klasse.
func RegisterDetector(k Kind, d Detector) {
	detectorsMu.Lock()
	defer detectorsMu.Unlock()
	detectors[k] = d
}

// UnregisterDetector entfernt einen Detektor.
func UnregisterDetector(k Kind) {
	detectorsMu.Lock()
	defer detectorsMu.Unlock()
	delete(detectors, k)
}

// ============================================================================
// Erkennung
// ============================================================================

// Detect gibt das bevorzugte Geraet zurueck. SPEEDSTER_DEVICE ueberschreibt
// die Erkennung; unbekannte Werte fallen auf CPU zurueck.
func Detect() Info {
	switch Kind(strings.ToLower(envconfig.Device())) {
	case CPU:
		return cpuInfo()
	case GPU:
		if info, ok := detect(GPU); ok {
			return info
		}
		return Info{Kind: GPU, Name: "GPU"}
	}

	if info, ok := detect(GPU); ok {
		return info
	}
	return cpuInfo()
}

// Devices gibt alle verfuegbaren Geraete zurueck, CPU zuerst.
func Devices() []Info {
	devices := []Info{cpuInfo()}
	if info, ok := detect(GPU); ok {
		devices = append(devices, info)
	}
	return devices
}

func detect(k Kind) (Info, bool) {
	detectorsMu.RLock()
	d, ok := detectors[k]
	detectorsMu.RUnlock()
	if !ok {
		return Info{}, false
	}
	return d.Detect()
}

func cpuInfo() Info {
	return Info{Kind: CPU, Name: "CPU", Cores: runtime.NumCPU()}
}
