package device

import "testing"

func gpuDetector(found bool) Detector {
	return DetectorFunc(func() (Info, bool) {
		return Info{Kind: GPU, Name: "Test GPU"}, found
	})
}

func TestDetect(t *testing.T) {
	cases := map[string]struct {
		env      string
		detector Detector
		want     Kind
	}{
		"default cpu":       {"", nil, CPU},
		"gpu detected":      {"", gpuDetector(true), GPU},
		"gpu not available": {"", gpuDetector(false), CPU},
		"override cpu":      {"cpu", gpuDetector(true), CPU},
		"override gpu":      {"GPU", nil, GPU},
		"unknown override":  {"tpu", nil, CPU},
	}

	for name, tt := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("SPEEDSTER_DEVICE", tt.env)
			if tt.detector != nil {
				RegisterDetector(GPU, tt.detector)
				t.Cleanup(func() { UnregisterDetector(GPU) })
			}
			if got := Detect().Kind; got != tt.want {
				t.Errorf("erwartet %s, bekommen %s", tt.want, got)
			}
		})
	}
}

func TestDevices(t *testing.T) {
	t.Setenv("SPEEDSTER_DEVICE", "")
	if devs := Devices(); len(devs) != 1 || devs[0].Kind != CPU || devs[0].Cores < 1 {
		t.Errorf("erwartet nur CPU, bekommen %+v", devs)
	}

	RegisterDetector(GPU, gpuDetector(true))
	t.Cleanup(func() { UnregisterDetector(GPU) })
	if devs := Devices(); len(devs) != 2 || devs[1].Name != "Test GPU" {
		t.Errorf("erwartet CPU und GPU, bekommen %+v", devs)
	}
}
