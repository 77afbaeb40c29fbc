package dashboard

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// applyDashboardEnvOverrides applies environment variable overrides to dashboard configuration
func applyDashboardEnvOverrides(m *Model) {
	if m == nil {
		return
	}

	// REDLINE_DASH_FPS: animation frames per second (1-60)
	if fps, ok := envPositiveInt("REDLINE_DASH_FPS"); ok {
		if fps > 60 {
			fps = 60
		}
		m.tickInterval = time.Second / time.Duration(fps)
	}

	// REDLINE_DASH_WAVE_WIDTH: sparkline width in cells
	if width, ok := envPositiveInt("REDLINE_DASH_WAVE_WIDTH"); ok {
		m.waveWidth = width
	}
}

func envPositiveInt(name string) (int, bool) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return 0, false
	}

	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return 0, false
	}

	return parsed, true
}
