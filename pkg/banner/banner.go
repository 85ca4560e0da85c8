// Package banner prints the recorder's startup banner: build info, the
// resolved configuration, and where it came from, the same startup summary
// shape the teacher server printed before serving its first request.
package banner

import (
	"fmt"

	"adcprecorder/pkg/config"
)

const art = `
 ___ _ __ ___   _ __ ___  ___ ___  _ __
/ __| '_ ` + "`" + ` _ \ | '__/ _ \/ __/ _ \| '__|
\__ \ | | | | || | |  __/ (_| (_) | |
|___/_| |_| |_||_|  \___|\___\___/|_|
`

// Print renders the startup banner for the resolved effective config.
func Print(eff config.EffectiveConfigResult, version string) {
	cfg := eff.Config
	fmt.Print(art)
	fmt.Println("== oceanographic telemetry recorder ===========================")
	if version != "" {
		fmt.Printf("Version:       %s\n", version)
	}
	fmt.Printf("Config source: %s (%s)\n", eff.Source, eff.ConfigPath)
	fmt.Printf("Serial port:   %s @ %d baud (%d%s%d)\n", cfg.Serial.Port, cfg.Serial.BaudRate,
		cfg.Serial.ByteSize, parityAbbrev(cfg.Serial.Parity), cfg.Serial.StopBits)
	fmt.Printf("Output dir:    %s\n", cfg.OutputDir)
	fmt.Printf("DB path:       %s\n", cfg.DBPath)
	fmt.Printf("Queue cap:     %d\n", cfg.QueueCapacity)
	fmt.Printf("Binary mode:   threshold=%dB quiet=%dms\n", cfg.Frame.BinaryThresholdBytes, cfg.Frame.BinaryQuietMs)
	if cfg.MetricsAddr != "" {
		fmt.Printf("Metrics:       http://%s/metrics\n", cfg.MetricsAddr)
	} else {
		fmt.Println("Metrics:       disabled (set metrics_addr to enable)")
	}
	fmt.Println("================================================================")
}

func parityAbbrev(p string) string {
	switch p {
	case "even":
		return "E"
	case "odd":
		return "O"
	default:
		return "N"
	}
}
