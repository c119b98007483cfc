package config

import (
	"time"
)

// Config is the daemon configuration, loaded from YAML.
type Config struct {
	SampleRate     int           `yaml:"sample_rate"`
	BufferSize     int           `yaml:"buffer_size"`
	Workers        int           `yaml:"workers"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
	UseMessagePool bool          `yaml:"use_message_pool"`

	// Source selects the sample stream: "file" replays a raw float32
	// I/Q capture, "synth" generates a BPSK test signal.
	Source           string `yaml:"source"`
	PlaybackLocation string `yaml:"playback_location"`

	Synth struct {
		CarrierOffset float64 `yaml:"carrier_offset"`
		Baud          float64 `yaml:"baud"`
		Amplitude     float64 `yaml:"amplitude"`
		Noise         float64 `yaml:"noise"`
	} `yaml:"synth"`

	StatusServer struct {
		Port int `yaml:"port"`
	} `yaml:"status_server"`

	InfluxDB struct {
		Host         string `yaml:"host"`
		Organization string `yaml:"organization"`
		Bucket       string `yaml:"bucket"`
	} `yaml:"influxdb"`

	// Channels are opened at startup with the given initial params.
	Channels []Channel `yaml:"channels"`

	// InfoInterval is how often the per-channel baud estimates are
	// polled and logged.
	InfoInterval time.Duration `yaml:"info_interval"`
}

// Channel is one spectral channel to inspect.
type Channel struct {
	Fc             float64 `yaml:"fc"`
	Bw             float64 `yaml:"bw"`
	Baud           float64 `yaml:"baud"`
	CarrierControl string  `yaml:"carrier_control"` // manual | costas2 | costas4
	InspectorID    uint32  `yaml:"inspector_id"`
	FcOff          float64 `yaml:"fc_off"`
	FcPhi          float64 `yaml:"fc_phi"`
	SymPhase       float64 `yaml:"sym_phase"`
}
