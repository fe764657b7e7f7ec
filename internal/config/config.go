// Package config loads the fabric's bootstrap configuration from YAML —
// listen addresses, registry capacity, default mixer parameters — the
// ambient configuration concern §1.1 calls out. Per-mixer configuration
// that travels over the signaling wire (§6.3) is decoded from JSON instead,
// by cmd/fabricmixer's configure handler.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// VADConfig mirrors §6.3's `vad` block.
type VADConfig struct {
	ZeroCrossingsRateHertz int  `yaml:"zero_crossings_rate_hertz"`
	PowerlevelDensityDBFS  int  `yaml:"powerlevel_density_dbfs"`
	Enabled                bool `yaml:"enabled"`
	Drop                   bool `yaml:"drop"`
}

// MixerDefaults mirrors the rest of §6.3's mixer configuration object.
type MixerDefaults struct {
	VAD                   VADConfig `yaml:"vad"`
	SampleRateHz          int       `yaml:"sample_rate_hz"`
	ComfortNoiseDB        int       `yaml:"comfort_noise"`
	MaxNumFrames          int       `yaml:"max_num_frames"`
	FrameBuffer           int       `yaml:"frame_buffer"`
	NormalizeInput        bool      `yaml:"normalize_input"`
	RTPKeepalive          bool      `yaml:"rtp_keepalive"`
	NormalizeMixedByRoot  bool      `yaml:"normalize_mixed_by_root"`
	GCBatchSize           int       `yaml:"gc_batch_size"`
}

// DefaultMixerDefaults matches the original's set_config_defaults values.
func DefaultMixerDefaults() MixerDefaults {
	return MixerDefaults{
		VAD: VADConfig{
			ZeroCrossingsRateHertz: 500,
			PowerlevelDensityDBFS:  -40,
			Enabled:                true,
			Drop:                   false,
		},
		SampleRateHz:         48000,
		ComfortNoiseDB:       -60,
		MaxNumFrames:         0,
		FrameBuffer:          10,
		NormalizeInput:       true,
		RTPKeepalive:         true,
		NormalizeMixedByRoot: false,
		GCBatchSize:          10,
	}
}

// ControlPlaneConfig configures the manager-side websocket listener (§4.3.5).
type ControlPlaneConfig struct {
	ListenAddr      string        `yaml:"listen_addr"`
	RegistrySize    int           `yaml:"registry_size"`
	CallbackDefault time.Duration `yaml:"callback_default_deadline"`
}

// InterconnectConfig configures the fabric-to-fabric bridge (§4.4).
type InterconnectConfig struct {
	ListenAddr          string        `yaml:"listen_addr"`
	Encrypted           bool          `yaml:"encrypted"`
	ReconnectInterval   time.Duration `yaml:"reconnect_interval"`
	StunKeepalive       time.Duration `yaml:"stun_keepalive"`
	CertFile            string        `yaml:"cert_file"`
	KeyFile             string        `yaml:"key_file"`
}

// DefaultInterconnectConfig matches §5's default timers and the Open
// Question decision recorded in DESIGN.md (encrypted by default).
func DefaultInterconnectConfig() InterconnectConfig {
	return InterconnectConfig{
		Encrypted:         true,
		ReconnectInterval: 100 * time.Millisecond,
		StunKeepalive:     300 * time.Second,
	}
}

// LoopConfig names one multicast loop this fabric instance knows about, so
// an Interconnect Session's connect_loops exchange can resolve a loop name
// to a group/port without the mixer worker that owns it (§4.4.1, §4.4.4).
type LoopConfig struct {
	Name  string `yaml:"name"`
	Group string `yaml:"group"`
	Port  int    `yaml:"port"`
}

// PeerConfig authenticates one remote fabric allowed to register on the
// interconnect listener (§4.4.1's `register{name, password}`).
type PeerConfig struct {
	Name     string `yaml:"name"`
	Password string `yaml:"password"`
}

// Config is the top-level fabric bootstrap file.
type Config struct {
	ControlPlane  ControlPlaneConfig  `yaml:"control_plane"`
	Interconnect  InterconnectConfig  `yaml:"interconnect"`
	MixerDefaults MixerDefaults       `yaml:"mixer_defaults"`
	Loops         []LoopConfig        `yaml:"loops"`
	Peers         []PeerConfig        `yaml:"peers"`
	MixerWorker   MixerWorkerConfig   `yaml:"mixer_worker"`
}

// MixerWorkerConfig configures the cmd/fabricmixer worker process: where the
// manager's control-plane socket is, and the identity it registers with.
type MixerWorkerConfig struct {
	ManagerURL string `yaml:"manager_url"`
	UUID       string `yaml:"uuid"`
}

// Load reads and parses a bootstrap YAML file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := Config{
		Interconnect:  DefaultInterconnectConfig(),
		MixerDefaults: DefaultMixerDefaults(),
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
