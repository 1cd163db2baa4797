// Package config holds the tunables that the OHOS original hard-coded as
// in-source constants. Every field has the original's value as its default
// so that loading no YAML file at all reproduces the spec exactly.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for a cast engine session.
type Config struct {
	Transport TransportConfig `yaml:"transport"`
	RTSP      RTSPConfig      `yaml:"rtsp"`
	LocalFile LocalFileConfig `yaml:"localFile"`
}

// TransportConfig tunes the framed-transport layer (C2).
type TransportConfig struct {
	// MaxFrameBytes rejects any declared TCP frame length above this value.
	MaxFrameBytes uint32 `yaml:"maxFrameBytes"`
	// SendBufferBytes is the socket SO_SNDBUF size.
	SendBufferBytes int `yaml:"sendBufferBytes"`
	// RecvBufferBytes is the socket SO_RCVBUF size.
	RecvBufferBytes int `yaml:"recvBufferBytes"`
}

// RTSPConfig tunes the control engine (C4).
type RTSPConfig struct {
	// NegotiationTimeout bounds the source-side handshake in
	// cmd/castengined, and half of it is the keep-alive interval. No
	// watchdog fires OnPeerGone when it expires.
	NegotiationTimeout time.Duration `yaml:"negotiationTimeout"`
	// VideoFPSMin/Max clamp the negotiated frame rate.
	VideoFPSMin int `yaml:"videoFPSMin"`
	VideoFPSMax int `yaml:"videoFPSMax"`
	// VideoGopMin/Max clamp the negotiated GOP size; -1 is always allowed.
	VideoGopMin int `yaml:"videoGopMin"`
	VideoGopMax int `yaml:"videoGopMax"`
	// VideoBitrateMin/Max clamp the negotiated video bitrate, bits/sec.
	VideoBitrateMin int `yaml:"videoBitrateMin"`
	VideoBitrateMax int `yaml:"videoBitrateMax"`
	// Uibc advertises this side's remote-input capability, gating what a
	// peer's his_uibc_capability offer can be granted.
	Uibc UibcConfig `yaml:"uibc"`
}

// UibcConfig is this side's locally-supported remote-input (UIBC)
// capability, RemoteControlParamInfo's local half in the original.
type UibcConfig struct {
	Supported     bool     `yaml:"supported"`
	Generic       []string `yaml:"generic"`
	Hidc          []string `yaml:"hidc"`
	Vendor        []string `yaml:"vendor"`
	SupportVendor bool     `yaml:"supportVendor"`
}

// LocalFileConfig tunes the local-file channel's cache (§4.5).
type LocalFileConfig struct {
	// CacheCount is the number of fixed-size caches a data source owns.
	CacheCount int `yaml:"cacheCount"`
	// CacheBytes is the size of one cache.
	CacheBytes int64 `yaml:"cacheBytes"`
	// LowWaterBytes triggers a new read-ahead request when the cache's
	// unread tail falls below this many bytes.
	LowWaterBytes int64 `yaml:"lowWaterBytes"`
	// MaxRequestBytes bounds a single read-ahead request (minus header reserve).
	MaxRequestBytes int64 `yaml:"maxRequestBytes"`
	// FirstRequestBytes is the size of the very first read-ahead request.
	FirstRequestBytes int64 `yaml:"firstRequestBytes"`
	// ReadWait is how long ReadAt blocks on the cache condvar before retrying.
	ReadWait time.Duration `yaml:"readWait"`
	// StaleRequest marks an outstanding request as abandoned, forcing retry.
	StaleRequest time.Duration `yaml:"staleRequest"`
	// ChannelBringupWait bounds the wait for AddChannel on first use.
	ChannelBringupWait time.Duration `yaml:"channelBringupWait"`
}

// Default returns the configuration matching every literal constant named
// in SPEC_FULL.md §4.
func Default() Config {
	return Config{
		Transport: TransportConfig{
			MaxFrameBytes:   10 * 1024 * 1024,
			SendBufferBytes: 512 * 1024,
			RecvBufferBytes: 10 * 1024 * 1024,
		},
		RTSP: RTSPConfig{
			NegotiationTimeout: 10 * time.Second,
			VideoFPSMin:        20,
			VideoFPSMax:        60,
			VideoGopMin:        30,
			VideoGopMax:        600,
			VideoBitrateMin:    500_000,
			VideoBitrateMax:    20_000_000,
			Uibc: UibcConfig{
				Supported: true,
				Generic:   []string{"touchscreen", "mouse", "keyboard"},
				Hidc:      []string{"hidc"},
			},
		},
		LocalFile: LocalFileConfig{
			CacheCount:          4,
			CacheBytes:          5 * 1024 * 1024,
			LowWaterBytes:       4 * 1024 * 1024,
			MaxRequestBytes:     2*1024*1024 - 1024,
			FirstRequestBytes:   1024 * 1024,
			ReadWait:            100 * time.Millisecond,
			StaleRequest:        3 * time.Second,
			ChannelBringupWait:  100 * time.Millisecond,
		},
	}
}

// Load reads a YAML config file and overlays it on top of Default(),
// so an omitted field never silently becomes its Go zero value.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
