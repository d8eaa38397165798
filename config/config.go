// Package config manages the DVR-wide configuration the entry engine
// consults whenever an entry does not specify its own value (extra
// pre/post padding, retention, container, EPG fuzzy-match window). The
// on-disk settings editor and admin-facing config store are external
// collaborators (spec §1); this package only holds the in-memory,
// thread-safe snapshot the engine reads and a viper-backed loader for the
// composition root, generalizing the teacher's manual
// os.ReadFile/encoding-json loader.
package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/whisper-darkly/dvr-engine/entry"
)

// Data holds one DVR configuration profile's settings (spec §3 "config"
// index membership — an entry belongs to exactly one config profile).
type Data struct {
	Name string `mapstructure:"name"`

	// Padding/retention/container defaults, consulted by entry.Entry's
	// derived accessors when the entry and its channel are both silent
	// (spec §4.2).
	ExtraTimePre  int `mapstructure:"extra_time_pre"`  // minutes
	ExtraTimePost int `mapstructure:"extra_time_post"` // minutes
	RetentionDays int `mapstructure:"retention_days"`
	Container     int `mapstructure:"container"` // profile-derived container code

	// UpdateWindow bounds how far a replacement broadcast's start may
	// drift from an entry's recorded start and still fuzzy-match (spec
	// §4.5).
	UpdateWindow time.Duration `mapstructure:"update_window"`

	// Title formatter flags (spec §4.9), projected into entry.TitleConfig
	// by the engine at format time.
	ChannelInTitle    bool `mapstructure:"channel_in_title"`
	OmitTitle         bool `mapstructure:"omit_title"`
	EpisodeInTitle    bool `mapstructure:"episode_in_title"`
	EpisodeBeforeDate bool `mapstructure:"episode_before_date"`
	SubtitleInTitle   bool `mapstructure:"subtitle_in_title"`

	// NextStartCoalesce is the debounce window for the "next scheduled
	// start" notification (spec §4.4 step 3, §4.8).
	NextStartCoalesce time.Duration `mapstructure:"next_start_coalesce"`

	// DefaultLanguage selects which localized string variant the title
	// formatter and dedup's default-language comparisons use.
	DefaultLanguage string `mapstructure:"default_language"`
}

// TitleConfig projects the formatter-relevant subset of Data.
func (d Data) TitleConfig() entry.TitleConfig {
	return entry.TitleConfig{
		ChannelInTitle:    d.ChannelInTitle,
		OmitTitle:         d.OmitTitle,
		EpisodeInTitle:    d.EpisodeInTitle,
		EpisodeBeforeDate: d.EpisodeBeforeDate,
		SubtitleInTitle:   d.SubtitleInTitle,
	}
}

func defaults() Data {
	return Data{
		Name:              "default",
		ExtraTimePre:      2,
		ExtraTimePost:     15,
		RetentionDays:     30,
		Container:         0,
		UpdateWindow:      5 * time.Minute,
		EpisodeInTitle:    true,
		EpisodeBeforeDate: false,
		SubtitleInTitle:   true,
		NextStartCoalesce: 5 * time.Second,
		DefaultLanguage:   "",
	}
}

// Global is a thread-safe, reloadable wrapper around Data.
type Global struct {
	mu   sync.RWMutex
	data Data
}

// Load reads configuration from confDir/dvr.yaml (if present) and from
// DVR_-prefixed environment variables.
func Load(confDir string) (*Global, error) {
	v := viper.New()
	v.SetConfigName("dvr")
	v.SetConfigType("yaml")
	if confDir != "" {
		v.AddConfigPath(confDir)
	}
	v.SetEnvPrefix("DVR")
	v.AutomaticEnv()

	d := defaults()
	v.SetDefault("name", d.Name)
	v.SetDefault("extra_time_pre", d.ExtraTimePre)
	v.SetDefault("extra_time_post", d.ExtraTimePost)
	v.SetDefault("retention_days", d.RetentionDays)
	v.SetDefault("container", d.Container)
	v.SetDefault("update_window", d.UpdateWindow)
	v.SetDefault("episode_in_title", d.EpisodeInTitle)
	v.SetDefault("episode_before_date", d.EpisodeBeforeDate)
	v.SetDefault("subtitle_in_title", d.SubtitleInTitle)
	v.SetDefault("next_start_coalesce", d.NextStartCoalesce)
	v.SetDefault("default_language", d.DefaultLanguage)

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	var data Data
	if err := v.Unmarshal(&data); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &Global{data: data}, nil
}

// New wraps an already-built Data, used by tests and by callers that don't
// want a file-backed loader.
func New(d Data) *Global {
	return &Global{data: d}
}

// Get returns a thread-safe copy of the current configuration.
func (g *Global) Get() Data {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.data
}

// Set replaces the current configuration in memory. Persisting it back to
// disk is the external config store's job (spec §1); Global only ever
// holds the engine-facing snapshot.
func (g *Global) Set(d Data) {
	g.mu.Lock()
	g.data = d
	g.mu.Unlock()
}
