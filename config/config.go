/*
Package config loads the TOML configuration of a viewer session.  A sample:

	[server]
	address = "emdata.janelia.org:8000"
	uuid = "28841c8277e044a7b187dda03e18da13"
	labels = "segmentation"
	grayscale = "grayscale"
	token = ""            # JWT whose "user" claim attributes merges
	retries = 2
	timeout_secs = 30
	min_version = "0.9.0"

	[window]
	width = 500
	height = 500
	pan_factor = 20
	plane_factor = 1

	[bounds]
	minpoint = "0,0,0"    # optional override of server bounds
	maxpoint = "999,999,999"
	start = "500,500,500"

	[merge]
	queue_depth = 5
	mask_bits = 20
	journal = "merges.log"
	recover = true

	[cache]
	size = 64             # MB

	[logging]
	logfile = "dvidviewer.log"
	max_log_size = 500    # MB
	max_log_age = 30      # days

	[kafka]
	servers = ["kafka1:9092"]
	topic = "dvidviewer-merges"

Relative paths are relative to the directory of the configuration file.
*/
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/janelia-flyem/dvidviewer/dvid"
	"github.com/janelia-flyem/dvidviewer/labels"
	"github.com/janelia-flyem/dvidviewer/mergequeue"
	"github.com/janelia-flyem/dvidviewer/mutlog"
	"github.com/janelia-flyem/dvidviewer/session"
	"github.com/janelia-flyem/dvidviewer/store/dvidstore"
)

// Config is the full configuration of a viewer.
type Config struct {
	Server  ServerConfig
	Window  WindowConfig
	Bounds  BoundsConfig
	Merge   MergeConfig
	Cache   CacheConfig
	Logging dvid.LogConfig
	Kafka   mutlog.KafkaConfig
}

type ServerConfig struct {
	Address     string
	UUID        string
	Labels      string
	Grayscale   string
	Token       string
	App         string
	Retries     int
	TimeoutSecs int    `toml:"timeout_secs"`
	MinVersion  string `toml:"min_version"`
}

type WindowConfig struct {
	Width       int32
	Height      int32
	PanFactor   int32 `toml:"pan_factor"`
	PlaneFactor int32 `toml:"plane_factor"`
}

// BoundsConfig holds points as "x,y,z" strings.  Empty strings are unset.
type BoundsConfig struct {
	MinPoint string `toml:"minpoint"`
	MaxPoint string `toml:"maxpoint"`
	Start    string
}

type MergeConfig struct {
	QueueDepth int   `toml:"queue_depth"`
	MaskBits   uint8 `toml:"mask_bits"`
	Journal    string
	Recover    bool
}

type CacheConfig struct {
	Size int // MB; 0 turns off caching
}

// Default returns the configuration used for any setting not given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Grayscale:   "grayscale",
			App:         "dvidviewer",
			TimeoutSecs: 60,
		},
		Window: WindowConfig{
			Width:       session.DefaultWidth,
			Height:      session.DefaultHeight,
			PanFactor:   1,
			PlaneFactor: 1,
		},
		Merge: MergeConfig{
			QueueDepth: mergequeue.DefaultDepth,
			MaskBits:   labels.DefaultMaskBits,
		},
		Cache: CacheConfig{Size: 64},
	}
}

// Load reads a TOML configuration file on top of the defaults.
func Load(filename string) (*Config, error) {
	if filename == "" {
		return nil, fmt.Errorf("no TOML configuration file provided")
	}
	c := Default()
	md, err := toml.DecodeFile(filename, c)
	if err != nil {
		return nil, fmt.Errorf("could not decode TOML config: %v", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		keys := make([]string, len(undecoded))
		for i, key := range undecoded {
			keys[i] = key.String()
		}
		dvid.Warningf("Ignoring unknown settings in %s: %s\n", filename, strings.Join(keys, ", "))
	}
	if err := c.convertPathsToAbsolute(filename); err != nil {
		return nil, fmt.Errorf("could not convert relative paths to absolute paths in TOML config: %v", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) convertPathsToAbsolute(configPath string) error {
	var err error
	configDir := filepath.Dir(configPath)

	// [logging].logfile
	if c.Logging.Logfile != "" {
		c.Logging.Logfile, err = dvid.ConvertToAbsolute(c.Logging.Logfile, configDir)
		if err != nil {
			return fmt.Errorf("error converting logfile setting to absolute path")
		}
	}

	// [merge].journal
	if c.Merge.Journal != "" {
		c.Merge.Journal, err = dvid.ConvertToAbsolute(c.Merge.Journal, configDir)
		if err != nil {
			return fmt.Errorf("error converting journal setting to absolute path")
		}
	}
	return nil
}

// Validate checks settings that can't be checked when they are used.
func (c *Config) Validate() error {
	if c.Merge.QueueDepth < 0 {
		return fmt.Errorf("[merge] queue_depth must be non-negative, not %d", c.Merge.QueueDepth)
	}
	if _, err := labels.NewMask(c.Merge.MaskBits); err != nil {
		return fmt.Errorf("[merge] mask_bits: %v", err)
	}
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		return fmt.Errorf("[window] width and height must be positive, not %d x %d", c.Window.Width, c.Window.Height)
	}
	if c.Server.Retries < 0 {
		return fmt.Errorf("[server] retries must be non-negative, not %d", c.Server.Retries)
	}
	if _, err := c.SessionConfig(); err != nil {
		return err
	}
	return nil
}

// StoreConfig returns the settings for a DVID server connection.
func (c *Config) StoreConfig() dvidstore.Config {
	return dvidstore.Config{
		Address:    c.Server.Address,
		UUID:       c.Server.UUID,
		Labels:     c.Server.Labels,
		Grayscale:  c.Server.Grayscale,
		Token:      c.Server.Token,
		App:        c.Server.App,
		Retries:    c.Server.Retries,
		Timeout:    time.Duration(c.Server.TimeoutSecs) * time.Second,
		MinVersion: c.Server.MinVersion,
	}
}

func parsePoint(setting, str string) (*dvid.Point3d, error) {
	if str == "" {
		return nil, nil
	}
	p, err := dvid.StringToPoint3d(str, ",")
	if err != nil {
		return nil, fmt.Errorf("[bounds] %s: %v", setting, err)
	}
	return &p, nil
}

// SessionConfig returns the viewport settings.
func (c *Config) SessionConfig() (session.Config, error) {
	sc := session.Config{
		Width:       c.Window.Width,
		Height:      c.Window.Height,
		PanFactor:   c.Window.PanFactor,
		PlaneFactor: c.Window.PlaneFactor,
		MaskBits:    c.Merge.MaskBits,
	}
	var err error
	if sc.MinPoint, err = parsePoint("minpoint", c.Bounds.MinPoint); err != nil {
		return sc, err
	}
	if sc.MaxPoint, err = parsePoint("maxpoint", c.Bounds.MaxPoint); err != nil {
		return sc, err
	}
	if sc.Start, err = parsePoint("start", c.Bounds.Start); err != nil {
		return sc, err
	}
	return sc, nil
}

// CacheBytes returns the subvolume cache size in bytes.
func (c *Config) CacheBytes() int {
	return c.Cache.Size * dvid.Mega
}
