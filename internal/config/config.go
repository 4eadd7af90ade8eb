package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ImmemorConsultrixContrarie/The-Rat-and-the-Time/internal/game"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Version    string           `yaml:"version" json:"version"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Simulation SimulationConfig `yaml:"simulation" json:"simulation"`
	Storage    StorageConfig    `yaml:"storage" json:"storage"`
	Terminal   TerminalConfig   `yaml:"terminal" json:"terminal"`
	Entities   []EntityConfig   `yaml:"entities" json:"entities"`
}

type ServerConfig struct {
	Addr      string `yaml:"addr" json:"addr" env:"RAT_ADDR"`
	StaticDir string `yaml:"static_dir" json:"static_dir" env:"RAT_STATIC_DIR"`
	DevStatic bool   `yaml:"dev_static" json:"dev_static" env:"RAT_DEV_STATIC"`
}

type SimulationConfig struct {
	TickInterval time.Duration `yaml:"tick_interval" json:"tick_interval" env:"RAT_TICK_INTERVAL"`
	SaveEvery    time.Duration `yaml:"save_every" json:"save_every" env:"RAT_SAVE_EVERY"`
}

const (
	StoreSQLite = "sqlite"
	StoreFile   = "file"
	StoreMemory = "memory"
)

type StorageConfig struct {
	Driver     string `yaml:"driver" json:"driver" env:"RAT_STORE"`
	DataDir    string `yaml:"data_dir" json:"data_dir" env:"RAT_DATA_DIR"`
	SQLiteFile string `yaml:"sqlite_file" json:"sqlite_file" env:"RAT_SQLITE_FILE"`
}

type TerminalConfig struct {
	Chime bool `yaml:"chime" json:"chime" env:"RAT_CHIME"`
}

// EntityConfig keeps rates as strings so "0.1" stays exactly one tenth.
type EntityConfig struct {
	Key            string `yaml:"key" json:"key"`
	Name           string `yaml:"name" json:"name"`
	BasePerMinute  string `yaml:"base_per_minute" json:"base_per_minute"`
	BonusPerMinute string `yaml:"bonus_per_minute" json:"bonus_per_minute"`
	SpeedBonusPct  string `yaml:"speed_bonus_pct" json:"speed_bonus_pct"`
}

func (s *ServerConfig) ApplyDefaults() {
	if strings.TrimSpace(s.Addr) == "" {
		s.Addr = ":3000"
	}
	if strings.TrimSpace(s.StaticDir) == "" {
		s.StaticDir = "static"
	}
}

func (s *SimulationConfig) ApplyDefaults() {
	if s.TickInterval <= 0 {
		s.TickInterval = game.DefaultTickInterval
	}
	if s.SaveEvery == 0 {
		s.SaveEvery = game.DefaultSaveEvery
	}
}

func (s *StorageConfig) ApplyDefaults() {
	s.Driver = strings.ToLower(strings.TrimSpace(s.Driver))
	if s.Driver == "" {
		s.Driver = StoreSQLite
	}
	if strings.TrimSpace(s.DataDir) == "" {
		s.DataDir = "data"
	}
	if strings.TrimSpace(s.SQLiteFile) == "" {
		s.SQLiteFile = "game.db"
	}
}

func (c *Config) ApplyDefaults() {
	c.Server.ApplyDefaults()
	c.Simulation.ApplyDefaults()
	c.Storage.ApplyDefaults()
	if len(c.Entities) == 0 {
		c.Entities = DefaultEntities()
	}
}

// DefaultEntities mirrors game.DefaultEntities in config form.
func DefaultEntities() []EntityConfig {
	return []EntityConfig{
		{Key: "grass", Name: "Grass", BasePerMinute: "1", BonusPerMinute: "0.1", SpeedBonusPct: "1"},
		{Key: "stick", Name: "Stick", BasePerMinute: "1", BonusPerMinute: "0.1", SpeedBonusPct: "2"},
	}
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StoreSQLite, StoreFile, StoreMemory:
	default:
		return fmt.Errorf("storage.driver %q: want sqlite, file or memory", c.Storage.Driver)
	}
	if c.Simulation.SaveEvery < 0 {
		return errors.New("simulation.save_every must not be negative")
	}
	_, err := c.GameEntities()
	return err
}

// GameEntities converts the entity table into the simulation's types.
func (c *Config) GameEntities() ([]game.Entity, error) {
	out := make([]game.Entity, 0, len(c.Entities))
	for i, ec := range c.Entities {
		if strings.TrimSpace(ec.Key) == "" {
			return nil, fmt.Errorf("entities[%d]: key is required", i)
		}
		e, err := game.ParseEntity(ec.Key, ec.Name, ec.BasePerMinute, ec.BonusPerMinute, ec.SpeedBonusPct)
		if err != nil {
			return nil, fmt.Errorf("entities[%d] %q: %w", i, ec.Key, err)
		}
		out = append(out, e)
	}
	return out, nil
}

func Parse(b []byte) (*Config, error) {
	var r Config
	if err := yaml.Unmarshal(b, &r); err != nil {
		return nil, err
	}
	r.ApplyDefaults()
	return &r, nil
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}
