package strategy

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RSIConfig holds the oscillator settings for one timeframe group.
type RSIConfig struct {
	Period int     `yaml:"period" json:"period"`
	Upper  float64 `yaml:"upper" json:"upper"`
	Lower  float64 `yaml:"lower" json:"lower"`
}

// GroupConfig is one timeframe group entry in YAML: a symbol watched on one
// timeframe with its signal settings and order placement parameters.
type GroupConfig struct {
	ID               string    `yaml:"id"`
	Symbol           string    `yaml:"symbol"`
	TimeframeMinutes int       `yaml:"timeframe_minutes"`
	RSI              RSIConfig `yaml:"rsi"`
	Params           Params    `yaml:"params"`
	IsActive         bool      `yaml:"is_active"`
}

// ConfigFile is the top-level YAML structure.
type ConfigFile struct {
	TimeframeGroups []GroupConfig `yaml:"timeframe_groups"`
}

// DefaultRSI is applied when a group omits its rsi block.
var DefaultRSI = RSIConfig{Period: 14, Upper: 70, Lower: 30}

// LoadConfig reads timeframe groups from a YAML file and fills in RSI
// defaults for groups that omit them.
func LoadConfig(path string) ([]GroupConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file ConfigFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	for i := range file.TimeframeGroups {
		g := &file.TimeframeGroups[i]
		if g.ID == "" {
			return nil, fmt.Errorf("timeframe group %d has no id", i)
		}
		if g.TimeframeMinutes <= 0 {
			return nil, fmt.Errorf("timeframe group %s has invalid timeframe_minutes %d", g.ID, g.TimeframeMinutes)
		}
		if g.RSI.Period == 0 {
			g.RSI = DefaultRSI
		}
	}

	return file.TimeframeGroups, nil
}

// SyncConfigToDB upserts timeframe groups from config into the database so
// the API and audits can read the configuration that produced each group.
func SyncConfigToDB(db *sql.DB, groups []GroupConfig) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO timeframe_groups (id, symbol, timeframe_minutes, params, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			symbol = excluded.symbol,
			timeframe_minutes = excluded.timeframe_minutes,
			params = excluded.params,
			is_active = excluded.is_active
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, g := range groups {
		paramsJSON, err := json.Marshal(struct {
			Params
			RSI RSIConfig `json:"rsi"`
		}{Params: g.Params, RSI: g.RSI})
		if err != nil {
			return fmt.Errorf("failed to marshal params for group %s: %w", g.ID, err)
		}

		if _, err := stmt.Exec(g.ID, g.Symbol, g.TimeframeMinutes, string(paramsJSON), g.IsActive); err != nil {
			return fmt.Errorf("failed to upsert timeframe group %s: %w", g.ID, err)
		}
	}

	return tx.Commit()
}
