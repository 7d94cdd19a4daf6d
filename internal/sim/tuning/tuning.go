package tuning

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"timbercraft.ai/internal/sim/world/logic/treescan"
)

type Tuning struct {
	Debug    bool   `yaml:"debug"`
	Language string `yaml:"language"`

	General       General       `yaml:"general"`
	Protection    Protection    `yaml:"protection"`
	TreeDetection TreeDetection `yaml:"tree_detection"`
	Chopping      Chopping      `yaml:"chopping"`
	Region        Region        `yaml:"region"`
}

type General struct {
	Enabled        bool `yaml:"enabled"`
	DefaultEnabled bool `yaml:"default_enabled"`
	RequireSneak   bool `yaml:"require_sneak"`
	RequireAxe     bool `yaml:"require_axe"`
	MaxTreeSize    int  `yaml:"max_tree_size"`
}

type Protection struct {
	UseProvenance        bool `yaml:"use_provenance"`
	LookupDays           int  `yaml:"lookup_days"`
	CheckTreehouse       bool `yaml:"check_treehouse"`
	TreehouseCheckRadius int  `yaml:"treehouse_check_radius"`
	UseRegionGuard       bool `yaml:"use_region_guard"`
	LookupTimeoutMs      int  `yaml:"lookup_timeout_ms"`
}

type TreeDetection struct {
	MinLeaves           int  `yaml:"min_leaves"`
	MinLogs             int  `yaml:"min_logs"`
	LeafSearchRadius    int  `yaml:"leaf_search_radius"`
	CheckHorizontalLogs bool `yaml:"check_horizontal_logs"`
	CheckMixedLogs      bool `yaml:"check_mixed_logs"`
	HorizontalSpread    int  `yaml:"horizontal_spread"`
}

type Chopping struct {
	BreakLeaves          bool    `yaml:"break_leaves"`
	ToolDamageMultiplier float64 `yaml:"tool_damage_multiplier"`
	AutoCollect          bool    `yaml:"auto_collect"`
}

type Region struct {
	Size              int `yaml:"size"`
	BackgroundWorkers int `yaml:"background_workers"`
}

var Languages = []string{"en", "tr", "de"}

func Defaults() Tuning {
	return Tuning{
		Language: "en",
		General: General{
			Enabled:        true,
			DefaultEnabled: true,
			RequireAxe:     true,
			MaxTreeSize:    256,
		},
		Protection: Protection{
			UseProvenance:        true,
			LookupDays:           30,
			CheckTreehouse:       true,
			TreehouseCheckRadius: 2,
			UseRegionGuard:       true,
			LookupTimeoutMs:      2000,
		},
		TreeDetection: TreeDetection{
			MinLeaves:           5,
			MinLogs:             3,
			LeafSearchRadius:    6,
			CheckHorizontalLogs: true,
			CheckMixedLogs:      true,
			HorizontalSpread:    3,
		},
		Chopping: Chopping{
			BreakLeaves:          true,
			ToolDamageMultiplier: 1.0,
			AutoCollect:          true,
		},
		Region: Region{
			Size:              64,
			BackgroundWorkers: 4,
		},
	}
}

// Load reads timber.yaml over the defaults. An empty path yields the defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("timber.yaml: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("timber.yaml: %w", err)
	}
	return t, nil
}

func (t *Tuning) Normalize() {
	t.Language = strings.ToLower(strings.TrimSpace(t.Language))
	if t.Language == "" {
		t.Language = "en"
	}
	if t.Region.BackgroundWorkers <= 0 {
		t.Region.BackgroundWorkers = 1
	}
}

func (t Tuning) Validate() error {
	switch {
	case t.General.MaxTreeSize <= 0:
		return fmt.Errorf("general.max_tree_size must be > 0")
	case t.TreeDetection.MinLogs < 0, t.TreeDetection.MinLeaves < 0:
		return fmt.Errorf("tree_detection minimums must be >= 0")
	case t.TreeDetection.LeafSearchRadius < 0:
		return fmt.Errorf("tree_detection.leaf_search_radius must be >= 0")
	case t.TreeDetection.HorizontalSpread < 0:
		return fmt.Errorf("tree_detection.horizontal_spread must be >= 0")
	case t.Protection.TreehouseCheckRadius < 0:
		return fmt.Errorf("protection.treehouse_check_radius must be >= 0")
	case t.Protection.LookupDays < 0:
		return fmt.Errorf("protection.lookup_days must be >= 0")
	case t.Chopping.ToolDamageMultiplier < 0:
		return fmt.Errorf("chopping.tool_damage_multiplier must be >= 0")
	case t.Region.Size <= 0:
		return fmt.Errorf("region.size must be > 0")
	}
	if !ValidLanguage(t.Language) {
		return fmt.Errorf("unknown language %q (available: %s)", t.Language, strings.Join(Languages, ", "))
	}
	return nil
}

func ValidLanguage(lang string) bool {
	lang = strings.ToLower(lang)
	for _, l := range Languages {
		if l == lang {
			return true
		}
	}
	return false
}

func (t Tuning) ScanConfig() treescan.Config {
	return treescan.Config{
		MaxClusterSize:       t.General.MaxTreeSize,
		LeafSearchRadius:     t.TreeDetection.LeafSearchRadius,
		StructureCheckRadius: t.Protection.TreehouseCheckRadius,
		HorizontalSpread:     t.TreeDetection.HorizontalSpread,
		CheckHorizontalLogs:  t.TreeDetection.CheckHorizontalLogs,
		CheckMixedFamilies:   t.TreeDetection.CheckMixedLogs,
		CollectStructures:    t.Protection.CheckTreehouse,
		MinLogs:              t.TreeDetection.MinLogs,
		MinLeaves:            t.TreeDetection.MinLeaves,
	}
}

func (t Tuning) LookbackWindow() time.Duration {
	return time.Duration(t.Protection.LookupDays) * 24 * time.Hour
}

func (t Tuning) LookupTimeout() time.Duration {
	if t.Protection.LookupTimeoutMs <= 0 {
		return 0
	}
	return time.Duration(t.Protection.LookupTimeoutMs) * time.Millisecond
}
