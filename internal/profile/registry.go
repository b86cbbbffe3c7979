package profile

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"opto/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// IndicatorProfile 描述单个指标的启用状态、初始权重与参数。
type IndicatorProfile struct {
	Enabled bool           `mapstructure:"enabled" yaml:"enabled"`
	Weight  float64        `mapstructure:"weight" yaml:"weight"`
	Params  map[string]any `mapstructure:"params" yaml:"params"`
}

// FileConfig 映射 profiles 文件的顶层结构。
type FileConfig struct {
	Indicators map[string]IndicatorProfile `mapstructure:"indicators" yaml:"indicators"`
}

// Snapshot 公开的指标配置快照。
type Snapshot struct {
	Version    int64
	LoadedAt   time.Time
	Indicators map[string]IndicatorProfile
}

// ChangeListener 在 registry 重载成功后触发。
type ChangeListener func(Snapshot)

// Registry 管理指标 profile：启动时加载一次，之后监听文件变更热更新。
// 重载失败时保留上一份有效快照。
type Registry struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

// profileSchema 约束 profiles 文件：权重必须落在学习权重的合法区间内。
const profileSchema = `{
  "type": "object",
  "required": ["indicators"],
  "properties": {
    "indicators": {
      "type": "object",
      "minProperties": 1,
      "additionalProperties": {
        "type": "object",
        "properties": {
          "enabled": {"type": "boolean"},
          "weight": {"type": "number", "minimum": 0.1, "maximum": 1.0},
          "params": {"type": "object"}
        },
        "additionalProperties": false
      }
    }
  }
}`

var compiledSchema = jsonschema.MustCompileString("profiles.json", profileSchema)

// NewRegistry 读取 profiles 文件并监听更新。
func NewRegistry(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("profile registry requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read profiles config failed: %w", err)
	}
	r := &Registry{path: path, v: v}
	if err := r.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("profiles reload failed, keeping previous snapshot: %v", err)
			return
		}
		r.notifyListeners()
	})
	v.WatchConfig()
	return r, nil
}

// Snapshot 返回当前配置快照。
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneSnapshot(r.snapshot)
}

// Indicator 返回指定名称的 profile。
func (r *Registry) Indicator(name string) (IndicatorProfile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.snapshot.Indicators[strings.TrimSpace(name)]
	return p, ok
}

// Subscribe 注册重载回调。
func (r *Registry) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

func (r *Registry) reload() error {
	cfg, err := ReadProfileFile(r.path)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.snapshot = Snapshot{
		Version:    r.snapshot.Version + 1,
		LoadedAt:   time.Now(),
		Indicators: cfg.Indicators,
	}
	r.mu.Unlock()
	logger.Infof("Profile registry loaded %d indicators from %s", len(cfg.Indicators), filepath.Base(r.path))
	return nil
}

func (r *Registry) notifyListeners() {
	r.mu.RLock()
	snap := cloneSnapshot(r.snapshot)
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		go func(cb ChangeListener) {
			defer safeRecover("profile listener")
			cb(snap)
		}(fn)
	}
}

func cloneSnapshot(src Snapshot) Snapshot {
	dst := Snapshot{
		Version:    src.Version,
		LoadedAt:   src.LoadedAt,
		Indicators: make(map[string]IndicatorProfile, len(src.Indicators)),
	}
	for name, p := range src.Indicators {
		dst.Indicators[name] = p
	}
	return dst
}

func safeRecover(tag string) {
	if r := recover(); r != nil {
		logger.Errorf("%s panic: %v", tag, r)
	}
}

// ReadProfileFile 读取并校验 profiles 文件。schema 校验不通过视为读取失败。
func ReadProfileFile(path string) (FileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, fmt.Errorf("read profiles config failed: %w", err)
	}
	var generic map[string]any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return FileConfig{}, fmt.Errorf("parse profiles config failed: %w", err)
	}
	if err := compiledSchema.Validate(normalizeYAML(generic)); err != nil {
		return FileConfig{}, fmt.Errorf("profiles schema violation: %w", err)
	}
	var cfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return FileConfig{}, fmt.Errorf("parse profiles config failed: %w", err)
	}
	return cfg, nil
}

// normalizeYAML 将 yaml 解码产物里的 map[any]any 转为 map[string]any，
// 否则 jsonschema 无法遍历。
func normalizeYAML(v any) any {
	switch val := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[fmt.Sprintf("%v", k)] = normalizeYAML(child)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[k] = normalizeYAML(child)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = normalizeYAML(child)
		}
		return out
	case int:
		return float64(val)
	default:
		return val
	}
}
