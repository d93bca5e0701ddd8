package settings

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	fileMode        = 0o600
	dirMode         = 0o700
	tempFilePattern = ".settings-*.toml.tmp"
)

// Store keeps the current settings in memory, persists them to a TOML file
// and reloads them when the file changes on disk.
type Store struct {
	path string
	v    *viper.Viper

	mu   sync.RWMutex
	cur  Settings
	subs map[chan Settings]struct{}

	writeMu sync.Mutex
}

// Open loads settings from path, falling back to defaults when the file does
// not exist yet.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), dirMode); err != nil {
		return nil, fmt.Errorf("create settings directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	d := Defaults()
	v.SetDefault("cooldownMinutes", d.CooldownMinutes)
	v.SetDefault("maxTabs", d.MaxTabs)
	v.SetDefault("soundEnabled", d.SoundEnabled)
	v.SetDefault("extensionEnabled", d.ExtensionEnabled)

	s := &Store{path: path, v: v, cur: d, subs: make(map[chan Settings]struct{})}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read settings file: %w", err)
		}
		return s, nil
	}

	loaded, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := loaded.Validate(); err != nil {
		slog.Warn("settings file invalid, using defaults", "path", path, "err", err)
		return s, nil
	}
	s.cur = loaded
	return s, nil
}

// NewMemory returns a store that never touches disk.
func NewMemory(initial Settings) *Store {
	return &Store{cur: initial, subs: make(map[chan Settings]struct{})}
}

func (s *Store) Path() string { return s.path }

func (s *Store) Current() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Subscribe returns a channel that receives every settings change and a
// function that stops the subscription.
func (s *Store) Subscribe() (<-chan Settings, func()) {
	ch := make(chan Settings, 4)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()
	return ch, func() {
		s.mu.Lock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
}

// Watch reloads the file whenever it changes on disk.
func (s *Store) Watch() {
	if s.v == nil {
		return
	}
	s.v.OnConfigChange(func(e fsnotify.Event) {
		next, err := decode(s.v)
		if err == nil {
			err = next.Validate()
		}
		if err != nil {
			slog.Warn("ignoring settings change", "file", e.Name, "err", err)
			return
		}
		s.apply(next)
	})
	s.v.WatchConfig()
}

// Update applies fn to a copy of the current settings, validates the result
// and persists it.
func (s *Store) Update(fn func(*Settings)) (Settings, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := s.Current()
	fn(&next)
	if err := next.Validate(); err != nil {
		return Settings{}, err
	}
	if err := s.write(next); err != nil {
		return Settings{}, err
	}
	s.apply(next)
	return next, nil
}

func (s *Store) Reset() (Settings, error) {
	return s.Update(func(st *Settings) { *st = Defaults() })
}

func (s *Store) apply(next Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur.Equal(next) {
		return
	}
	s.cur = next
	for ch := range s.subs {
		select {
		case ch <- next:
		default:
		}
	}
	slog.Info("settings updated", "cooldownMinutes", next.CooldownMinutes, "maxTabs", next.MaxTabs,
		"sound", next.SoundEnabled, "enabled", next.ExtensionEnabled)
}

func decode(v *viper.Viper) (Settings, error) {
	s := Defaults()
	s.CooldownMinutes = v.GetInt("cooldownMinutes")
	s.MaxTabs = v.GetInt("maxTabs")
	if !v.InConfig("maxTabs") && v.InConfig("maxTabsOpen") {
		s.MaxTabs = v.GetInt("maxTabsOpen")
	}
	s.SoundEnabled = v.GetBool("soundEnabled")
	s.ExtensionEnabled = v.GetBool("extensionEnabled")
	if err := v.UnmarshalKey("filterConfig", &s.FilterConfig); err != nil {
		return Settings{}, fmt.Errorf("decode filterConfig: %w", err)
	}
	return s, nil
}

func (s *Store) write(st Settings) error {
	if s.path == "" {
		return nil
	}
	data, err := toml.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp settings file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp settings file: %w", err)
	}
	if err := tmp.Chmod(fileMode); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp settings file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp settings file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace settings file: %w", err)
	}
	cleanup = false
	return nil
}
