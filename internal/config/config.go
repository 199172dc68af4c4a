package config

import (
	"bufio"
	"bytes"
	"fmt"
	"log"
	"os"
	"os/user"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

const (
	launchdrc = "~/.config/ade/launchd.toml"

	DefaultResultLimit      = 8
	DefaultRebuildHours     = 24
	DefaultRecentPathsLimit = 50
	DefaultBundleSuffix     = ".app"
	DefaultCachePath        = "~/.config/ade/launchd/app_index.json"
)

var (
	DefaultSearchRoots = []string{"/Applications", "~/Applications", "/System/Applications"}

	DefaultCommandPrefixes = []string{
		"open", "cd", "ls", "git", "npm", "yarn", "pnpm", "brew", "python", "python3",
		"node", "curl", "wget", "docker", "kubectl", "ssh", "scp", "rsync", "make",
		"cargo", "go", "claude",
	}
)

var (
	globalConfig *config
	once         sync.Once
)

type config struct {
	static  env
	dynamic rc
	watcher *fsnotify.Watcher
	home    string

	cbMu      sync.Mutex
	callbacks []func()
}

type (
	env struct {
		UnixSocket  string `envconfig:"ADE_LAUNCHD_SOCK"`
		ConfigPath  string `envconfig:"ADE_LAUNCHD_CONFIG"`
		ResultLimit int    `envconfig:"ADE_LAUNCHD_RESULT_LIMIT"`
	}
	rc struct {
		sync.RWMutex
		file rcFile
	}
	// rcFile is the TOML layout of the rc file. Every key is optional.
	rcFile struct {
		SearchRoots          []string `toml:"search_roots"`
		CommandPrefixes      []string `toml:"command_prefixes"`
		ResultLimit          int      `toml:"result_limit"`
		RebuildIntervalHours int      `toml:"rebuild_interval_hours"`
		CachePath            string   `toml:"cache_path"`
		RecentPathsLimit     int      `toml:"recent_paths_limit"`
		PreserveUsage        bool     `toml:"preserve_usage"`
		WatchRoots           *bool    `toml:"watch_roots"`
		BundleSuffix         string   `toml:"bundle_suffix"`
	}
)

func defaults() rcFile {
	watch := true
	return rcFile{
		SearchRoots:          slices.Clone(DefaultSearchRoots),
		CommandPrefixes:      slices.Clone(DefaultCommandPrefixes),
		ResultLimit:          DefaultResultLimit,
		RebuildIntervalHours: DefaultRebuildHours,
		CachePath:            DefaultCachePath,
		RecentPathsLimit:     DefaultRecentPathsLimit,
		WatchRoots:           &watch,
		BundleSuffix:         DefaultBundleSuffix,
	}
}

// withDefaults fills absent and non-positive values.
func (f rcFile) withDefaults() rcFile {
	d := defaults()
	if f.SearchRoots == nil {
		f.SearchRoots = d.SearchRoots
	}
	if f.CommandPrefixes == nil {
		f.CommandPrefixes = d.CommandPrefixes
	}
	if f.ResultLimit <= 0 {
		f.ResultLimit = d.ResultLimit
	}
	if f.RebuildIntervalHours <= 0 {
		f.RebuildIntervalHours = d.RebuildIntervalHours
	}
	if f.CachePath == "" {
		f.CachePath = d.CachePath
	}
	if f.RecentPathsLimit <= 0 {
		f.RecentPathsLimit = d.RecentPathsLimit
	}
	if f.WatchRoots == nil {
		f.WatchRoots = d.WatchRoots
	}
	if f.BundleSuffix == "" {
		f.BundleSuffix = d.BundleSuffix
	}
	return f
}

// Init initializes and loads configuration
func Init() error {
	var err error
	once.Do(func() {
		var static env
		if err = envconfig.Process("", &static); err != nil {
			return
		}

		// Set default socket path if not provided
		if static.UnixSocket == "" {
			currentUser, uerr := user.Current()
			if uerr != nil {
				err = uerr
				return
			}
			static.UnixSocket = fmt.Sprintf("/tmp/ade-%s/launchd", currentUser.Uid)
		}
		if static.ConfigPath == "" {
			static.ConfigPath = launchdrc
		}

		var c *config
		if c, err = newConfig(static); err != nil {
			return
		}

		// Setup file watcher
		if err = c.setupWatcher(); err != nil {
			return
		}
		globalConfig = c
	})
	return err
}

func newConfig(static env) (*config, error) {
	home, _ := os.UserHomeDir()
	c := &config{static: static, home: home}
	c.static.UnixSocket = c.expandPath(c.static.UnixSocket)
	c.static.ConfigPath = c.expandPath(c.static.ConfigPath)
	c.dynamic.file = defaults()

	// A broken rc file leaves the defaults in place until it is fixed
	if err := c.loadRC(); err != nil {
		log.Printf("[ERROR] Failed to load config, using defaults: %v", err)
	}
	return c, nil
}

// Run starts the configuration watcher loop
func Run() error {
	if globalConfig == nil {
		if err := Init(); err != nil {
			return err
		}
	}

	go globalConfig.watchLoop()
	return nil
}

// Get returns the global config instance
func Get() *config {
	if globalConfig == nil {
		if err := Init(); err != nil {
			log.Printf("[ERROR] Failed to initialize config: %v", err)
		}
	}
	return globalConfig
}

func (c *config) loadRC() error {
	rcPath := c.static.ConfigPath

	if err := os.MkdirAll(filepath.Dir(rcPath), 0750); err != nil {
		return err
	}

	data, err := os.ReadFile(rcPath)
	if os.IsNotExist(err) {
		return c.writeTemplate(rcPath)
	}
	if err != nil {
		return err
	}

	var file rcFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse %s: %w", rcPath, err)
	}

	c.dynamic.Lock()
	c.dynamic.file = file.withDefaults()
	c.dynamic.Unlock()
	return nil
}

// writeTemplate creates an rc file listing every default, commented out.
func (c *config) writeTemplate(rcPath string) error {
	data, err := toml.Marshal(defaults())
	if err != nil {
		return err
	}

	var out bytes.Buffer
	out.WriteString("# ade-launchd configuration. Uncomment a key to override its default.\n")
	out.WriteString("# Changes apply on save, except cache_path and watch_roots which need a restart.\n")
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			out.WriteString("# " + line + "\n")
		}
	}
	return os.WriteFile(rcPath, out.Bytes(), 0600)
}

func (c *config) setupWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	c.watcher = watcher

	// Watch the directory so editors that replace the file are seen
	if err := watcher.Add(filepath.Dir(c.static.ConfigPath)); err != nil {
		watcher.Close()
		return err
	}

	return nil
}

func (c *config) watchLoop() {
	for {
		select {
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if event.Name == c.static.ConfigPath && (event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				c.reload()
			}
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[WARN] Config watcher error: %v", err)
		}
	}
}

// reload rereads the rc file and notifies subscribers. On failure the
// previous values stay in effect.
func (c *config) reload() {
	if err := c.loadRC(); err != nil {
		log.Printf("[ERROR] Error reloading config: %v", err)
		return
	}
	log.Printf("[DEBUG] Reloaded %s", c.static.ConfigPath)

	c.cbMu.Lock()
	callbacks := slices.Clone(c.callbacks)
	c.cbMu.Unlock()
	for _, fn := range callbacks {
		fn()
	}
}

// OnChange registers fn to run after every successful rc reload
func (c *config) OnChange(fn func()) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.callbacks = append(c.callbacks, fn)
}

// Close stops watching the rc file
func (c *config) Close() error {
	if c.watcher == nil {
		return nil
	}
	return c.watcher.Close()
}

// UnixSocket returns the Unix socket path
func (c *config) UnixSocket() string {
	return c.static.UnixSocket
}

// ConfigPath returns the rc file path
func (c *config) ConfigPath() string {
	return c.static.ConfigPath
}

// Home returns the user's home directory
func (c *config) Home() string {
	return c.home
}

// SearchRoots returns the application search roots as written, "~" unexpanded
func (c *config) SearchRoots() []string {
	c.dynamic.RLock()
	defer c.dynamic.RUnlock()
	return slices.Clone(c.dynamic.file.SearchRoots)
}

// CommandPrefixes returns the words that mark input as a shell command
func (c *config) CommandPrefixes() []string {
	c.dynamic.RLock()
	defer c.dynamic.RUnlock()
	return slices.Clone(c.dynamic.file.CommandPrefixes)
}

// ResultLimit returns the search result limit; the environment wins over the rc file
func (c *config) ResultLimit() int {
	if c.static.ResultLimit > 0 {
		return c.static.ResultLimit
	}
	c.dynamic.RLock()
	defer c.dynamic.RUnlock()
	return c.dynamic.file.ResultLimit
}

// RebuildInterval returns the period of the background catalog rebuild
func (c *config) RebuildInterval() time.Duration {
	c.dynamic.RLock()
	defer c.dynamic.RUnlock()
	return time.Duration(c.dynamic.file.RebuildIntervalHours) * time.Hour
}

// CachePath returns the expanded catalog cache file path
func (c *config) CachePath() string {
	c.dynamic.RLock()
	defer c.dynamic.RUnlock()
	return c.expandPath(c.dynamic.file.CachePath)
}

// RecentPathsLimit returns how many recent paths are kept
func (c *config) RecentPathsLimit() int {
	c.dynamic.RLock()
	defer c.dynamic.RUnlock()
	return c.dynamic.file.RecentPathsLimit
}

// PreserveUsage reports whether launch stats survive rebuilds
func (c *config) PreserveUsage() bool {
	c.dynamic.RLock()
	defer c.dynamic.RUnlock()
	return c.dynamic.file.PreserveUsage
}

// WatchRoots reports whether search roots are watched for changes
func (c *config) WatchRoots() bool {
	c.dynamic.RLock()
	defer c.dynamic.RUnlock()
	return *c.dynamic.file.WatchRoots
}

// BundleSuffix returns the application bundle suffix
func (c *config) BundleSuffix() string {
	c.dynamic.RLock()
	defer c.dynamic.RUnlock()
	return c.dynamic.file.BundleSuffix
}

func (c *config) expandPath(path string) string {
	if c.home == "" {
		return path
	}
	if path == "~" {
		return c.home
	}
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		return filepath.Join(c.home, rest)
	}
	return path
}
