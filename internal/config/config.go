package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Duration, YAML'da "45m" gibi insan okunur süre değerlerine izin verir.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		dur, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("süre çözümlenemedi %q: %w", s, err)
		}
		*d = Duration(dur)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return err
	}
	*d = Duration(time.Duration(n))
	return nil
}

// Std returns the value as a standard time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// SSH, uzak sunuculara bağlanırken kullanılacak ayarlardır.
type SSH struct {
	User     string `yaml:"user"`
	Port     int    `yaml:"port"`
	KeyPath  string `yaml:"key_path"`
	Password string `yaml:"password"`
}

// Hooks holds the shell command templates invoked around the test batch and
// the impact analysis. Empty string means "not configured".
type Hooks struct {
	PreTest     string `yaml:"pre_test"`
	PostTest    string `yaml:"post_test"`
	FindRoles   string `yaml:"impact_find_roles"`
	PostImpact  string `yaml:"post_impact"`
	PrintImpact string `yaml:"print_impact"`
}

// VCS holds the reference configuration for the impact analysis.
// Git and Mercurial do not share a default branch name, so the start
// reference is configured separately per kind.
type VCS struct {
	StartRefGit string `yaml:"start_ref_git"`
	StartRefHg  string `yaml:"start_ref_hg"`
	EndRef      string `yaml:"end_ref"`
}

type Config struct {
	// Operatör kimliği. Kilitlerde ve log satırlarında görünür.
	User string `yaml:"user"`

	// Local server settings.
	StateDir      string `yaml:"state_dir"`
	ServerAddr    string `yaml:"server_addr"`
	PortBase      int    `yaml:"port_base"`
	PortRange     int    `yaml:"port_range"`
	ServerCommand string `yaml:"server_command"`

	// Content push.
	UploadCommand  string `yaml:"upload_command"`
	SkipRepoChecks bool   `yaml:"skip_repo_checks"`

	// Repository / impact scoping.
	Repo          string   `yaml:"repo"`
	RepoType      string   `yaml:"repo_type"`
	NoRepo        bool     `yaml:"no_repo"`
	CookbookDirs  []string `yaml:"relative_cookbook_dirs"`
	RoleDir       string   `yaml:"relative_role_dir"`
	DatabagDir    string   `yaml:"relative_databag_dir"`
	TrackSymlinks bool     `yaml:"track_symlinks"`
	VCS           VCS      `yaml:"vcs"`

	// Remote host layout.
	RemoteConfDir     string `yaml:"remote_conf_dir"`
	RemoteLockDir     string `yaml:"remote_lock_dir"`
	ChefClientCommand string `yaml:"chef_client_command"`

	// Session lifetime before a host reverts itself to production.
	TestingTime Duration `yaml:"testing_time"`

	SSH   SSH   `yaml:"ssh"`
	Hooks Hooks `yaml:"hooks"`
}

// Default returns a config with every field the rest of the code relies on
// filled in. LoadConfig layers the YAML file on top of this.
func Default() *Config {
	home, _ := os.UserHomeDir()
	hostname, _ := os.Hostname()

	return &Config{
		User:              os.Getenv("USER"),
		StateDir:          filepath.Join(home, ".saucier"),
		ServerAddr:        hostname,
		PortBase:          4000,
		PortRange:         1000,
		ServerCommand:     "chef-zero --host 0.0.0.0 --port {{.Port}}",
		UploadCommand:     "knife upload . --chef-repo-path {{.Repo}} --server-url http://127.0.0.1:{{.Port}}",
		Repo:              ".",
		RepoType:          "git",
		CookbookDirs:      []string{"cookbooks"},
		RoleDir:           "roles",
		DatabagDir:        "databags",
		RemoteConfDir:     "/etc/chef",
		RemoteLockDir:     "/var/lock/saucier",
		ChefClientCommand: "chef-client",
		TestingTime:       Duration(45 * time.Minute),
		SSH:               SSH{Port: 22},
	}
}

// LoadConfig reads the YAML config file and applies it over the defaults.
// A missing file is not an error; the defaults stand on their own.
// A .env file in the working directory is loaded first so secrets like the
// SSH password can stay out of the YAML.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, fmt.Errorf("config dosyası okunamadı: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("yaml parse hatası: %w", err)
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv lets the environment override the identity fields.
func (c *Config) applyEnv() {
	if v := os.Getenv("SAUCIER_USER"); v != "" {
		c.User = v
	}
	if v := os.Getenv("SAUCIER_REPO"); v != "" {
		c.Repo = v
	}
	if v := os.Getenv("SAUCIER_SSH_PASSWORD"); v != "" {
		c.SSH.Password = v
	}
}
