package main

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"netcrawler/internal/config"
	"netcrawler/internal/domain"
)

// EnvPrefix namespaces environment overrides, e.g. NETCRAWLER_CRAWL_MAX_DEPTH
const EnvPrefix = "NETCRAWLER"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "netcrawler",
	Short: "Discover network topology from CDP/LLDP neighbor tables",
	Long: `netcrawler logs into a seed device over SSH, reads its CDP or LLDP
neighbor table and walks outward breadth first. A boundary policy of allowed
subnets and protected hostnames decides which neighbors it may log into.

Settings come from the config file, then NETCRAWLER_* environment variables,
then flags.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file (default: $NETCRAWLER_CONFIG, ./netcrawler.yaml, ~/.config/netcrawler/config.yaml)")
	flags.String("policy", "", "boundary policy file")
	flags.String("db", "", "SQLite database path")
	flags.IntP("depth", "d", 0, "maximum crawl depth (1-10)")
	flags.Int("workers", 0, "parallel sessions per frontier")
	flags.String("protocol", "", "neighbor protocol: cdp, lldp")
	flags.StringP("username", "u", "", "SSH username")
	flags.String("password", "", "SSH password (or set NETCRAWLER_PASSWORD)")
	flags.Bool("preflight", false, "check the SSH port with nmap/TCP before dialing")
	flags.String("known-hosts", "", "known_hosts file for host key verification")
	flags.Bool("legacy-algorithms", false, "offer legacy SSH key exchange and ciphers")

	bind := map[string]string{
		"policy_path":                  "policy",
		"database.path":                "db",
		"crawl.max_depth":              "depth",
		"crawl.workers":                "workers",
		"crawl.protocol":               "protocol",
		"connection.username":          "username",
		"password":                     "password",
		"connection.preflight":         "preflight",
		"connection.known_hosts":       "known-hosts",
		"connection.legacy_algorithms": "legacy-algorithms",
	}
	for key, flag := range bind {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}
}

// initConfig wires environment lookups. The config file itself is read by
// the config package so its defaults and validation apply.
func initConfig() {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// loadConfig reads the config file and applies environment and flag
// overrides on top of it
func loadConfig() (*config.Config, error) {
	var (
		cfg  *config.Config
		path string
		err  error
	)
	if cfgFile != "" {
		cfg, path, err = config.LoadFromPath(cfgFile)
	} else {
		cfg, path, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	applyOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	if path == "" {
		path = "defaults"
	}
	log.Printf("Config: loaded from %s", path)
	return cfg, nil
}

// applyOverrides copies every key set by a flag or environment variable
// into cfg
func applyOverrides(cfg *config.Config) {
	if viper.IsSet("policy_path") {
		cfg.PolicyPath = viper.GetString("policy_path")
	}
	if viper.IsSet("database.path") {
		cfg.Database.Path = viper.GetString("database.path")
	}
	if viper.IsSet("crawl.max_depth") {
		cfg.Crawl.MaxDepth = viper.GetInt("crawl.max_depth")
	}
	if viper.IsSet("crawl.workers") {
		cfg.Crawl.Workers = viper.GetInt("crawl.workers")
	}
	if viper.IsSet("crawl.protocol") {
		cfg.Crawl.Protocol = strings.ToLower(viper.GetString("crawl.protocol"))
	}
	if viper.IsSet("crawl.default_os") {
		cfg.Crawl.DefaultOS = domain.OSFamily(viper.GetString("crawl.default_os"))
	}
	if viper.IsSet("connection.connect_timeout") {
		cfg.Connection.ConnectTimeout = config.Duration(viper.GetDuration("connection.connect_timeout"))
	}
	if viper.IsSet("connection.session_timeout") {
		cfg.Connection.SessionTimeout = config.Duration(viper.GetDuration("connection.session_timeout"))
	}
	if viper.IsSet("connection.port") {
		cfg.Connection.Port = viper.GetInt("connection.port")
	}
	if viper.IsSet("connection.username") {
		cfg.Connection.Username = viper.GetString("connection.username")
	}
	if viper.IsSet("connection.preflight") {
		cfg.Connection.Preflight = viper.GetBool("connection.preflight")
	}
	if viper.IsSet("connection.known_hosts") {
		cfg.Connection.KnownHostsFile = viper.GetString("connection.known_hosts")
	}
	if viper.IsSet("connection.legacy_algorithms") {
		cfg.Connection.LegacyAlgorithms = viper.GetBool("connection.legacy_algorithms")
	}
	if viper.IsSet("server.addr") {
		cfg.Server.Addr = viper.GetString("server.addr")
	}
	if viper.IsSet("server.watch_policy") {
		cfg.Server.WatchPolicy = viper.GetBool("server.watch_policy")
	}
}

// password comes only from a flag or NETCRAWLER_PASSWORD, never the file
func password() string {
	return viper.GetString("password")
}
