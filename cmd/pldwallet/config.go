package main

import (
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	flags "github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"github.com/pkt-cash/pldwallet/btcutil/er"
	"github.com/pkt-cash/pldwallet/btcutil/util"
	"github.com/pkt-cash/pldwallet/pldclient"
	"github.com/pkt-cash/pldwallet/wallet/walletsync"
)

const (
	defaultConfigFilename   = "pldwallet.conf"
	defaultSnapshotFilename = "snapshot.db"
	defaultLogLevel         = "info"
	defaultDaemon           = "localhost:8080"
	defaultRequestTimeout   = 10 * time.Second
	defaultEnvFile          = ".env"
)

var (
	defaultAppDataDir = appDataDir()
	defaultConfigFile = filepath.Join(defaultAppDataDir, defaultConfigFilename)
)

func appDataDir() string {
	if dir, errr := os.UserConfigDir(); errr == nil {
		return filepath.Join(dir, "pldwallet")
	}
	return ".pldwallet"
}

type config struct {
	ConfigFile  string `short:"C" long:"configfile" description:"Path to configuration file"`
	ShowVersion bool   `short:"V" long:"version" description:"Display version information and exit"`
	DebugLevel  string `short:"d" long:"debuglevel" env:"PLD_DEBUGLEVEL" description:"Logging level {trace, debug, info, warn, error, critical}, per subsystem with e.g. info,walletsync=debug"`

	Daemon       string `long:"daemon" env:"PLD_DAEMON" description:"host:port of the pld REST api"`
	Realtime     string `long:"realtime" env:"PLD_REALTIME" description:"host:port of the pld realtime socket, empty to only poll"`
	SecretKey    string `long:"secretkey" env:"PLD_SECRETKEY" default-mask:"-" description:"Secret key for the realtime socket"`
	PromptSecret bool   `long:"promptsecret" description:"Read the secret key from the terminal"`

	PollInterval        time.Duration `long:"pollinterval" env:"PLD_POLLINTERVAL" description:"Time between polls of balances and history"`
	ConnectionsInterval time.Duration `long:"connectionsinterval" env:"PLD_CONNECTIONSINTERVAL" description:"Time between polls of the connections list, 0 to disable"`
	MaxInFlightPolls    int           `long:"maxinflightpolls" description:"Skip polls while this many are outstanding, 0 for no limit"`
	ReconnectBackoff    bool          `long:"reconnectbackoff" description:"Wait between realtime reconnection attempts instead of retrying at once"`
	MinBackoff          time.Duration `long:"minbackoff" description:"First wait between reconnection attempts"`
	MaxBackoff          time.Duration `long:"maxbackoff" description:"Longest wait between reconnection attempts"`

	RequestTimeout time.Duration `long:"requesttimeout" description:"Timeout of each REST request attempt"`
	MaxRetries     int           `long:"maxretries" description:"Attempts made for each REST request"`
	MaxRequestRate float64       `long:"maxrequestrate" description:"REST requests per second, 0 for no limit"`

	SnapshotFile string `long:"snapshotfile" env:"PLD_SNAPSHOTFILE" description:"File where the last known wallet state is kept, empty to disable"`

	StatsViz string `long:"statsviz" description:"Enable StatsViz runtime visualization on given port -- NOTE port must be between 1024 and 65535"`
	Profile  string `long:"profile" description:"Enable HTTP profiling on given port -- NOTE port must be between 1024 and 65535"`
}

func defaultConfig() config {
	return config{
		ConfigFile:          defaultConfigFile,
		DebugLevel:          defaultLogLevel,
		Daemon:              defaultDaemon,
		PollInterval:        walletsync.DefaultPollInterval,
		ConnectionsInterval: walletsync.DefaultConnectionsInterval,
		MinBackoff:          walletsync.DefaultMinBackoff,
		MaxBackoff:          walletsync.DefaultMaxBackoff,
		RequestTimeout:      defaultRequestTimeout,
		MaxRetries:          1,
		SnapshotFile:        filepath.Join(defaultAppDataDir, defaultSnapshotFilename),
	}
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	path = os.ExpandEnv(path)

	if !strings.HasPrefix(path, "~") {
		return filepath.Clean(path)
	}

	// Expand initial ~ to the current user's home directory, or ~otheruser
	// to otheruser's home directory.
	path = path[1:]

	pathSeparators := string(os.PathSeparator)
	if runtime.GOOS == "windows" {
		pathSeparators += "/"
	}

	userName := ""
	if i := strings.IndexAny(path, pathSeparators); i != -1 {
		userName = path[:i]
		path = path[i:]
	}

	homeDir := ""
	var u *user.User
	var errr error
	if userName == "" {
		u, errr = user.Current()
	} else {
		u, errr = user.Lookup(userName)
	}
	if errr == nil {
		homeDir = u.HomeDir
	}
	// Fallback to CWD if user lookup fails or user has no home directory.
	if homeDir == "" {
		homeDir = "."
	}

	return filepath.Join(homeDir, path)
}

// checkPort validates the --statsviz and --profile values.
func checkPort(name, port string) er.R {
	if port == "" {
		return nil
	}
	p, errr := strconv.Atoi(port)
	if errr != nil || p < 1024 || p > 65535 {
		return er.Errorf("%s port [%s] must be a number between 1024 and 65535", name, port)
	}
	return nil
}

// preConfig is what must be known before the config file is read.
type preConfig struct {
	ConfigFile  string `short:"C" long:"configfile"`
	ShowVersion bool   `short:"V" long:"version"`
}

// loadConfig fills cfg in order of increasing precedence:
//  1. defaults
//  2. environment, including variables from a .env file
//  3. the config file
//  4. the command line
//
// It is the command line pass which runs the chosen command. The returned
// bool is true if --version was given, in which case nothing else is done.
// If help was requested it is written to out.
func loadConfig(parser *flags.Parser, cfg *config, args []string, out io.Writer) (bool, er.R) {
	if util.Exists(defaultEnvFile) {
		if err := er.E(godotenv.Load(defaultEnvFile)); err != nil {
			return false, err
		}
	}

	pre := preConfig{ConfigFile: cfg.ConfigFile}
	preParser := flags.NewParser(&pre, flags.IgnoreUnknown)
	if _, errr := preParser.ParseArgs(args); errr != nil {
		return false, er.E(errr)
	}
	if pre.ShowVersion {
		return true, nil
	}

	configFile := cleanAndExpandPath(pre.ConfigFile)
	if errr := flags.NewIniParser(parser).ParseFile(configFile); errr != nil {
		_, missing := errr.(*os.PathError)
		if !missing || pre.ConfigFile != defaultConfigFile {
			return false, er.Errorf("config file [%s]: %v", configFile, errr)
		}
	}
	cfg.ConfigFile = configFile

	if _, errr := parser.ParseArgs(args); errr != nil {
		if e, ok := errr.(*flags.Error); ok && e.Type == flags.ErrHelp {
			fmt.Fprintln(out, e.Message)
			return false, nil
		}
		return false, er.E(errr)
	}
	return false, nil
}

// validate is called by every command once the config is complete.
func (c *config) validate() er.R {
	if c.Daemon == "" {
		return er.New("--daemon is required")
	}
	if c.MaxRetries < 1 {
		return er.Errorf("--maxretries must be at least 1, got [%d]", c.MaxRetries)
	}
	if c.MaxInFlightPolls < 0 {
		return er.Errorf("--maxinflightpolls may not be negative")
	}
	if c.PollInterval <= 0 {
		return er.Errorf("--pollinterval must be positive")
	}
	if err := checkPort("statsviz", c.StatsViz); err != nil {
		return err
	}
	if err := checkPort("profile", c.Profile); err != nil {
		return err
	}
	if c.SnapshotFile != "" {
		c.SnapshotFile = cleanAndExpandPath(c.SnapshotFile)
	}
	return nil
}

func (c *config) clientConfig() pldclient.Config {
	return pldclient.Config{
		DaemonURL:      c.Daemon,
		RequestTimeout: c.RequestTimeout,
		MaxRetries:     c.MaxRetries,
		MaxRequestRate: c.MaxRequestRate,
	}
}

func (c *config) syncConfig() walletsync.Config {
	return walletsync.Config{
		PollInterval:        c.PollInterval,
		ConnectionsInterval: c.ConnectionsInterval,
		MaxInFlightPolls:    c.MaxInFlightPolls,
		ReconnectBackoff:    c.ReconnectBackoff,
		MinBackoff:          c.MinBackoff,
		MaxBackoff:          c.MaxBackoff,
	}
}
