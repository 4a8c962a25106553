// Command strata inspects and edits a strata database from the shell.
//
//	strata -db /var/lib/app/db put user:1 alice
//	strata -db /var/lib/app/db scan -prefix user: -limit 10
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/eigerco/strata/pkg/db"
	"github.com/eigerco/strata/pkg/db/engine"
	"github.com/eigerco/strata/pkg/db/pebble"
	"github.com/eigerco/strata/pkg/db/rocksdb"
	"github.com/eigerco/strata/pkg/log"
)

const usage = `usage: strata [flags] <command> [args]

commands:
  get <key>
  put <key> <value>
  delete <key>
  scan [-prefix p] [-reverse] [-limit n]
  compact [start] [end]
  flush
  property <name>
  approxsize <start> <end>
  txn-put <key> <value>

flags:
`

// Config is the layout of the -config file.
type Config struct {
	LogLevel  string            `yaml:"log_level"`
	LogFormat string            `yaml:"log_format"`
	Database  db.DatabaseConfig `yaml:"database"`
}

func defaultConfig() Config {
	return Config{
		LogLevel:  "warn",
		LogFormat: "console",
		Database:  db.DefaultDatabaseConfig(),
	}
}

// loadConfig reads a YAML config over the defaults. A missing file is not an
// error.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "strata:", err)
		}
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("strata", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "strata.yaml", "YAML configuration file")
	dbPath := fs.String("db", "", "database directory")
	engineName := fs.String("engine", "pebble", "storage engine: pebble or rocksdb")
	hexMode := fs.Bool("hex", false, "keys and values are hex encoded")
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("missing command")
	}
	if *dbPath == "" {
		return errors.New("-db is required")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if err := initLogging(cfg, stderr); err != nil {
		return err
	}

	e, err := newEngine(*engineName)
	if err != nil {
		return err
	}

	name, cmdArgs := fs.Arg(0), fs.Args()[1:]
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q", name)
	}

	c := &cli{
		path:   *dbPath,
		cfg:    cfg.Database,
		engine: e,
		codec:  codec{hex: *hexMode},
		out:    stdout,
	}
	log.Tool.Debug().Str("command", name).Str("engine", e.Name()).Str("path", c.path).Msg("running")
	return cmd(c, cmdArgs)
}

func initLogging(cfg Config, out io.Writer) error {
	level, err := log.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	typ := log.ConsoleLogger
	switch cfg.LogFormat {
	case "", "console":
	case "json":
		typ = log.JSONLogger
	default:
		return fmt.Errorf("unknown log format %q", cfg.LogFormat)
	}
	log.Init(log.Options{LogLevel: level, Type: typ, Output: out})
	return nil
}

func newEngine(name string) (engine.Engine, error) {
	switch name {
	case "pebble":
		return pebble.New().WithLogger(log.Engine), nil
	case "rocksdb":
		e, err := rocksdb.New()
		if err != nil {
			return nil, err
		}
		return e.WithLogger(log.Engine), nil
	}
	return nil, fmt.Errorf("unknown engine %q", name)
}
