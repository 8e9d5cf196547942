package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/logger"
)

const usage = `Usage: migrate [-path dir] <command>

Commands:
  up              apply every pending migration
  down [n]        roll back n migrations (default 1)
  steps <n>       apply n migrations, or roll back when n is negative
  goto <version>  migrate up or down to version
  force <version> mark version as applied and clear the dirty flag
  version         print the current version`

// migrator is the subset of *migrate.Migrate the commands use.
type migrator interface {
	Up() error
	Steps(n int) error
	Migrate(version uint) error
	Force(version int) error
	Version() (version uint, dirty bool, err error)
}

var errUsage = errors.New("usage")

func main() {
	var dir string
	flag.StringVar(&dir, "path", "migrations", "Path to migration files")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("DATABASE_URL is not set")
	}

	m, err := migrate.New("file://"+dir, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Str("path", dir).Msg("Migration failed to initialize")
	}
	defer m.Close()

	if err := run(m, flag.Args(), log); err != nil {
		if errors.Is(err, errUsage) {
			flag.Usage()
			os.Exit(2)
		}
		log.Fatal().Err(err).Str("command", flag.Arg(0)).Msg("Migration failed")
	}
}

// run executes one command. Having nothing to do is not an error.
func run(m migrator, args []string, log zerolog.Logger) error {
	var err error
	switch args[0] {
	case "up":
		err = m.Up()
	case "down":
		n := 1
		if len(args) > 1 {
			if n, err = positive(args[1]); err != nil {
				return err
			}
		}
		err = m.Steps(-n)
	case "steps":
		var n int
		if n, err = intArg(args); err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: steps must not be 0", errUsage)
		}
		err = m.Steps(n)
	case "goto":
		var v int
		if v, err = intArg(args); err != nil {
			return err
		}
		if v < 0 {
			return fmt.Errorf("%w: negative version", errUsage)
		}
		err = m.Migrate(uint(v))
	case "force":
		var v int
		if v, err = intArg(args); err != nil {
			return err
		}
		// -1 clears the version entirely, as golang-migrate allows.
		err = m.Force(v)
	case "version":
		version, dirty, verr := m.Version()
		if errors.Is(verr, migrate.ErrNilVersion) {
			log.Info().Msg("No migration applied yet")
			return nil
		}
		if verr != nil {
			return verr
		}
		log.Info().Uint("version", version).Bool("dirty", dirty).Msg("Current schema version")
		return nil
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}

	if errors.Is(err, migrate.ErrNoChange) {
		log.Info().Str("command", args[0]).Msg("Schema already up to date")
		return nil
	}
	if err != nil {
		return err
	}

	ev := log.Info().Str("command", args[0])
	if version, dirty, verr := m.Version(); verr == nil {
		ev = ev.Uint("version", version).Bool("dirty", dirty)
	}
	ev.Msg("Migration complete")
	return nil
}

func intArg(args []string) (int, error) {
	if len(args) < 2 {
		return 0, fmt.Errorf("%w: %s requires an argument", errUsage, args[0])
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", errUsage, args[0], err)
	}
	return n, nil
}

func positive(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: down expects a positive count, got %q", errUsage, s)
	}
	return n, nil
}
