// pldwallet is a headless wallet client of the pld daemon. The sync command
// keeps a local view of the wallet up to date, the other commands are one
// shot calls to the daemon's REST api.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	flags "github.com/jessevdk/go-flags"
	"github.com/pkt-cash/pldwallet/btcutil/er"
	"github.com/pkt-cash/pldwallet/pktconfig/version"
	"github.com/pkt-cash/pldwallet/pktlog/log"
)

func main() {
	version.SetUserAgentName("pldwallet")
	if err := main1(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err.Message())
		os.Exit(100)
	}
}

func main1() er.R {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, os.Args[1:], os.Stdout)
}

// app is shared by every command, cfg is complete by the time a command runs.
type app struct {
	ctx context.Context
	cfg config
	out io.Writer

	// readSecret reads the secret key when --promptsecret is given
	readSecret func() (string, er.R)
}

func newParser(a *app) *flags.Parser {
	parser := flags.NewParser(&a.cfg, flags.HelpFlag|flags.PassDoubleDash)
	for _, c := range commands(a) {
		if _, errr := parser.AddCommand(c.name, c.short, c.long, c.data); errr != nil {
			panic(errr)
		}
	}
	return parser
}

func run(ctx context.Context, args []string, out io.Writer) er.R {
	a := &app{
		ctx:        ctx,
		cfg:        defaultConfig(),
		out:        out,
		readSecret: promptSecret,
	}
	return a.run(args)
}

func (a *app) run(args []string) er.R {
	parser := newParser(a)
	showVersion, err := loadConfig(parser, &a.cfg, args, a.out)
	if err != nil {
		return err
	}
	if showVersion {
		fmt.Fprintln(a.out, version.UserAgentName(), "version", version.Version())
	}
	return nil
}

// setup runs at the start of every command.
func (a *app) setup() er.R {
	if err := log.SetLogLevels(a.cfg.DebugLevel); err != nil {
		return err
	}
	if err := a.cfg.validate(); err != nil {
		return err
	}
	log.Debugf("Config file [%s], daemon [%s]", a.cfg.ConfigFile, a.cfg.Daemon)
	return nil
}
