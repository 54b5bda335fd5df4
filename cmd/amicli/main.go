// Command amicli is a diagnostic CLI driving the ami client library
// end-to-end: login, issue a handful of canned actions, or stream
// unsolicited events to stdout. It is a thin external collaborator
// over the library's public surface, rather than a server embedding
// it.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/stumpf-works/asterisk-ami/ami"
	"github.com/stumpf-works/asterisk-ami/amiconfig"
)

var (
	flagConfig     string
	flagHost       string
	flagPort       int
	flagUsername   string
	flagSecret     string
	flagLogFormat  string
	flagDebugLevel int
)

func main() {
	root := &cobra.Command{
		Use:   "amicli",
		Short: "Diagnostic client for the Asterisk Manager Interface",
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "", "path to an ami.yaml config file; when given, its values (or amiconfig's defaults) replace --host, --port, --username, --secret and --debug-level")
	root.PersistentFlags().StringVar(&flagHost, "host", "127.0.0.1", "AMI host")
	root.PersistentFlags().IntVar(&flagPort, "port", ami.DefaultPort, "AMI port")
	root.PersistentFlags().StringVar(&flagUsername, "username", "admin", "AMI username")
	root.PersistentFlags().StringVar(&flagSecret, "secret", "", "AMI secret")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "json", "log format: json or pretty")
	root.PersistentFlags().IntVar(&flagDebugLevel, "debug-level", 0, "AMI debug level, 0-10")

	root.AddCommand(
		newGetvarCmd(),
		newSetvarCmd(),
		newOriginateCmd(),
		newReloadCmd(),
		newActionCmd(),
		newEventsCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	if flagLogFormat == "pretty" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// withSession connects, logs in, runs fn, then tears the session down
// in the required order: Disconnect before Destroy. When
// --config is given, amiconfig.Load supplies host/credentials/timeouts
// in place of the individual flags.
func withSession(eventCB ami.EventCallback, fn func(*ami.Session) error) error {
	logger := newLogger()

	host, port, username, secret, debugLevel := flagHost, flagPort, flagUsername, flagSecret, flagDebugLevel
	connectTimeout := 10 * time.Second
	actionTimeout := ami.DefaultActionTimeout

	if flagConfig != "" {
		cfg, err := amiconfig.Load(flagConfig)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		host, port, username, secret, debugLevel = cfg.Host, cfg.Port, cfg.Username, cfg.Secret, cfg.DebugLevel
		connectTimeout = time.Duration(cfg.ConnectTimeoutSeconds) * time.Second
		actionTimeout = time.Duration(cfg.ActionTimeoutSeconds) * time.Second
	}

	disconnectCB := func(s *ami.Session) {
		logger.Warn().Msg("AMI session disconnected unexpectedly")
	}

	opts := ami.Options{
		Logger:        &logger,
		DialTimeout:   connectTimeout,
		ActionTimeout: actionTimeout,
	}

	s, err := ami.Connect(host, port, eventCB, disconnectCB, opts)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	if _, err := s.SetDebugLevel(debugLevel); err != nil {
		return fmt.Errorf("set debug level: %w", err)
	}

	if err := s.Login(username, secret); err != nil {
		s.Destroy()
		return fmt.Errorf("login: %w", err)
	}

	defer func() {
		s.Disconnect()
		s.Destroy()
	}()

	return fn(s)
}

func newGetvarCmd() *cobra.Command {
	var channel string
	cmd := &cobra.Command{
		Use:   "getvar <variable>",
		Short: "Get an Asterisk channel or global variable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(nil, func(s *ami.Session) error {
				value, err := s.Getvar(args[0], channel)
				if err != nil {
					return err
				}
				fmt.Println(value)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&channel, "channel", "", "channel name, empty for a global variable")
	return cmd
}

func newSetvarCmd() *cobra.Command {
	var channel string
	cmd := &cobra.Command{
		Use:   "setvar <variable> <value>",
		Short: "Set an Asterisk channel or global variable",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(nil, func(s *ami.Session) error {
				return s.Setvar(args[0], args[1], channel)
			})
		},
	}
	cmd.Flags().StringVar(&channel, "channel", "", "channel name, empty for a global variable")
	return cmd
}

func newOriginateCmd() *cobra.Command {
	var callerID string
	cmd := &cobra.Command{
		Use:   "originate <channel> <context> <exten> <priority>",
		Short: "Originate a call",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(nil, func(s *ami.Session) error {
				return s.OriginateExten(args[0], args[1], args[2], args[3], callerID)
			})
		},
	}
	cmd.Flags().StringVar(&callerID, "caller-id", "", "caller ID to present")
	return cmd
}

func newReloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload [module]",
		Short: "Reload an Asterisk module, or the whole configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			module := ""
			if len(args) == 1 {
				module = args[0]
			}
			return withSession(nil, func(s *ami.Session) error {
				return s.Reload(module)
			})
		},
	}
}

func newActionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "action <name> [key=value ...]",
		Short: "Issue an arbitrary AMI action",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseKeyValueArgs(args[1:])
			if err != nil {
				return err
			}
			return withSession(nil, func(s *ami.Session) error {
				resp, err := s.Action(args[0], params...)
				if err != nil {
					return err
				}
				if resp == nil {
					fmt.Println("(discarded: action failed and discard-on-failure is set)")
					return nil
				}
				for _, msg := range resp.Messages {
					fmt.Print(msg.String())
					fmt.Println()
				}
				return nil
			})
		},
	}
	return cmd
}

func newEventsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "Stream unsolicited events to stdout until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			eventCB := func(s *ami.Session, event *ami.Message) {
				fmt.Print(event.String())
				fmt.Println()
			}
			return withSession(eventCB, func(s *ami.Session) error {
				sig := make(chan os.Signal, 1)
				signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
				<-sig
				return nil
			})
		},
	}
}

func parseKeyValueArgs(args []string) ([]ami.Param, error) {
	params := make([]ami.Param, 0, len(args))
	for _, arg := range args {
		idx := strings.IndexByte(arg, '=')
		if idx == -1 {
			return nil, fmt.Errorf("invalid parameter %q, expected key=value", arg)
		}
		params = append(params, ami.Param{Key: arg[:idx], Value: arg[idx+1:]})
	}
	return params, nil
}
