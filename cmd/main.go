package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"voice-session-client/internal/app"
	"voice-session-client/internal/config"
	apphttp "voice-session-client/internal/http"
	"voice-session-client/internal/models"
	"voice-session-client/internal/observability"
	"voice-session-client/internal/render"
	"voice-session-client/internal/service/conversation"
	"voice-session-client/internal/service/rtvi"
	"voice-session-client/internal/service/rtvi/mock"
)

type flags struct {
	configFile string
	baseURL    string
	transport  string
	ui         string
	export     string
	noMic      bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	root := &cobra.Command{
		Use:           "voice-session-client",
		Short:         "Talk to an RTVI voice agent from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&f.configFile, "config", "", "YAML config file (overrides CONFIG_FILE)")
	root.PersistentFlags().StringVar(&f.baseURL, "base-url", "", "agent base URL")
	root.PersistentFlags().StringVar(&f.ui, "ui", "", "ui mode: auto, tui or plain")
	root.PersistentFlags().StringVar(&f.export, "export", "", "transcript export backend: none, kafka, nats or redis")

	connect := &cobra.Command{
		Use:   "connect",
		Short: "Connect to the agent and show the conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			transport, err := app.NewTransport(cfg.Client)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, transport)
		},
	}
	connect.Flags().StringVar(&f.transport, "transport", "", "transport: websocket, webrtc or mock")
	connect.Flags().BoolVar(&f.noMic, "no-mic", false, "join without a microphone track")

	var pace time.Duration
	replay := &cobra.Command{
		Use:   "replay <file.jsonl>",
		Short: "Replay a recorded RTVI message stream through the client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			file, err := os.Open(args[0])
			if err != nil {
				return errors.Wrap(err, "opening recording")
			}
			steps, err := mock.LoadScript(file)
			file.Close()
			if err != nil {
				return err
			}
			if pace > 0 {
				for i := range steps {
					steps[i].Delay = pace
				}
			}

			cfg.Client.Transport = "mock"
			transport := mock.New(steps)
			transport.DisconnectWhenDone = true
			return run(cmd.Context(), cfg, transport)
		},
	}
	replay.Flags().DurationVar(&pace, "pace", 0, "fixed delay between messages, overriding recorded delays")

	var lookback time.Duration
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Print transcript records exported by running sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			if _, err := app.New(cfg, os.Stderr); err != nil {
				return err
			}
			sub, err := app.NewSubscriber(cfg.Export, lookback)
			if err != nil {
				return err
			}
			defer sub.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return sub.Subscribe(ctx, func(rec models.TranscriptRecord) {
				fmt.Println(render.FormatRecord(rec))
			})
		},
	}
	tail.Flags().DurationVar(&lookback, "lookback", time.Hour, "how far back to start reading kafka topics")

	root.AddCommand(connect, replay, tail)
	return root
}

func loadConfig(cmd *cobra.Command, f *flags) (*config.Configuration, error) {
	if f.configFile != "" {
		os.Setenv("CONFIG_FILE", f.configFile)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if f.baseURL != "" {
		cfg.Client.BaseURL = f.baseURL
	}
	if f.transport != "" {
		cfg.Client.Transport = f.transport
	}
	if f.ui != "" {
		cfg.UI.Mode = f.ui
	}
	if f.export != "" {
		cfg.Export.Backend = f.export
	}
	if cmd.Flags().Changed("no-mic") {
		cfg.Client.EnableMic = !f.noMic
	}
	return cfg, cfg.Validate()
}

func useTUI(mode string) bool {
	switch mode {
	case "tui":
		return true
	case "plain":
		return false
	}
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func run(ctx context.Context, cfg *config.Configuration, transport rtvi.Transport) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tuiMode := useTUI(cfg.UI.Mode)
	var logOutput io.Writer
	if tuiMode && cfg.Observability.LogFile == "" {
		// the terminal belongs to the UI
		logOutput = io.Discard
	}
	a, err := app.New(cfg, logOutput)
	if err != nil {
		return err
	}
	if err := a.Start(); err != nil {
		return err
	}
	defer a.Shutdown()

	var (
		sink  conversation.Sink
		tui   *render.TUI
		plain *render.Plain
	)
	if tuiMode {
		tui = render.NewTUI(render.NewDocument(), tea.WithAltScreen(), tea.WithContext(ctx))
		sink = tui
	} else {
		plain = render.NewPlain(os.Stdout)
		defer plain.Flush()
		sink = plain
	}

	s, err := a.NewSession(transport, sink)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Observability.MetricsAddr != "" {
		hub := apphttp.NewHub(a.Document)
		go hub.Run()
		defer hub.Close()
		srv := observability.NewServer(cfg.Observability.MetricsAddr, apphttp.NewRouter(a, hub))
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}
	if tui != nil {
		g.Go(func() error {
			defer cancel()
			return tui.Run(gctx)
		})
	}
	g.Go(func() error {
		if tui == nil {
			defer cancel()
		}
		if err := s.Start(gctx); err != nil {
			return err
		}
		if err := s.Wait(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return s.Close()
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}
