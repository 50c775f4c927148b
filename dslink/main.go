package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/alloy-robotics/dslink/internal/config"
	"github.com/alloy-robotics/dslink/internal/session"
	"github.com/alloy-robotics/dslink/internal/sidechannel"
	"github.com/alloy-robotics/dslink/internal/state"
	"github.com/alloy-robotics/dslink/internal/transport"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "dslink",
		Short:         "FRC driver-station protocol console",
		Long:          "dslink speaks the FRC Driver-Station control protocol: it drives the\n20 ms control cycle, watches the robot's telemetry, and fails safe when\nthe link drops.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		runCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	var (
		configPath string
		team       int
		station    string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the robot and monitor its state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath, team)
			if err != nil {
				return err
			}
			if station != "" {
				if _, err := config.ParseStation(station); err != nil {
					return err
				}
				cfg.AllianceStation = station
			}
			return run(cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "dslink.yaml", "Path to the configuration file")
	cmd.Flags().IntVarP(&team, "team", "t", 0, "Team number (used when no config file exists)")
	cmd.Flags().StringVarP(&station, "station", "s", "", "Alliance station (red1..blue3)")

	return cmd
}

// loadConfig reads the config file, or builds a default config from the
// team flag when the file does not exist.
func loadConfig(path string, team int) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) && team > 0 {
		return config.Default(team), nil
	}
	return config.Load(path)
}

func run(cfg *config.Config) error {
	host := cfg.RobotAddr()
	pterm.Info.Printfln("Robot target: %s (control :%d, status :%d, side-channel :%d)",
		host, cfg.ControlPort, cfg.StatusPort, cfg.SideChannelPort)

	udp, err := transport.Dial(host, cfg.ControlPort, cfg.StatusPort)
	if err != nil {
		return fmt.Errorf("failed to open control link: %w", err)
	}
	side := sidechannel.New(fmt.Sprintf("%s:%d", host, cfg.SideChannelPort), cfg.SideChannelMaxBackoff())

	sess := session.New(cfg, udp, side)
	sess.OnConsole(func(msg string) {
		pterm.FgGray.Println("[robot] " + msg)
	})

	id, updates := sess.Observe(32)
	defer sess.Unobserve(id)

	if cfg.MetricsListenAddress != "" {
		go func() {
			pterm.Info.Printfln("Metrics listening on %s", cfg.MetricsListenAddress)
			if err := http.ListenAndServe(cfg.MetricsListenAddress, promhttp.Handler()); err != nil {
				pterm.Warning.Printfln("Metrics endpoint failed: %v", err)
			}
		}()
	}

	sess.Start()
	pterm.Info.Println("Control cycle running. Press CTRL+C to exit.")

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case u := <-updates:
			render(u)
		case <-shutdownChan:
			pterm.Info.Println("Shutting down.")
			return sess.Close()
		}
	}
}

// render prints one observation-stream update.
func render(u session.Update) {
	link := pterm.FgRed.Sprint(u.Link)
	switch u.Link {
	case state.Connecting:
		link = pterm.FgYellow.Sprint(u.Link)
	case state.Connected:
		link = pterm.FgGreen.Sprint(u.Link)
	}

	mode := u.Mode.Mode.String()
	switch {
	case u.Mode.EStopped:
		mode = pterm.FgRed.Sprint("E-STOPPED")
	case u.Mode.Enabled:
		mode = pterm.FgGreen.Sprint(mode + " enabled")
	default:
		mode += " disabled"
	}

	line := fmt.Sprintf("link=%s mode=%s battery=%.2fV code=%v", link, mode, u.Battery.Float(), u.Trace.RobotCode())
	if u.StationSet {
		line += " station=" + u.Station.String()
	}
	if !u.SideChannelUp {
		line += pterm.FgYellow.Sprint(" [side-channel down]")
	}
	pterm.Println(line)
}

func versionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			if short {
				fmt.Println(version)
				return
			}
			fmt.Printf("dslink %s\n", version)
			fmt.Printf("  Commit:     %s\n", commit)
			fmt.Printf("  Built:      %s\n", date)
			fmt.Printf("  Go version: %s\n", runtime.Version())
			fmt.Printf("  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "Print only version number")

	return cmd
}
