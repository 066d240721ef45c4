// Command linspect is the CLI entrypoint: an offline LIN/CAN vehicle-bus
// trace analyzer built around internal/engine. It wires cobra (command
// tree), viper (layered config resolution) and logrus (structured
// logging), following keskad-loco's own construction shape, replacing the
// teacher's single-verb `flag`-based cmd/analyze with a multi-verb tree.
package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/anodyne74/linspect/internal/busmodel"
	"github.com/anodyne74/linspect/internal/config"
	"github.com/anodyne74/linspect/internal/dbc"
	"github.com/anodyne74/linspect/internal/engine"
	"github.com/anodyne74/linspect/internal/gatewaymap"
	"github.com/anodyne74/linspect/internal/lindef"
	"github.com/anodyne74/linspect/internal/logtoken"
	"github.com/anodyne74/linspect/internal/progress"
	"github.com/anodyne74/linspect/internal/report"
	"github.com/anodyne74/linspect/internal/resultstore"
	"github.com/anodyne74/linspect/internal/schedule"
)

var log = logrus.New()

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatal(err)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var configFile, logFormat string

	root := &cobra.Command{
		Use:   "linspect",
		Short: "Offline LIN/CAN vehicle-bus trace analyzer",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			configureLogging(logFormat)
		},
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "optional YAML config file (flags override it)")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log output format: text|json")

	root.AddCommand(newAnalyzeCmd(v, &configFile))
	root.AddCommand(newValidateLDFCmd())
	root.AddCommand(newValidateDBCCmd())
	root.AddCommand(newConfigInitCmd())
	return root
}

func newConfigInitCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "config-init",
		Short: "Write a starter YAML config file seeded with the engine defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			var w io.Writer = os.Stdout
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("config-init: %w", err)
				}
				defer f.Close()
				w = f
			}
			return config.WriteDefault(w)
		},
	}
	cmd.Flags().StringVar(&output, "output", "", "file to write (default: stdout)")
	return cmd
}

func configureLogging(format string) {
	if strings.EqualFold(format, "json") {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

// newAnalyzeCmd wires the main verb: parse LDF/DBC/gateway map, tokenize
// the log, run the engine, render the result.
func newAnalyzeCmd(v *viper.Viper, configFile *string) *cobra.Command {
	var (
		ldfFile        string
		logFile        string
		gatewayFile    string
		dbcFlags       []string
		cacheDir       string
		progressAddr   string
		outputFormat   string
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze a LIN/CAN trace log against an LDF (and optional DBC/gateway map)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, *configFile)
			if err != nil {
				return err
			}
			if ldfFile != "" {
				cfg.LDFFile = ldfFile
			}
			if logFile != "" {
				cfg.LogFile = logFile
			}
			if gatewayFile != "" {
				cfg.GatewayMapFile = gatewayFile
			}
			if cacheDir != "" {
				cfg.CacheDir = cacheDir
			}
			if progressAddr != "" {
				cfg.ProgressAddr = progressAddr
			}
			dbcFiles, err := parseDBCFlags(dbcFlags)
			if err != nil {
				return err
			}
			if cfg.DBCFiles == nil {
				cfg.DBCFiles = map[string][]string{}
			}
			for ch, paths := range dbcFiles {
				cfg.DBCFiles[ch] = append(cfg.DBCFiles[ch], paths...)
			}

			return runAnalyze(cfg, outputFormat)
		},
	}

	cmd.Flags().StringVar(&ldfFile, "ldf", "", "LIN Description File (required)")
	cmd.Flags().StringVar(&logFile, "log", "", "trace log file (required)")
	cmd.Flags().StringVar(&gatewayFile, "gateway-map", "", "optional gateway map JSON file")
	cmd.Flags().StringArrayVar(&dbcFlags, "dbc", nil, "channel=path.dbc, repeatable (e.g. CAN1=powertrain.dbc)")
	cmd.Flags().StringVar(&cacheDir, "cache-dir", "", "optional directory for a sqlite BusModel parse cache")
	cmd.Flags().StringVar(&progressAddr, "progress-addr", "", "optional address to serve live progress on (e.g. :8090)")
	cmd.Flags().StringVar(&outputFormat, "output", "text", "report output format: text|json")

	bindEngineFlags(cmd, v)
	return cmd
}

// bindEngineFlags exposes a subset of the EngineConfig tunables (baud rate,
// bus-load window, gateway tolerance, the four feature toggles and the
// gateway signal exclusions) as CLI overrides, on
// top of their config-file/default values (flag > file > default, per
// internal/config's Viper precedence). Flags keep hyphenated names (cobra
// convention); each is bound to v under its EngineConfig mapstructure key
// explicitly, since Viper does not normalize hyphens to underscores on its
// own and a bulk v.BindPFlags(cmd.Flags()) would silently bind them under
// their literal hyphenated names instead.
func bindEngineFlags(cmd *cobra.Command, v *viper.Viper) {
	def := config.DefaultEngineConfig()
	cmd.Flags().Int("lin-baudrate", def.LinBaudrate, "expected LIN baud rate")
	cmd.Flags().Float64("bus-load-window-s", def.BusLoadWindowS, "bus-load bucket width in seconds")
	cmd.Flags().Float64("gateway-tolerance-s", def.GatewayToleranceS, "gateway correlation tolerance in seconds")
	cmd.Flags().Bool("enable-checksum-validation", def.EnableChecksumValidation, "")
	cmd.Flags().Bool("enable-physical-validation", def.EnablePhysicalValidation, "")
	cmd.Flags().Bool("enable-schedule-validation", def.EnableScheduleValidation, "")
	cmd.Flags().Bool("enable-gateway-validation", def.EnableGatewayValidation, "")
	cmd.Flags().StringSlice("exclude-gateway-signals", nil, "gateway source signal names to skip entirely")

	keysByFlag := map[string]string{
		"lin-baudrate":               "lin_baudrate",
		"bus-load-window-s":          "bus_load_window_s",
		"gateway-tolerance-s":        "gateway_tolerance_s",
		"enable-checksum-validation": "enable_checksum_validation",
		"enable-physical-validation": "enable_physical_validation",
		"enable-schedule-validation": "enable_schedule_validation",
		"enable-gateway-validation":  "enable_gateway_validation",
		"exclude-gateway-signals":    "exclude_gateway_signals",
	}
	for flagName, key := range keysByFlag {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flagName)); err != nil {
			panic(fmt.Sprintf("cmd/linspect: binding --%s: %v", flagName, err))
		}
	}
}

func parseDBCFlags(flags []string) (map[string][]string, error) {
	out := map[string][]string{}
	for _, f := range flags {
		parts := strings.SplitN(f, "=", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("analyze: malformed --dbc flag %q, expected channel=path", f)
		}
		channel := strings.ToUpper(parts[0])
		if !busmodel.ValidChannels[busmodel.Channel(channel)] {
			return nil, fmt.Errorf("analyze: unknown channel %q in --dbc flag %q", channel, f)
		}
		out[channel] = append(out[channel], parts[1])
	}
	return out, nil
}

func runAnalyze(cfg *config.CLIConfig, outputFormat string) error {
	if cfg.LDFFile == "" || cfg.LogFile == "" {
		return fmt.Errorf("analyze: --ldf and --log are both required")
	}
	entry := log.WithField("component", "analyze")

	model, err := loadBusModel(cfg, entry)
	if err != nil {
		return err
	}

	var gwLookup gatewaymap.Lookup
	var gwWarnings []string
	if cfg.GatewayMapFile != "" {
		gwLookup, gwWarnings, err = loadGatewayMap(cfg.GatewayMapFile, model, entry)
		if err != nil {
			return err
		}
	}

	logHandle, err := os.Open(cfg.LogFile)
	if err != nil {
		return fmt.Errorf("analyze: opening log %s: %w", cfg.LogFile, err)
	}
	defer logHandle.Close()

	var reporter *progress.Reporter
	var tokenizerSrc io.Reader = logHandle
	if cfg.ProgressAddr != "" {
		reporter = progress.NewReporter(cfg.LogFile)
		progressSrv := progress.NewServer(cfg.ProgressAddr, reporter)
		errCh := progressSrv.Serve()
		go func() {
			if err := <-errCh; err != nil {
				entry.WithError(err).Warn("progress server stopped")
			}
		}()
		defer shutdownProgress(progressSrv, entry)
		tokenizerSrc = progress.NewCountingReader(logHandle, reporter)
	}

	tok := logtoken.New(tokenizerSrc)
	state := engine.New(cfg.Engine, model, gwLookup, entry)
	result, err := state.Run(tok)
	if err != nil {
		return fmt.Errorf("analyze: running engine: %w", err)
	}
	result.GatewayMapWarnings = gwWarnings
	if reporter != nil {
		reporter.Finish()
	}

	if strings.EqualFold(outputFormat, "json") {
		return report.WriteJSON(os.Stdout, result)
	}
	return report.WriteText(os.Stdout, filepath.Base(cfg.LogFile), result)
}

func shutdownProgress(s *progress.Server, entry *logrus.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		entry.WithError(err).Warn("progress server shutdown")
	}
}

// loadBusModel parses the LDF (and any DBC files), merges schedules, and
// consults the optional resultstore cache keyed by file content hash.
func loadBusModel(cfg *config.CLIConfig, entry *logrus.Entry) (*busmodel.BusModel, error) {
	ldfBytes, err := os.ReadFile(cfg.LDFFile)
	if err != nil {
		return nil, fmt.Errorf("analyze: reading LDF %s: %w", cfg.LDFFile, err)
	}

	dbcContents := map[string][][]byte{}
	var hashInputs [][]byte
	hashInputs = append(hashInputs, ldfBytes)
	for channel, paths := range cfg.DBCFiles {
		for _, p := range paths {
			b, err := os.ReadFile(p)
			if err != nil {
				return nil, fmt.Errorf("analyze: reading DBC %s: %w", p, err)
			}
			dbcContents[channel] = append(dbcContents[channel], b)
			hashInputs = append(hashInputs, b)
		}
	}

	var store *resultstore.Store
	sourceHash := resultstore.HashSources(hashInputs...)
	if cfg.CacheDir != "" {
		if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
			return nil, fmt.Errorf("analyze: creating cache dir %s: %w", cfg.CacheDir, err)
		}
		store, err = resultstore.Open(filepath.Join(cfg.CacheDir, "linspect-cache.db"))
		if err != nil {
			return nil, err
		}
		defer store.Close()

		if cached, ok, err := store.Get(sourceHash); err == nil && ok {
			entry.WithField("hash", sourceHash).Info("bus model loaded from cache")
			return cached, nil
		}
	}

	linModel, err := lindef.Parse(string(ldfBytes), lindef.ParseOptions{Log: entry})
	if err != nil {
		return nil, fmt.Errorf("analyze: parsing LDF: %w", err)
	}
	grouped := schedule.Group(linModel.Schedules)
	linModel.Schedules = grouped.Unique
	linModel.OriginalToRepresentative = grouped.OriginalToRepresentative
	linModel.RepresentativeToGrouped = grouped.RepresentativeToGrouped

	canModels := map[busmodel.Channel]*busmodel.BusModelCAN{}
	for channel, blobs := range dbcContents {
		texts := make([]string, len(blobs))
		for i, b := range blobs {
			texts[i] = string(b)
		}
		canModel, err := dbc.ParseChannel(busmodel.Channel(channel), texts, dbc.ParseOptions{Log: entry})
		if err != nil {
			return nil, fmt.Errorf("analyze: parsing DBC for %s: %w", channel, err)
		}
		canModels[busmodel.Channel(channel)] = canModel
	}

	model := &busmodel.BusModel{LIN: linModel, CAN: canModels}
	if store != nil {
		if err := store.Put(sourceHash, model); err != nil {
			entry.WithError(err).Warn("failed to write bus model to cache")
		}
	}
	return model, nil
}

func loadGatewayMap(path string, model *busmodel.BusModel, entry *logrus.Entry) (gatewaymap.Lookup, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return gatewaymap.Lookup{}, nil, fmt.Errorf("analyze: reading gateway map %s: %w", path, err)
	}
	raws, loadWarnings, err := gatewaymap.Load(data, entry)
	if err != nil {
		return gatewaymap.Lookup{}, nil, fmt.Errorf("analyze: loading gateway map: %w", err)
	}
	_, resolveWarnings, lookup := gatewaymap.Resolve(raws, model, entry)

	var warnings []string
	for _, w := range loadWarnings {
		warnings = append(warnings, fmt.Sprintf("map[%d]: %s: %s", w.MapIndex, w.Reason, w.Detail))
	}
	for _, w := range resolveWarnings {
		warnings = append(warnings, fmt.Sprintf("map[%d]: %s: %s", w.MapIndex, w.Reason, w.Detail))
	}
	return lookup, warnings, nil
}

func newValidateLDFCmd() *cobra.Command {
	var ldfFile string
	cmd := &cobra.Command{
		Use:   "validate-ldf",
		Short: "Parse an LDF file and report fatal errors / structural warnings",
		RunE: func(cmd *cobra.Command, args []string) error {
			if ldfFile == "" {
				return fmt.Errorf("validate-ldf: --ldf is required")
			}
			data, err := os.ReadFile(ldfFile)
			if err != nil {
				return fmt.Errorf("validate-ldf: reading %s: %w", ldfFile, err)
			}
			var warnBuf bytes.Buffer
			warnLogger := logrus.New()
			warnLogger.SetOutput(&warnBuf)

			model, err := lindef.Parse(string(data), lindef.ParseOptions{Log: warnLogger.WithField("component", "validate-ldf")})
			if err != nil {
				fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
				return err
			}
			fmt.Printf("OK: %d frames, %d schedules, master=%s\n", len(model.Frames), len(model.Schedules), model.MasterName)
			if warnBuf.Len() > 0 {
				fmt.Print(warnBuf.String())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&ldfFile, "ldf", "", "LIN Description File to validate")
	return cmd
}

func newValidateDBCCmd() *cobra.Command {
	var dbcFlags []string
	cmd := &cobra.Command{
		Use:   "validate-dbc",
		Short: "Parse DBC file(s) for one or more channels and report fatal errors",
		RunE: func(cmd *cobra.Command, args []string) error {
			dbcFiles, err := parseDBCFlags(dbcFlags)
			if err != nil {
				return err
			}
			if len(dbcFiles) == 0 {
				return fmt.Errorf("validate-dbc: at least one --dbc channel=path flag is required")
			}
			var warnBuf bytes.Buffer
			warnLogger := logrus.New()
			warnLogger.SetOutput(&warnBuf)

			for channel, paths := range dbcFiles {
				texts := make([]string, len(paths))
				for i, p := range paths {
					data, err := os.ReadFile(p)
					if err != nil {
						return fmt.Errorf("validate-dbc: reading %s: %w", p, err)
					}
					texts[i] = string(data)
				}
				canModel, err := dbc.ParseChannel(busmodel.Channel(channel), texts, dbc.ParseOptions{Log: warnLogger.WithField("channel", channel)})
				if err != nil {
					fmt.Fprintf(os.Stderr, "FATAL [%s]: %v\n", channel, err)
					return err
				}
				fmt.Printf("OK [%s]: %d messages, baud=%d (%s)\n", channel, len(canModel.Messages), canModel.BaudRate, canModel.BaudSource)
			}
			if warnBuf.Len() > 0 {
				fmt.Print(warnBuf.String())
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&dbcFlags, "dbc", nil, "channel=path.dbc, repeatable")
	return cmd
}
