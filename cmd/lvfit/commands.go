package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/katalvlaran/lvfit/config"
	"github.com/katalvlaran/lvfit/errs"
	"github.com/katalvlaran/lvfit/fit"
	"github.com/katalvlaran/lvfit/session"
)

// app holds the global flags and what PersistentPreRunE builds from them.
type app struct {
	configPath string
	logLevel   string
	sets       []string
	metrics    bool

	log *zap.Logger
	cfg *config.Settings
	reg *prometheus.Registry
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "lvfit",
		Short: "Fit peak and curve models to data with a small command language",
		Long: `lvfit runs scripts of variable, function, model, dataset and fit
statements against one session, and can write the session back out as a
script that rebuilds it.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML file with initial settings")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "warn", "log level: debug, info, warn or error")
	root.PersistentFlags().StringArrayVar(&a.sets, "set", nil, "override a setting, key=value (repeatable)")
	root.PersistentFlags().BoolVar(&a.metrics, "metrics", false, "print fit metrics to stderr on exit")

	root.AddCommand(a.runCmd(), a.evalCmd(), a.dumpCmd(), a.methodsCmd())

	return root
}

// setup builds the logger, the settings and the metrics registry.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	// 1. Logger
	lvl, err := zapcore.ParseLevel(a.logLevel)
	if err != nil {
		return fmt.Errorf("lvfit: --log-level: %w", err)
	}
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.DisableStacktrace = true
	if a.log, err = zc.Build(); err != nil {
		return err
	}

	// 2. Settings: defaults, then the file, then --set
	a.cfg = config.Default()
	if a.configPath != "" {
		if a.cfg, err = config.Load(a.configPath); err != nil {
			return err
		}
	}
	pairs := make([][2]string, 0, len(a.sets))
	for _, kv := range a.sets {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("lvfit: --set %q: want key=value", kv)
		}
		pairs = append(pairs, [2]string{strings.TrimSpace(k), strings.TrimSpace(v)})
	}
	if err = a.cfg.SetAll(pairs); err != nil {
		return err
	}

	// 3. Metrics
	a.reg = prometheus.NewRegistry()

	return nil
}

// newSession opens a session writing its reports to w.
func (a *app) newSession(w io.Writer) *session.Session {
	return session.New(
		session.WithLogger(a.log),
		session.WithSettings(a.cfg),
		session.WithMetrics(fit.NewMetrics(a.reg)),
		session.WithOutput(w),
	)
}

func (a *app) runCmd() *cobra.Command {
	var (
		strict bool
		dump   string
	)
	cmd := &cobra.Command{
		Use:   "run <script>...",
		Short: "Execute scripts; \"-\" reads standard input",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := a.newSession(cmd.OutOrStdout())
			failed := 0
			for _, path := range args {
				n, err := a.runScript(cmd, s, path, strict)
				failed += n
				if err != nil {
					return err
				}
			}
			if dump != "" {
				if err := writeState(s, dump, cmd.OutOrStdout()); err != nil {
					return err
				}
			}
			a.printMetrics(cmd.ErrOrStderr())
			if failed > 0 {
				return fmt.Errorf("lvfit: %d statement(s) failed", failed)
			}

			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "stop at the first failing statement")
	cmd.Flags().StringVar(&dump, "dump", "", "write the final state script to this file (\"-\" for stdout)")

	return cmd
}

func (a *app) evalCmd() *cobra.Command {
	var scripts []string
	cmd := &cobra.Command{
		Use:   "eval <expr>",
		Short: "Evaluate an expression, after running --script files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := a.newSession(io.Discard)
			for _, path := range scripts {
				if _, err := a.runScript(cmd, s, path, true); err != nil {
					return err
				}
			}
			v, err := s.Eval(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), s.Settings().NumericFormat+"\n", v)

			return nil
		},
	}
	cmd.Flags().StringArrayVar(&scripts, "script", nil, "script to run first (repeatable)")

	return cmd
}

func (a *app) dumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump <script>...",
		Short: "Run scripts strictly and print the resulting state script",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := a.newSession(io.Discard)
			for _, path := range args {
				if _, err := a.runScript(cmd, s, path, true); err != nil {
					return err
				}
			}

			return writeState(s, "-", cmd.OutOrStdout())
		},
	}
}

func (a *app) methodsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "methods",
		Short: "List the fitting methods",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cur := a.cfg.FittingMethod
			for _, m := range a.newSession(io.Discard).Methods() {
				mark := " "
				if m == cur {
					mark = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", mark, m)
			}
		},
	}
}

// runScript executes path line by line and returns how many statements
// failed. Failures are logged; in strict mode the first one is returned.
// Cancellation always stops the run.
func (a *app) runScript(cmd *cobra.Command, s *session.Session, path string, strict bool) (int, error) {
	var r io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return 0, err
		}
		defer f.Close()
		r = f
	}
	failed := 0
	sc := bufio.NewScanner(r)
	for line := 1; sc.Scan(); line++ {
		err := s.ExecuteContext(cmd.Context(), sc.Text())
		if err == nil {
			continue
		}
		var se *session.StatementError
		if errors.As(err, &se) {
			err = fmt.Errorf("%s:%d: %w", path, line, se)
		}
		if strict || errors.Is(err, errs.ErrAborted) {
			return failed + 1, err
		}
		failed++
		a.log.Error("statement failed", zap.String("script", path), zap.Int("line", line),
			zap.String("kind", errs.Kind(err)), zap.Error(err))
	}

	return failed, sc.Err()
}

func writeState(s *session.Session, path string, stdout io.Writer) error {
	script, err := s.StateScript()
	if err != nil {
		return err
	}
	if path == "-" {
		_, err = io.WriteString(stdout, script)
		return err
	}

	return os.WriteFile(path, []byte(script), 0o644)
}

// printMetrics writes the gathered samples as "name{labels} value" lines.
func (a *app) printMetrics(w io.Writer) {
	if !a.metrics {
		return
	}
	mfs, err := a.reg.Gather()
	if err != nil {
		a.log.Warn("gather metrics", zap.Error(err))
		return
	}
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue()))
			}
			sort.Strings(labels)
			name := mf.GetName()
			if len(labels) > 0 {
				name += "{" + strings.Join(labels, ",") + "}"
			}
			switch {
			case m.GetCounter() != nil:
				fmt.Fprintf(w, "%s %g\n", name, m.GetCounter().GetValue())
			case m.GetGauge() != nil:
				fmt.Fprintf(w, "%s %g\n", name, m.GetGauge().GetValue())
			case m.GetHistogram() != nil:
				h := m.GetHistogram()
				fmt.Fprintf(w, "%s count=%d sum=%g\n", name, h.GetSampleCount(), h.GetSampleSum())
			}
		}
	}
}
