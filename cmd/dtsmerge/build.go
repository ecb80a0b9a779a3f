package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	cfgpkg "dtsmerge/internal/config"
	"dtsmerge/internal/diag"
	"dtsmerge/internal/watch"
	"dtsmerge/pkg/contract"
)

func newBuildCmd(g *globalFlags) *cobra.Command {
	b := &buildFlags{}
	cmd := &cobra.Command{
		Use:   "build [roots...]",
		Short: "合并一次并写出产物",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := prepare(cmd, g, b, args, nil)
			if err != nil {
				return err
			}
			defer s.close()
			return runBuild(cmd.Context(), s, "build")
		},
	}
	b.bind(cmd, true)
	return cmd
}

func runBuild(ctx context.Context, s *session, reason string) error {
	start := time.Now()
	s.term.BuildStart(reason)
	res, err := pipelineRun(ctx, s.comp, s.set, s.logger)
	report(s.errw, s.term, res, err)
	if err != nil {
		logFailure(s.logger, "cli", err, start)
		return runtimeErr(err)
	}
	s.logger.InfoFinish("cli", "build finished", start, int64(res.Fragments))
	return nil
}

func newWatchCmd(g *globalFlags) *cobra.Command {
	b := &buildFlags{}
	var (
		debounce     time.Duration
		initialBuild bool
	)
	cmd := &cobra.Command{
		Use:   "watch [roots...]",
		Short: "监听片段变化并重新合并",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := prepare(cmd, g, b, args, func(c *cfgpkg.Config) {
				if cmd.Flags().Changed("debounce") {
					ms := int(debounce / time.Millisecond)
					c.Watch.DebounceMS = &ms
				}
				if cmd.Flags().Changed("initial-build") {
					v := initialBuild
					c.Watch.InitialBuild = &v
				}
			})
			if err != nil {
				return err
			}
			defer s.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, s)
		},
	}
	b.bind(cmd, true)
	cmd.Flags().DurationVar(&debounce, "debounce", 100*time.Millisecond, "事件合并窗口（覆盖配置）")
	cmd.Flags().BoolVar(&initialBuild, "initial-build", false, "启动时先构建一次（覆盖配置）")
	return cmd
}

func runWatch(ctx context.Context, s *session) error {
	start := time.Now()
	filter, _ := s.comp.Reader.(contract.PathFilter)
	stats, err := watchRun(ctx, watch.Options{
		Roots:        s.set.Inputs,
		Filter:       filter,
		Debounce:     time.Duration(s.cfg.DebounceMS()) * time.Millisecond,
		InitialBuild: s.cfg.InitialBuild(),
		Logger:       s.logger,
		Ready:        func(dirs int) { s.term.WatchReady(s.set.Inputs, dirs) },
	}, func(ctx context.Context, reason string) error {
		bstart := time.Now()
		s.term.BuildStart(reason)
		res, err := pipelineRun(ctx, s.comp, s.set, s.logger)
		if err != nil && ctx.Err() != nil {
			// 停止途中被取消，不计为失败
			return nil
		}
		report(s.errw, s.term, res, err)
		if err != nil {
			logFailure(s.logger, "watch", err, bstart)
		}
		return err
	})
	if err != nil {
		logFailure(s.logger, "watch", err, start)
		return runtimeErr(fmt.Errorf("watch: %w", err))
	}
	s.term.WatchStop()
	kv := map[string]string{
		"runs":     fmt.Sprint(stats.Runs),
		"failures": fmt.Sprint(stats.Failures),
	}
	for _, m := range diag.Snapshot() {
		kv[m.Key] = fmt.Sprint(m.Value)
	}
	s.logger.DebugStart("watch", "metrics", "", kv)
	s.logger.InfoFinish("watch", "watch stopped", start, int64(stats.Runs))
	return nil
}
