package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"dtsmerge/internal/pipeline"
	"dtsmerge/pkg/contract"
)

var pipelineCollect = pipeline.Collect

// inspect 只读：抽取全部片段并列出声明，报告重复，不写产物。
func newInspectCmd(g *globalFlags) *cobra.Command {
	b := &buildFlags{}
	cmd := &cobra.Command{
		Use:   "inspect [roots...]",
		Short: "列出各片段的声明并报告重复（不写出）",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := prepare(cmd, g, b, args, nil)
			if err != nil {
				return err
			}
			defer s.close()

			start := time.Now()
			frags, err := pipelineCollect(cmd.Context(), s.comp, s.set, s.logger)
			if err != nil {
				logFailure(s.logger, "cli", err, start)
				return runtimeErr(err)
			}
			decls := printFragments(cmd.OutOrStdout(), frags)
			dups := pipeline.FindDuplicates(frags)
			fprintf(cmd.OutOrStdout(), "共 %d 个片段，%d 个声明\n", len(frags), decls)
			if len(dups) == 0 {
				return nil
			}
			printDuplicates(cmd.OutOrStdout(), dups)
			err = fmt.Errorf("%w: %d 个名称重复", contract.ErrDuplicateDecl, len(dups))
			logFailure(s.logger, "cli", err, start)
			return runtimeErr(err)
		},
	}
	b.bind(cmd, false)
	return cmd
}

func printFragments(w io.Writer, frags []contract.Fragment) int {
	total := 0
	for _, f := range frags {
		names := make([]string, 0, len(f.Decls))
		for _, d := range f.Decls {
			names = append(names, d.Name)
		}
		total += len(f.Decls)
		fprintf(w, "%s\t%d\t%s\n", f.FileID, len(f.Decls), strings.Join(names, ","))
	}
	return total
}

func printDuplicates(w io.Writer, dups []pipeline.Duplicate) {
	fprintf(w, "重复声明:\n")
	for _, d := range dups {
		sites := make([]string, 0, len(d.Sites))
		for _, s := range d.Sites {
			sites = append(sites, fmt.Sprintf("%s:%d (%s)", s.FileID, s.Line, s.Kind))
		}
		fprintf(w, "  %s\t%s\n", d.Name, strings.Join(sites, ", "))
	}
}
