package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/minios-linux/keyfold/backup"
	"github.com/minios-linux/keyfold/config"
	"github.com/minios-linux/keyfold/i18n"
)

// ---------------------------------------------------------------------------
// analyze
// ---------------------------------------------------------------------------

func newAnalyzeCmd(a *app) *cobra.Command {
	var scanUnused, dryRun bool

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Cluster duplicate keys and write the mapping file",
		Long: `Cluster keys whose values are identical or similar in every locale and
write the proposed consolidation to the mapping file for review.

Groups that only some locales support are listed as comments and not merged.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.pipeline(cmd, func(c *config.Config) { c.DryRun = dryRun })
			if err != nil {
				return err
			}
			res, err := p.Analyze(cmd.Context(), scanUnused)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintln(w, i18n.T("Locales: %s", strings.Join(res.Locales, ", ")))
			fmt.Fprintln(w, i18n.N("%d key", "%d keys", res.Keys, res.Keys))
			fmt.Fprintln(w, i18n.N("%d group", "%d groups", len(res.Groups), len(res.Groups)))
			fmt.Fprintln(w, i18n.N("%d key would be replaced", "%d keys would be replaced", res.Replaced(), res.Replaced()))
			if len(res.Disagreements) > 0 {
				fmt.Fprintln(w, i18n.N("%d group not merged: locales disagree", "%d groups not merged: locales disagree", len(res.Disagreements), len(res.Disagreements)))
			}
			if res.Unused > 0 {
				fmt.Fprintln(w, i18n.N("%d key flagged unused", "%d keys flagged unused", res.Unused, res.Unused))
			}
			if dryRun {
				fmt.Fprintln(w, i18n.T("Dry run: mapping file not written"))
			} else {
				fmt.Fprintln(w, i18n.T("Mapping written to %s", res.MappingFile))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&scanUnused, "scan-unused", false, "Scan sources for unused keys first")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the result without writing files")

	return cmd
}

// ---------------------------------------------------------------------------
// apply
// ---------------------------------------------------------------------------

func newApplyCmd(a *app) *cobra.Command {
	var removeUnused, dryRun bool

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply the mapping file to catalogs and sources",
		Long: `Apply the reviewed mapping file.

Every catalog is backed up into a new snapshot directory before anything is
written; each source file is backed up right before it is rewritten. References
to unused keys are reported and never removed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.pipeline(cmd, func(c *config.Config) {
				c.RemoveUnused = removeUnused
				c.DryRun = dryRun
			})
			if err != nil {
				return err
			}
			res, err := p.Apply(cmd.Context())
			w := cmd.OutOrStdout()
			if res != nil {
				if res.Report != nil {
					res.Report.Write(w)
				}
				for _, ref := range res.UnusedRefs {
					fmt.Fprintln(w, i18n.T("unused key still referenced: %s", ref.String()))
				}
				res.Summary.Write(w)
			}
			if err != nil {
				return err
			}
			if len(res.Skipped) > 0 {
				return &exitError{Code: exitFailure, Err: fmt.Errorf("%s", i18n.N("%d source file skipped", "%d source files skipped", len(res.Skipped), len(res.Skipped)))}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&removeUnused, "remove-unused", false, "Remove keys listed as unused")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would change without writing")

	return cmd
}

// ---------------------------------------------------------------------------
// check
// ---------------------------------------------------------------------------

func newCheckCmd(a *app) *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Report drift between catalogs and the mapping file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.pipeline(cmd, nil)
			if err != nil {
				return err
			}
			rep, err := p.Check(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			rep.Write(w)
			if !rep.HasDrift() {
				fmt.Fprintln(w, i18n.T("No drift."))
				return nil
			}
			if strict {
				return &exitError{Code: exitFailure, Err: fmt.Errorf("%s", i18n.T("drift detected"))}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Exit with status 1 when drift is found")

	return cmd
}

// ---------------------------------------------------------------------------
// scan-unused
// ---------------------------------------------------------------------------

func newScanUnusedCmd(a *app) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "scan-unused",
		Short: "List keys that no source file references",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.pipeline(cmd, func(c *config.Config) { c.DryRun = dryRun })
			if err != nil {
				return err
			}
			rep, err := p.ScanUnused(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, k := range rep.Unused {
				fmt.Fprintln(w, "  "+k)
			}
			fmt.Fprintln(w, i18n.N("%d unused key in %d files", "%d unused keys in %d files", len(rep.Unused), len(rep.Unused), rep.Scanned))
			if !dryRun {
				fmt.Fprintln(w, i18n.T("List written to %s", p.Config().AbsUnusedKeysFile()))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the list without writing it")

	return cmd
}

// ---------------------------------------------------------------------------
// sort
// ---------------------------------------------------------------------------

func newSortCmd(a *app) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "sort",
		Short: "Sort catalog keys alphabetically",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.pipeline(cmd, func(c *config.Config) { c.DryRun = dryRun })
			if err != nil {
				return err
			}
			res, err := p.Sort(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(res.Sorted) == 0 {
				fmt.Fprintln(w, i18n.T("All catalogs are already sorted."))
				return nil
			}
			for _, path := range res.Sorted {
				fmt.Fprintln(w, "  "+path)
			}
			if res.Snapshot != nil {
				fmt.Fprintln(w, i18n.T("Backup: %s", res.Snapshot.Dir))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List unsorted catalogs without writing")

	return cmd
}

// ---------------------------------------------------------------------------
// backups
// ---------------------------------------------------------------------------

func newBackupsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backups",
		Short: "List or prune backup snapshots",
	}
	cmd.AddCommand(newBackupsListCmd(a), newBackupsPruneCmd(a))
	return cmd
}

func newBackupsListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List backup snapshots, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			snaps, err := backup.List(cfg.AbsBackupRoot())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(snaps) == 0 {
				fmt.Fprintln(w, i18n.T("No backups."))
				return nil
			}
			for _, s := range snaps {
				state := ""
				if !s.Sealed {
					state = " " + i18n.T("(incomplete)")
				}
				fmt.Fprintf(w, "%s  %s  %s%s\n", s.Name, s.Created.Format("2006-01-02 15:04:05"),
					i18n.N("%d file", "%d files", s.Files, s.Files), state)
			}
			return nil
		},
	}
}

func newBackupsPruneCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove old backup snapshots",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			keep, _ := cmd.Flags().GetInt("keep")
			if keep < 0 {
				return config.Errorf("", "--keep must not be negative, got %d", keep)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			keep, _ := cmd.Flags().GetInt("keep")
			execute, _ := cmd.Flags().GetBool("execute")

			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			result, err := backup.Prune(cfg.AbsBackupRoot(), keep, execute)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if len(result.Candidates) == 0 {
				fmt.Fprintln(w, i18n.T("Nothing to prune."))
				return nil
			}
			if execute {
				fmt.Fprintln(w, i18n.N("Deleted %d snapshot:", "Deleted %d snapshots:", result.Deleted, result.Deleted))
			} else {
				fmt.Fprintln(w, i18n.N("%d snapshot would be deleted (dry-run):", "%d snapshots would be deleted (dry-run):", len(result.Candidates), len(result.Candidates)))
			}
			for _, name := range result.Candidates {
				fmt.Fprintln(w, "  "+name)
			}
			if execute && result.Deleted < len(result.Candidates) {
				return fmt.Errorf("%d snapshot(s) could not be deleted", len(result.Candidates)-result.Deleted)
			}
			return nil
		},
	}

	cmd.Flags().Int("keep", 5, "Number of newest snapshots to keep")
	cmd.Flags().Bool("execute", false, "Execute deletion (dry-run by default)")

	return cmd
}
