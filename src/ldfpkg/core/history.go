package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/bitswalk/ldfpkg/src/common/cli"
	"github.com/bitswalk/ldfpkg/src/common/errors"
	"github.com/bitswalk/ldfpkg/src/ldfpkg/db"
	"github.com/bitswalk/ldfpkg/src/ldfpkg/output"
	"github.com/bitswalk/ldfpkg/src/ldfpkg/pipeline"
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recently processed buildables",
	Args:  cobra.NoArgs,
	RunE:  runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show one history record with its architectures",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a history record",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryDelete,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of records to list (0 for all)")
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyDeleteCmd)
}

func withHistory(fn func(repo *db.BuildRepository) error) error {
	database, err := db.New(db.Config{Path: cli.GetExpandedString(settings, "history.path")})
	if err != nil {
		return errors.ErrDatabaseQuery.WithMessage("Cannot open build history").WithCause(err)
	}
	defer database.Close()
	return fn(db.NewBuildRepository(database))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func archSummary(archs []db.ArchRecord) string {
	parts := make([]string, 0, len(archs))
	for _, a := range archs {
		if a.Status == db.BuildStatusFailed {
			parts = append(parts, a.Arch+"!")
			continue
		}
		parts = append(parts, a.Arch)
	}
	return strings.Join(parts, ",")
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	f, err := format()
	if err != nil {
		return err
	}
	return withHistory(func(repo *db.BuildRepository) error {
		records, err := repo.List(historyLimit)
		if err != nil {
			return err
		}
		if len(records) == 0 && f == output.FormatTable {
			output.PrintMessage(cmd.OutOrStdout(), "No builds recorded")
			return nil
		}

		rows := make([][]string, 0, len(records))
		for _, r := range records {
			rows = append(rows, []string{
				shortID(r.ID),
				r.CreatedAt.Local().Format(time.DateTime),
				r.Source,
				r.Version,
				r.Suite,
				archSummary(r.Archs),
				string(r.Status),
			})
		}
		return output.Print(cmd.OutOrStdout(), f, records,
			[]string{"ID", "CREATED", "SOURCE", "VERSION", "SUITE", "ARCHS", "STATUS"}, rows)
	})
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	f, err := format()
	if err != nil {
		return err
	}
	return withHistory(func(repo *db.BuildRepository) error {
		rec, err := repo.FindByPrefix(args[0])
		if err != nil {
			return err
		}
		if rec == nil {
			return errors.ErrInvalidValue.WithMessagef("No build %q in the history", args[0])
		}
		if f != output.FormatTable {
			return output.Print(cmd.OutOrStdout(), f, rec, nil, nil)
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "ID:      %s\n", rec.ID)
		fmt.Fprintf(w, "Input:   %s (%s)\n", rec.Input, rec.Kind)
		fmt.Fprintf(w, "Source:  %s %s\n", rec.Source, rec.Version)
		fmt.Fprintf(w, "Suite:   %s/%s\n", rec.Vendor, rec.Suite)
		fmt.Fprintf(w, "Worker:  %s\n", rec.Worker)
		fmt.Fprintf(w, "Status:  %s\n", rec.Status)
		if rec.ErrorMessage != "" {
			fmt.Fprintf(w, "Error:   %s\n", rec.ErrorMessage)
		}
		fmt.Fprintln(w)

		rows := make([][]string, 0, len(rec.Archs))
		for _, a := range rec.Archs {
			rows = append(rows, []string{a.Arch, string(a.Status), a.Changes, a.Log})
		}
		output.PrintTable(w, []string{"ARCH", "STATUS", "CHANGES", "LOG"}, rows)

		if len(rec.Merged) > 0 {
			fmt.Fprintln(w)
			rows = rows[:0]
			for _, kind := range []string{pipeline.MergeSource, pipeline.MergeSourceAll, pipeline.MergeBinary, pipeline.MergeSourceBinary} {
				if path, ok := rec.Merged[kind]; ok {
					rows = append(rows, []string{kind, path})
				}
			}
			output.PrintTable(w, []string{"MERGED", "CHANGES"}, rows)
		}
		return nil
	})
}

func runHistoryDelete(cmd *cobra.Command, args []string) error {
	return withHistory(func(repo *db.BuildRepository) error {
		rec, err := repo.FindByPrefix(args[0])
		if err != nil {
			return err
		}
		if rec == nil {
			return errors.ErrInvalidValue.WithMessagef("No build %q in the history", args[0])
		}
		if err := repo.Delete(rec.ID); err != nil {
			return err
		}
		output.PrintMessage(cmd.OutOrStdout(), fmt.Sprintf("Deleted %s", rec.ID))
		return nil
	})
}
