package history

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	bsvc "github.com/caesium-cloud/batch/api/rest/service/batch"
	"github.com/caesium-cloud/batch/internal/jobdef/runtime"
	"github.com/caesium-cloud/batch/internal/models"
	"github.com/caesium-cloud/batch/pkg/env"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

const (
	usage   = "history"
	short   = "Show recorded batches"
	long    = "This command lists recorded batches newest first, or shows one batch with its job results and, optionally, its logs"
	example = "batch history --limit 5\nbatch history --id 3f1c... --logs"
)

var (
	historyLimit  uint64
	historyID     string
	historyLogs   bool
	historyOutput string
)

// Cmd is the history command.
var Cmd = &cobra.Command{
	Use:     usage,
	Short:   short,
	Long:    long,
	Example: example,
	Aliases: []string{"h"},
	RunE:    history,
}

func init() {
	Cmd.Flags().Uint64Var(&historyLimit, "limit", 10, "Maximum number of batches to list (0 lists all)")
	Cmd.Flags().StringVar(&historyID, "id", "", "Show a single batch")
	Cmd.Flags().BoolVar(&historyLogs, "logs", false, "Include the batch's logs (requires --id)")
	Cmd.Flags().StringVarP(&historyOutput, "output", "o", "text", "Output format: text or json")
}

func history(cmd *cobra.Command, args []string) error {
	if historyLogs && historyID == "" {
		return fmt.Errorf("--logs requires --id")
	}
	if historyOutput != "text" && historyOutput != "json" {
		return fmt.Errorf("unsupported output format %q", historyOutput)
	}

	uow, err := runtime.OpenHistory(env.Variables())
	if err != nil {
		return err
	}
	svc := bsvc.Service(cmd.Context(), uow)
	out := cmd.OutOrStdout()

	if historyID == "" {
		batches, err := svc.List(&bsvc.ListRequest{Limit: historyLimit})
		if err != nil {
			return err
		}
		if historyOutput == "json" {
			return encode(out, batches)
		}
		return writeBatches(out, batches)
	}

	id, err := uuid.Parse(historyID)
	if err != nil {
		return fmt.Errorf("invalid batch id %q: %w", historyID, err)
	}

	batch, err := svc.Get(id)
	if err != nil {
		return fmt.Errorf("batch %s: %w", id, err)
	}

	var entries []*models.LogEntry
	if historyLogs {
		if entries, err = svc.Logs(id); err != nil {
			return fmt.Errorf("batch %s logs: %w", id, err)
		}
	}

	if historyOutput == "json" {
		return encode(out, struct {
			*models.Batch
			Logs []*models.LogEntry `json:"logs,omitempty"`
		}{batch, entries})
	}

	if err := writeBatch(out, batch); err != nil {
		return err
	}
	return writeLogs(out, entries)
}

func encode(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func status(b *models.Batch) string {
	switch {
	case b.Running:
		return "running"
	case len(b.Failed()) > 0:
		return "failed"
	default:
		return "succeeded"
	}
}

func writeBatches(w io.Writer, batches []*models.Batch) error {
	if len(batches) == 0 {
		_, err := fmt.Fprintln(w, "No batches recorded.")
		return err
	}
	for _, b := range batches {
		if _, err := fmt.Fprintf(w, "%s  %s  %-9s  %d jobs  %dms\n",
			b.ID, b.Timestamp.Format("2006-01-02T15:04:05Z07:00"), status(b), len(b.JobResults), b.ExecutionMillis,
		); err != nil {
			return err
		}
	}
	return nil
}

func writeBatch(w io.Writer, b *models.Batch) error {
	if _, err := fmt.Fprintf(w, "Batch %s (%s, %dms)\n", b.ID, status(b), b.ExecutionMillis); err != nil {
		return err
	}
	for _, jr := range b.JobResults {
		line := fmt.Sprintf("  - %s: %s (%dms)", jr.JobName, jr.Result.Status, jr.ExecutionMillis)
		if jr.Result.Message != "" {
			line += " " + jr.Result.Message
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
		for _, tr := range jr.TestResults {
			if _, err := fmt.Fprintf(w, "      test %s: %s\n", tr.TestName, tr.Result.Status); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeLogs(w io.Writer, entries []*models.LogEntry) error {
	for _, e := range entries {
		line := fmt.Sprintf("%s %-5s %s", e.Timestamp.Format("15:04:05.000"), strings.ToUpper(e.Level), e.Message)
		if e.JobName != "" {
			line += " job=" + e.JobName
		}
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			line += fmt.Sprintf(" %s=%v", k, e.Fields[k])
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
