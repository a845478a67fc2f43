package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/leaddesk/storage"
)

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "Lead store maintenance",
	Long:  `Commands that operate directly on the configured lead store.`,
}

var (
	exportKind   string
	exportStatus string
	exportOutput string
)

// leadExport is the file format written by `leads export`.
type leadExport struct {
	ExportedAt time.Time       `json:"exported_at"`
	Filter     exportFilter    `json:"filter"`
	Count      int             `json:"count"`
	Leads      []*storage.Lead `json:"leads"`
}

type exportFilter struct {
	Kind   storage.LeadKind   `json:"kind,omitempty"`
	Status storage.LeadStatus `json:"status,omitempty"`
}

var leadsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write leads, newest first, as JSON",
	Long: `Reads every lead matching the filters from the configured store and writes
them as one JSON document. With the bbolt driver the server must be stopped
first, since the database file is locked while it runs.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := storage.Filter{
			Kind:   storage.LeadKind(exportKind),
			Status: storage.LeadStatus(exportStatus),
		}
		if filter.Kind != "" && !filter.Kind.Valid() {
			return fmt.Errorf("invalid --kind %q", exportKind)
		}
		if filter.Status != "" && !filter.Status.Valid() {
			return fmt.Errorf("invalid --status %q", exportStatus)
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		repo, closeRepo, err := openRepository(cmd.Context(), cfg.Storage)
		if err != nil {
			return err
		}
		defer closeRepo()

		leads, err := repo.List(cmd.Context(), filter)
		if err != nil {
			return fmt.Errorf("listing leads: %w", err)
		}

		out := cmd.OutOrStdout()
		if exportOutput != "" && exportOutput != "-" {
			f, err := os.OpenFile(exportOutput, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
			if err != nil {
				return fmt.Errorf("creating %s: %w", exportOutput, err)
			}
			defer f.Close()
			out = f
		}
		if err := writeExport(out, filter, leads, time.Now().UTC()); err != nil {
			return err
		}
		if exportOutput != "" && exportOutput != "-" {
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d leads to %s\n", len(leads), exportOutput)
		}
		return nil
	},
}

func writeExport(w io.Writer, filter storage.Filter, leads []*storage.Lead, now time.Time) error {
	if leads == nil {
		leads = []*storage.Lead{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(leadExport{
		ExportedAt: now,
		Filter:     exportFilter{Kind: filter.Kind, Status: filter.Status},
		Count:      len(leads),
		Leads:      leads,
	})
}

func init() {
	rootCmd.AddCommand(leadsCmd)
	leadsCmd.AddCommand(leadsExportCmd)
	leadsExportCmd.Flags().StringVar(&exportKind, "kind", "", "Only export leads of this kind (contact, chat)")
	leadsExportCmd.Flags().StringVar(&exportStatus, "status", "", "Only export leads with this status (new, reviewed, archived)")
	leadsExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Write to this file instead of stdout")
}
