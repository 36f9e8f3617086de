package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Spok95/student-debt-ledger/internal/models"
	"github.com/Spok95/student-debt-ledger/internal/sisimport"
)

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import students and their debt from an SIS export (CSV or XLSX)",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

func init() {
	importCmd.Flags().Bool("dry-run", false, "Parse and summarize the file without writing")
	importCmd.Flags().String("notes", "", "Notes stored with the import batch")
	importCmd.Flags().Int64("user", 0, "Admin user id recorded as the importer")
}

// cliAdmin: оператор CLI действует с правами администратора.
func cliAdmin(cmd *cobra.Command) models.Principal {
	id, _ := cmd.Flags().GetInt64("user")
	return models.Principal{UserID: id, Role: models.RoleAdmin}
}

func runImport(cmd *cobra.Command, args []string) error {
	path := args[0]
	dry, _ := cmd.Flags().GetBool("dry-run")
	notes, _ := cmd.Flags().GetString("notes")

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	rt, err := setup(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer rt.Close()

	im := sisimport.NewImporter(rt.svc, rt.log.Base)
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")

	if dry {
		prev, err := im.Preview(f, filepath.Base(path))
		if err != nil {
			return err
		}
		return enc.Encode(prev)
	}
	batch, err := im.Commit(cmd.Context(), cliAdmin(cmd), f, filepath.Base(path), notes)
	if err != nil {
		return fmt.Errorf("import %s: %w", path, err)
	}
	return enc.Encode(batch)
}
