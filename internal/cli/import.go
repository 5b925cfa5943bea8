package cli

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lazypower/recall/internal/store"
)

var importOwner string

var importCmd = &cobra.Command{
	Use:   "import [fixture.yaml]",
	Short: "Import notes and edges from a YAML fixture",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

func init() {
	importCmd.Flags().StringVarP(&importOwner, "owner", "o", "", "override the fixture's owner")
}

func runImport(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open fixture: %w", err)
	}
	defer f.Close()

	fx, err := store.LoadFixtureAs(f, importOwner)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	db, err := openDB(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	res, err := db.ImportFixture(ctx, fx)
	if err != nil {
		return err
	}
	log.Info("fixture imported",
		zap.String("owner", fx.Owner),
		zap.Int("notes", res.Notes),
		zap.Int("edges", res.Edges))

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "imported %d notes and %d edges for %s\n", res.Notes, res.Edges, fx.Owner)
	keys := make([]string, 0, len(res.IDs))
	for k := range res.IDs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(out, "  %s -> #%d\n", k, res.IDs[k])
	}
	return nil
}
