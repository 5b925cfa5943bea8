package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lazypower/recall/internal/client"
	"github.com/lazypower/recall/internal/engine"
)

var (
	searchOwner     string
	searchLimit     int
	searchLocal     bool
	searchServerURL string
	searchJSON      bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "List the notes that match a query",
	Long:  "Run retrieval only: ranked notes, no related notes and no generated answer.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().StringVarP(&searchOwner, "owner", "o", os.Getenv("USER"), "owner whose notes to search")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "maximum results (default from config)")
	searchCmd.Flags().BoolVar(&searchLocal, "local", false, "never contact a running server")
	searchCmd.Flags().StringVar(&searchServerURL, "server", "", "server URL (default $RECALL_URL or http://127.0.0.1:37778)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "print the raw result as JSON")
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	req := engine.SearchRequest{
		Query:   strings.Join(args, " "),
		OwnerID: searchOwner,
		Limit:   searchLimit,
	}

	var (
		res *engine.SearchResult
		err error
	)
	remote := client.New(searchServerURL)
	if !searchLocal && remote.Healthy(ctx) {
		log.Debug("searching server", zap.String("url", remote.URL()))
		res, err = remote.Search(ctx, req)
	} else {
		res, err = searchLocally(ctx, req)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if searchJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	printSearch(out, res)
	return nil
}

func searchLocally(ctx context.Context, req engine.SearchRequest) (*engine.SearchResult, error) {
	db, err := openDB(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	// Intent expansion, when enabled, caches its terms in Redis.
	rdb := openRedis(ctx, cfg, log)
	if rdb != nil {
		defer rdb.Close()
	}

	eng, err := newEngine(cfg, db, rdb, log, nil)
	if err != nil {
		return nil, err
	}
	defer eng.Close()

	return eng.Search(ctx, req)
}

func printSearch(w io.Writer, res *engine.SearchResult) {
	if len(res.Results) == 0 {
		fmt.Fprintln(w, "no matching notes")
		return
	}
	fmt.Fprintf(w, "%d notes (%s):\n", res.Count, res.Strategy)
	for i, hit := range res.Results {
		fmt.Fprintf(w, "  %d. [%.3f] #%d %s (importance %d)\n", i+1, hit.Score, hit.NoteID, hit.Title, hit.Importance)
	}
}
