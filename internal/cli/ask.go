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
	askOwner      string
	askMaxSources int
	askNoRelated  bool
	askLocal      bool
	askServerURL  string
	askJSON       bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question of your notes",
	Long:  "Ask a question. Uses a running server when one is reachable, otherwise answers in-process.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askOwner, "owner", "o", os.Getenv("USER"), "owner whose notes to search")
	askCmd.Flags().IntVarP(&askMaxSources, "max-sources", "n", 0, "maximum notes to retrieve (default from config)")
	askCmd.Flags().BoolVar(&askNoRelated, "no-related", false, "skip graph expansion")
	askCmd.Flags().BoolVar(&askLocal, "local", false, "never contact a running server")
	askCmd.Flags().StringVar(&askServerURL, "server", "", "server URL (default $RECALL_URL or http://127.0.0.1:37778)")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the raw result as JSON")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	req := engine.AskRequest{
		Question:   strings.Join(args, " "),
		OwnerID:    askOwner,
		MaxSources: askMaxSources,
	}
	if askNoRelated {
		include := false
		req.IncludeRelated = &include
	}

	var (
		res *engine.AnswerResult
		err error
	)
	remote := client.New(askServerURL)
	if !askLocal && remote.Healthy(ctx) {
		log.Debug("asking server", zap.String("url", remote.URL()))
		res, err = remote.Ask(ctx, req)
	} else {
		res, err = askLocally(ctx, req)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if askJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	printAnswer(out, res)
	return nil
}

func askLocally(ctx context.Context, req engine.AskRequest) (*engine.AnswerResult, error) {
	db, err := openDB(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	rdb := openRedis(ctx, cfg, log)
	if rdb != nil {
		defer rdb.Close()
	}

	eng, err := newEngine(cfg, db, rdb, log, nil)
	if err != nil {
		return nil, err
	}
	defer eng.Close()

	return eng.Ask(ctx, req)
}

func printAnswer(w io.Writer, res *engine.AnswerResult) {
	fmt.Fprintln(w, res.Answer)
	fmt.Fprintln(w)

	cached := ""
	if res.Cached {
		cached = ", cached"
	}
	fmt.Fprintf(w, "confidence: %.2f%s\n", res.Confidence, cached)
	if len(res.Sources) > 0 {
		fmt.Fprintln(w, "sources:")
		for i, s := range res.Sources {
			fmt.Fprintf(w, "  %d. [%.3f] #%d %s\n", i+1, s.Score, s.NoteID, s.Title)
		}
	}
	if len(res.RelatedNoteIDs) > 0 {
		ids := make([]string, len(res.RelatedNoteIDs))
		for i, id := range res.RelatedNoteIDs {
			ids[i] = fmt.Sprintf("#%d", id)
		}
		fmt.Fprintf(w, "related: %s\n", strings.Join(ids, " "))
	}
}
