package cli

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"storyweaver/pkg/schema"
	"storyweaver/pkg/store"
	"storyweaver/pkg/utils"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <book.json>...",
	Short: "Ingest books into the configured store",
	Long: `Ingest reads book documents, extracts their characters and locations,
checks them against any story logic already stored and indexes the pages.

A book document looks like:
  {"title": "The Little Seed", "story_id": "seed", "pages": [{"page_number": 1, "text": "..."}]}

story_id defaults to the lowercased title with spaces and dashes replaced by
underscores.

Example:
  storyweaver ingest --store sqlite books/little_seed.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if cfg.StoreDriver == store.DriverMemory {
		log.Warn("memory store selected: ingested books are discarded on exit")
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	for _, path := range args {
		book, err := readBook(path)
		if err != nil {
			return err
		}
		report, err := a.srv.IngestBook(ctx, book)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), utils.PrettyJSON(report))
	}
	return nil
}

func readBook(path string) (schema.Book, error) {
	f, err := os.Open(path)
	if err != nil {
		return schema.Book{}, err
	}
	defer f.Close()

	book, err := schema.DecodeBook(f)
	if err != nil {
		return schema.Book{}, fmt.Errorf("%s: %w", path, err)
	}
	return book, nil
}
