package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/billmal071/archivedl/internal/archive"
)

var infoCmd = &cobra.Command{
	Use:   "info <book-id|url>",
	Short: "Show a book's title and page count",
	Long: `Borrow a book just long enough to read its title and page list, then
return it.

Examples:
  archivedl info goodnightmoon00brow`,
	Args: cobra.ExactArgs(1),
	RunE: runInfo,
}

func init() {
	infoCmd.Flags().StringP("email", "e", "", "archive.org account email")
}

func runInfo(cmd *cobra.Command, args []string) error {
	email, _ := cmd.Flags().GetString("email")

	bookID, err := archive.ParseBookID(args[0])
	if err != nil {
		return err
	}

	client, meta, err := openBook(cmd.Context(), bookID, email)
	if err != nil {
		return err
	}
	defer client.Close()

	fmt.Printf("Title:   %s\n", meta.Title)
	fmt.Printf("ID:      %s\n", meta.BookID)
	fmt.Printf("Pages:   %d\n", len(meta.Pages))
	if meta.ImageCount != len(meta.Pages) {
		fmt.Printf("Images:  %d\n", meta.ImageCount)
	}
	fmt.Printf("Details: %s\n", meta.DetailsURL)
	return nil
}
