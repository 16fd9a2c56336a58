package cmd

import (
	"fmt"
	"os"
	"sort"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/meshbus/meshbus/internal/envelope"
)

var catRaw bool

var catCmd = &cobra.Command{
	Use:   "cat <file>",
	Short: "Render one bus message or receipt's frontmatter and body",
	Args:  cobra.ExactArgs(1),
	RunE:  runCat,
}

func init() {
	rootCmd.AddCommand(catCmd)
	catCmd.Flags().BoolVar(&catRaw, "raw", false, "print the file unmodified, skipping frontmatter rendering")
}

func runCat(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	if catRaw {
		fmt.Print(string(raw))
		return nil
	}

	header, body := envelope.Parse(string(raw))
	if len(header) == 0 {
		fmt.Print(string(raw))
		return nil
	}

	keys := make([]string, 0, len(header))
	for k := range header {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Println(headerStyle.Render(args[0]))
	for _, k := range keys {
		switch v := header[k].(type) {
		case string:
			fmt.Printf("%s: %s\n", k, v)
		case []string:
			fmt.Printf("%s:\n", k)
			for _, item := range v {
				fmt.Printf("  - %s\n", item)
			}
		}
	}
	fmt.Println(dimStyle.Render("---"))
	fmt.Println(renderBody(body))
	return nil
}

// renderBody glamour-renders the envelope body as markdown when stdout is a
// terminal; otherwise it prints the body verbatim so piping stays plain text.
func renderBody(body string) string {
	if !isTerminal(os.Stdout) {
		return body
	}
	width := terminalWidth(os.Stdout, 100)
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return body
	}
	out, err := r.Render(body)
	if err != nil {
		return body
	}
	return out
}
