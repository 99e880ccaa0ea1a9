package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/kass/go-store-locator/pkg/logging"
	"github.com/kass/go-store-locator/pkg/models"
	"github.com/kass/go-store-locator/pkg/query"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF79C6")).
			Background(lipgloss.Color("#282A36")).
			Padding(0, 1).
			MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#8BE9FD"))

	distanceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#50FA7B"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6272A4"))
)

var (
	queryDistance string
	queryOffset   int
	queryLimit    int
	queryNearest  int
)

var queryCmd = &cobra.Command{
	Use:   "query <location>",
	Short: "Search stores around a location",
	Long: `Runs a radius search, or a nearest-n search with --nearest, against the
configured index. The location is two comma separated numbers, for example
"37.7749,-122.4194".`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVarP(&queryDistance, "distance", "d", "50km", "Search radius, e.g. 500m, 50km, 10mi")
	queryCmd.Flags().IntVar(&queryOffset, "offset", 0, "Number of results to skip")
	queryCmd.Flags().IntVarP(&queryLimit, "limit", "l", models.DefaultPageLimit, "Maximum number of results")
	queryCmd.Flags().IntVarP(&queryNearest, "nearest", "n", 0, "Return the n nearest stores instead of a radius search")
}

func runQuery(cmd *cobra.Command, args []string) error {
	b, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	if cfg.Import.Source != "" {
		if _, err := importSource(cmd.Context(), b.index, cfg, cfg.Import.Source, false); err != nil {
			logging.For("query").WithError(err).Warn("import failed, querying the index as is")
		}
	}

	svc := query.NewService(b.index)
	styled := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())

	if queryNearest > 0 {
		hits, err := svc.Nearest(args[0], queryNearest)
		if err != nil {
			return err
		}
		title := fmt.Sprintf("%d nearest stores to %s", len(hits), args[0])
		renderHits(os.Stdout, title, hits, styled)
		return nil
	}

	radius, err := models.ParseDistance(queryDistance)
	if err != nil {
		return err
	}
	page, err := svc.FindNear(args[0], radius, models.PageRequest{Offset: queryOffset, Limit: queryLimit})
	if err != nil {
		return err
	}
	title := fmt.Sprintf("%d of %d stores within %s of %s", len(page.Items), page.Total, radius, args[0])
	renderHits(os.Stdout, title, page.Items, styled)
	return nil
}

// renderHits prints hits as a table. Plain output is tab separated so it can
// be piped into other tools.
func renderHits(w io.Writer, title string, hits []models.StoreHit, styled bool) {
	if !styled {
		for _, h := range hits {
			s := models.SummaryOf(h)
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.6f\t%.6f\t%.0f\n",
				s.ID, s.Name, s.Street, s.City, s.PostalCode, s.Latitude, s.Longitude, s.DistanceFromQueryPoint)
		}
		return
	}

	fmt.Fprintln(w, titleStyle.Render(title))
	if len(hits) == 0 {
		fmt.Fprintln(w, dimStyle.Render("no stores found"))
		return
	}

	nameWidth := len("Name")
	for _, h := range hits {
		if n := len(h.Store.Name); n > nameWidth {
			nameWidth = n
		}
	}

	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%-*s  %-30s  %10s", nameWidth, "Name", "Address", "Distance")))
	for _, h := range hits {
		s := models.SummaryOf(h)
		addr := strings.TrimSpace(strings.Join([]string{s.Street, s.City, s.PostalCode}, " "))
		fmt.Fprintf(w, "%-*s  %-30s  %s\n",
			nameWidth, s.Name, truncate(addr, 30), distanceStyle.Render(fmt.Sprintf("%10s", formatMeters(h.Distance))))
	}
}

func formatMeters(m float64) string {
	if m < 1000 {
		return fmt.Sprintf("%.0f m", m)
	}
	return fmt.Sprintf("%.2f km", m/1000)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
