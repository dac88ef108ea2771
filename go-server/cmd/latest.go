package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/fonsecaaso/goodproducts/go-server/internal/model"
	"github.com/fonsecaaso/goodproducts/go-server/internal/service"
)

func newLatestCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "latest",
		Short: "List the most recently submitted products",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive, got %d", limit)
			}

			cfg, flush, err := bootstrap()
			if err != nil {
				return err
			}
			defer flush()

			repo, closeStore, err := newProductRepository(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			products, err := service.NewProductService(repo).Latest(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("failed to get products: %w", err)
			}

			renderProducts(cmd.OutOrStdout(), products)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", service.LatestLimit, "number of products to show")
	return cmd
}

// renderProducts writes products as a table, newest first
func renderProducts(w io.Writer, products []model.Product) {
	if len(products) == 0 {
		fmt.Fprintln(w, "No products submitted yet")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Name", "Website", "Tags", "Email", "Created At"})

	for _, p := range products {
		createdAt := "-"
		if !p.CreatedAt.IsZero() {
			createdAt = p.CreatedAt.UTC().Format(time.RFC3339)
		}
		t.AppendRow(table.Row{
			p.ID,
			p.Name,
			p.Website,
			p.Tags,
			p.Email,
			createdAt,
		})
	}

	t.AppendFooter(table.Row{"", "", "", "", "Total", len(products)})
	t.Render()
}
