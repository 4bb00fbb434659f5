package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/google/uuid"
	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"

	"creature-catalog-api/internal/app"
	"creature-catalog-api/internal/models"
)

var headerStyle = lipgloss.NewStyle().Bold(true)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return lipgloss.NewStyle().PaddingRight(1)
		}).
		Headers(headers...)
}

func newPageCmd(factory appFactory) *cobra.Command {
	var offset, limit int
	cmd := &cobra.Command{
		Use:   "page",
		Short: "Print one page of list entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, factory, func(ctx context.Context, a *app.App) error {
				page, err := a.Pages.FetchPage(ctx, offset, limit)
				if err != nil {
					return userError(err)
				}

				t := newTable("ID", "NAME", "REF")
				for _, e := range page.Items {
					t.Row(e.ID, e.Name, e.SourceRef)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, t.String())
				fmt.Fprintf(out, "source=%s total=%d has_more=%t\n", page.Source, page.TotalCount, page.HasMore)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&offset, "offset", 0, "index of the first entry")
	cmd.Flags().IntVar(&limit, "limit", 0, "number of entries (0 selects the configured page size)")
	return cmd
}

func newShowCmd(factory appFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print the detail of one creature",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("id must be an integer: %q", args[0])
			}
			return withApp(cmd, factory, func(ctx context.Context, a *app.App) error {
				record, err := a.Details.FetchDetail(ctx, id)
				if err != nil {
					return userError(err)
				}
				printDetail(cmd.OutOrStdout(), record)
				return nil
			})
		},
	}
}

func printDetail(out io.Writer, d *models.DetailRecord) {
	fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("#%d %s", d.ID, d.Name)))
	fmt.Fprintf(out, "types:  %s\n", strings.Join(d.TypeNames(), ", "))
	fmt.Fprintf(out, "height: %d\n", d.Height)
	fmt.Fprintf(out, "weight: %d\n", d.Weight)
	if d.ImageURL != "" {
		fmt.Fprintf(out, "image:  %s\n", d.ImageURL)
	}

	t := newTable("STAT", "BASE", "EFFORT")
	for _, s := range d.Stats {
		t.Row(s.Name, strconv.Itoa(s.BaseValue), strconv.Itoa(s.EffortValue))
	}
	t.Row("total", strconv.Itoa(d.TotalStats()), "")
	fmt.Fprintln(out, t.String())
}

// browseOptions are the flags shared by browse and export
type browseOptions struct {
	pages     int
	query     string
	tags      []string
	sort      string
	desc      bool
	minHP     int
	maxHP     int
	minAttack int
	maxAttack int
}

func (o *browseOptions) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.IntVar(&o.pages, "pages", 1, "number of pages to load")
	f.StringVar(&o.query, "query", "", "match name, id or type")
	f.StringSliceVar(&o.tags, "tags", nil, "required types, all must match")
	f.StringVar(&o.sort, "sort", "id", "sort key: id, name, hp, attack, defense, speed, total, height, weight")
	f.BoolVar(&o.desc, "desc", false, "sort descending")
	f.IntVar(&o.minHP, "min-hp", 0, "minimum hp, inclusive")
	f.IntVar(&o.maxHP, "max-hp", 0, "maximum hp, inclusive")
	f.IntVar(&o.minAttack, "min-attack", 0, "minimum attack, inclusive")
	f.IntVar(&o.maxAttack, "max-attack", 0, "maximum attack, inclusive")
}

// filterSpec builds the filter. Bounds apply only when their flag was given.
func (o *browseOptions) filterSpec(cmd *cobra.Command) (models.FilterSpec, error) {
	key, err := models.ParseSortKey(o.sort)
	if err != nil {
		return models.FilterSpec{}, err
	}
	spec := models.FilterSpec{
		Query:        o.query,
		RequiredTags: o.tags,
		SortKey:      key,
		Ascending:    !o.desc,
	}

	bounds := []struct {
		flag  string
		value int
		dst   **int
	}{
		{"min-hp", o.minHP, &spec.MinHP},
		{"max-hp", o.maxHP, &spec.MaxHP},
		{"min-attack", o.minAttack, &spec.MinAttack},
		{"max-attack", o.maxAttack, &spec.MaxAttack},
	}
	for _, b := range bounds {
		if cmd.Flags().Changed(b.flag) {
			*b.dst = models.IntPtr(b.value)
		}
	}
	return spec, nil
}

// loadView runs a throwaway session over the requested number of pages
// and waits for enrichment to settle
func (o *browseOptions) loadView(ctx context.Context, cmd *cobra.Command, a *app.App) (models.SessionView, error) {
	spec, err := o.filterSpec(cmd)
	if err != nil {
		return models.SessionView{}, err
	}

	s := a.NewSession(uuid.NewString(), spec)
	defer s.Close()

	view, err := s.LoadFirstPage(ctx)
	if err != nil {
		return view, userError(err)
	}
	for i := 1; i < o.pages && view.Cursor.HasMore; i++ {
		view, err = s.LoadMore(ctx)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", view.LoadMoreError)
			break
		}
	}

	if err := s.WaitIdle(ctx); err != nil {
		return view, err
	}
	return s.Snapshot(), nil
}

func newBrowseCmd(factory appFactory) *cobra.Command {
	var opts browseOptions
	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Load pages, enrich them and print the filtered view",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, factory, func(ctx context.Context, a *app.App) error {
				view, err := opts.loadView(ctx, cmd, a)
				if err != nil {
					return err
				}

				t := newTable("ID", "NAME", "TYPES", "HP", "ATTACK", "TOTAL")
				for _, d := range view.Items {
					t.Row(strconv.Itoa(d.ID), d.Name, strings.Join(d.TypeNames(), "/"),
						strconv.Itoa(d.StatValue(models.StatHP)),
						strconv.Itoa(d.StatValue(models.StatAttack)),
						strconv.Itoa(d.TotalStats()))
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, t.String())
				fmt.Fprintf(out, "showing %d of %d loaded (enriched=%d failed=%d total=%d)\n",
					len(view.Items), len(view.Entries), view.Counts.Enriched, view.Counts.Failed, view.Cursor.TotalCount)
				return nil
			})
		},
	}
	opts.register(cmd)
	return cmd
}

func newExportCmd(factory appFactory) *cobra.Command {
	var opts browseOptions
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the filtered view to a JSON file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, factory, func(ctx context.Context, a *app.App) error {
				view, err := opts.loadView(ctx, cmd, a)
				if err != nil {
					return err
				}

				data, err := json.MarshalIndent(view.Items, "", "  ")
				if err != nil {
					return fmt.Errorf("encode export: %w", err)
				}
				if err := atomic.WriteFile(out, bytes.NewReader(data)); err != nil {
					return fmt.Errorf("write %s: %w", out, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "exported %d creatures to %s\n", len(view.Items), out)
				return nil
			})
		},
	}
	opts.register(cmd)
	cmd.Flags().StringVar(&out, "out", "creatures.json", "output file")
	return cmd
}

func newCacheCmd(factory appFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect, clear or warm the local cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Print local store statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, factory, func(ctx context.Context, a *app.App) error {
				stats, err := a.Store.GetStorageStats(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "driver:       %s\n", stats.Driver)
				fmt.Fprintf(out, "entries:      %d\n", stats.EntryCount)
				fmt.Fprintf(out, "details:      %d\n", stats.DetailCount)
				fmt.Fprintf(out, "total count:  %d\n", stats.TotalCount)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every cached entry and detail",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, factory, func(ctx context.Context, a *app.App) error {
				if err := a.Gate.Clear(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "cache cleared")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "warm",
		Short: "Fetch the whole catalog listing into the cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, factory, func(ctx context.Context, a *app.App) error {
				first, err := a.Source.FetchPage(ctx, 0, 1)
				if err != nil {
					return userError(err)
				}
				if first.TotalCount <= 0 {
					return fmt.Errorf("catalog reported no entries")
				}
				if err := a.WarmUp.Run(ctx, first.TotalCount); err != nil {
					return userError(err)
				}
				status := a.WarmUp.Status()
				fmt.Fprintf(cmd.OutOrStdout(), "cached %d entries in %s\n", status.EntryCount, status.Duration)
				return nil
			})
		},
	})

	return cmd
}

// userError prefixes the user-facing message to the underlying error
func userError(err error) error {
	return fmt.Errorf("%s: %w", models.UserMessage(err), err)
}
