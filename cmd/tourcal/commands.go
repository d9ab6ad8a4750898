package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"cloud.google.com/go/civil"
	"github.com/spf13/cobra"

	"tourcal/internal/agenda"
	"tourcal/internal/ics"
	appLog "tourcal/internal/log"
	"tourcal/internal/model"
	"tourcal/internal/notify"
	"tourcal/internal/schedule"
	"tourcal/internal/web"
)

func newParseCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "parse <agenda-file|->",
		Short: "Parse an agenda and print the itinerary as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := a.parseAgenda(cmd, args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), items)
		},
	}
}

func newNowCmd(a *app) *cobra.Command {
	var (
		at   string
		next int
	)
	cmd := &cobra.Command{
		Use:   "now <agenda-file|->",
		Short: "Show the current and upcoming itinerary items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := a.parseAgenda(cmd, args[0])
			if err != nil {
				return err
			}
			now, err := a.instant(at)
			if err != nil {
				return err
			}
			if next <= 0 {
				next = a.cfg.Lookahead
			}
			printView(cmd.OutOrStdout(), now, schedule.Resolve(items, now, next))
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "Evaluate at this RFC3339 time instead of the current time")
	cmd.Flags().IntVar(&next, "next", 0, "Number of upcoming items to show (default from config)")
	return cmd
}

func newRemindCmd(a *app) *cobra.Command {
	var (
		at    string
		lead  int
		watch bool
	)
	cmd := &cobra.Command{
		Use:   "remind <agenda-file|->",
		Short: "Schedule reminders for upcoming items",
		Long: `remind schedules a reminder ahead of every item dated today or later.
With --watch it keeps running and prints each reminder when it becomes due.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := a.parseAgenda(cmd, args[0])
			if err != nil {
				return err
			}
			now, err := a.instant(at)
			if err != nil {
				return err
			}
			if lead < 0 {
				lead = a.cfg.ReminderLeadMinutes
			}

			out := cmd.OutOrStdout()
			store := notify.NewStore()
			items = schedule.ScheduleAll(store, items, lead, now)
			printScheduled(out, items, store, a.loc)

			if !watch {
				return nil
			}
			return a.watch(out, store)
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "Schedule relative to this RFC3339 time instead of the current time")
	cmd.Flags().IntVar(&lead, "lead", -1, "Minutes before each item to remind (default from config)")
	cmd.Flags().BoolVar(&watch, "watch", false, "Keep running and print reminders as they become due")
	return cmd
}

func (a *app) watch(out io.Writer, store *notify.Store) error {
	poller, err := notify.NewPoller(store, notify.PollerConfig{
		Schedule: a.cfg.Poll,
		Location: a.loc,
	}, func(n notify.Notification) {
		fmt.Fprintf(out, "%s  %s: %s\n", n.ScheduledAt.In(a.loc).Format(time.Kitchen), n.Title, n.Message)
	})
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	poller.Start(ctx)
	<-ctx.Done()
	poller.Stop()
	return nil
}

func newExportCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export <agenda-file|->",
		Short: "Export an agenda as an iCalendar file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := a.parseAgenda(cmd, args[0])
			if err != nil {
				return err
			}

			today := civil.DateOf(a.now().In(a.loc))
			opts := ics.ExportOptions{
				Location:     a.loc,
				DefaultDate:  &today,
				LeadMinutes:  a.cfg.ReminderLeadMinutes,
				CalendarName: calendarName(args[0]),
			}

			var n int
			if output == "" || output == "-" {
				n, err = ics.Export(cmd.OutOrStdout(), items, opts)
			} else {
				n, err = exportFile(output, items, opts)
			}
			if err != nil {
				return fmt.Errorf("export: %w", err)
			}
			appLog.Info("itinerary exported", "events", n, "items", len(items), "output", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the calendar to this file instead of stdout")
	return cmd
}

// exportFile writes the calendar to a new file at path.
func exportFile(path string, items []model.ItineraryItem, opts ics.ExportOptions) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	return exportAndClose(f, items, opts)
}

// exportAndClose writes the calendar to wc and closes it. A close error is
// returned unless the export already failed.
func exportAndClose(wc io.WriteCloser, items []model.ItineraryItem, opts ics.ExportOptions) (n int, err error) {
	defer func() {
		if cerr := wc.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close output: %w", cerr)
		}
	}()
	return ics.Export(wc, items, opts)
}

func newImportCmd(a *app) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "import <calendar.ics|->",
		Short: "Read an iCalendar file and print its events as itinerary JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			if days <= 0 {
				days = a.cfg.ImportHorizonDays
			}

			items, err := ics.Import(strings.NewReader(string(data)), ics.ImportOptions{
				Location:   a.loc,
				Horizon:    time.Duration(days) * 24 * time.Hour,
				Classifier: a.classifier,
			})
			if err != nil {
				return fmt.Errorf("import %s: %w", args[0], err)
			}
			return writeJSON(cmd.OutOrStdout(), items)
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "Expand recurring events this many days past the first event (default from config)")
	return cmd
}

func newServeCmd(a *app) *cobra.Command {
	var (
		listen    string
		itinerary string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the reminder poller",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen != "" {
				a.cfg.Listen = listen
			}

			store := notify.NewStore()
			srv, err := web.NewServer(web.Options{
				Config:        a.cfg,
				Location:      a.loc,
				Classifier:    a.classifier,
				Notifications: store,
				Now:           a.now,
			})
			if err != nil {
				return err
			}

			if itinerary != "" {
				items, err := a.parseAgenda(cmd, itinerary)
				if err != nil {
					return err
				}
				srv.SetItinerary(schedule.ScheduleAll(store, items, a.cfg.ReminderLeadMinutes, a.now().In(a.loc)))
			}

			poller, err := notify.NewPoller(store, notify.PollerConfig{
				Schedule: a.cfg.Poll,
				Location: a.loc,
			}, func(n notify.Notification) {
				appLog.Info("reminder due", "id", n.ID, "title", n.Title, "message", n.Message)
			})
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			poller.Start(ctx)
			defer poller.Stop()

			appLog.Info("tourcal serving", "version", version, "listen", a.cfg.Listen, "timezone", a.loc.String())
			return srv.ListenAndServe(ctx)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	cmd.Flags().StringVar(&itinerary, "itinerary", "", "Agenda file to load at startup")
	return cmd
}

func (a *app) parseAgenda(cmd *cobra.Command, name string) ([]model.ItineraryItem, error) {
	data, err := readInput(cmd.InOrStdin(), name)
	if err != nil {
		return nil, err
	}
	return agenda.NewParser(a.classifier).Parse(string(data)), nil
}

// instant returns the --at time in the configured zone, or the current time.
func (a *app) instant(at string) (time.Time, error) {
	if at == "" {
		return a.now().In(a.loc), nil
	}
	t, err := time.Parse(time.RFC3339, at)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --at %q: %w", at, err)
	}
	return t.In(a.loc), nil
}

func printView(w io.Writer, now time.Time, v schedule.View) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintf(tw, "now\t%s\n", now.Format("Mon 2 Jan 2006 3:04 PM"))
	if v.Current == nil {
		fmt.Fprintln(tw, "current\t(no items)")
		return
	}
	fmt.Fprintf(tw, "current\t%s\n", itemLine(*v.Current))
	for _, it := range v.Next {
		fmt.Fprintf(tw, "next\t%s\n", itemLine(it))
	}
}

func itemLine(it model.ItineraryItem) string {
	day := "-"
	if it.Date != nil {
		day = it.Date.String()
	}
	return fmt.Sprintf("%s\t%s\t%s\t%s\t%s", day, it.Time, it.Activity, it.Location, it.Type)
}

func printScheduled(w io.Writer, items []model.ItineraryItem, store *notify.Store, loc *time.Location) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	scheduled := 0
	for _, it := range items {
		if it.NotificationID == "" {
			continue
		}
		n, ok := store.Get(it.NotificationID)
		if !ok {
			continue
		}
		scheduled++
		fmt.Fprintf(tw, "%s\t%s\t%s\n", n.ScheduledAt.In(loc).Format("2006-01-02 3:04 PM"), n.Title, n.Message)
	}
	fmt.Fprintf(tw, "%d reminder(s) scheduled\n", scheduled)
}

func calendarName(path string) string {
	if path == "-" {
		return "Itinerary"
	}
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
