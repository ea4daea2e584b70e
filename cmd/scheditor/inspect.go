package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"

	"scheditor/internal/editor"
	"scheditor/internal/ics"
	"scheditor/internal/store"
)

// fieldsCommand prints the initial editor state for the configured schema,
// optionally seeded from a stored event.
func fieldsCommand() *cli.Command {
	return &cli.Command{
		Name:  "fields",
		Usage: "Show the editor state a new (or --event) session would start with.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "event", Usage: "Seed from this event id in data_path"},
			&cli.StringFlag{Name: "format", Value: "table", Usage: "table or json"},
		},
		Action: func(c *cli.Context) error {
			conf, err := loadConfig(c)
			if err != nil {
				return err
			}
			fields, _, err := loadSchema(conf)
			if err != nil {
				return err
			}

			var seed editor.Seed
			if id := c.String("event"); id != "" {
				records, err := ics.LoadFile(conf.DataPath)
				if err != nil {
					return err
				}
				ev, ok := store.New(records).Get(id)
				if !ok {
					return fmt.Errorf("event %q not found in %s", id, conf.DataPath)
				}
				seed.Event = &ev
			}
			state := editor.InitialState(fields.Fields(), seed, time.Now)

			if c.String("format") == "json" {
				b, err := json.MarshalIndent(state, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(b))
				return nil
			}

			tw := tablewriter.NewWriter(os.Stdout)
			tw.SetHeader([]string{"Name", "Type", "Required", "Value", "Valid"})
			state.Each(func(it editor.StateItem) bool {
				tw.Append([]string{
					it.Name,
					string(it.Type),
					fmt.Sprint(it.Field().Required()),
					fmt.Sprint(it.Value.Raw()),
					fmt.Sprint(it.Validity),
				})
				return true
			})
			tw.Render()
			return nil
		},
	}
}

// occurrencesCommand lists expanded occurrences of the stored events.
func occurrencesCommand() *cli.Command {
	return &cli.Command{
		Name:  "occurrences",
		Usage: "List event occurrences in the next N days.",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "days", Value: 7, Usage: "Days ahead to expand"},
			&cli.IntFlag{Name: "backfill", Value: 0, Usage: "Days back to include"},
		},
		Action: func(c *cli.Context) error {
			conf, err := loadConfig(c)
			if err != nil {
				return err
			}
			records, err := ics.LoadFile(conf.DataPath)
			if err != nil {
				return err
			}
			loc := conf.Location()
			now := time.Now().In(loc)
			res, err := ics.ExpandOccurrences(records, ics.ExpandConfig{
				DisplayLocation: loc,
				RangeStart:      now.AddDate(0, 0, -c.Int("backfill")),
				RangeEnd:        now.AddDate(0, 0, c.Int("days")),
			})
			if err != nil {
				return err
			}

			tw := tablewriter.NewWriter(os.Stdout)
			tw.SetHeader([]string{"Start", "End", "Title", "Event"})
			for _, o := range res.Occurrences {
				layout := "2006-01-02 15:04"
				if o.AllDay {
					layout = "2006-01-02"
				}
				tw.Append([]string{o.Start.Format(layout), o.End.Format(layout), o.Title, o.EventID})
			}
			tw.Render()
			for _, id := range res.TruncatedEvents {
				fmt.Fprintf(os.Stderr, "warning: %s truncated\n", id)
			}
			return nil
		},
	}
}
