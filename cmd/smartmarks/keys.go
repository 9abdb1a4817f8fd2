package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/urfave/cli/v2"
)

func keysCommand() *cli.Command {
	return &cli.Command{
		Name:  "keys",
		Usage: "manage API keys for scripts and other machines",
		Subcommands: []*cli.Command{
			{
				Name:  "create",
				Usage: "create a key; it is only shown once",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "description", Aliases: []string{"d"}},
				},
				Action: func(c *cli.Context) error {
					st, err := loadSignedIn(c)
					if err != nil {
						return err
					}
					key, err := st.api.CreateAPIKey(c.Context, c.String("description"))
					if err != nil {
						return explain(err)
					}
					st.printf("%s\n", key.Key)
					return nil
				},
			},
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Action: func(c *cli.Context) error {
					st, err := loadSignedIn(c)
					if err != nil {
						return err
					}
					keys, err := st.api.ListAPIKeys(c.Context)
					if err != nil {
						return explain(err)
					}
					tw := tabwriter.NewWriter(st.out, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "ID\tPREFIX\tDESCRIPTION\tLAST USED")
					for _, k := range keys {
						used := "never"
						if k.LastUsedAt != nil {
							used = k.LastUsedAt.Local().Format("2006-01-02 15:04")
						}
						fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", k.ID, k.KeyPrefix, k.Description, used)
					}
					return tw.Flush()
				},
			},
			{
				Name:      "rm",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					id, err := strconv.ParseUint(c.Args().First(), 10, 64)
					if err != nil {
						return cli.Exit("usage: smartmarks keys rm <id>", 1)
					}
					st, err := loadSignedIn(c)
					if err != nil {
						return err
					}
					if err := st.api.DeleteAPIKey(c.Context, uint(id)); err != nil {
						return explain(err)
					}
					st.printf("Deleted key %d\n", id)
					return nil
				},
			},
		},
	}
}
