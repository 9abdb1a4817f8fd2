package main

import (
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

func importCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "add bookmarks from a browser's exported HTML file",
		ArgsUsage: "<file.html>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("usage: smartmarks import <file.html>", 1)
			}
			doc, err := os.ReadFile(c.Args().First())
			if err != nil {
				return errors.Wrap(err, "read import file")
			}
			st, err := loadSignedIn(c)
			if err != nil {
				return err
			}
			res, err := st.api.ImportHTML(c.Context, doc)
			if err != nil {
				return explain(err)
			}
			st.printf("Imported %d, skipped %d\n", res.Imported, res.Skipped)
			for _, e := range res.Errors {
				st.printf("  %s\n", e)
			}
			return nil
		},
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "write all bookmarks as JSON or browser HTML",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Value: "html", Usage: "html or json"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "file to write (default: stdout)"},
		},
		Action: func(c *cli.Context) error {
			st, err := loadSignedIn(c)
			if err != nil {
				return err
			}
			data, err := st.api.Export(c.Context, c.String("format"))
			if err != nil {
				return explain(err)
			}
			if path := c.String("output"); path != "" {
				if err := os.WriteFile(path, data, 0o644); err != nil {
					return errors.Wrap(err, "write export file")
				}
				st.printf("Wrote %s\n", path)
				return nil
			}
			_, err = st.out.Write(data)
			return err
		},
	}
}
