package main

import (
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strconv"
	"text/tabwriter"

	"github.com/atotto/clipboard"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/mikepea/smartmarks/pkg/smartmarks/client"
	"github.com/mikepea/smartmarks/pkg/smartmarks/models"
)

func viewFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "q", Usage: "only show bookmarks whose title or url contains this"},
		&cli.BoolFlag{Name: "fuzzy", Usage: "fuzzy match --q instead of substring"},
		&cli.StringFlag{Name: "sort", Value: "manual", Usage: "manual, newest, oldest, az or za"},
	}
}

// dashboard loads the list and applies the view flags, if the command has
// them.
func dashboard(c *cli.Context) (*state, *client.Dashboard, error) {
	st, err := loadSignedIn(c)
	if err != nil {
		return nil, nil, err
	}
	d := client.NewDashboard(st.api)
	if err := d.Load(c.Context); err != nil {
		return nil, nil, explain(err)
	}
	d.SetSearch(c.String("q"), c.Bool("fuzzy"))
	if err := d.SetSort(c.String("sort")); err != nil {
		return nil, nil, err
	}
	return st, d, nil
}

// pick resolves a command argument to a bookmark: a 1-based position in
// the visible list, or an id.
func pick(d *client.Dashboard, arg string) (models.Bookmark, error) {
	if n, err := strconv.Atoi(arg); err == nil {
		return d.At(n - 1)
	}
	for _, b := range d.Bookmarks {
		if b.ID == arg {
			return b, nil
		}
	}
	return models.Bookmark{}, client.ErrNoSuchItem
}

func position(arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 {
		return 0, errors.Errorf("%q is not a list position", arg)
	}
	return n - 1, nil
}

func printList(w io.Writer, list []models.Bookmark) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No bookmarks yet. Add one with \"smartmarks add <url>\".")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for i, b := range list {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", i+1, b.Title, b.URL)
	}
	tw.Flush()
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "show bookmarks",
		Flags:   viewFlags(),
		Action: func(c *cli.Context) error {
			st, d, err := dashboard(c)
			if err != nil {
				return err
			}
			printList(st.out, d.Visible())
			return nil
		},
	}
}

func addCommand() *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "save a bookmark; an empty --title defaults to the host name",
		ArgsUsage: "<url>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "title", Usage: "bookmark title"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("usage: smartmarks add <url>", 1)
			}
			st, err := loadSignedIn(c)
			if err != nil {
				return err
			}
			b, err := client.NewDashboard(st.api).Add(c.Context, c.String("title"), c.Args().First())
			if err != nil {
				return explain(err)
			}
			st.printf("Added %q (%s)\n", b.Title, b.URL)
			return nil
		},
	}
}

func editCommand() *cli.Command {
	return &cli.Command{
		Name:      "edit",
		Usage:     "change a bookmark's title or url",
		ArgsUsage: "<position|id>",
		Flags: append(viewFlags(),
			&cli.StringFlag{Name: "title", Usage: "new title"},
			&cli.StringFlag{Name: "url", Usage: "new url"},
		),
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 || (!c.IsSet("title") && !c.IsSet("url")) {
				return cli.Exit("usage: smartmarks edit [--title T] [--url U] <position|id>", 1)
			}
			st, d, err := dashboard(c)
			if err != nil {
				return err
			}
			b, err := pick(d, c.Args().First())
			if err != nil {
				return err
			}
			if err := d.StartEdit(b.ID); err != nil {
				return err
			}
			if c.IsSet("title") {
				d.Editing.Title = c.String("title")
			}
			if c.IsSet("url") {
				d.Editing.URL = c.String("url")
			}
			saved, err := d.SaveEdit(c.Context)
			if err != nil {
				return explain(err)
			}
			st.printf("Saved %q (%s)\n", saved.Title, saved.URL)
			return nil
		},
	}
}

func rmCommand() *cli.Command {
	return &cli.Command{
		Name:      "rm",
		Usage:     "move a bookmark to the trash",
		ArgsUsage: "<position|id>",
		Flags:     viewFlags(),
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("usage: smartmarks rm <position|id>", 1)
			}
			st, d, err := dashboard(c)
			if err != nil {
				return err
			}
			b, err := pick(d, c.Args().First())
			if err != nil {
				return err
			}
			if err := d.Delete(c.Context, b.ID); err != nil {
				return explain(err)
			}
			st.printf("Moved %q to the trash\n", b.Title)
			return nil
		},
	}
}

func mvCommand() *cli.Command {
	return &cli.Command{
		Name:      "mv",
		Usage:     "move a bookmark to another position",
		ArgsUsage: "<from> <to>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return cli.Exit("usage: smartmarks mv <from> <to>", 1)
			}
			from, err := position(c.Args().Get(0))
			if err != nil {
				return err
			}
			to, err := position(c.Args().Get(1))
			if err != nil {
				return err
			}
			st, d, err := dashboard(c)
			if err != nil {
				return err
			}
			if err := d.Reorder(c.Context, from, to); err != nil {
				return explain(err)
			}
			printList(st.out, d.Visible())
			return nil
		},
	}
}

func copyCommand() *cli.Command {
	return &cli.Command{
		Name:      "copy",
		Usage:     "copy a bookmark's url to the clipboard",
		ArgsUsage: "<position|id>",
		Flags:     viewFlags(),
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("usage: smartmarks copy <position|id>", 1)
			}
			st, d, err := dashboard(c)
			if err != nil {
				return err
			}
			b, err := pick(d, c.Args().First())
			if err != nil {
				return err
			}
			if err := clipboard.WriteAll(b.URL); err != nil {
				return errors.Wrap(err, "copy to clipboard")
			}
			st.printf("Copied %s\n", b.URL)
			return nil
		},
	}
}

func openCommand() *cli.Command {
	return &cli.Command{
		Name:      "open",
		Usage:     "open a bookmark in the browser",
		ArgsUsage: "<position|id>",
		Flags:     viewFlags(),
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("usage: smartmarks open <position|id>", 1)
			}
			_, d, err := dashboard(c)
			if err != nil {
				return err
			}
			b, err := pick(d, c.Args().First())
			if err != nil {
				return err
			}
			openBrowser(b.URL)
			return nil
		},
	}
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "print the list every time it changes, until interrupted",
		Flags: viewFlags(),
		Action: func(c *cli.Context) error {
			st, d, err := dashboard(c)
			if err != nil {
				return err
			}
			err = st.api.Watch(c.Context, func(list []models.Bookmark) {
				d.Apply(list)
				st.printf("\n")
				printList(st.out, d.Visible())
			})
			return explain(err)
		},
	}
}

// openBrowser opens url in the default browser.
func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	}
	if cmd != nil {
		_ = cmd.Start()
	}
}
