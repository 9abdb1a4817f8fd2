package main

import (
	"context"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/mikepea/smartmarks/pkg/smartmarks/client"
	"github.com/mikepea/smartmarks/pkg/smartmarks/models"
)

func openTrash(c *cli.Context) (*state, *client.Trash, error) {
	st, err := loadSignedIn(c)
	if err != nil {
		return nil, nil, err
	}
	t := client.NewTrash(st.api)
	if err := t.Load(c.Context); err != nil {
		return nil, nil, explain(err)
	}
	return st, t, nil
}

// pickTrashed resolves a 1-based trash position or an id.
func pickTrashed(t *client.Trash, arg string) (models.Bookmark, error) {
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(t.Bookmarks) {
			return models.Bookmark{}, client.ErrNoSuchItem
		}
		return t.Bookmarks[n-1], nil
	}
	for _, b := range t.Bookmarks {
		if b.ID == arg {
			return b, nil
		}
	}
	return models.Bookmark{}, client.ErrNoSuchItem
}

func trashCommand() *cli.Command {
	return &cli.Command{
		Name:  "trash",
		Usage: "show deleted bookmarks",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "empty", Usage: "delete everything in the trash forever"},
		},
		Action: func(c *cli.Context) error {
			st, t, err := openTrash(c)
			if err != nil {
				return err
			}
			if c.Bool("empty") {
				n := len(t.Bookmarks)
				if err := t.Empty(c.Context); err != nil {
					return explain(err)
				}
				st.printf("Deleted %d bookmarks forever\n", n)
				return nil
			}
			if t.IsEmpty() {
				st.printf("%s\n", client.EmptyTrashMessage)
				return nil
			}
			printList(st.out, t.Bookmarks)
			return nil
		},
	}
}

func trashAction(usage string, fn func(ctx context.Context, st *state, t *client.Trash, b models.Bookmark) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		if c.NArg() != 1 {
			return cli.Exit(usage, 1)
		}
		st, t, err := openTrash(c)
		if err != nil {
			return err
		}
		b, err := pickTrashed(t, c.Args().First())
		if err != nil {
			return err
		}
		return explain(fn(c.Context, st, t, b))
	}
}

func restoreCommand() *cli.Command {
	return &cli.Command{
		Name:      "restore",
		Usage:     "put a deleted bookmark back at the end of the list",
		ArgsUsage: "<trash position|id>",
		Action: trashAction("usage: smartmarks restore <trash position|id>",
			func(ctx context.Context, st *state, t *client.Trash, b models.Bookmark) error {
				restored, err := t.Restore(ctx, b.ID)
				if err != nil {
					return err
				}
				st.printf("Restored %q\n", restored.Title)
				return nil
			}),
	}
}

func purgeCommand() *cli.Command {
	return &cli.Command{
		Name:      "purge",
		Usage:     "delete a bookmark in the trash forever",
		ArgsUsage: "<trash position|id>",
		Action: trashAction("usage: smartmarks purge <trash position|id>",
			func(ctx context.Context, st *state, t *client.Trash, b models.Bookmark) error {
				if err := t.Purge(ctx, b.ID); err != nil {
					return err
				}
				st.printf("Deleted %q forever\n", b.Title)
				return nil
			}),
	}
}
