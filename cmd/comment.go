package cmd

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"

	"github.com/joescharf/be/internal/store"
)

var (
	commentFile        string
	commentReplyTo     string
	commentAuthor      string
	commentContentType string
	commentAltID       string
)

var commentCmd = &cobra.Command{
	Use:   "comment <bug-id> [body]",
	Short: "Add a comment to a bug",
	Long: `Add a comment to a bug. The body comes from the argument, from --file,
or from stdin when the body is "-". The content type of a --file body is
detected from its contents unless --content-type is given.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := ""
		if len(args) > 1 {
			body = args[1]
		}
		return commentRun(args[0], body)
	},
}

func init() {
	commentCmd.Flags().StringVarP(&commentFile, "file", "f", "", "Read the body from a file")
	commentCmd.Flags().StringVarP(&commentReplyTo, "reply-to", "r", "", "Comment id or alt-id to reply to")
	commentCmd.Flags().StringVar(&commentAuthor, "author", "", "Author (default: the current user)")
	commentCmd.Flags().StringVarP(&commentContentType, "content-type", "c", "", "Body media type (default text/plain)")
	commentCmd.Flags().StringVar(&commentAltID, "alt-id", "", "External id of the comment")
	rootCmd.AddCommand(commentCmd)
}

// commentBody returns the body and, for file input, its detected type.
func commentBody(arg string, stdin io.Reader) ([]byte, string, error) {
	switch {
	case commentFile != "" && arg != "":
		return nil, "", fmt.Errorf("give the body as an argument or with --file, not both")
	case commentFile != "":
		data, err := os.ReadFile(commentFile)
		if err != nil {
			return nil, "", fmt.Errorf("read file: %w", err)
		}
		return data, detectContentType(data), nil
	case arg == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, "", fmt.Errorf("read stdin: %w", err)
		}
		return data, "", nil
	case arg == "":
		return nil, "", fmt.Errorf("comment body is empty")
	}
	body := arg
	if body[len(body)-1] != '\n' {
		body += "\n"
	}
	return []byte(body), "", nil
}

// detectContentType sniffs data and drops parameters such as charset.
func detectContentType(data []byte) string {
	mt, _, err := mime.ParseMediaType(mimetype.Detect(data).String())
	if err != nil {
		return ""
	}
	return mt
}

func commentRun(ref, arg string) error {
	body, detected, err := commentBody(arg, os.Stdin)
	if err != nil {
		return err
	}

	ctx := context.Background()
	r, d, err := loadAll(ctx)
	if err != nil {
		return err
	}
	b, cat, err := findBug(d, ref)
	if err != nil {
		return err
	}

	opts := store.CommentOptions{
		Author:      commentAuthor,
		ContentType: commentContentType,
		AltID:       commentAltID,
	}
	if opts.ContentType == "" && detected != "" && detected != "text/plain" {
		opts.ContentType = detected
	}
	if commentReplyTo != "" {
		if opts.Parent, err = cat.ResolveComment(b, commentReplyTo); err != nil {
			return fmt.Errorf("reply to %q: %w", commentReplyTo, err)
		}
	}

	if dryRun {
		ui.DryRunMsg("Would add a %d byte comment to %s", len(body), bugName(cat, b))
		return nil
	}

	c, err := r.AddComment(ctx, d, b, body, opts)
	if err != nil {
		return saved(fmt.Errorf("add comment: %w", err))
	}
	ui.Success("Added comment %s to %s", c.UUID, bugName(cat, b))
	return nil
}
