package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"text/tabwriter"

	"auroraexhibit/internal/contract"
	"auroraexhibit/internal/gallery"
	"auroraexhibit/internal/ipfs"
	"auroraexhibit/internal/models"

	"github.com/spf13/cobra"
)

var piecesCmd = &cobra.Command{
	Use:   "pieces",
	Short: "Browse the gallery",
}

var piecesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every piece",
	Args:  cobra.NoArgs,
	RunE:  runPiecesList,
}

var piecesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one piece",
	Args:  cobra.ExactArgs(1),
	RunE:  runPiecesShow,
}

var (
	mintTitle       string
	mintDescription string
	mintFile        string
	mintTags        string
	mintCategories  []string
	mintDemo        bool
)

var mintCmd = &cobra.Command{
	Use:   "mint",
	Short: "Mint a new piece",
	Long: `Mint a new piece. A description that is not already a content ref is
published to IPFS first when IPFS_API_URL is set. --demo mints the example piece.`,
	Args: cobra.NoArgs,
	RunE: runMint,
}

var applaudCmd = &cobra.Command{
	Use:   "applaud <id>",
	Short: "Applaud a piece",
	Args:  cobra.ExactArgs(1),
	RunE:  runApplaud,
}

var endorseCmd = &cobra.Command{
	Use:   "endorse <id> <category>",
	Short: "Endorse a piece in a category",
	Long:  "Endorse a piece in one of: " + categoryList(),
	Args:  cobra.ExactArgs(2),
	RunE:  runEndorse,
}

var decryptCategory string

var decryptCmd = &cobra.Command{
	Use:   "decrypt <id>",
	Short: "Decrypt a piece's like count, or a category tally with --category",
	Args:  cobra.ExactArgs(1),
	RunE:  runDecrypt,
}

func init() {
	mintCmd.Flags().StringVar(&mintTitle, "title", "", "Piece title")
	mintCmd.Flags().StringVar(&mintDescription, "description", "", "Description text or content ref")
	mintCmd.Flags().StringVar(&mintFile, "file", "", "Artwork file ref (e.g. ipfs://...)")
	mintCmd.Flags().StringVar(&mintTags, "tags", "", "Comma separated tags")
	mintCmd.Flags().StringSliceVar(&mintCategories, "category", nil, "Category id (repeatable): "+categoryList())
	mintCmd.Flags().BoolVar(&mintDemo, "demo", false, "Mint the example piece")

	decryptCmd.Flags().StringVar(&decryptCategory, "category", "", "Decrypt this category's tally instead of likes")
}

func categoryList() string {
	ids := make([]string, len(contract.Categories))
	for i, c := range contract.Categories {
		ids[i] = string(c)
	}
	return strings.Join(ids, ", ")
}

func parsePieceID(raw string) (uint64, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid piece id %q", contract.ErrInvalidPiece, raw)
	}
	return id, nil
}

// withApp runs fn against a started app and decorates failures with their kind
func withApp(fn func(ctx context.Context, a *app) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	a, err := startApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := fn(ctx, a); err != nil {
		return fmt.Errorf("[%s] %w", gallery.Classify(err), err)
	}
	return nil
}

func runPiecesList(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		sess := a.service.Sessions().New()
		pieces, err := a.service.Refresh(ctx, sess)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTITLE\tARTIST\tCATEGORIES\tTAGS")
		for _, p := range pieces {
			cats := make([]string, len(p.Categories))
			for i, c := range p.Categories {
				cats[i] = c.Label()
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
				p.ID, p.Title, p.Artist.Hex(), strings.Join(cats, ", "), strings.Join(p.Tags, ", "))
		}
		return tw.Flush()
	})
}

func runPiecesShow(cmd *cobra.Command, args []string) error {
	id, err := parsePieceID(args[0])
	if err != nil {
		return err
	}
	return withApp(func(ctx context.Context, a *app) error {
		p, err := a.service.Piece(ctx, id)
		if err != nil {
			return err
		}
		if err := printJSON(cmd.OutOrStdout(), p); err != nil {
			return err
		}

		if a.ipfs != nil && ipfs.IsRef(p.DescriptionHash) {
			data, err := a.ipfs.Fetch(ctx, p.DescriptionHash)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "description unavailable: %v\n", err)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n", data)
		}
		return nil
	})
}

func runMint(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		sess := a.service.Sessions().New()

		var (
			res *gallery.TxResult
			err error
		)
		if mintDemo {
			res, err = a.service.QuickDemo(ctx, sess)
		} else {
			form := gallery.MintForm{
				Title:       mintTitle,
				Description: mintDescription,
				FileRef:     mintFile,
				Tags:        mintTags,
			}
			for _, c := range mintCategories {
				form.Categories = append(form.Categories, contract.Category(strings.TrimSpace(c)))
			}
			res, err = a.service.Mint(ctx, sess, form)
		}
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), models.TxResponse{TxHash: res.TxHash, PieceID: res.PieceID, Message: sess.Message()})
	})
}

func runApplaud(cmd *cobra.Command, args []string) error {
	id, err := parsePieceID(args[0])
	if err != nil {
		return err
	}
	return withApp(func(ctx context.Context, a *app) error {
		sess := a.service.Sessions().New()
		res, err := a.service.Applaud(ctx, sess, id)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), models.TxResponse{TxHash: res.TxHash, PieceID: res.PieceID, Message: sess.Message()})
	})
}

func runEndorse(cmd *cobra.Command, args []string) error {
	id, err := parsePieceID(args[0])
	if err != nil {
		return err
	}
	category, err := contract.ParseCategory(args[1])
	if err != nil {
		return err
	}
	return withApp(func(ctx context.Context, a *app) error {
		sess := a.service.Sessions().New()
		res, err := a.service.Endorse(ctx, sess, id, category)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), models.TxResponse{TxHash: res.TxHash, PieceID: res.PieceID, Message: sess.Message()})
	})
}

func runDecrypt(cmd *cobra.Command, args []string) error {
	id, err := parsePieceID(args[0])
	if err != nil {
		return err
	}
	return withApp(func(ctx context.Context, a *app) error {
		sess := a.service.Sessions().New()
		if decryptCategory != "" {
			v, err := a.service.DecryptTally(ctx, sess, id, contract.Category(decryptCategory))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), models.DecryptResponse{PieceID: id, Category: decryptCategory, Value: v.String()})
		}

		v, err := a.service.DecryptLikes(ctx, sess, id)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), models.DecryptResponse{PieceID: id, Value: v.String()})
	})
}
