package gallery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"auroraexhibit/internal/contract"
	"auroraexhibit/internal/ipfs"
	"auroraexhibit/internal/session"
)

// MintForm is the user's mint draft
type MintForm = session.MintForm

// ExampleForm returns the sample piece offered by "fill example"
func ExampleForm() MintForm {
	return MintForm{
		Title:       "Moonlit Mystery",
		Description: "ipfs://QmExampleDescriptionHash123",
		FileRef:     "ipfs://QmExampleFileHash456",
		Tags:        "photography, black and white, moon, art",
		Categories:  []contract.Category{contract.CategoryPhotography},
	}
}

// MintRequestFromForm validates the form and converts it into contract arguments.
// It does no network work.
func MintRequestFromForm(f MintForm) (contract.MintRequest, error) {
	req := contract.MintRequest{
		Title:           strings.TrimSpace(f.Title),
		DescriptionHash: strings.TrimSpace(f.Description),
		FileHash:        strings.TrimSpace(f.FileRef),
		Tags:            contract.ParseTags(f.Tags),
		Categories:      f.Categories,
	}
	if err := contract.ValidateMint(req); err != nil {
		return contract.MintRequest{}, err
	}
	return req, nil
}

// Mint validates and mints the form. The draft is kept in the session on any
// failure and cleared once the mint is confirmed.
func (s *Service) Mint(ctx context.Context, sess *session.Session, form MintForm) (*TxResult, error) {
	sess.SetDraft(form)

	res, err := s.mint(ctx, form)
	if err != nil {
		sess.SetMessage("Mint failed: " + err.Error())
		return nil, err
	}

	sess.ClearDraft()
	sess.SetMessage(fmt.Sprintf("Minted %q as piece #%d", strings.TrimSpace(form.Title), res.PieceID))
	return res, nil
}

// QuickDemo mints the example piece without touching the session draft
func (s *Service) QuickDemo(ctx context.Context, sess *session.Session) (*TxResult, error) {
	res, err := s.mint(ctx, ExampleForm())
	if err != nil {
		sess.SetMessage("Demo mint failed: " + err.Error())
		return nil, err
	}
	sess.SetMessage(fmt.Sprintf("Demo piece minted as #%d", res.PieceID))
	return res, nil
}

func (s *Service) mint(ctx context.Context, form MintForm) (*TxResult, error) {
	req, err := MintRequestFromForm(form)
	if err != nil {
		return nil, err
	}
	adapter, _, err := s.current()
	if err != nil {
		return nil, err
	}
	if !adapter.CanAct() {
		return nil, contract.ErrUnavailable
	}

	if s.opts.Content != nil && req.DescriptionHash != "" && !ipfs.IsRef(req.DescriptionHash) {
		ref, err := s.opts.Content.Publish(ctx, []byte(req.DescriptionHash))
		if err != nil {
			return nil, fmt.Errorf("failed to publish description: %w", err)
		}
		req.DescriptionHash = ref
	}

	pending, err := adapter.SubmitMint(ctx, req)
	if err != nil {
		return nil, err
	}
	receipt, err := adapter.Confirm(ctx, pending)
	if err != nil {
		return nil, err
	}
	id, err := adapter.MintedPieceID(receipt)
	if err != nil {
		return nil, err
	}

	slog.Info("✅ Piece minted", "piece_id", id, "title", req.Title, "tx_hash", pending.Hash.Hex())
	return &TxResult{TxHash: pending.Hash.Hex(), PieceID: id}, nil
}
