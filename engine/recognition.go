package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
)

// CardRecognitionService turns zoomed card captures into validated card attrs.
// Unknown cards are resolved with the operator's help and then remembered.
type CardRecognitionService struct {
	p         *Perception
	templates CardTemplates
	catalog   Catalog
	operator  Operator
}

func NewCardRecognitionService(p *Perception, templates CardTemplates, catalog Catalog, operator Operator) *CardRecognitionService {
	return &CardRecognitionService{
		p:         p,
		templates: templates,
		catalog:   catalog,
		operator:  operator,
	}
}

// Identify returns the id of the best scoring template. The score has to be
// strictly above the card match threshold and the first registered template
// wins an exact tie.
func (s *CardRecognitionService) Identify(cardImage image.Image) (string, bool) {
	if cardImage == nil {
		return "", false
	}

	bestID := ""
	bestScore := s.p.Layout.Thresholds.CardMatch

	for _, template := range s.templates.Templates() {
		_, score, err := s.p.Vision.MatchTemplate(cardImage, template.Image)
		if err != nil {
			internalLogger.V(1).Info("card template skipped", "id", template.ID, "err", err.Error())
			continue
		}

		if score > bestScore {
			bestScore = score
			bestID = template.ID
		}
	}

	if bestID == "" {
		return "", false
	}

	internalLogger.V(1).Info("card identified", "id", bestID, "score", bestScore)
	return bestID, true
}

// Resolve looks up an identified card in the catalog
func (s *CardRecognitionService) Resolve(id string) (CardAttrs, bool) {
	attrs, ok := s.catalog.ByID(id)
	if !ok {
		internalLogger.Info("no catalog entry for identified card", "id", id)
		return CardAttrs{}, false
	}

	if err := attrs.Validate(); err != nil {
		internalLogger.Error(err, "catalog returned invalid card attrs")
		return CardAttrs{}, false
	}

	return attrs, true
}

// Recognize identifies and resolves a capture without asking the operator
func (s *CardRecognitionService) Recognize(cardImage image.Image) (CardAttrs, bool) {
	id, ok := s.Identify(cardImage)
	if !ok {
		return CardAttrs{}, false
	}

	return s.Resolve(id)
}

// HandleUnknown asks the operator for the name of a card no template matched.
// Every wait on the operator is bounded, and an unanswered prompt fails only
// this recognition.
func (s *CardRecognitionService) HandleUnknown(ctx context.Context, cardImage image.Image) (CardAttrs, error) {
	timings := s.p.Layout.Timings

	name, err := askOperator(ctx, timings.PromptTimeout, func(ctx context.Context) (string, error) {
		return s.operator.RequestCardName(ctx, cardImage)
	})
	if err != nil {
		return CardAttrs{}, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return CardAttrs{}, ErrOperatorCancelled
	}

	matches := lo.Filter(s.catalog.ByNameSubstring(name), func(attrs CardAttrs, _ int) bool {
		return attrs.Validate() == nil
	})

	var chosen CardAttrs
	switch len(matches) {
	case 0:
		internalLogger.Info("no catalog cards match operator input", "name", name)
		return CardAttrs{}, fmt.Errorf("%w: no card named like %q", ErrRecognitionFailed, name)
	case 1:
		chosen = matches[0]
	default:
		options := s.RankOptions(ctx, cardImage, matches)
		picked, err := askOperator(ctx, timings.OptionsTimeout, func(ctx context.Context) (CardOption, error) {
			return s.operator.PresentCardOptions(ctx, options, cardImage)
		})
		if err != nil {
			return CardAttrs{}, err
		}
		chosen = picked.Attrs
	}

	if err := chosen.Validate(); err != nil {
		return CardAttrs{}, fmt.Errorf("%w: %w", ErrRecognitionFailed, err)
	}

	s.remember(chosen, cardImage)
	internalLogger.Info("unknown card resolved by operator", "id", chosen.ID, "name", chosen.Name)

	return chosen, nil
}

// askOperator bounds one operator request. A timeout or an operator cancel
// becomes ErrOperatorCancelled; a cancelled run is returned as is.
func askOperator[T any](ctx context.Context, timeout time.Duration, ask func(context.Context) (T, error)) (T, error) {
	promptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	answer, err := ask(promptCtx)
	if err == nil {
		return answer, nil
	}

	var zero T
	if ctx.Err() != nil {
		return zero, ctx.Err()
	}
	if errors.Is(err, ErrOperatorCancelled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		internalLogger.Info("operator did not answer", "timeout", timeout.String())
		return zero, ErrOperatorCancelled
	}

	return zero, err
}

func (s *CardRecognitionService) remember(attrs CardAttrs, cardImage image.Image) {
	if err := s.templates.Add(attrs.ID, cardImage); err != nil {
		internalLogger.Error(err, "could not save card template", "id", attrs.ID)
	}
	if err := s.catalog.Remember(attrs); err != nil {
		internalLogger.Error(err, "could not save card attrs", "id", attrs.ID)
	}
}

// RankOptions scores every candidate's art against the capture, best first.
// Candidates whose art cannot be fetched are kept with a zero score.
func (s *CardRecognitionService) RankOptions(ctx context.Context, cardImage image.Image, candidates []CardAttrs) []CardOption {
	size := s.p.Layout.ArtDimensions()
	capture := s.p.Vision.Resize(cardImage, size)

	if prefetcher, ok := s.catalog.(ArtPrefetcher); ok {
		ids := lo.Map(candidates, func(attrs CardAttrs, _ int) string { return attrs.ID })
		if err := prefetcher.PrefetchArt(ctx, ids); err != nil {
			internalLogger.Info("prefetching card art", "err", err.Error())
		}
	}

	options := lo.Map(candidates, func(attrs CardAttrs, _ int) CardOption {
		option := CardOption{Attrs: attrs}

		art, err := s.catalog.CardArt(ctx, attrs.ID)
		if err != nil {
			internalLogger.Info("card art unavailable", "id", attrs.ID, "err", err.Error())
			return option
		}

		option.Art = art
		option.Score = s.p.Vision.Similarity(s.p.Vision.Resize(art, size), capture)
		return option
	})

	slices.SortStableFunc(options, func(a, b CardOption) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})

	return options
}

// ZoomAndRecognize long-presses a board or hand position and recognizes the
// zoomed card without involving the operator.
func (s *CardRecognitionService) ZoomAndRecognize(ctx context.Context, at Point, press time.Duration) (CardAttrs, bool, error) {
	cardImage, err := s.p.ZoomCard(ctx, at, press)
	if err != nil {
		return CardAttrs{}, false, err
	}

	attrs, ok := s.Recognize(cardImage)
	return attrs, ok, nil
}

// ReadHandCard recognizes the card at a hand position without operator help.
// An unrecognized card comes back as an unknown placeholder.
func (s *CardRecognitionService) ReadHandCard(ctx context.Context, position int, handSize int) (HandCard, error) {
	if err := s.p.ResetView(ctx); err != nil {
		return HandCard{}, err
	}

	at := s.p.Layout.HandCardPoint(position, handSize)
	attrs, ok, err := s.ZoomAndRecognize(ctx, at, s.p.Layout.Timings.HandZoomPress)
	if err != nil || !ok {
		return HandCard{Position: position}, err
	}

	return HandCard{CardID: attrs.ID, Position: position, Attrs: attrs}, nil
}

// ScanHand reads every card in a hand of handSize cards, left to right. Cards
// that stay unknown after asking the operator are kept as placeholders so the
// positions still match the screen.
func (s *CardRecognitionService) ScanHand(ctx context.Context, handSize int) ([]HandCard, error) {
	layout := s.p.Layout
	hand := make([]HandCard, 0, handSize)

	for position := range handSize {
		if err := s.p.ResetView(ctx); err != nil {
			return nil, err
		}

		cardImage, err := s.p.ZoomCard(ctx, layout.HandCardPoint(position, handSize), layout.Timings.HandZoomPress)
		if err != nil {
			return nil, err
		}

		card := HandCard{Position: position}

		attrs, ok := s.Recognize(cardImage)
		if !ok {
			attrs, err = s.HandleUnknown(ctx, cardImage)
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			ok = err == nil
			if err != nil {
				internalLogger.Info("card left unknown", "position", position, "err", err.Error())
			}
		}

		if ok {
			card.CardID = attrs.ID
			card.Attrs = attrs
		}

		hand = append(hand, card)
	}

	internalLogger.Info("hand scanned", "cards", lo.Map(hand, func(c HandCard, _ int) string { return c.String() }))
	return hand, nil
}
