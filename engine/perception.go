package engine

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"time"
)

// Device is the touch-screen bridge. Implementations serialize their own calls
// and bound every call with a timeout.
type Device interface {
	Screenshot(ctx context.Context) (image.Image, error)
	Tap(ctx context.Context, p Point) error
	Drag(ctx context.Context, from, to Point, duration time.Duration) error
	// LongPress holds p for duration and returns a screenshot taken mid-press
	LongPress(ctx context.Context, p Point, duration time.Duration) (image.Image, error)
	ListDevices(ctx context.Context) ([]DeviceInfo, error)
	// ConnectAndEnsureReady runs the session's own reconnect policy. false is fatal.
	ConnectAndEnsureReady(ctx context.Context) bool
	Serial() string
}

type Vision interface {
	// MatchTemplate returns the centre of the best match and its score
	MatchTemplate(screenshot, template image.Image) (Point, float64, error)
	// Similarity is in [0,1] and 0 when the images differ in size
	Similarity(a, b image.Image) float64
	ExtractDigits(img image.Image) (string, bool)
	Resize(img image.Image, size image.Point) image.Image
}

type Catalog interface {
	ByID(id string) (CardAttrs, bool)
	ByNameSubstring(text string) []CardAttrs
	// Remember persists normalized attrs so future lookups by id resolve locally
	Remember(attrs CardAttrs) error
	CardArt(ctx context.Context, id string) (image.Image, error)
}

// ArtPrefetcher is an optional Catalog extension that downloads several card
// arts at once before they are ranked
type ArtPrefetcher interface {
	PrefetchArt(ctx context.Context, ids []string) error
}

type CardTemplate struct {
	ID    string
	Image image.Image
}

type CardTemplates interface {
	// Templates are returned in registration order
	Templates() []CardTemplate
	Add(id string, img image.Image) error
}

type CardOption struct {
	Attrs CardAttrs
	Art   image.Image
	Score float64
}

// Operator is the human in the loop. Both calls block until the operator
// answers or ctx is done; an unanswered prompt returns ErrOperatorCancelled.
type Operator interface {
	RequestCardName(ctx context.Context, img image.Image) (string, error)
	PresentCardOptions(ctx context.Context, options []CardOption, img image.Image) (CardOption, error)
}

// Sleeper waits for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Perception bundles the device and vision collaborators with the cue images
// and the layout in effect for the current battle.
type Perception struct {
	Device Device
	Vision Vision
	Cues   Cues
	Layout *Layout
	Sleep  Sleeper
}

func (p *Perception) wait(ctx context.Context, d time.Duration) error {
	if p.Sleep == nil {
		return Sleep(ctx, d)
	}

	return p.Sleep(ctx, d)
}

func (p *Perception) Screenshot(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return p.Device.Screenshot(ctx)
}

// Check scores cue against screenshot. Absence is a normal outcome, so a missing
// cue image or a failed match is reported as not found.
func (p *Perception) Check(screenshot image.Image, cue Cue, threshold float64) (Point, bool) {
	template, ok := p.Cues[cue]
	if !ok || screenshot == nil {
		internalLogger.V(1).Info("cue not loaded", "cue", cue)
		return Point{}, false
	}

	loc, score, err := p.Vision.MatchTemplate(screenshot, template)
	if err != nil {
		internalLogger.Error(err, "template match failed", "cue", cue)
		return Point{}, false
	}

	found := score > threshold
	internalLogger.V(1).Info("cue checked", "cue", cue, "score", score, "found", found)

	return loc, found
}

func (p *Perception) CheckAndTap(ctx context.Context, screenshot image.Image, cue Cue, threshold float64) (bool, error) {
	loc, found := p.Check(screenshot, cue, threshold)
	if !found {
		return false, nil
	}

	if err := p.Device.Tap(ctx, loc); err != nil {
		return false, fmt.Errorf("tapping %s: %w", cue, err)
	}

	return true, nil
}

// PollUntilFound takes a screenshot per attempt and taps the cue as soon as it
// scores above threshold. Running out of attempts is not an error.
func (p *Perception) PollUntilFound(ctx context.Context, cue Cue, maxAttempts int, threshold float64) (bool, error) {
	for attempt := range maxAttempts {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		screenshot, err := p.Device.Screenshot(ctx)
		if err != nil {
			internalLogger.Info("screenshot failed while polling", "cue", cue, "attempt", attempt, "err", err.Error())
		} else {
			tapped, err := p.CheckAndTap(ctx, screenshot, cue, threshold)
			if err != nil {
				return false, err
			}
			if tapped {
				return true, nil
			}
		}

		if attempt < maxAttempts-1 {
			if err := p.wait(ctx, p.Layout.Polling.Interval); err != nil {
				return false, err
			}
		}
	}

	internalLogger.Info("gave up polling", "cue", cue, "attempts", maxAttempts)
	return false, nil
}

func (p *Perception) CaptureRegion(ctx context.Context, region Region) (image.Image, error) {
	screenshot, err := p.Screenshot(ctx)
	if err != nil {
		return nil, err
	}

	return Crop(screenshot, region.Rect()), nil
}

// ZoomCard long-presses a card so the game shows its zoomed version and
// returns the zoom area of that frame.
func (p *Perception) ZoomCard(ctx context.Context, at Point, press time.Duration) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	frame, err := p.Device.LongPress(ctx, at, press)
	if err != nil {
		return nil, fmt.Errorf("zooming card at %s: %w", at, err)
	}

	return Crop(frame, p.Layout.ZoomRegion.Rect()), nil
}

// ResetView double taps an inert edge of the board to close any open overlay
func (p *Perception) ResetView(ctx context.Context) error {
	for range 2 {
		if err := p.Device.Tap(ctx, p.Layout.ResetTap); err != nil {
			return err
		}
	}

	return nil
}

func (p *Perception) TapAll(ctx context.Context, points ...Point) error {
	for _, point := range points {
		if err := p.Device.Tap(ctx, point); err != nil {
			return err
		}
	}

	return nil
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// Crop returns the part of img inside r, clipped to img's bounds
func Crop(img image.Image, r image.Rectangle) image.Image {
	r = r.Add(img.Bounds().Min).Intersect(img.Bounds())

	if sub, ok := img.(subImager); ok {
		return sub.SubImage(r)
	}

	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)

	return dst
}
