// Package classify implements the two-stage media classification protocol:
// upload and materialize, describe, classify the description, clean up.
package classify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jhowland/camsift/internal/gemini"
	"github.com/jhowland/camsift/internal/media"
)

// Analyzer is the remote capability the classifier needs. *gemini.Client
// implements it; tests substitute fakes.
type Analyzer interface {
	Upload(ctx context.Context, path string) (gemini.FileHandle, error)
	Describe(ctx context.Context, handle gemini.FileHandle, prompt string, timeout time.Duration) (string, error)
	ClassifyText(ctx context.Context, description, prompt string, timeout time.Duration) (string, error)
	Delete(ctx context.Context, handle gemini.FileHandle) error
}

// Profile carries the per-kind prompt text and request timeout. Images and
// videos run the same protocol and differ only here.
type Profile struct {
	DescribePrompt string
	ClassifyPrompt string
	Timeout        time.Duration
}

const (
	imageDescribePrompt = "Provide a detailed overview of this image, focusing on key elements. " +
		"Mention any people or pets, any vehicles, and any visible doors, noting whether each door is open or closed. " +
		"Highlight other significant objects or features."

	videoDescribePrompt = "Describe this video in detail, focusing on any people or pets, " +
		"vehicles, doors, and notable events or activities."

	classifyPrompt = "The following text describes footage from a home security camera. " +
		"If it contains descriptions of people or pets, respond with 'positive'. " +
		"If it clearly contains neither, respond with 'negative'. " +
		"If you cannot determine this from the text, respond with 'ambiguous'."
)

// DefaultProfiles returns the standard image and video profiles.
func DefaultProfiles(imageTimeout, videoTimeout time.Duration) map[media.Kind]Profile {
	return map[media.Kind]Profile{
		media.KindImage: {
			DescribePrompt: imageDescribePrompt,
			ClassifyPrompt: classifyPrompt,
			Timeout:        imageTimeout,
		},
		media.KindVideo: {
			DescribePrompt: videoDescribePrompt,
			ClassifyPrompt: classifyPrompt,
			Timeout:        videoTimeout,
		},
	}
}

// Outcome is the result of one classification attempt. Exactly one is
// produced per dispatched item, success or failure.
type Outcome struct {
	Item        media.Item
	Description string
	RawLabel    string
	Label       Label
	Err         error
}

// Failed reports whether the outcome should land in the failed set.
func (o Outcome) Failed() bool {
	return o.Label == LabelError || o.Label == LabelFiltered
}

// Classifier runs the classification protocol for single items.
type Classifier struct {
	analyzer Analyzer
	profiles map[media.Kind]Profile
}

// New creates a Classifier.
func New(analyzer Analyzer, profiles map[media.Kind]Profile) *Classifier {
	return &Classifier{analyzer: analyzer, profiles: profiles}
}

// Classify executes the four protocol stages strictly in order. The remote
// artifact is always deleted once stages 2-3 have run, success or failure;
// a deletion failure is logged and does not change the computed outcome.
func (c *Classifier) Classify(ctx context.Context, item media.Item) Outcome {
	profile, ok := c.profiles[item.Kind]
	if !ok {
		return Outcome{Item: item, Label: LabelError, Err: errors.New("no profile for media kind")}
	}

	handle, err := c.analyzer.Upload(ctx, item.Path)
	if err != nil {
		return Outcome{Item: item, Label: LabelError, Err: err}
	}
	defer func() {
		if err := c.analyzer.Delete(ctx, handle); err != nil {
			slog.Warn("failed to delete remote file", "item", item.ID, "error", err)
		}
	}()

	description, err := c.analyzer.Describe(ctx, handle, profile.DescribePrompt, profile.Timeout)
	if err != nil {
		if errors.Is(err, gemini.ErrContentFiltered) {
			return Outcome{Item: item, Label: LabelFiltered, Err: err}
		}
		return Outcome{Item: item, Label: LabelError, Err: err}
	}

	raw, err := c.analyzer.ClassifyText(ctx, description, profile.ClassifyPrompt, profile.Timeout)
	if err != nil {
		if errors.Is(err, gemini.ErrContentFiltered) {
			return Outcome{Item: item, Description: description, Label: LabelFiltered, Err: err}
		}
		return Outcome{Item: item, Description: description, Label: LabelError, Err: err}
	}

	return Outcome{
		Item:        item,
		Description: description,
		RawLabel:    raw,
		Label:       ParseLabel(raw),
	}
}
